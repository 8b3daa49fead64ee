package notification

import (
	"context"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"laundry-session-backend/internal/logging"
	"laundry-session-backend/internal/metrics"
	"laundry-session-backend/internal/model"
	"laundry-session-backend/internal/parse"
)

// PushSender defines the interface for sending a web push notification.
type PushSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender sends through the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool sends vacancy alerts to the browsers subscribed to a machine.
type WorkerPool struct {
	size    int
	jobs    chan string
	db      *gorm.DB
	webpush *webpush.Options
	sender  PushSender
}

// NewWorkerPool creates a pool of size workers reading from a queue of queueSize machine ids.
func NewWorkerPool(size, queueSize int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	if queueSize < size {
		queueSize = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan string, queueSize),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines. They stop when ctx is cancelled.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	logging.Logger.Debugf("vacancy worker %d started", id)
	for {
		select {
		case machineID := <-wp.jobs:
			wp.alertSubscribers(ctx, machineID)
		case <-ctx.Done():
			logging.Logger.Debugf("vacancy worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a vacancy alert for machineID. It never blocks: when the queue is full the
// alert is dropped and false is returned.
func (wp *WorkerPool) Dispatch(machineID string) bool {
	select {
	case wp.jobs <- machineID:
		return true
	default:
		metrics.VacancyAlertsDropped.Inc()
		logging.Logger.Warnf("vacancy queue full, dropping alert for machine %s", machineID)
		return false
	}
}

func (wp *WorkerPool) alertSubscribers(ctx context.Context, machineID string) {
	loc, err := parse.ParseMachineID(machineID)
	if err != nil {
		logging.Logger.Warnf("vacancy alert for invalid machine %q ignored", machineID)
		return
	}

	var subscriptions []model.PushSubscription
	err = wp.db.WithContext(ctx).
		Joins("JOIN subscription_machine_mapping smm ON smm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("smm.machine_id = ?", machineID).
		Find(&subscriptions).Error
	if err != nil {
		logging.Logger.WithError(err).Errorf("failed to fetch subscriptions for machine %s", machineID)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	logging.Logger.Infof("sending %d vacancy alerts for machine %s", len(subscriptions), machineID)
	payload := []byte(VacancyMessage(loc))
	for _, sub := range subscriptions {
		wp.push(ctx, sub, payload)
	}
}

func (wp *WorkerPool) push(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		logging.Logger.WithError(err).Warnf("push to %s failed", sub.Endpoint)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		logging.Logger.Infof("subscription %s expired, deleting", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			logging.Logger.WithError(err).Errorf("failed to delete expired subscription %s", sub.Endpoint)
		}
	}
}
