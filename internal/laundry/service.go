package laundry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"laundry-session-backend/internal/logging"
	"laundry-session-backend/internal/metrics"
	"laundry-session-backend/internal/model"
	"laundry-session-backend/internal/notification"
	"laundry-session-backend/internal/parse"
	"laundry-session-backend/internal/report"
	"laundry-session-backend/internal/store"
	"laundry-session-backend/internal/verify"
)

var (
	ErrInvalidMachineID = errors.New("invalid machine id")
	ErrNoActiveSession  = errors.New("no active session on this machine")
	ErrCycleNotFinished = errors.New("cycle has not finished yet")
)

// ValidationError lists the rejected input fields with a message for each.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Action tells the client what to show after a scan.
type Action string

const (
	ActionStart       Action = "start"
	ActionVerify      Action = "verify"
	ActionUnavailable Action = "unavailable"
)

// ScanResult is the state of a scanned machine.
type ScanResult struct {
	Machine       *model.Machine
	ActiveSession *model.Session
	Action        Action
}

// StartRequest carries the raw registration form.
type StartRequest struct {
	FirstName string
	LastName  string
	Phone     string
}

// PickupPreview is the delay a pickup would record if confirmed at At.
type PickupPreview struct {
	Session *model.Session
	Delay   Delay
	At      time.Time
}

// NotifyResult is the outcome of a finish notification. Cached is set when an earlier
// successful send was returned without contacting the provider.
type NotifyResult struct {
	notification.Result
	Status string     `json:"status"`
	SentAt *time.Time `json:"sentAt,omitempty"`
	Cached bool       `json:"cached"`
}

// VacancyDispatcher queues an alert for a machine that became vacant.
type VacancyDispatcher interface {
	Dispatch(machineID string) bool
}

// Options are the business rules of the service.
type Options struct {
	CycleDuration time.Duration
	GraceMinutes  int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service runs the session lifecycle on top of the store.
type Service struct {
	store   store.Store
	gate    *verify.Gate
	sms     notification.Provider
	vacancy VacancyDispatcher
	cycle   time.Duration
	grace   int
	now     func() time.Time
}

// NewService wires a service. vacancy may be nil when push alerts are disabled.
func NewService(s store.Store, gate *verify.Gate, sms notification.Provider, vacancy VacancyDispatcher, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:   s,
		gate:    gate,
		sms:     sms,
		vacancy: vacancy,
		cycle:   opts.CycleDuration,
		grace:   opts.GraceMinutes,
		now:     now,
	}
}

func checkMachineID(id string) error {
	if !parse.ValidMachineID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidMachineID, id)
	}
	return nil
}

// Scan registers the machine on first sight and tells the caller whether to start a session,
// verify a pickup or report the machine unavailable.
func (s *Service) Scan(ctx context.Context, machineID string) (*ScanResult, error) {
	if err := checkMachineID(machineID); err != nil {
		return nil, err
	}
	if err := s.store.EnsureMachine(ctx, machineID); err != nil {
		return nil, err
	}
	m, err := s.store.GetMachine(ctx, machineID)
	if err != nil {
		return nil, err
	}

	res := &ScanResult{Machine: m}
	active, err := s.store.GetActiveSession(ctx, machineID)
	switch {
	case err == nil:
		res.ActiveSession = active
		res.Action = ActionVerify
	case errors.Is(err, store.ErrNotFound):
		res.Action = ActionStart
		if m.Condition == model.ConditionBroken {
			res.Action = ActionUnavailable
		}
	default:
		return nil, err
	}
	return res, nil
}

// ListMachines returns every machine seen so far.
func (s *Service) ListMachines(ctx context.Context) ([]model.Machine, error) {
	return s.store.ListMachines(ctx)
}

// IsSupervisor reports whether code is the supervisor code.
func (s *Service) IsSupervisor(code string) bool {
	return s.gate.Supervisor(code) == nil
}

// GetSession returns a session by id.
func (s *Service) GetSession(ctx context.Context, id int64) (*model.Session, error) {
	return s.store.GetSession(ctx, id)
}

// StartSession validates the form and registers a load. The returned session carries the
// freshly generated verification code.
func (s *Service) StartSession(ctx context.Context, machineID string, req StartRequest) (*model.Session, error) {
	if err := checkMachineID(machineID); err != nil {
		return nil, err
	}

	first := strings.TrimSpace(req.FirstName)
	last := strings.TrimSpace(req.LastName)
	phone := parse.DigitsOnly(req.Phone)

	fields := map[string]string{}
	if first == "" {
		fields["firstName"] = "first name is required"
	}
	if last == "" {
		fields["lastName"] = "last name is required"
	}
	if len(phone) != parse.PhoneDigits {
		fields["phone"] = fmt.Sprintf("phone number must have exactly %d digits", parse.PhoneDigits)
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	code, err := verify.GenerateCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification code: %w", err)
	}

	timeIn := s.now()
	session, err := s.store.StartSession(ctx, store.NewSession{
		MachineID:        machineID,
		FirstName:        first,
		LastName:         last,
		Phone:            phone,
		TimeIn:           timeIn,
		ExpectedEnd:      timeIn.Add(s.cycle),
		VerificationCode: code,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrActiveSessionExists):
			metrics.SessionRejections.WithLabelValues("occupied").Inc()
		case errors.Is(err, store.ErrMachineBroken):
			metrics.SessionRejections.WithLabelValues("broken").Inc()
		}
		return nil, err
	}

	metrics.SessionsStarted.Inc()
	logging.Logger.WithFields(logrus.Fields{
		"machine": machineID,
		"session": session.ID,
	}).Info("session started")
	return session, nil
}

// VerifyPickup checks code against the machine's active session. Nothing changes on success;
// the caller proceeds to the pickup preview.
func (s *Service) VerifyPickup(ctx context.Context, machineID, code string) (*model.Session, error) {
	if err := checkMachineID(machineID); err != nil {
		return nil, err
	}
	session, err := s.store.GetActiveSession(ctx, machineID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("machine %s: %w", machineID, ErrNoActiveSession)
	}
	if err != nil {
		return nil, err
	}
	if err := s.checkCode(session, code); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) checkCode(session *model.Session, code string) error {
	if err := s.gate.Check(session.VerificationCode, code); err != nil {
		metrics.VerifyFailures.Inc()
		logging.Logger.WithField("session", session.ID).Warn("incorrect verification code")
		return err
	}
	return nil
}

// authorizedActiveSession loads the session, checks the code and requires it to be active.
// The code is checked first so a wrong code never learns the session state.
func (s *Service) authorizedActiveSession(ctx context.Context, sessionID int64, code string) (*model.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %d: %w", sessionID, err)
	}
	if err := s.checkCode(session, code); err != nil {
		return nil, err
	}
	if session.Status != model.SessionActive {
		return nil, fmt.Errorf("session %d: %w", sessionID, store.ErrAlreadyPickedUp)
	}
	return session, nil
}

// PreviewPickup shows the delay that confirming now would record.
func (s *Service) PreviewPickup(ctx context.Context, sessionID int64, code string) (*PickupPreview, error) {
	session, err := s.authorizedActiveSession(ctx, sessionID, code)
	if err != nil {
		return nil, err
	}
	at := s.now()
	return &PickupPreview{
		Session: session,
		Delay:   ComputeDelay(session.ExpectedEnd, at, s.grace),
		At:      at,
	}, nil
}

// ConfirmPickup ends the session and frees the machine. The delay is recomputed at commit
// time; any earlier preview is informational only.
func (s *Service) ConfirmPickup(ctx context.Context, sessionID int64, code string) (*PickupPreview, error) {
	session, err := s.authorizedActiveSession(ctx, sessionID, code)
	if err != nil {
		return nil, err
	}

	at := s.now()
	delay := ComputeDelay(session.ExpectedEnd, at, s.grace)
	done, err := s.store.CompletePickup(ctx, sessionID, at, delay.DelayMinutes)
	if err != nil {
		return nil, err
	}

	metrics.Pickups.Inc()
	metrics.PickupDelay.Observe(float64(delay.DelayMinutes))
	logging.Logger.WithFields(logrus.Fields{
		"machine": done.MachineID,
		"session": done.ID,
		"delay":   delay.DelayMinutes,
	}).Info("pickup confirmed")

	if s.vacancy != nil {
		s.vacancy.Dispatch(done.MachineID)
	}
	return &PickupPreview{Session: done, Delay: delay, At: at}, nil
}

// NotifyFinish texts the student that the cycle is done. A session that already has a
// successful send returns that result again without contacting the provider. Provider
// failures are recorded and returned as an unsuccessful result, not as an error.
func (s *Service) NotifyFinish(ctx context.Context, sessionID int64) (*NotifyResult, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %d: %w", sessionID, err)
	}
	// a successful send is returned as stored, even after pickup
	if session.NotificationSent() {
		metrics.FinishNotifications.WithLabelValues("cached").Inc()
		return &NotifyResult{
			Result: notification.Result{Success: true, MessageID: session.SentMessageID()},
			Status: session.FinishNotifyStatus,
			SentAt: session.FinishNotifySentAt,
			Cached: true,
		}, nil
	}
	if session.Status != model.SessionActive {
		return nil, fmt.Errorf("session %d: %w", sessionID, store.ErrAlreadyPickedUp)
	}

	now := s.now()
	if now.Before(session.ExpectedEnd) {
		return nil, fmt.Errorf("session %d: %w", sessionID, ErrCycleNotFinished)
	}

	loc, err := parse.ParseMachineID(session.MachineID)
	if err != nil {
		return nil, err
	}
	res := s.sms.Send(ctx, parse.ToE164US(session.Phone), notification.FinishMessage(loc, session.FirstName))

	status := model.SentStatus(res.MessageID)
	outcome := "sent"
	if !res.Success {
		status = model.FailedStatus(res.ErrorKind)
		outcome = "failed"
	}
	metrics.FinishNotifications.WithLabelValues(outcome).Inc()

	if err := s.store.RecordFinishNotification(ctx, sessionID, status, now); err != nil {
		return nil, err
	}

	entry := logging.Logger.WithFields(logrus.Fields{"session": sessionID, "status": status})
	if res.Success {
		entry.Info("finish notification sent")
	} else {
		entry.Warn("finish notification failed")
	}
	return &NotifyResult{Result: res, Status: status, SentAt: &now}, nil
}

// ReportBroken takes a machine out of service. Only the supervisor may do this.
func (s *Service) ReportBroken(ctx context.Context, machineID, supervisorCode, reason string) (*model.Machine, error) {
	return s.changeCondition(ctx, machineID, supervisorCode, model.ConditionBroken, reason)
}

// ResolveIssue returns a broken machine to service. Only the supervisor may do this.
func (s *Service) ResolveIssue(ctx context.Context, machineID, supervisorCode, reason string) (*model.Machine, error) {
	return s.changeCondition(ctx, machineID, supervisorCode, model.ConditionNormal, reason)
}

func (s *Service) changeCondition(ctx context.Context, machineID, supervisorCode string, target model.Condition, reason string) (*model.Machine, error) {
	if err := checkMachineID(machineID); err != nil {
		return nil, err
	}
	if err := s.gate.Supervisor(supervisorCode); err != nil {
		return nil, err
	}
	if err := s.store.EnsureMachine(ctx, machineID); err != nil {
		return nil, err
	}
	m, err := s.store.UpdateCondition(ctx, machineID, target, strings.TrimSpace(reason), s.now())
	if err != nil {
		return nil, err
	}

	metrics.ConditionChanges.WithLabelValues(string(target)).Inc()
	logging.Logger.WithFields(logrus.Fields{
		"machine":   machineID,
		"condition": target,
	}).Info("machine condition changed")
	return m, nil
}

// Summary aggregates usage and repair history per machine for the supervisor.
func (s *Service) Summary(ctx context.Context, supervisorCode string) ([]report.MachineSummary, error) {
	if err := s.gate.Supervisor(supervisorCode); err != nil {
		return nil, err
	}
	machines, err := s.store.ListMachines(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	return report.Build(machines, sessions), nil
}
