package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"laundry-session-backend/internal/laundry"
	"laundry-session-backend/internal/store"
)

// SupervisorHeader carries the supervisor passphrase on supervisor-only requests.
const SupervisorHeader = "X-Supervisor-Code"

// Handler holds shared dependencies for API handlers.
type Handler struct {
	svc     *laundry.Service
	store   store.Store
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(svc *laundry.Service, s store.Store, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		svc:     svc,
		store:   s,
		webpush: webpushOptions,
	}
}
