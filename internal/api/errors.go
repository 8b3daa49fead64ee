package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"laundry-session-backend/internal/laundry"
	"laundry-session-backend/internal/logging"
	"laundry-session-backend/internal/model"
	"laundry-session-backend/internal/store"
	"laundry-session-backend/internal/verify"
)

// respondError maps domain errors onto HTTP statuses. Unknown errors are logged and hidden
// behind a generic 500.
func respondError(c *gin.Context, err error) {
	var verr *laundry.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verr.Fields})
	case errors.Is(err, laundry.ErrInvalidMachineID):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid machine id"})
	case errors.Is(err, verify.ErrIncorrectCode), errors.Is(err, verify.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": verify.ErrIncorrectCode.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, laundry.ErrNoActiveSession):
		c.JSON(http.StatusNotFound, gin.H{"error": laundry.ErrNoActiveSession.Error()})
	case errors.Is(err, store.ErrActiveSessionExists),
		errors.Is(err, store.ErrMachineBroken),
		errors.Is(err, store.ErrAlreadyPickedUp),
		errors.Is(err, store.ErrVerificationCodeSet),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, laundry.ErrCycleNotFinished):
		c.JSON(http.StatusConflict, gin.H{"error": conflictMessage(err)})
	default:
		logging.Logger.WithError(err).Errorf("%s %s failed", c.Request.Method, c.FullPath())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func conflictMessage(err error) string {
	for _, known := range []error{
		store.ErrActiveSessionExists,
		store.ErrMachineBroken,
		store.ErrAlreadyPickedUp,
		store.ErrVerificationCodeSet,
		model.ErrInvalidTransition,
		laundry.ErrCycleNotFinished,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}

func badRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}
