package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"laundry-session-backend/internal/laundry"
)

func sessionID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("session_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return 0, false
	}
	return id, true
}

// GetSession handles GET /api/sessions/:session_id. Ids are sequential, so the student's
// name is only shown to the supervisor.
func (h *Handler) GetSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	session, err := h.svc.GetSession(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := sessionResponse(session)
	if !h.svc.IsSupervisor(c.GetHeader(SupervisorHeader)) {
		resp.FirstName = ""
	}
	c.JSON(http.StatusOK, resp)
}

// NotifyFinish handles POST /api/sessions/:session_id/finish-notification. A provider failure
// is still a 200 with success=false.
func (h *Handler) NotifyFinish(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	res, err := h.svc.NotifyFinish(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func pickupResponse(p *laundry.PickupPreview) gin.H {
	return gin.H{
		"session":      sessionResponse(p.Session),
		"at":           p.At,
		"lateMinutes":  p.Delay.LateMinutes,
		"delayMinutes": p.Delay.DelayMinutes,
	}
}

// PreviewPickup handles POST /api/sessions/:session_id/pickup/preview.
func (h *Handler) PreviewPickup(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	preview, err := h.svc.PreviewPickup(c.Request.Context(), id, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pickupResponse(preview))
}

// ConfirmPickup handles POST /api/sessions/:session_id/pickup/confirm.
func (h *Handler) ConfirmPickup(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	done, err := h.svc.ConfirmPickup(c.Request.Context(), id, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pickupResponse(done))
}
