package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"laundry-session-backend/internal/laundry"
	"laundry-session-backend/internal/model"
	"laundry-session-backend/internal/parse"
)

// MachineResponse is a machine with its decoded location.
type MachineResponse struct {
	*model.Machine
	Kind        parse.MachineKind `json:"kind"`
	Hall        string            `json:"hall"`
	Number      int               `json:"number"`
	Description string            `json:"description"`
}

func machineResponse(m *model.Machine) MachineResponse {
	resp := MachineResponse{Machine: m}
	if loc, err := parse.ParseMachineID(m.ID); err == nil {
		resp.Kind = loc.Kind
		resp.Hall = string(loc.Hall)
		resp.Number = loc.Number
		resp.Description = loc.String()
	}
	return resp
}

// SessionResponse is what anyone holding a session id may see. The phone number and the
// verification code are never included.
type SessionResponse struct {
	ID                 int64               `json:"id"`
	MachineID          string              `json:"machineId"`
	FirstName          string              `json:"firstName,omitempty"`
	Status             model.SessionStatus `json:"status"`
	TimeIn             time.Time           `json:"timeIn"`
	ExpectedEnd        time.Time           `json:"expectedEnd"`
	TimeOut            *time.Time          `json:"timeOut,omitempty"`
	DelayMinutes       *int                `json:"delayMinutes,omitempty"`
	FinishNotifyStatus string              `json:"finishNotifyStatus,omitempty"`
}

func sessionResponse(s *model.Session) *SessionResponse {
	if s == nil {
		return nil
	}
	return &SessionResponse{
		ID:                 s.ID,
		MachineID:          s.MachineID,
		FirstName:          s.FirstName,
		Status:             s.Status,
		TimeIn:             s.TimeIn,
		ExpectedEnd:        s.ExpectedEnd,
		TimeOut:            s.TimeOut,
		DelayMinutes:       s.DelayMinutes,
		FinishNotifyStatus: s.FinishNotifyStatus,
	}
}

// ListMachines handles GET /api/machines.
func (h *Handler) ListMachines(c *gin.Context) {
	machines, err := h.svc.ListMachines(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	resp := make([]MachineResponse, len(machines))
	for i := range machines {
		resp[i] = machineResponse(&machines[i])
	}
	c.JSON(http.StatusOK, resp)
}

type layoutMachine struct {
	ID     string            `json:"id"`
	Number int               `json:"number"`
	Kind   parse.MachineKind `json:"kind"`
}

type layoutHall struct {
	Hall     string          `json:"hall"`
	Machines []layoutMachine `json:"machines"`
}

type layoutFloor struct {
	Floor     string       `json:"floor"`
	FloorText string       `json:"floorText"`
	Halls     []layoutHall `json:"halls"`
}

// GetLayout handles GET /api/layout: every addressable machine grouped by floor and hallway.
func (h *Handler) GetLayout(c *gin.Context) {
	var floors []layoutFloor
	for _, id := range parse.AllMachineIDs() {
		loc, _ := parse.ParseMachineID(id)
		if len(floors) == 0 || floors[len(floors)-1].Floor != string(loc.Floor) {
			floors = append(floors, layoutFloor{Floor: string(loc.Floor), FloorText: loc.FloorText()})
		}
		floor := &floors[len(floors)-1]
		if len(floor.Halls) == 0 || floor.Halls[len(floor.Halls)-1].Hall != string(loc.Hall) {
			floor.Halls = append(floor.Halls, layoutHall{Hall: string(loc.Hall)})
		}
		hall := &floor.Halls[len(floor.Halls)-1]
		hall.Machines = append(hall.Machines, layoutMachine{ID: id, Number: loc.Number, Kind: loc.Kind})
	}
	c.JSON(http.StatusOK, gin.H{"floors": floors})
}

// ScanMachine handles GET /api/machines/:machine_id, the landing page of a QR code.
func (h *Handler) ScanMachine(c *gin.Context) {
	res, err := h.svc.Scan(c.Request.Context(), c.Param("machine_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"machine":       machineResponse(res.Machine),
		"action":        res.Action,
		"activeSession": sessionResponse(res.ActiveSession),
	})
}

type startSessionRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
}

// StartSession handles POST /api/machines/:machine_id/sessions.
func (h *Handler) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	session, err := h.svc.StartSession(c.Request.Context(), c.Param("machine_id"), laundry.StartRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session":          sessionResponse(session),
		"verificationCode": session.VerificationCode,
	})
}

type codeRequest struct {
	Code string `json:"code" binding:"required"`
}

// VerifyPickup handles POST /api/machines/:machine_id/verify.
func (h *Handler) VerifyPickup(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	session, err := h.svc.VerifyPickup(c.Request.Context(), c.Param("machine_id"), req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session": sessionResponse(session),
		"next":    fmt.Sprintf("/api/sessions/%d/pickup/preview", session.ID),
	})
}

type conditionRequest struct {
	Condition model.Condition `json:"condition" binding:"required"`
	Reason    string          `json:"reason"`
}

// UpdateCondition handles POST /api/machines/:machine_id/condition for the supervisor.
func (h *Handler) UpdateCondition(c *gin.Context) {
	var req conditionRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Condition.Valid() {
		badRequest(c)
		return
	}

	ctx := c.Request.Context()
	code := c.GetHeader(SupervisorHeader)
	machineID := c.Param("machine_id")

	var (
		m   *model.Machine
		err error
	)
	if req.Condition == model.ConditionBroken {
		m, err = h.svc.ReportBroken(ctx, machineID, code, req.Reason)
	} else {
		m, err = h.svc.ResolveIssue(ctx, machineID, code, req.Reason)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, machineResponse(m))
}
