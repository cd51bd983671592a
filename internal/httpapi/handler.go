// Package httpapi exposes the control surface of the patrol engine: start,
// confirm, finish, cancel and the live-position query. Fix streaming at
// 10 Hz belongs to the TCP ingest, not here.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ronda-svr/internal/geofence"
	"ronda-svr/internal/patrol"
	"ronda-svr/internal/track"
)

// engineAPI is the slice of the patrol engine the handlers need.
type engineAPI interface {
	StartPatrol(ctx context.Context, guardID, areaID string, initial track.Fix) (string, error)
	SubmitFix(sessionID string, f track.Fix) error
	ConfirmCheckpoint(sessionID, checkpointID string, f track.Fix) (geofence.Visit, error)
	FinishPatrol(sessionID string, finalFix track.Fix, notes string) (patrol.Summary, error)
	CancelPatrol(sessionID, reason string) error
	Snapshot(sessionID string) (patrol.Snapshot, error)
}

// liveReader serves cached live positions without touching session workers.
type liveReader interface {
	GetLivePosition(ctx context.Context, sessionID string) ([]byte, bool)
}

type Handler struct {
	engine engineAPI
	live   liveReader
}

func NewHandler(engine engineAPI, live liveReader) *Handler {
	return &Handler{engine: engine, live: live}
}

func (h *Handler) Register(r *gin.RouterGroup) {
	r.POST("/patrols", h.StartPatrol)
	r.POST("/patrols/:session_id/fixes", h.SubmitFix)
	r.POST("/patrols/:session_id/checkpoints/:checkpoint_id/confirm", h.ConfirmCheckpoint)
	r.POST("/patrols/:session_id/finish", h.FinishPatrol)
	r.POST("/patrols/:session_id/cancel", h.CancelPatrol)
	r.GET("/patrols/:session_id", h.GetPatrol)
	r.GET("/patrols/:session_id/live", h.GetLive)
}

type startRequest struct {
	GuardID string    `json:"guard_id" binding:"required"`
	AreaID  string    `json:"area_id" binding:"required"`
	Fix     track.Fix `json:"fix" binding:"required"`
}

func (h *Handler) StartPatrol(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST", "detail": err.Error()})
		return
	}

	sessionID, err := h.engine.StartPatrol(c.Request.Context(), req.GuardID, req.AreaID, req.Fix)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session_id": sessionID})
}

type fixRequest struct {
	Fix track.Fix `json:"fix" binding:"required"`
}

func (h *Handler) SubmitFix(c *gin.Context) {
	var req fixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST", "detail": err.Error()})
		return
	}

	if err := h.engine.SubmitFix(c.Param("session_id"), req.Fix); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (h *Handler) ConfirmCheckpoint(c *gin.Context) {
	var req fixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST", "detail": err.Error()})
		return
	}

	visit, err := h.engine.ConfirmCheckpoint(c.Param("session_id"), c.Param("checkpoint_id"), req.Fix)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, visit)
}

type finishRequest struct {
	Fix   track.Fix `json:"fix" binding:"required"`
	Notes string    `json:"notes"`
}

func (h *Handler) FinishPatrol(c *gin.Context) {
	var req finishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST", "detail": err.Error()})
		return
	}

	summary, err := h.engine.FinishPatrol(c.Param("session_id"), req.Fix, req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) CancelPatrol(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST", "detail": err.Error()})
		return
	}

	if err := h.engine.CancelPatrol(c.Param("session_id"), req.Reason); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (h *Handler) GetPatrol(c *gin.Context) {
	snap, err := h.engine.Snapshot(c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) GetLive(c *gin.Context) {
	payload, ok := h.live.GetLivePosition(c.Request.Context(), c.Param("session_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "NO_LIVE_POSITION"})
		return
	}
	c.Data(http.StatusOK, "application/json", payload)
}

// writeError maps domain errors onto structured HTTP responses so the UI
// collaborator can render localized messages from the error kind alone.
func writeError(c *gin.Context, err error) {
	var outOfRange *geofence.OutOfRangeError
	var tooSoon *geofence.TooSoonError

	switch {
	case errors.Is(err, patrol.ErrAlreadyActive):
		c.JSON(http.StatusConflict, gin.H{"error": "ALREADY_ACTIVE"})
	case errors.Is(err, patrol.ErrSessionNotActive):
		c.JSON(http.StatusConflict, gin.H{"error": "SESSION_NOT_ACTIVE"})
	case errors.Is(err, patrol.ErrUnknownSession):
		c.JSON(http.StatusNotFound, gin.H{"error": "UNKNOWN_SESSION"})
	case errors.Is(err, patrol.ErrInvalidFix):
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_FIX"})
	case errors.Is(err, geofence.ErrUnknownCheckpoint):
		c.JSON(http.StatusNotFound, gin.H{"error": "UNKNOWN_CHECKPOINT"})
	case errors.Is(err, geofence.ErrAlreadyVisited):
		c.JSON(http.StatusConflict, gin.H{"error": "CHECKPOINT_ALREADY_VISITED"})
	case errors.As(err, &outOfRange):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "OUT_OF_RANGE",
			"distance_m": outOfRange.DistanceM,
			"radius_m":   outOfRange.RadiusM,
		})
	case errors.As(err, &tooSoon):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":             "TOO_SOON",
			"remaining_seconds": tooSoon.RemainingSeconds(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL"})
	}
}
