package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/NoteTaker/internal/app"
	"github.com/dkeye/NoteTaker/internal/core"
	"github.com/dkeye/NoteTaker/internal/domain"
)

type handlers struct {
	manager *app.Manager
}

// httpError maps the core error taxonomy onto status codes.
func httpError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrUnsupportedFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *handlers) startSession(c *gin.Context) {
	var req struct {
		Room        string `json:"room" binding:"required"`
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, err := h.manager.StartSession(c.Request.Context(), domain.RoomID(req.Room), req.Title, req.Description)
	if err != nil {
		httpError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.Snapshot())
}

func (h *handlers) listSessions(c *gin.Context) {
	sessions := h.manager.Sessions()
	out := make([]core.SessionSnapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out, "count": len(out)})
}

func (h *handlers) getSession(c *gin.Context) {
	s, err := h.manager.SessionByID(c.Param("id"))
	if err != nil {
		httpError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *handlers) endSession(c *gin.Context) {
	snap, err := h.manager.EndSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handlers) startRecording(c *gin.Context) {
	var req struct {
		StartedBy string `json:"started_by"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.StartedBy == "" {
		req.StartedBy = c.GetString("client_token")
	}
	status, err := h.manager.StartRecording(c.Request.Context(), c.Param("id"), req.StartedBy)
	if err != nil {
		httpError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *handlers) stopRecording(c *gin.Context) {
	state, err := h.manager.StopRecording(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *handlers) addParticipant(c *gin.Context) {
	var req struct {
		ParticipantID string `json:"participant_id" binding:"required"`
		Name          string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.manager.AddParticipant(c.Request.Context(), c.Param("id"), domain.ParticipantID(req.ParticipantID), req.Name)
	if err != nil {
		httpError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *handlers) removeParticipant(c *gin.Context) {
	err := h.manager.RemoveParticipant(c.Request.Context(), c.Param("id"), domain.ParticipantID(c.Param("pid")))
	if err != nil {
		httpError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) addTranscript(c *gin.Context) {
	var req struct {
		Text        string  `json:"text" binding:"required"`
		Speaker     string  `json:"speaker"`
		SpeakerName string  `json:"speaker_name"`
		Confidence  float64 `json:"confidence"`
		Language    string  `json:"language"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	seg := domain.TranscriptSegment{
		Text:        req.Text,
		Speaker:     domain.ParticipantID(req.Speaker),
		SpeakerName: req.SpeakerName,
		Confidence:  req.Confidence,
		Language:    req.Language,
		Timestamp:   time.Now().UTC(),
		IsFinal:     true,
	}
	if err := h.manager.AddTranscript(c.Request.Context(), c.Param("id"), seg); err != nil {
		httpError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *handlers) exportSession(c *gin.Context) {
	var req struct {
		Format  string                `json:"format" binding:"required"`
		Options *domain.ExportOptions `json:"options"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	format, err := domain.ParseExportFormat(req.Format)
	if err != nil {
		httpError(c, err)
		return
	}
	opts := domain.DefaultExportOptions()
	if req.Options != nil {
		opts = *req.Options
	}
	path, err := h.manager.ExportSession(c.Request.Context(), c.Param("id"), format, opts)
	if err != nil {
		httpError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path, "format": string(format)})
}

func (h *handlers) recordingStatus(c *gin.Context) {
	status := h.manager.RecordingStatus(domain.RoomID(c.Param("room")))
	c.JSON(http.StatusOK, status)
}
