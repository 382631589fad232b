package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pushlytics/api/logging"
	"pushlytics/api/middleware"
	"pushlytics/api/models"
	"pushlytics/api/store"
)

// maxTrackBatch bounds the number of events accepted in one request.
const maxTrackBatch = 1000

type TrackHandlers struct {
	Writer store.EventWriter
	now    func() time.Time
}

func NewTrackHandlers(w store.EventWriter) *TrackHandlers {
	return &TrackHandlers{Writer: w, now: time.Now}
}

// TrackEvent handles POST /api/track. Events are always recorded under the
// caller's organization whatever orgId the payload carries.
func (h *TrackHandlers) TrackEvent(c *gin.Context) {
	var incoming []models.Event
	if err := c.ShouldBindJSON(&incoming); err != nil {
		respondError(c, badRequest("Invalid request body"))
		return
	}
	if len(incoming) == 0 {
		c.Status(http.StatusOK)
		return
	}
	if len(incoming) > maxTrackBatch {
		respondError(c, &AppError{
			Status:  http.StatusRequestEntityTooLarge,
			Code:    "batch_too_large",
			Message: "At most 1000 events per request",
		})
		return
	}

	orgID := c.GetString(middleware.ContextOrgID)
	now := h.now().UTC()
	for i := range incoming {
		e := &incoming[i]
		if e.EventType == "" {
			respondError(c, badRequest("eventType is required"))
			return
		}
		e.EventID = uuid.New().String()
		e.OrgID = orgID
		if e.Timestamp.IsZero() {
			e.Timestamp = now
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	if err := h.Writer.InsertEvents(ctx, incoming); err != nil {
		logging.Ctx(ctx).Error().Err(err).Int("events", len(incoming)).Msg("failed to record events")
		c.AbortWithStatusJSON(http.StatusInternalServerError, &AppError{
			Status: http.StatusInternalServerError, Code: "internal", Message: "Failed to record events",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"accepted": len(incoming)})
}
