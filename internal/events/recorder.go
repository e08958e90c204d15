package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"clearner-backend/internal/logger"
	"clearner-backend/internal/store"
)

// DefaultEventType tags clipboard pastes, the only event the client
// currently reports.
const DefaultEventType = "PASTE"

// Recorder appends immutable lesson step events. Recording must
// never block or fail the user-facing action that produced the
// event, so errors are logged and absorbed.
type Recorder struct {
	store store.Store
}

func NewRecorder(st store.Store) *Recorder {
	return &Recorder{store: st}
}

// Record inserts one event row per call; no deduplication.
func (r *Recorder) Record(ctx context.Context, userID, lessonID string, stepIndex int, eventType string) {
	if eventType == "" {
		eventType = DefaultEventType
	}
	if userID == "" || lessonID == "" || stepIndex < 0 {
		logger.Log.Warn("Dropping step event with missing fields",
			zap.String("userID", userID),
			zap.String("lessonID", lessonID),
			zap.Int("stepIndex", stepIndex),
		)
		return
	}

	event := &store.LessonStepEvent{
		UserID:    userID,
		LessonID:  lessonID,
		StepIndex: stepIndex,
		EventType: eventType,
		CreatedAt: time.Now().UnixMilli(),
	}

	if err := r.store.InsertStepEvent(ctx, event); err != nil {
		logger.Log.Error("Failed to record step event",
			zap.String("userID", userID),
			zap.String("lessonID", lessonID),
			zap.Int("stepIndex", stepIndex),
			zap.String("eventType", eventType),
			zap.Error(err),
		)
	}
}
