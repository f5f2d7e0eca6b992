package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/healthcure/clinic/internal/domain"
	"github.com/healthcure/clinic/pkg/events"
	"github.com/healthcure/clinic/pkg/logger"
)

// Store is the persistence half of the recorder.
type Store interface {
	Insert(ctx context.Context, action string, actorID *int64, details []byte) error
}

// Recorder writes security events best-effort: a failing audit sink must
// never fail the operation being audited. Failures land in the application
// log instead so the trail degrades to stdout rather than vanishing.
type Recorder struct {
	store Store
	bus   events.Publisher
}

// NewRecorder accepts a nil bus; event fan-out is optional.
func NewRecorder(store Store, bus events.Publisher) *Recorder {
	return &Recorder{store: store, bus: bus}
}

func (r *Recorder) Record(ctx context.Context, action string, actorID *int64, details map[string]any) {
	payload, err := json.Marshal(details)
	if err != nil {
		logger.ErrorContext(ctx, "audit: marshal details", "action", action, "error", err)
		payload = []byte(`{}`)
	}

	if err := r.store.Insert(ctx, action, actorID, payload); err != nil {
		logger.ErrorContext(ctx, "audit: store unavailable, event logged here instead",
			"action", action,
			"actor_id", actorID,
			"details", string(payload),
			"error", err,
		)
	}

	if r.bus == nil {
		return
	}

	evt := events.SecurityEvent{
		Action:   action,
		ActorID:  actorID,
		Details:  payload,
		Recorded: time.Now().UTC(),
	}
	if err := r.bus.Publish(ctx, subjectFor(action), evt); err != nil {
		logger.WarnContext(ctx, "audit: event publish failed", "action", action, "error", err)
	}
}

// subjectFor routes the high-signal authentication actions to their own
// subjects so alerting can subscribe narrowly; everything else rides the
// catch-all.
func subjectFor(action string) string {
	switch action {
	case domain.AuditLoginFailed:
		return events.SubjectLoginFailed
	case domain.AuditLoginSuccess:
		return events.SubjectLoginSuccess
	case domain.AuditMFAFailed:
		return events.SubjectMFAFailed
	default:
		return events.SubjectAuditRecorded
	}
}
