package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registration-api/pkg/jobs"
	"github.com/noah-isme/course-registration-api/pkg/logger"
)

// Registration event kinds.
const (
	EventAdmitted = "registration.admitted"
	EventDropped  = "registration.dropped"
)

// RegistrationEvent describes a committed registration change.
type RegistrationEvent struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	UserID         string    `json:"user_id"`
	SectionID      string    `json:"section_id"`
	CourseID       string    `json:"course_id"`
	InstructorID   string    `json:"instructor_id"`
	PromotedUserID string    `json:"promoted_user_id,omitempty"`
	// ShiftedUserIDs are queued users whose waitlist position changed.
	ShiftedUserIDs []string  `json:"shifted_user_ids,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// affectedUsers lists every user whose cached views include the change.
func (e RegistrationEvent) affectedUsers() []string {
	return mergeUserIDs([]string{e.UserID, e.InstructorID, e.PromotedUserID}, e.ShiftedUserIDs)
}

// mergeUserIDs appends extra to ids, skipping blanks and duplicates.
func mergeUserIDs(ids []string, extra []string) []string {
	out := make([]string, 0, len(ids)+len(extra))
	seen := make(map[string]struct{}, len(ids)+len(extra))
	for _, group := range [][]string{ids, extra} {
		for _, id := range group {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, patterns ...string) error
}

// RegistrationEvents fans committed registration changes out to a worker
// pool that invalidates cached views. Publishing never blocks the request
// and never affects the committed decision.
type RegistrationEvents struct {
	queue  *jobs.Queue
	cache  cacheInvalidator
	logger *zap.Logger
}

// NewRegistrationEvents builds the event pipeline on a jobs queue.
func NewRegistrationEvents(cache cacheInvalidator, cfg jobs.QueueConfig) *RegistrationEvents {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	e := &RegistrationEvents{cache: cache, logger: cfg.Logger}
	e.queue = jobs.NewQueue("registration-events", e.handle, cfg)
	return e
}

// Start launches the workers.
func (e *RegistrationEvents) Start(ctx context.Context) {
	e.queue.Start(ctx)
}

// Stop drains the workers.
func (e *RegistrationEvents) Stop() {
	e.queue.Stop()
}

// Stats reports queue throughput.
func (e *RegistrationEvents) Stats() jobs.Stats {
	return e.queue.Stats()
}

// Publish enqueues the event. A full or stopped queue drops it with a warning;
// cached views then expire by TTL.
func (e *RegistrationEvents) Publish(ctx context.Context, event RegistrationEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := e.queue.TryEnqueue(jobs.Job{ID: event.ID, Type: event.Kind, Payload: event}); err != nil {
		logger.ForContext(e.logger, ctx).Warn("registration event dropped",
			zap.String("event_id", event.ID),
			zap.String("kind", event.Kind),
			zap.Error(err),
		)
	}
}

func (e *RegistrationEvents) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(RegistrationEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID)
	}
	if e.cache == nil {
		return nil
	}
	return e.cache.Invalidate(ctx, InvalidationPatterns(event)...)
}

// InvalidationPatterns returns the cache key patterns touched by an event.
func InvalidationPatterns(event RegistrationEvent) []string {
	users := event.affectedUsers()
	patterns := make([]string, 0, len(users)+2)
	for _, id := range users {
		patterns = append(patterns, userCacheKey(id, "*"))
	}
	if event.SectionID != "" {
		patterns = append(patterns, sectionCacheKey(event.SectionID, "*"))
	}
	if event.CourseID != "" {
		patterns = append(patterns, courseCacheKey(event.CourseID, "*"))
	}
	return patterns
}
