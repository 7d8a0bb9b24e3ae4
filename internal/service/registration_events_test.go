package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-registration-api/pkg/jobs"
)

type lockedInvalidator struct {
	mu       sync.Mutex
	patterns [][]string
}

func (l *lockedInvalidator) Invalidate(ctx context.Context, patterns ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.patterns = append(l.patterns, patterns)
	return nil
}

func (l *lockedInvalidator) calls() [][]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]string(nil), l.patterns...)
}

func TestInvalidationPatterns(t *testing.T) {
	patterns := InvalidationPatterns(RegistrationEvent{
		Kind:           EventDropped,
		UserID:         "u1",
		SectionID:      "s1",
		CourseID:       "c1",
		InstructorID:   "prof",
		PromotedUserID: "u2",
	})
	assert.Equal(t, []string{
		"registration:user:u1:*",
		"registration:user:prof:*",
		"registration:user:u2:*",
		"registration:section:s1:*",
		"registration:course:c1:*",
	}, patterns)

	assert.Equal(t, []string{"registration:user:u1:*"}, InvalidationPatterns(RegistrationEvent{UserID: "u1"}))
}

func TestInvalidationPatternsIncludeShiftedQueue(t *testing.T) {
	patterns := InvalidationPatterns(RegistrationEvent{
		Kind:           EventDropped,
		UserID:         "u2",
		SectionID:      "s1",
		InstructorID:   "prof",
		ShiftedUserIDs: []string{"u3", "u4", "u2"},
	})
	assert.Equal(t, []string{
		"registration:user:u2:*",
		"registration:user:prof:*",
		"registration:user:u3:*",
		"registration:user:u4:*",
		"registration:section:s1:*",
	}, patterns)
}

func TestRegistrationEventsInvalidateShiftedUsers(t *testing.T) {
	cache := &lockedInvalidator{}
	events := NewRegistrationEvents(cache, jobs.QueueConfig{Workers: 1, BufferSize: 4})
	events.Start(context.Background())
	defer events.Stop()

	events.Publish(context.Background(), RegistrationEvent{Kind: EventDropped, UserID: "u2", SectionID: "s1", ShiftedUserIDs: []string{"u3"}})

	require.Eventually(t, func() bool { return len(cache.calls()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, cache.calls()[0], "registration:user:u3:*")
}

func TestRegistrationEventsInvalidateAfterPublish(t *testing.T) {
	cache := &lockedInvalidator{}
	events := NewRegistrationEvents(cache, jobs.QueueConfig{Workers: 2, BufferSize: 8})
	events.Start(context.Background())
	defer events.Stop()

	events.Publish(context.Background(), RegistrationEvent{Kind: EventAdmitted, UserID: "u1", SectionID: "s1"})

	require.Eventually(t, func() bool { return len(cache.calls()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"registration:user:u1:*", "registration:section:s1:*"}, cache.calls()[0])
	assert.Eventually(t, func() bool { return events.Stats().Processed == 1 }, time.Second, 5*time.Millisecond)
}

func TestRegistrationEventsDropWhenStopped(t *testing.T) {
	cache := &lockedInvalidator{}
	events := NewRegistrationEvents(cache, jobs.QueueConfig{})

	events.Publish(context.Background(), RegistrationEvent{Kind: EventAdmitted, UserID: "u1"})

	assert.Empty(t, cache.calls())
	assert.Zero(t, events.Stats().Processed)
}

func TestRegistrationEventsWithoutCache(t *testing.T) {
	events := NewRegistrationEvents(nil, jobs.QueueConfig{})
	err := events.handle(context.Background(), jobs.Job{ID: "1", Payload: RegistrationEvent{UserID: "u1"}})
	assert.NoError(t, err)

	err = events.handle(context.Background(), jobs.Job{ID: "2", Payload: "not an event"})
	assert.Error(t, err)
}

func TestMetricsServiceRegistersQueue(t *testing.T) {
	metrics := NewMetricsService()
	metrics.RegisterQueue("registration-events", func() jobs.Stats { return jobs.Stats{Processed: 7, Dropped: 2} })
	metrics.ObserveTxRetry("admit")
	metrics.ObserveTxRetry("admit")

	assert.Equal(t, 7.0, counterValue(t, metrics, "jobs_processed_total", map[string]string{"queue": "registration-events"}))
	assert.Equal(t, 2.0, counterValue(t, metrics, "jobs_dropped_total", nil))
	assert.Equal(t, 2.0, counterValue(t, metrics, "db_tx_retries_total", map[string]string{"tx": "admit"}))

	var nilMetrics *MetricsService
	assert.NotPanics(t, func() {
		nilMetrics.RecordAdmission("admit", OutcomeEnrolled, "")
		nilMetrics.RecordPromotion()
		nilMetrics.RegisterQueue("q", nil)
	})
}
