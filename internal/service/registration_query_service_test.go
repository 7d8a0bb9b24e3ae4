package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-registration-api/internal/models"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
)

type fakeRegistrationViews struct {
	calls        map[string]int
	lastStatuses models.StatusFilter
	lastMode     models.SectionMode
	err          error
}

func (f *fakeRegistrationViews) record(name string) {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[name]++
}

func (f *fakeRegistrationViews) EnrollmentsForUser(ctx context.Context, userID string, statuses models.StatusFilter) ([]models.EnrollmentDetail, error) {
	f.record("enrollments_user")
	f.lastStatuses = statuses
	if f.err != nil {
		return nil, f.err
	}
	return []models.EnrollmentDetail{{Enrollment: models.Enrollment{ID: "e1", UserID: userID, Status: models.EnrollmentStatusEnrolled}}}, nil
}

func (f *fakeRegistrationViews) EnrollmentsForSection(ctx context.Context, sectionID string, statuses models.StatusFilter) ([]models.EnrollmentDetail, error) {
	f.record("enrollments_section")
	f.lastStatuses = statuses
	position := 0
	return []models.EnrollmentDetail{{Enrollment: models.Enrollment{ID: "e2", SectionID: sectionID, Status: models.EnrollmentStatusWaitlisted}, WaitlistPosition: &position}}, nil
}

func (f *fakeRegistrationViews) WaitlistForSection(ctx context.Context, sectionID string) ([]models.WaitlistEntryDetail, error) {
	f.record("waitlist_section")
	return []models.WaitlistEntryDetail{{WaitlistEntry: models.WaitlistEntry{UserID: "u1", SectionID: sectionID}}}, nil
}

func (f *fakeRegistrationViews) WaitlistForCourse(ctx context.Context, courseID string) ([]models.WaitlistEntryDetail, error) {
	f.record("waitlist_course")
	return []models.WaitlistEntryDetail{}, nil
}

func (f *fakeRegistrationViews) WaitlistForUser(ctx context.Context, userID string) ([]models.WaitlistEntryDetail, error) {
	f.record("waitlist_user")
	return []models.WaitlistEntryDetail{}, nil
}

func (f *fakeRegistrationViews) SectionsForUser(ctx context.Context, userID string, mode models.SectionMode) ([]models.SectionDetail, error) {
	f.record("sections_user")
	f.lastMode = mode
	return []models.SectionDetail{{Section: models.Section{ID: "s1"}}}, nil
}

func (f *fakeRegistrationViews) AllEnrollments(ctx context.Context, statuses models.StatusFilter) ([]models.EnrollmentDetail, error) {
	f.record("enrollments_all")
	f.lastStatuses = statuses
	if f.err != nil {
		return nil, f.err
	}
	return []models.EnrollmentDetail{{Enrollment: models.Enrollment{ID: "e1"}}, {Enrollment: models.Enrollment{ID: "e2"}}}, nil
}

func (f *fakeRegistrationViews) AllWaitlist(ctx context.Context) ([]models.WaitlistEntryDetail, error) {
	f.record("waitlist_all")
	if f.err != nil {
		return nil, f.err
	}
	return []models.WaitlistEntryDetail{{WaitlistEntry: models.WaitlistEntry{UserID: "u1", SectionID: "s1"}}}, nil
}

type queryFixture struct {
	svc   *RegistrationQueryService
	views *fakeRegistrationViews
	cache *memoryCache
}

func newQueryFixture(cacheEnabled bool) queryFixture {
	views := &fakeRegistrationViews{}
	catalog := newFakeCatalogRepo()
	catalog.sections["s1"] = models.SectionDetail{Section: models.Section{ID: "s1", CourseID: "c1"}}
	users := userDirectory{"u1": {ID: "u1", Role: models.RoleStudent}}
	repo := newMemoryCache()
	cache := NewCacheService(repo, nil, 0, nil, cacheEnabled)
	svc := NewRegistrationQueryService(views, users, catalog, catalog, cache, nil)
	return queryFixture{svc: svc, views: views, cache: repo}
}

func TestEnrollmentsForUserReadsThroughCache(t *testing.T) {
	f := newQueryFixture(true)
	ctx := context.Background()

	first, hit, err := f.svc.EnrollmentsForUser(ctx, "u1", "")
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, first, 1)
	assert.Equal(t, models.StatusFilter{models.EnrollmentStatusEnrolled}, f.views.lastStatuses)
	assert.True(t, f.cache.has("registration:user:u1:enrollments:enrolled"))

	second, hit, err := f.svc.EnrollmentsForUser(ctx, "u1", "enrolled")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.views.calls["enrollments_user"])
}

func TestEnrollmentsForUserStatusFilters(t *testing.T) {
	f := newQueryFixture(false)
	ctx := context.Background()

	_, _, err := f.svc.EnrollmentsForUser(ctx, "u1", "all")
	require.NoError(t, err)
	assert.Empty(t, f.views.lastStatuses)

	_, _, err = f.svc.EnrollmentsForUser(ctx, "u1", "ACTIVE")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFilter{models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted}, f.views.lastStatuses)

	_, _, err = f.svc.EnrollmentsForUser(ctx, "u1", "pending")
	requireCode(t, err, appErrors.ErrValidation)

	_, _, err = f.svc.EnrollmentsForUser(ctx, "ghost", "")
	requireCode(t, err, appErrors.ErrNotFound)
	assert.Equal(t, 2, f.views.calls["enrollments_user"])
}

func TestEnrollmentsForSectionKeepsWaitlistPosition(t *testing.T) {
	f := newQueryFixture(true)
	ctx := context.Background()

	_, _, err := f.svc.EnrollmentsForSection(ctx, "s1", "waitlisted")
	require.NoError(t, err)
	cached, hit, err := f.svc.EnrollmentsForSection(ctx, "s1", "waitlisted")
	require.NoError(t, err)
	assert.True(t, hit)
	require.Len(t, cached, 1)
	require.NotNil(t, cached[0].WaitlistPosition)
	assert.Equal(t, 0, *cached[0].WaitlistPosition)

	_, _, err = f.svc.EnrollmentsForSection(ctx, "s9", "")
	requireCode(t, err, appErrors.ErrNotFound)
}

func TestWaitlistViewsRequireParents(t *testing.T) {
	f := newQueryFixture(true)
	ctx := context.Background()

	entries, _, err := f.svc.WaitlistForSection(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.True(t, f.cache.has("registration:section:s1:waitlist"))

	_, _, err = f.svc.WaitlistForCourse(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, f.cache.has("registration:course:c1:waitlist"))

	_, _, err = f.svc.WaitlistForCourse(ctx, "c404")
	requireCode(t, err, appErrors.ErrNotFound)

	_, _, err = f.svc.WaitlistForUser(ctx, "u1")
	require.NoError(t, err)
	_, _, err = f.svc.WaitlistForUser(ctx, "ghost")
	requireCode(t, err, appErrors.ErrNotFound)
}

func TestSectionsForUserModes(t *testing.T) {
	f := newQueryFixture(false)
	ctx := context.Background()

	_, _, err := f.svc.SectionsForUser(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, models.SectionModeAll, f.views.lastMode)

	_, _, err = f.svc.SectionsForUser(ctx, "u1", "Instructing")
	require.NoError(t, err)
	assert.Equal(t, models.SectionModeInstructing, f.views.lastMode)

	_, _, err = f.svc.SectionsForUser(ctx, "u1", "teaching")
	requireCode(t, err, appErrors.ErrValidation)
}

func TestQueryFailuresAreInternalAndNotCached(t *testing.T) {
	f := newQueryFixture(true)
	f.views.err = errors.New("relation does not exist")

	_, _, err := f.svc.EnrollmentsForUser(context.Background(), "u1", "all")
	requireCode(t, err, appErrors.ErrInternal)
	assert.False(t, f.cache.has("registration:user:u1:enrollments:all"))
}

func TestGlobalListingsBypassCache(t *testing.T) {
	f := newQueryFixture(true)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		items, err := f.svc.AllEnrollments(ctx, "active")
		require.NoError(t, err)
		assert.Len(t, items, 2)
	}
	assert.Equal(t, 2, f.views.calls["enrollments_all"])
	assert.Equal(t, models.StatusFilter{models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted}, f.views.lastStatuses)

	queue, err := f.svc.AllWaitlist(ctx)
	require.NoError(t, err)
	assert.Len(t, queue, 1)

	_, err = f.svc.AllEnrollments(ctx, "bogus")
	requireCode(t, err, appErrors.ErrValidation)

	f.views.err = errors.New("connection reset")
	_, err = f.svc.AllWaitlist(ctx)
	requireCode(t, err, appErrors.ErrInternal)
}

func TestCacheInvalidationAfterEventForcesReload(t *testing.T) {
	f := newQueryFixture(true)
	ctx := context.Background()

	_, _, err := f.svc.WaitlistForSection(ctx, "s1")
	require.NoError(t, err)

	cache := NewCacheService(f.cache, nil, 0, nil, true)
	require.NoError(t, cache.Invalidate(ctx, InvalidationPatterns(RegistrationEvent{Kind: EventDropped, UserID: "u1", SectionID: "s1"})...))

	_, hit, err := f.svc.WaitlistForSection(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, f.views.calls["waitlist_section"])
}
