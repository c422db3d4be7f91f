package schedule

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-slot-engine/internal/clock"
)

// memRepo is an in-memory Repository for service tests.
type memRepo struct {
	entries map[uuid.UUID]*Entry
}

func newMemRepo() *memRepo {
	return &memRepo{entries: make(map[uuid.UUID]*Entry)}
}

func (m *memRepo) Create(_ context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now
	cp := *e
	m.entries[e.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Entry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memRepo) Update(_ context.Context, e *Entry) error {
	stored, ok := m.entries[e.ID]
	if !ok {
		return ErrScheduleNotFound
	}
	stored.WorkDate = e.WorkDate
	stored.Shift = e.Shift
	stored.UpdatedAt = time.Now()
	*e = *stored
	return nil
}

func (m *memRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	e, ok := m.entries[id]
	if !ok {
		return ErrScheduleNotFound
	}
	e.IsActive = active
	e.UpdatedAt = time.Now()
	return nil
}

func (m *memRepo) FindActive(_ context.Context, practitionerID uuid.UUID, workDate time.Time, shift clock.Shift) (*Entry, error) {
	for _, e := range m.entries {
		if e.IsActive && e.PractitionerID == practitionerID && e.WorkDate.Equal(workDate) && e.Shift == shift {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrScheduleNotFound
}

func (m *memRepo) ListActiveByPractitioner(_ context.Context, practitionerID uuid.UUID) ([]Entry, error) {
	var out []Entry
	for _, e := range m.entries {
		if e.IsActive && e.PractitionerID == practitionerID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkDate.Before(out[j].WorkDate) })
	return out, nil
}

func (m *memRepo) ListActiveInRange(_ context.Context, from, to *time.Time) ([]Entry, error) {
	var out []Entry
	for _, e := range m.entries {
		if !e.IsActive {
			continue
		}
		if from != nil && e.WorkDate.Before(*from) {
			continue
		}
		if to != nil && e.WorkDate.After(*to) {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkDate.Before(out[j].WorkDate) })
	return out, nil
}

func newTestService() (*Service, *memRepo) {
	repo := newMemRepo()
	return NewService(repo, zerolog.Nop()), repo
}

func date(t *testing.T, raw string) time.Time {
	t.Helper()
	d, err := clock.ParseDate(raw)
	require.NoError(t, err)
	return d
}

func TestRegisterRejectsActiveDuplicate(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	practitioner := uuid.New()

	entry, err := svc.Register(ctx, practitioner, date(t, "2024-06-03"), clock.ShiftMorning)
	require.NoError(t, err)
	assert.True(t, entry.IsActive)
	assert.Equal(t, practitioner, entry.PractitionerID)

	_, err = svc.Register(ctx, practitioner, date(t, "2024-06-03"), clock.ShiftMorning)
	assert.ErrorIs(t, err, ErrDuplicateSchedule)

	// Same date, different shift is fine.
	_, err = svc.Register(ctx, practitioner, date(t, "2024-06-03"), clock.ShiftEvening)
	assert.NoError(t, err)
}

func TestRegisterAllowsReuseAfterDeactivation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	practitioner := uuid.New()

	entry, err := svc.Register(ctx, practitioner, date(t, "2024-06-03"), clock.ShiftMorning)
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, entry.ID))

	_, err = svc.Register(ctx, practitioner, date(t, "2024-06-03"), clock.ShiftMorning)
	assert.NoError(t, err)
}

func TestUpdateExcludesSelfFromDuplicateCheck(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	practitioner := uuid.New()

	entry, err := svc.Register(ctx, practitioner, date(t, "2024-06-03"), clock.ShiftMorning)
	require.NoError(t, err)

	// A no-op edit must not trip the duplicate check.
	updated, err := svc.Update(ctx, entry.ID, date(t, "2024-06-03"), clock.ShiftMorning)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, updated.ID)
	assert.Equal(t, clock.ShiftMorning, updated.Shift)
}

func TestUpdateRejectsOccupiedTriple(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	practitioner := uuid.New()

	_, err := svc.Register(ctx, practitioner, date(t, "2024-06-03"), clock.ShiftMorning)
	require.NoError(t, err)
	second, err := svc.Register(ctx, practitioner, date(t, "2024-06-04"), clock.ShiftMorning)
	require.NoError(t, err)

	_, err = svc.Update(ctx, second.ID, date(t, "2024-06-03"), clock.ShiftMorning)
	assert.ErrorIs(t, err, ErrDuplicateSchedule)
}

func TestUpdateNotFound(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Update(context.Background(), uuid.New(), date(t, "2024-06-03"), clock.ShiftMorning)
	assert.ErrorIs(t, err, ErrScheduleNotFound)
}

func TestDeactivateIsIdempotent(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	entry, err := svc.Register(ctx, uuid.New(), date(t, "2024-06-03"), clock.ShiftAfternoon)
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, entry.ID))
	require.NoError(t, svc.Deactivate(ctx, entry.ID))

	stored, err := repo.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}

func TestDeactivateMissingRowFails(t *testing.T) {
	svc, _ := newTestService()

	err := svc.Deactivate(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrScheduleNotFound)
}

func TestListActiveForOrdersByDateAndSkipsInactive(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	practitioner := uuid.New()

	later, err := svc.Register(ctx, practitioner, date(t, "2024-06-10"), clock.ShiftMorning)
	require.NoError(t, err)
	earlier, err := svc.Register(ctx, practitioner, date(t, "2024-06-03"), clock.ShiftMorning)
	require.NoError(t, err)
	gone, err := svc.Register(ctx, practitioner, date(t, "2024-06-05"), clock.ShiftEvening)
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, gone.ID))

	// Another practitioner's entry must not leak in.
	_, err = svc.Register(ctx, uuid.New(), date(t, "2024-06-04"), clock.ShiftMorning)
	require.NoError(t, err)

	entries, err := svc.ListActiveFor(ctx, practitioner)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, earlier.ID, entries[0].ID)
	assert.Equal(t, later.ID, entries[1].ID)
}

func TestRegisterRejectsInvalidShift(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Register(context.Background(), uuid.New(), date(t, "2024-06-03"), clock.Shift("night"))
	assert.Error(t, err)
}
