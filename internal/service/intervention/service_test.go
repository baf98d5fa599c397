package intervention

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/safeplay/player-protection-backend/internal/domain/errors"
	"github.com/safeplay/player-protection-backend/internal/domain/intervention"
	"github.com/safeplay/player-protection-backend/internal/domain/user"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Save(ctx context.Context, i *intervention.Intervention) error {
	return m.Called(ctx, i).Error(0)
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*intervention.Intervention, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*intervention.Intervention), args.Error(1)
}

func (m *mockRepo) Update(ctx context.Context, i *intervention.Intervention) error {
	return m.Called(ctx, i).Error(0)
}

func (m *mockRepo) GetByUser(ctx context.Context, userID uuid.UUID) ([]*intervention.Intervention, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*intervention.Intervention), args.Error(1)
}

func (m *mockRepo) FindPendingByUser(ctx context.Context, userID uuid.UUID) ([]*intervention.Intervention, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*intervention.Intervention), args.Error(1)
}

func (m *mockRepo) HasPending(ctx context.Context, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepo) FindDue(ctx context.Context, now time.Time) ([]*intervention.Intervention, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*intervention.Intervention), args.Error(1)
}

func (m *mockRepo) FindExpired(ctx context.Context, now time.Time) ([]*intervention.Intervention, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*intervention.Intervention), args.Error(1)
}

func (m *mockRepo) FindHighPriority(ctx context.Context, minPriority int) ([]*intervention.Intervention, error) {
	args := m.Called(ctx, minPriority)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*intervention.Intervention), args.Error(1)
}

func (m *mockRepo) ClaimForExecution(ctx context.Context, id uuid.UUID, executedBy string, at time.Time) (*intervention.Intervention, error) {
	args := m.Called(ctx, id, executedBy, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*intervention.Intervention), args.Error(1)
}

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*user.Profile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.Profile), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Deliver(ctx context.Context, i *intervention.Intervention) error {
	return m.Called(ctx, i).Error(0)
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newPending(t *testing.T, userID uuid.UUID, automatic bool) *intervention.Intervention {
	t.Helper()
	i, err := intervention.NewIntervention(userID, intervention.TypeWarning, intervention.CreateSpec{
		Title:       "Responsible gaming warning",
		Description: "d",
		Message:     "m",
		Priority:    3,
		IsAutomatic: automatic,
		CreatedBy:   AutomaticCreator,
	})
	require.NoError(t, err)
	return i
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

	t.Run("manual creation for existing user", func(t *testing.T) {
		repo := new(mockRepo)
		users := new(mockUserRepo)
		svc := NewService(repo, users, nil, fixedClock{now}, testLogger())

		p, err := user.NewProfile("anna@example.com", "Anna")
		require.NoError(t, err)

		users.On("GetByID", ctx, p.ID).Return(p, nil)
		repo.On("Save", ctx, mock.AnythingOfType("*intervention.Intervention")).Return(nil)

		i, err := svc.Create(ctx, p.ID, intervention.TypeProfessionalReferral, intervention.CreateSpec{
			Title:       "Referral to counseling",
			Description: "Personal referral after support contact",
			Message:     "We'd like to put you in touch with a counselor.",
			Priority:    3,
			CreatedBy:   "agent-7",
		})
		require.NoError(t, err)
		assert.Equal(t, intervention.StatusPending, i.Status)
		assert.False(t, i.IsAutomatic)
		assert.Equal(t, "agent-7", i.CreatedBy)
	})

	t.Run("unknown user", func(t *testing.T) {
		repo := new(mockRepo)
		users := new(mockUserRepo)
		svc := NewService(repo, users, nil, fixedClock{now}, testLogger())

		id := uuid.New()
		users.On("GetByID", ctx, id).Return(nil, errors.ErrUserNotFound)

		_, err := svc.Create(ctx, id, intervention.TypeWarning, intervention.CreateSpec{Title: "t", Priority: 1})
		assert.ErrorIs(t, err, errors.ErrUserNotFound)
		repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})
}

func TestService_CreateAutomatic(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

	t.Run("creates the policy intervention", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo, new(mockUserRepo), nil, fixedClock{now}, testLogger())

		userID := uuid.New()
		repo.On("HasPending", ctx, userID).Return(false, nil)

		var saved *intervention.Intervention
		repo.On("Save", ctx, mock.AnythingOfType("*intervention.Intervention")).
			Run(func(args mock.Arguments) {
				saved = args.Get(1).(*intervention.Intervention)
			}).Return(nil)

		require.NoError(t, svc.CreateAutomatic(ctx, userID, user.RiskLevelCritical))

		require.NotNil(t, saved)
		assert.Equal(t, intervention.TypeTemporaryBlock, saved.Type)
		assert.Equal(t, 4, saved.Priority)
		assert.True(t, saved.IsAutomatic)
		assert.Equal(t, AutomaticCreator, saved.CreatedBy)
		assert.Equal(t, intervention.StatusPending, saved.Status)
	})

	t.Run("skips when one is already pending", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo, new(mockUserRepo), nil, fixedClock{now}, testLogger())

		userID := uuid.New()
		repo.On("HasPending", ctx, userID).Return(true, nil)

		require.NoError(t, svc.CreateAutomatic(ctx, userID, user.RiskLevelHigh))
		repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})
}

func TestService_Execute(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

	t.Run("claims then notifies", func(t *testing.T) {
		repo := new(mockRepo)
		notifier := new(mockNotifier)
		svc := NewService(repo, new(mockUserRepo), notifier, fixedClock{now}, testLogger())

		i := newPending(t, uuid.New(), true)
		require.NoError(t, i.Execute("agent-7"))

		repo.On("ClaimForExecution", ctx, i.ID, "agent-7", now).Return(i, nil)
		notifier.On("Deliver", ctx, i).Return(nil)

		out, err := svc.Execute(ctx, i.ID, "agent-7")
		require.NoError(t, err)
		assert.Equal(t, intervention.StatusExecuted, out.Status)
		notifier.AssertExpectations(t)
	})

	t.Run("lost claim surfaces the conflict", func(t *testing.T) {
		repo := new(mockRepo)
		notifier := new(mockNotifier)
		svc := NewService(repo, new(mockUserRepo), notifier, fixedClock{now}, testLogger())

		id := uuid.New()
		repo.On("ClaimForExecution", ctx, id, "agent-7", now).Return(nil, errors.ErrConcurrentUpdate)

		_, err := svc.Execute(ctx, id, "agent-7")
		assert.ErrorIs(t, err, errors.ErrConcurrentUpdate)
		notifier.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
	})

	t.Run("execute on a terminal intervention is an invalid transition", func(t *testing.T) {
		repo := newClaimTrackingRepo()
		notifier := new(mockNotifier)
		svc := NewService(repo, new(mockUserRepo), notifier, fixedClock{now}, testLogger())

		i := newPending(t, uuid.New(), false)
		require.NoError(t, i.Execute("agent-7"))
		require.NoError(t, repo.Save(ctx, i))

		_, err := svc.Execute(ctx, i.ID, "agent-8")
		assert.ErrorIs(t, err, errors.ErrInvalidTransition)
		assert.False(t, errors.IsRetryable(err))
		assert.Equal(t, "agent-7", i.ExecutedBy)
		notifier.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
	})

	t.Run("delivery failure does not undo execution", func(t *testing.T) {
		repo := new(mockRepo)
		notifier := new(mockNotifier)
		svc := NewService(repo, new(mockUserRepo), notifier, fixedClock{now}, testLogger())

		i := newPending(t, uuid.New(), true)
		require.NoError(t, i.Execute(intervention.SystemAutoActor))

		repo.On("ClaimForExecution", ctx, i.ID, intervention.SystemAutoActor, now).Return(i, nil)
		notifier.On("Deliver", ctx, i).Return(assert.AnError)

		out, err := svc.Execute(ctx, i.ID, intervention.SystemAutoActor)
		require.NoError(t, err)
		assert.Equal(t, intervention.StatusExecuted, out.Status)
	})
}

func TestService_Evaluate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

	t.Run("out of range score leaves the record untouched", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo, new(mockUserRepo), nil, fixedClock{now}, testLogger())

		i := newPending(t, uuid.New(), false)
		require.NoError(t, i.Execute("agent-7"))
		repo.On("GetByID", ctx, i.ID).Return(i, nil)

		_, err := svc.Evaluate(ctx, i.ID, 6, "helpful")
		assert.ErrorIs(t, err, errors.ErrInvalidEffectivenessScore)
		assert.Nil(t, i.EffectivenessScore)
		assert.Empty(t, i.UserResponse)
		repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("valid score is persisted", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo, new(mockUserRepo), nil, fixedClock{now}, testLogger())

		i := newPending(t, uuid.New(), false)
		require.NoError(t, i.Execute("agent-7"))
		repo.On("GetByID", ctx, i.ID).Return(i, nil)
		repo.On("Update", ctx, i).Return(nil)

		out, err := svc.Evaluate(ctx, i.ID, 4, "took the suggested break")
		require.NoError(t, err)
		require.NotNil(t, out.EffectivenessScore)
		assert.Equal(t, 4, *out.EffectivenessScore)
		assert.Equal(t, intervention.StatusExecuted, out.Status)
	})
}

// claimTrackingRepo backs the sweep tests with real claim semantics: the
// first claim wins, a claim on an already-terminal intervention fails with
// ErrInvalidTransition.
type claimTrackingRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*intervention.Intervention
}

func newClaimTrackingRepo() *claimTrackingRepo {
	return &claimTrackingRepo{items: make(map[uuid.UUID]*intervention.Intervention)}
}

func (r *claimTrackingRepo) Save(ctx context.Context, i *intervention.Intervention) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[i.ID] = i
	return nil
}

func (r *claimTrackingRepo) GetByID(ctx context.Context, id uuid.UUID) (*intervention.Intervention, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.items[id]
	if !ok {
		return nil, errors.ErrInterventionNotFound
	}
	return i, nil
}

func (r *claimTrackingRepo) Update(ctx context.Context, i *intervention.Intervention) error {
	return r.Save(ctx, i)
}

func (r *claimTrackingRepo) GetByUser(ctx context.Context, userID uuid.UUID) ([]*intervention.Intervention, error) {
	return nil, nil
}

func (r *claimTrackingRepo) FindPendingByUser(ctx context.Context, userID uuid.UUID) ([]*intervention.Intervention, error) {
	return nil, nil
}

func (r *claimTrackingRepo) HasPending(ctx context.Context, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.items {
		if i.UserID == userID && !i.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

func (r *claimTrackingRepo) FindDue(ctx context.Context, now time.Time) ([]*intervention.Intervention, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*intervention.Intervention
	for _, i := range r.items {
		if !i.IsTerminal() && i.IsDue(now) {
			out = append(out, i)
		}
	}
	return out, nil
}

func (r *claimTrackingRepo) FindExpired(ctx context.Context, now time.Time) ([]*intervention.Intervention, error) {
	return nil, nil
}

func (r *claimTrackingRepo) FindHighPriority(ctx context.Context, minPriority int) ([]*intervention.Intervention, error) {
	return nil, nil
}

func (r *claimTrackingRepo) ClaimForExecution(ctx context.Context, id uuid.UUID, executedBy string, at time.Time) (*intervention.Intervention, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.items[id]
	if !ok {
		return nil, errors.ErrInterventionNotFound
	}
	if i.IsTerminal() {
		return nil, errors.ErrInvalidTransition
	}
	i.Status = intervention.StatusExecuted
	i.ExecutedAt = &at
	i.ExecutedBy = executedBy
	return i, nil
}

func TestService_Sweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

	newScheduled := func(t *testing.T, automatic bool, at time.Time) *intervention.Intervention {
		t.Helper()
		i, err := intervention.NewIntervention(uuid.New(), intervention.TypeWarning, intervention.CreateSpec{
			Title:        "Responsible gaming warning",
			Message:      "m",
			Priority:     3,
			ScheduledFor: &at,
			IsAutomatic:  automatic,
			CreatedBy:    AutomaticCreator,
		})
		require.NoError(t, err)
		return i
	}

	t.Run("executes due automatic interventions as the system actor", func(t *testing.T) {
		repo := newClaimTrackingRepo()
		notifier := new(mockNotifier)
		svc := NewService(repo, new(mockUserRepo), notifier, fixedClock{now}, testLogger())

		intervention.SetClock(&intervention.MockClock{CurrentTime: now.Add(-time.Hour)})
		defer intervention.ResetClock()

		due := newScheduled(t, true, now.Add(-10*time.Minute))
		manual := newScheduled(t, false, now.Add(-10*time.Minute))
		future := newScheduled(t, true, now.Add(time.Hour))
		require.NoError(t, repo.Save(ctx, due))
		require.NoError(t, repo.Save(ctx, manual))
		require.NoError(t, repo.Save(ctx, future))

		notifier.On("Deliver", mock.Anything, due).Return(nil)

		res, err := svc.Sweep(ctx)
		require.NoError(t, err)

		assert.Equal(t, 2, res.Due)
		assert.Equal(t, 1, res.Executed)
		assert.Equal(t, 0, res.Failed)

		assert.Equal(t, intervention.StatusExecuted, due.Status)
		assert.Equal(t, intervention.SystemAutoActor, due.ExecutedBy)
		require.NotNil(t, due.ExecutedAt)
		assert.Equal(t, now, *due.ExecutedAt)

		assert.Equal(t, intervention.StatusScheduled, manual.Status)
		assert.Equal(t, intervention.StatusScheduled, future.Status)
	})

	t.Run("repeat sweep is a no-op", func(t *testing.T) {
		repo := newClaimTrackingRepo()
		notifier := new(mockNotifier)
		svc := NewService(repo, new(mockUserRepo), notifier, fixedClock{now}, testLogger())

		intervention.SetClock(&intervention.MockClock{CurrentTime: now.Add(-time.Hour)})
		defer intervention.ResetClock()

		due := newScheduled(t, true, now.Add(-10*time.Minute))
		require.NoError(t, repo.Save(ctx, due))
		notifier.On("Deliver", mock.Anything, due).Return(nil)

		first, err := svc.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, first.Executed)

		second, err := svc.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, second.Executed)
		assert.Equal(t, 0, second.Failed)

		notifier.AssertNumberOfCalls(t, "Deliver", 1)
	})
}
