package wizard

import (
	"context"
	"testing"
	"time"

	"evofit/health-protocol/internal/domain"
	"evofit/health-protocol/internal/generation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// gatedGenerator answers once release is closed, or gives up when ctx ends.
type gatedGenerator struct {
	started chan struct{}
	release chan struct{}
}

func newGatedGenerator() *gatedGenerator {
	return &gatedGenerator{started: make(chan struct{}, 4), release: make(chan struct{})}
}

func (g *gatedGenerator) Generate(ctx context.Context, p generation.Prompt) (domain.ProtocolContent, error) {
	g.started <- struct{}{}
	select {
	case <-g.release:
		return aiContent(ctx, p)
	case <-ctx.Done():
		return domain.ProtocolContent{}, ctx.Err()
	}
}

func newTestManager(t *testing.T, gen generation.Client, drafts DraftStore) (*Manager, *Controller) {
	t.Helper()
	c := NewController(catalogForTest(), validatorForTest(), gen, newTestStore(), Options{})
	m := NewManager(c, drafts, nil)
	t.Cleanup(m.Close)
	return m, c
}

// driveToGeneration moves the operator's managed session to the generation step.
func driveToGeneration(t *testing.T, m *Manager, c *Controller, op domain.Identity) Session {
	t.Helper()
	ctx := context.Background()
	s, err := m.Open(ctx, op, op.UserID)
	require.NoError(t, err)
	s, err = m.Apply(ctx, op.UserID, s.ID, func(s Session) (Session, error) {
		return fillThroughCustomization(t, c, s, scenario{template: "longevity-foundation", health: healthyAdult()}), nil
	})
	require.NoError(t, err)
	require.Equal(t, StepGeneration, s.Step)
	return s
}

func TestManagerOneSessionPerOperator(t *testing.T) {
	m, _ := newTestManager(t, generatorFunc(aiContent), nil)
	ctx := context.Background()
	op := trainer()

	first, err := m.Open(ctx, op, op.UserID)
	require.NoError(t, err)
	second, err := m.Open(ctx, op, op.UserID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other, err := m.Open(ctx, trainer(), primitive.NewObjectID())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestManagerResumesPersistedDraft(t *testing.T) {
	drafts := NewMemoryDraftStore()
	ctx := context.Background()
	op := trainer()

	m1, c1 := newTestManager(t, generatorFunc(aiContent), drafts)
	s, err := m1.Open(ctx, op, op.UserID)
	require.NoError(t, err)
	s, err = m1.Apply(ctx, op.UserID, s.ID, func(s Session) (Session, error) {
		return c1.SelectTemplate(s, "weight-loss")
	})
	require.NoError(t, err)

	m2, _ := newTestManager(t, generatorFunc(aiContent), drafts)
	resumed, err := m2.Get(ctx, op.UserID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, resumed.ID)
	require.NotNil(t, resumed.Template)
	assert.Equal(t, "weight-loss", resumed.Template.ID)
}

func TestManagerRejectsUnknownSession(t *testing.T) {
	m, c := newTestManager(t, generatorFunc(aiContent), nil)
	ctx := context.Background()
	op := trainer()
	_, err := m.Open(ctx, op, op.UserID)
	require.NoError(t, err)

	_, err = m.Apply(ctx, op.UserID, "stale-id", c.Cancel)
	assert.True(t, isErr[*domain.NotFoundError](err))

	_, err = m.Get(ctx, primitive.NewObjectID())
	assert.True(t, isErr[*domain.NotFoundError](err))
}

func TestManagerAppliesGenerationResult(t *testing.T) {
	gen := newGatedGenerator()
	m, c := newTestManager(t, gen, nil)
	ctx := context.Background()
	op := trainer()
	s := driveToGeneration(t, m, c, op)

	s, err := m.StartGeneration(ctx, op.UserID, s.ID)
	require.NoError(t, err)
	assert.True(t, s.Generation.InFlight)
	<-gen.started
	close(gen.release)

	require.Eventually(t, func() bool {
		cur, err := m.Get(ctx, op.UserID)
		return err == nil && cur.Generation.Content != nil
	}, time.Second, 5*time.Millisecond)

	cur, err := m.Get(ctx, op.UserID)
	require.NoError(t, err)
	assert.False(t, cur.Generation.InFlight)
	assert.Equal(t, domain.SourceAI, cur.Generation.Content.Source)
}

func TestManagerBackDiscardsLateResult(t *testing.T) {
	gen := newGatedGenerator()
	m, c := newTestManager(t, gen, nil)
	ctx := context.Background()
	op := trainer()
	s := driveToGeneration(t, m, c, op)

	s, err := m.StartGeneration(ctx, op.UserID, s.ID)
	require.NoError(t, err)
	<-gen.started

	s, err = m.Apply(ctx, op.UserID, s.ID, c.Back)
	require.NoError(t, err)
	assert.Equal(t, StepCustomization, s.Step)
	assert.False(t, s.Generation.InFlight)
	close(gen.release)

	m.Close()
	cur, err := m.Get(ctx, op.UserID)
	require.NoError(t, err)
	assert.Equal(t, StepCustomization, cur.Step)
	assert.Nil(t, cur.Generation.Content)
	assert.False(t, cur.Generation.Failed)
}

func TestManagerCancelDropsDraft(t *testing.T) {
	drafts := NewMemoryDraftStore()
	gen := newGatedGenerator()
	m, c := newTestManager(t, gen, drafts)
	ctx := context.Background()
	op := trainer()
	s := driveToGeneration(t, m, c, op)

	_, err := m.StartGeneration(ctx, op.UserID, s.ID)
	require.NoError(t, err)
	<-gen.started

	cancelled, err := m.Apply(ctx, op.UserID, s.ID, c.Cancel)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	_, err = drafts.Load(ctx, op.UserID)
	assert.Error(t, err)
	_, err = m.Get(ctx, op.UserID)
	assert.True(t, isErr[*domain.NotFoundError](err))

	fresh, err := m.Open(ctx, op, op.UserID)
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, fresh.ID)
}

func TestManagerSaveRemovesSession(t *testing.T) {
	m, c := newTestManager(t, generatorFunc(aiContent), nil)
	ctx := context.Background()
	op := trainer()
	s := driveToGeneration(t, m, c, op)

	s, err := m.Apply(ctx, op.UserID, s.ID, func(s Session) (Session, error) {
		return c.RequestGeneration(ctx, s)
	})
	require.NoError(t, err)
	saved, err := m.Apply(ctx, op.UserID, s.ID, func(s Session) (Session, error) {
		return c.Save(ctx, s, "Morning routine", nil)
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSaved, saved.Status)
	assert.Equal(t, 1, saved.SavedVersion)

	_, err = m.Get(ctx, op.UserID)
	assert.True(t, isErr[*domain.NotFoundError](err))
}

func entryCount(m *Manager) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func TestManagerDropsIdleOperators(t *testing.T) {
	m, c := newTestManager(t, generatorFunc(aiContent), nil)
	ctx := context.Background()

	_, err := m.Get(ctx, primitive.NewObjectID())
	assert.True(t, isErr[*domain.NotFoundError](err))
	assert.Equal(t, 0, entryCount(m))

	cancelled := trainer()
	s, err := m.Open(ctx, cancelled, cancelled.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, entryCount(m))
	_, err = m.Apply(ctx, cancelled.UserID, s.ID, c.Cancel)
	require.NoError(t, err)
	assert.Equal(t, 0, entryCount(m))

	saver := trainer()
	s = driveToGeneration(t, m, c, saver)
	s, err = m.Generate(ctx, saver.UserID, s.ID)
	require.NoError(t, err)
	_, err = m.Apply(ctx, saver.UserID, s.ID, func(s Session) (Session, error) {
		return c.Save(ctx, s, "Morning routine", nil)
	})
	require.NoError(t, err)
	assert.Equal(t, 0, entryCount(m))

	// the operator can start over after the entry is gone
	fresh, err := m.Open(ctx, saver, saver.UserID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, fresh.Status)
	assert.Equal(t, 1, entryCount(m))
}

func TestManagerGenerateWaitsForResult(t *testing.T) {
	m, c := newTestManager(t, generatorFunc(aiContent), nil)
	ctx := context.Background()
	op := trainer()
	s := driveToGeneration(t, m, c, op)

	s, err := m.Generate(ctx, op.UserID, s.ID)
	require.NoError(t, err)
	assert.False(t, s.Generation.InFlight)
	require.NotNil(t, s.Generation.Content)
	assert.Equal(t, domain.SourceAI, s.Generation.Content.Source)

	cur, err := m.Get(ctx, op.UserID)
	require.NoError(t, err)
	assert.Equal(t, s.Generation.InputHash, cur.Generation.InputHash)
}

func TestManagerGenerateReportsProviderFailure(t *testing.T) {
	failing := generatorFunc(func(context.Context, generation.Prompt) (domain.ProtocolContent, error) {
		return domain.ProtocolContent{}, errStorageDown
	})
	m, c := newTestManager(t, failing, nil)
	ctx := context.Background()
	op := trainer()
	s := driveToGeneration(t, m, c, op)

	s, err := m.Generate(ctx, op.UserID, s.ID)
	var ge *domain.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.True(t, ge.FallbackAvailable)
	assert.True(t, s.Generation.Failed)
}

func TestManagerBackInterruptsBlockingGenerate(t *testing.T) {
	gen := newGatedGenerator()
	m, c := newTestManager(t, gen, nil)
	ctx := context.Background()
	op := trainer()
	s := driveToGeneration(t, m, c, op)

	type result struct {
		s   Session
		err error
	}
	out := make(chan result, 1)
	go func() {
		got, err := m.Generate(ctx, op.UserID, s.ID)
		out <- result{got, err}
	}()
	<-gen.started

	// Back is not blocked by the waiting Generate call
	back, err := m.Apply(ctx, op.UserID, s.ID, c.Back)
	require.NoError(t, err)
	assert.Equal(t, StepCustomization, back.Step)

	select {
	case r := <-out:
		assert.True(t, isErr[*domain.GenerationError](r.err))
		assert.ErrorIs(t, r.err, errGenerationInterrupted)
		assert.Equal(t, StepCustomization, r.s.Step)
		assert.Nil(t, r.s.Generation.Content)
	case <-time.After(time.Second):
		t.Fatal("Generate did not return after Back")
	}
}
