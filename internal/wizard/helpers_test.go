package wizard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"evofit/health-protocol/internal/catalog"
	"evofit/health-protocol/internal/domain"
	"evofit/health-protocol/internal/generation"
	"evofit/health-protocol/internal/repository"
	"evofit/health-protocol/internal/repository/memory"
	"evofit/health-protocol/internal/safety"
	"evofit/health-protocol/internal/versioning"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type generatorFunc func(ctx context.Context, p generation.Prompt) (domain.ProtocolContent, error)

func (f generatorFunc) Generate(ctx context.Context, p generation.Prompt) (domain.ProtocolContent, error) {
	return f(ctx, p)
}

func aiContent(context.Context, generation.Prompt) (domain.ProtocolContent, error) {
	return domain.ProtocolContent{
		Source:   domain.SourceAI,
		Model:    "test-model",
		Summary:  "Personalised plan",
		Sections: []domain.Section{{Title: "Week 1", Items: []string{"Walk daily"}}},
	}, nil
}

// blockUntilDone simulates a provider that never answers in time.
func blockUntilDone(ctx context.Context, _ generation.Prompt) (domain.ProtocolContent, error) {
	<-ctx.Done()
	return domain.ProtocolContent{}, ctx.Err()
}

// testStore persists through the in-memory repositories and the real versioner.
type testStore struct {
	mu          sync.Mutex
	protocols   *memory.ProtocolRepository
	assignments *memory.AssignmentRepository
	versioner   *versioning.Versioner
	failSave    error
	failAssign  error
	deleted     []primitive.ObjectID
}

func newTestStore() *testStore {
	return &testStore{
		protocols:   memory.NewProtocolRepository(),
		assignments: memory.NewAssignmentRepository(),
		versioner:   versioning.New(memory.NewVersionRepository(), nil, nil),
	}
}

func (s *testStore) CreateProtocol(ctx context.Context, trainerID primitive.ObjectID, data domain.ProtocolData) (*domain.Protocol, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return nil, s.failSave
	}
	p := &domain.Protocol{TrainerID: trainerID, Name: data.Name, Type: data.Type, DurationDays: data.DurationDays, Intensity: data.Intensity, Config: data.Config}
	if _, err := s.protocols.Create(ctx, p); err != nil {
		return nil, err
	}
	return s.record(ctx, p, trainerID)
}

func (s *testStore) UpdateProtocol(ctx context.Context, trainerID, protocolID primitive.ObjectID, data domain.ProtocolData) (*domain.Protocol, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return nil, s.failSave
	}
	p, err := s.protocols.GetByID(ctx, protocolID)
	if err != nil {
		return nil, err
	}
	p.Name, p.Type, p.DurationDays, p.Intensity, p.Config = data.Name, data.Type, data.DurationDays, data.Intensity, data.Config
	return s.record(ctx, p, trainerID)
}

func (s *testStore) record(ctx context.Context, p *domain.Protocol, actor primitive.ObjectID) (*domain.Protocol, error) {
	v, _, err := s.versioner.Record(ctx, p, actor, "")
	if err != nil {
		return nil, err
	}
	p.Version = v.Version
	if err := s.protocols.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *testStore) DeleteProtocol(ctx context.Context, trainerID, protocolID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, protocolID)
	if err := s.protocols.Delete(ctx, protocolID, trainerID); err != nil {
		return err
	}
	return s.versioner.Purge(ctx, protocolID)
}

func (s *testStore) CreateAssignment(ctx context.Context, protocolID, customerID, trainerID primitive.ObjectID) (*domain.ProtocolAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAssign != nil {
		return nil, s.failAssign
	}
	a := &domain.ProtocolAssignment{ProtocolID: protocolID, CustomerID: customerID, TrainerID: trainerID}
	if _, err := s.assignments.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *testStore) GetVersionHistory(ctx context.Context, protocolID primitive.ObjectID) ([]domain.ProtocolVersion, error) {
	return s.versioner.History(ctx, protocolID)
}

func (s *testStore) protocolCount(t *testing.T, trainerID primitive.ObjectID) int {
	t.Helper()
	list, err := s.protocols.GetByTrainerID(context.Background(), trainerID)
	require.NoError(t, err)
	return len(list)
}

func newTestController(gen generation.Client, store Store) *Controller {
	return NewController(catalog.Default(), safety.NewValidator(safety.DefaultPolicy()), gen, store, Options{GenerationTimeout: 50 * time.Millisecond})
}

func trainer() domain.Identity {
	return domain.Identity{UserID: primitive.NewObjectID(), Role: domain.RoleTrainer}
}

func customer() domain.Identity {
	return domain.Identity{UserID: primitive.NewObjectID(), Role: domain.RoleCustomer}
}

type scenario struct {
	template    string
	health      domain.HealthInfo
	conditions  []string
	medications []string
}

// fillThroughCustomization drives a trainer session to the generation step.
func fillThroughCustomization(t *testing.T, c *Controller, s Session, sc scenario) Session {
	t.Helper()
	var err error
	if s.Flow == FlowTrainer && s.ProtocolID == nil {
		client := primitive.NewObjectID()
		s, err = c.SelectClient(context.Background(), s, &client)
		require.NoError(t, err)
	}
	s, err = c.Next(s)
	require.NoError(t, err)

	s, err = c.SelectTemplate(s, sc.template)
	require.NoError(t, err)
	s, err = c.Next(s)
	require.NoError(t, err)

	s, err = c.SetHealthInfo(s, sc.health)
	require.NoError(t, err)
	s, err = c.Next(s)
	require.NoError(t, err)

	s, err = c.SetMedicalConditions(s, sc.conditions, sc.medications)
	require.NoError(t, err)
	if s.ApprovalPending() {
		s, err = c.ConfirmSafetyCheck(s, true)
		require.NoError(t, err)
	}
	s, err = c.Next(s)
	require.NoError(t, err)

	s, err = c.Next(s)
	require.NoError(t, err)
	require.Equal(t, StepGeneration, s.Step)
	return s
}

func healthyAdult() domain.HealthInfo {
	return domain.HealthInfo{Age: 40, WeightKg: 72, HeightCm: 178, ActivityLevel: domain.ActivityModerate, Goals: []string{"energy"}}
}

func isErr[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

var errStorageDown = repository.RepositoryError("storage unavailable")

func catalogForTest() *catalog.Catalog {
	return catalog.Default()
}

func validatorForTest() *safety.Validator {
	return safety.NewValidator(safety.DefaultPolicy())
}
