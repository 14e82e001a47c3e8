package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"evofit/health-protocol/internal/catalog"
	"evofit/health-protocol/internal/domain"
	"evofit/health-protocol/internal/generation"
	"evofit/health-protocol/internal/repository/memory"
	"evofit/health-protocol/internal/safety"
	"evofit/health-protocol/internal/storage"
	"evofit/health-protocol/internal/versioning"
	"evofit/health-protocol/internal/wizard"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fixture struct {
	users       *memory.UserRepository
	protocols   *memory.ProtocolRepository
	assignments *memory.AssignmentRepository
	files       *storage.MemoryStorage
	svc         ProtocolService
	assignSvc   AssignmentService
	trainer     domain.User
	customer    domain.User
}

func newFixture() *fixture {
	f := &fixture{
		users:       memory.NewUserRepository(),
		protocols:   memory.NewProtocolRepository(),
		assignments: memory.NewAssignmentRepository(),
		files:       storage.NewMemoryStorage(),
	}
	f.trainer = f.users.Put(domain.User{Name: "Tess", Role: domain.RoleTrainer})
	trainerID := f.trainer.ID
	f.customer = f.users.Put(domain.User{Name: "Carl", Role: domain.RoleCustomer, TrainerID: &trainerID})

	archive := storage.NewSnapshotArchive(f.files)
	versioner := versioning.New(memory.NewVersionRepository(), archive, nil)
	f.svc = NewProtocolService(f.protocols, f.assignments, f.users, versioner, archive, nil)
	f.assignSvc = NewAssignmentService(f.assignments, f.protocols)
	return f
}

func sampleData(name string) domain.ProtocolData {
	return domain.ProtocolData{
		Name:         name,
		Type:         domain.TypeLongevity,
		DurationDays: 30,
		Intensity:    domain.IntensityModerate,
		Config:       domain.ProtocolConfig{TemplateID: "longevity-foundation"},
	}
}

func TestCreateProtocolStartsAtVersionOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	p, err := f.svc.CreateProtocol(ctx, f.trainer.ID, sampleData("  Reset  "))
	require.NoError(t, err)
	assert.Equal(t, 1, p.Version)
	assert.Equal(t, "Reset", p.Name)

	stored, err := f.protocols.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version)

	history, err := f.svc.GetVersionHistory(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, f.trainer.ID, history[0].CreatedBy)
}

func TestCreateProtocolValidatesData(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	bad := sampleData("x")
	bad.Intensity = "extreme"
	_, err := f.svc.CreateProtocol(ctx, f.trainer.ID, bad)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "intensity", ve.Field)
}

func TestUpdateProtocolBumpsOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p, err := f.svc.CreateProtocol(ctx, f.trainer.ID, sampleData("Reset"))
	require.NoError(t, err)

	same, err := f.svc.UpdateProtocol(ctx, f.trainer.ID, p.ID, sampleData("Reset"))
	require.NoError(t, err)
	assert.Equal(t, 1, same.Version)

	changed := sampleData("Reset")
	changed.DurationDays = 45
	updated, err := f.svc.UpdateProtocol(ctx, f.trainer.ID, p.ID, changed)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, f.trainer.ID, updated.TrainerID)
}

func TestOtherTrainersCannotSeeProtocol(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p, err := f.svc.CreateProtocol(ctx, f.trainer.ID, sampleData("Reset"))
	require.NoError(t, err)

	intruder := primitive.NewObjectID()
	_, err = f.svc.UpdateProtocol(ctx, intruder, p.ID, sampleData("Mine now"))
	var nf *domain.NotFoundError
	require.True(t, errors.As(err, &nf))

	_, err = f.svc.GetProtocol(ctx, domain.Identity{UserID: intruder, Role: domain.RoleTrainer}, p.ID)
	assert.True(t, errors.As(err, &nf))

	_, err = f.svc.GetProtocol(ctx, domain.Identity{UserID: f.customer.ID, Role: domain.RoleCustomer}, p.ID)
	assert.True(t, errors.As(err, &nf), "unassigned customers cannot read the protocol")
}

func TestCreateAssignmentChecksCustomer(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p, err := f.svc.CreateProtocol(ctx, f.trainer.ID, sampleData("Reset"))
	require.NoError(t, err)

	_, err = f.svc.CreateAssignment(ctx, p.ID, primitive.NewObjectID(), f.trainer.ID)
	var nf *domain.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "customer", nf.Kind)

	stranger := f.users.Put(domain.User{Name: "Sam", Role: domain.RoleCustomer})
	_, err = f.svc.CreateAssignment(ctx, p.ID, stranger.ID, f.trainer.ID)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "customerId", ve.Field)

	a, err := f.svc.CreateAssignment(ctx, p.ID, f.customer.ID, f.trainer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, a.Status)
	require.NotNil(t, a.EndDate)
	assert.Equal(t, a.StartDate.AddDate(0, 0, 30), *a.EndDate)

	visible, err := f.svc.GetProtocol(ctx, domain.Identity{UserID: f.customer.ID, Role: domain.RoleCustomer}, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, visible.ID)
}

func TestDeleteProtocolKeepsAssignedOnes(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p, err := f.svc.CreateProtocol(ctx, f.trainer.ID, sampleData("Reset"))
	require.NoError(t, err)
	_, err = f.svc.CreateAssignment(ctx, p.ID, f.customer.ID, f.trainer.ID)
	require.NoError(t, err)

	err = f.svc.DeleteProtocol(ctx, f.trainer.ID, p.ID)
	assert.True(t, errors.As(err, new(*domain.ValidationError)))

	other, err := f.svc.CreateProtocol(ctx, f.trainer.ID, sampleData("Spare"))
	require.NoError(t, err)
	otherHistory, err := f.svc.GetVersionHistory(ctx, other.ID)
	require.NoError(t, err)
	require.Len(t, otherHistory, 1)
	require.NoError(t, f.svc.DeleteProtocol(ctx, f.trainer.ID, other.ID))
	_, ok := f.files.Object(otherHistory[0].ArchiveKey)
	assert.False(t, ok, "snapshot of a deleted protocol is removed")
	_, err = f.svc.GetVersionHistory(ctx, other.ID)
	assert.True(t, errors.As(err, new(*domain.NotFoundError)))
}

func TestRollbackProtocol(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p, err := f.svc.CreateProtocol(ctx, f.trainer.ID, sampleData("Reset"))
	require.NoError(t, err)
	changed := sampleData("Reset")
	changed.Intensity = domain.IntensityHigh
	_, err = f.svc.UpdateProtocol(ctx, f.trainer.ID, p.ID, changed)
	require.NoError(t, err)

	restored, err := f.svc.RollbackProtocol(ctx, f.trainer.ID, p.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, restored.Version)
	assert.Equal(t, domain.IntensityModerate, restored.Intensity)

	history, err := f.svc.GetVersionHistory(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, history, 3)

	_, err = f.svc.RollbackProtocol(ctx, f.trainer.ID, p.ID, 9)
	assert.True(t, errors.As(err, new(*domain.NotFoundError)))
}

func TestVersionDownloadURL(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p, err := f.svc.CreateProtocol(ctx, f.trainer.ID, sampleData("Reset"))
	require.NoError(t, err)

	history, err := f.svc.GetVersionHistory(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)

	url, err := f.svc.GetVersionDownloadURL(ctx, f.trainer.ID, p.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "memory://"+history[0].ArchiveKey, url)
	assert.Contains(t, url, "protocols/"+p.ID.Hex()+"/v1-")

	_, err = f.svc.GetVersionDownloadURL(ctx, f.trainer.ID, p.ID, 2)
	assert.True(t, errors.As(err, new(*domain.NotFoundError)))
}

func TestAssignmentLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p, err := f.svc.CreateProtocol(ctx, f.trainer.ID, sampleData("Reset"))
	require.NoError(t, err)
	a, err := f.svc.CreateAssignment(ctx, p.ID, f.customer.ID, f.trainer.ID)
	require.NoError(t, err)

	trainer := domain.Identity{UserID: f.trainer.ID, Role: domain.RoleTrainer}
	customer := domain.Identity{UserID: f.customer.ID, Role: domain.RoleCustomer}

	paused, err := f.assignSvc.UpdateStatus(ctx, customer, a.ID, domain.StatusPaused)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, paused.Status)

	resumed, err := f.assignSvc.UpdateStatus(ctx, trainer, a.ID, domain.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, resumed.Status)

	done, err := f.assignSvc.UpdateStatus(ctx, trainer, a.ID, domain.StatusCompleted)
	require.NoError(t, err)
	require.NotNil(t, done.EndDate)

	_, err = f.assignSvc.UpdateStatus(ctx, trainer, a.ID, domain.StatusActive)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "status", ve.Field)

	_, err = f.assignSvc.UpdateStatus(ctx, domain.Identity{UserID: primitive.NewObjectID(), Role: domain.RoleCustomer}, a.ID, domain.StatusCancelled)
	assert.ErrorIs(t, err, ErrAssignmentAccessDenied)
}

func TestRecordProgress(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p, err := f.svc.CreateProtocol(ctx, f.trainer.ID, sampleData("Reset"))
	require.NoError(t, err)
	a, err := f.svc.CreateAssignment(ctx, p.ID, f.customer.ID, f.trainer.ID)
	require.NoError(t, err)
	customer := domain.Identity{UserID: f.customer.ID, Role: domain.RoleCustomer}

	_, err = f.assignSvc.RecordProgress(ctx, customer, a.ID, map[string]any{"adherence": 0.8})
	require.NoError(t, err)
	updated, err := f.assignSvc.RecordProgress(ctx, customer, a.ID, map[string]any{"energy": "better"})
	require.NoError(t, err)
	assert.Equal(t, 0.8, updated.Progress["adherence"])
	assert.Equal(t, "better", updated.Progress["energy"])
	assert.Contains(t, updated.Progress, "lastCheckIn")

	list, err := f.assignSvc.GetAssignments(ctx, customer)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].Protocol)
	assert.Equal(t, "Reset", list[0].Protocol.Name)
}

func TestAuthTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	auth := NewAuthService(f.users, "test-secret", time.Hour)

	token, err := auth.IssueToken(ctx, f.customer.ID)
	require.NoError(t, err)
	identity, err := auth.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, f.customer.ID, identity.UserID)
	assert.Equal(t, domain.RoleCustomer, identity.Role)

	_, err = auth.IssueToken(ctx, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrUserNotFound)

	other := NewAuthService(f.users, "other-secret", time.Hour)
	_, err = other.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolveOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	trainers := NewTrainerService(f.users)

	owner, err := trainers.ResolveOwner(ctx, domain.Identity{UserID: f.trainer.ID, Role: domain.RoleTrainer})
	require.NoError(t, err)
	assert.Equal(t, f.trainer.ID, owner)

	owner, err = trainers.ResolveOwner(ctx, domain.Identity{UserID: f.customer.ID, Role: domain.RoleCustomer})
	require.NoError(t, err)
	assert.Equal(t, f.trainer.ID, owner)

	loner := f.users.Put(domain.User{Name: "Lou", Role: domain.RoleCustomer})
	_, err = trainers.ResolveOwner(ctx, domain.Identity{UserID: loner.ID, Role: domain.RoleCustomer})
	assert.ErrorIs(t, err, ErrCustomerWithoutTrainer)

	customers, err := trainers.GetManagedCustomers(ctx, f.trainer.ID)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, f.customer.ID, customers[0].ID)
}

func TestWizardSavesThroughProtocolService(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	ctrl := wizard.NewController(catalog.Default(), safety.NewValidator(safety.DefaultPolicy()), generation.TemplateClient{}, f.svc,
		wizard.Options{Clients: NewTrainerService(f.users)})
	s := ctrl.NewSession(domain.Identity{UserID: f.trainer.ID, Role: domain.RoleTrainer}, f.trainer.ID)

	stranger := f.users.Put(domain.User{Name: "Sam", Role: domain.RoleCustomer})
	_, err := ctrl.SelectClient(ctx, s, &stranger.ID)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "clientId", ve.Field)

	s, err = ctrl.SelectClient(ctx, s, &f.customer.ID)
	require.NoError(t, err)
	s, err = ctrl.SelectTemplate(s, "parasite-cleanse-intensive")
	require.NoError(t, err)
	s, err = ctrl.SetHealthInfo(s, domain.HealthInfo{Age: 70, WeightKg: 70, HeightCm: 168, ActivityLevel: domain.ActivityLight})
	require.NoError(t, err)
	s, err = ctrl.SetMedicalConditions(s, []string{"Type 2 diabetes"}, nil)
	require.NoError(t, err)
	s, err = ctrl.UseTemplateFallback(s)
	require.NoError(t, err)

	_, err = ctrl.Save(ctx, s, "Cleanse", nil)
	require.True(t, errors.As(err, new(*domain.SafetyGateError)))
	list, err := f.svc.GetProtocolsByTrainer(ctx, f.trainer.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	s, err = ctrl.ConfirmSafetyCheck(s, true)
	require.NoError(t, err)
	saved, err := ctrl.Save(ctx, s, "Cleanse", nil)
	require.NoError(t, err)
	assert.Equal(t, "1.0", domain.VersionLabel(saved.SavedVersion))

	stored, err := f.protocols.GetByID(ctx, *saved.SavedProtocolID)
	require.NoError(t, err)
	require.NotNil(t, stored.Config.ClientID)
	assert.Equal(t, f.customer.ID, *stored.Config.ClientID)

	assignments, err := f.assignments.GetByCustomerID(ctx, f.customer.ID)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, *saved.SavedProtocolID, assignments[0].ProtocolID)
}

func TestCheckClient(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	trainers := NewTrainerService(f.users)

	require.NoError(t, trainers.CheckClient(ctx, f.trainer.ID, f.customer.ID))

	err := trainers.CheckClient(ctx, primitive.NewObjectID(), f.customer.ID)
	assert.True(t, errors.As(err, new(*domain.ValidationError)))

	err = trainers.CheckClient(ctx, f.trainer.ID, f.trainer.ID)
	assert.True(t, errors.As(err, new(*domain.ValidationError)))

	err = trainers.CheckClient(ctx, f.trainer.ID, primitive.NewObjectID())
	assert.True(t, errors.As(err, new(*domain.NotFoundError)))
}
