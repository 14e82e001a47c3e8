package wizard

import (
	"context"
	"errors"
	"math"
	"testing"

	"evofit/health-protocol/internal/domain"
	"evofit/health-protocol/internal/generation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestTrainerFlowRequiresClient(t *testing.T) {
	c := newTestController(generatorFunc(aiContent), newTestStore())
	s := c.NewSession(trainer(), primitive.NewObjectID())
	assert.Equal(t, FlowTrainer, s.Flow)

	next, err := c.Next(s)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "clientId", ve.Field)
	assert.Equal(t, StepClientSelection, next.Step)
	assert.Contains(t, next.Errors, "clientId")

	client := primitive.NewObjectID()
	next, err = c.SelectClient(context.Background(), next, &client)
	require.NoError(t, err)
	next, err = c.Next(next)
	require.NoError(t, err)
	assert.Equal(t, StepTemplateSelection, next.Step)
	assert.Empty(t, next.Errors)
}

func TestSelfServiceSkipsClient(t *testing.T) {
	c := newTestController(generatorFunc(aiContent), newTestStore())
	op := customer()
	s := c.NewSession(op, primitive.NewObjectID())
	assert.Equal(t, FlowSelfService, s.Flow)

	s, err := c.SelectClient(context.Background(), s, nil)
	require.NoError(t, err)
	s, err = c.Next(s)
	require.NoError(t, err)
	assert.Equal(t, StepTemplateSelection, s.Step)

	other := primitive.NewObjectID()
	_, err = c.SelectClient(context.Background(), s, &other)
	assert.True(t, isErr[*domain.ValidationError](err))
}

func TestSelectUnknownTemplate(t *testing.T) {
	c := newTestController(generatorFunc(aiContent), newTestStore())
	s := c.NewSession(trainer(), primitive.NewObjectID())

	next, err := c.SelectTemplate(s, "no-such-template")
	var nf *domain.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "template", nf.Kind)
	assert.Nil(t, next.Template)
}

func TestHealthInformationGateNamesMissingField(t *testing.T) {
	c := newTestController(generatorFunc(aiContent), newTestStore())
	s := c.NewSession(customer(), primitive.NewObjectID())
	s, err := c.Next(s)
	require.NoError(t, err)
	s, err = c.SelectTemplate(s, "longevity-foundation")
	require.NoError(t, err)
	s, err = c.Next(s)
	require.NoError(t, err)

	s, err = c.SetHealthInfo(s, domain.HealthInfo{Age: 30, WeightKg: 60, ActivityLevel: domain.ActivityLight})
	require.NoError(t, err)
	_, err = c.Next(s)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "heightCm", ve.Field)

	_, err = c.SetHealthInfo(s, domain.HealthInfo{Age: 121})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "age", ve.Field)

	_, err = c.SetHealthInfo(s, domain.HealthInfo{Age: 30, ActivityLevel: "couch"})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "activityLevel", ve.Field)
}

func TestBackPreservesEnteredValues(t *testing.T) {
	c := newTestController(generatorFunc(aiContent), newTestStore())
	s := c.NewSession(trainer(), primitive.NewObjectID())
	s = fillThroughCustomization(t, c, s, scenario{
		template:    "longevity-foundation",
		health:      healthyAdult(),
		conditions:  []string{"asthma"},
		medications: []string{"albuterol"},
	})
	s, err := c.SetCustomization(s, Customization{Notes: "prefers mornings", Preferences: map[string]string{"diet": "vegetarian"}})
	require.NoError(t, err)
	before := s.Clone()

	for s.Step > StepClientSelection {
		s, err = c.Back(s)
		require.NoError(t, err)
	}
	s, err = c.Back(s)
	require.NoError(t, err)
	assert.Equal(t, StepClientSelection, s.Step)

	assert.Equal(t, before.ClientID, s.ClientID)
	assert.Equal(t, before.Template, s.Template)
	assert.Equal(t, before.Health, s.Health)
	assert.Equal(t, before.Conditions, s.Conditions)
	assert.Equal(t, before.Medications, s.Medications)
	assert.Equal(t, before.Customization, s.Customization)
}

func TestOperationsDoNotMutateInput(t *testing.T) {
	c := newTestController(generatorFunc(aiContent), newTestStore())
	s := c.NewSession(trainer(), primitive.NewObjectID())
	client := primitive.NewObjectID()
	s, err := c.SelectClient(context.Background(), s, &client)
	require.NoError(t, err)
	snapshot := s.Clone()

	_, err = c.SetMedicalConditions(s, []string{"diabetes"}, nil)
	require.NoError(t, err)
	_, err = c.Next(s)
	require.NoError(t, err)
	assert.Equal(t, snapshot, s)
}

func TestNoConditionsNeverBlocksBelowSeniorAge(t *testing.T) {
	for _, tpl := range []string{"longevity-foundation", "longevity-intensive", "parasite-cleanse-intensive", "weight-loss"} {
		t.Run(tpl, func(t *testing.T) {
			c := newTestController(generatorFunc(aiContent), newTestStore())
			s := c.NewSession(trainer(), primitive.NewObjectID())
			s = fillThroughCustomization(t, c, s, scenario{template: tpl, health: healthyAdult()})
			require.NotNil(t, s.Safety)
			assert.False(t, s.Safety.RequiresHealthcareApproval)
			assert.Empty(t, s.Acknowledged)
		})
	}
}

func TestSeniorHighIntensityRequiresApproval(t *testing.T) {
	store := newTestStore()
	c := newTestController(generatorFunc(aiContent), store)
	s := c.NewSession(trainer(), primitive.NewObjectID())
	client := primitive.NewObjectID()
	s, err := c.SelectClient(context.Background(), s, &client)
	require.NoError(t, err)
	s, err = c.SelectTemplate(s, "longevity-intensive")
	require.NoError(t, err)
	s, err = c.SetHealthInfo(s, domain.HealthInfo{Age: 67, WeightKg: 80, HeightCm: 170, ActivityLevel: domain.ActivityLight})
	require.NoError(t, err)
	s, err = c.SetMedicalConditions(s, nil, nil)
	require.NoError(t, err)
	require.True(t, s.Safety.RequiresHealthcareApproval)

	s.Step = StepMedicalConditions
	_, err = c.Next(s)
	var gate *domain.SafetyGateError
	require.True(t, errors.As(err, &gate))
	assert.True(t, gate.Assessment.RequiresHealthcareApproval)
}

func TestApprovalScenarioSavesVersionOne(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	c := newTestController(generatorFunc(aiContent), store)
	owner := primitive.NewObjectID()
	s := c.NewSession(domain.Identity{UserID: owner, Role: domain.RoleTrainer}, owner)

	client := primitive.NewObjectID()
	s, err := c.SelectClient(context.Background(), s, &client)
	require.NoError(t, err)
	s, err = c.SelectTemplate(s, "parasite-cleanse-intensive")
	require.NoError(t, err)
	s, err = c.SetHealthInfo(s, domain.HealthInfo{Age: 70, WeightKg: 68, HeightCm: 165, ActivityLevel: domain.ActivitySedentary})
	require.NoError(t, err)
	s, err = c.SetMedicalConditions(s, []string{"diabetes"}, nil)
	require.NoError(t, err)
	require.NotNil(t, s.Safety)
	assert.True(t, s.Safety.RequiresHealthcareApproval)

	s, err = c.UseTemplateFallback(s)
	require.NoError(t, err)

	unchanged, err := c.Save(ctx, s, "Gentle reset", nil)
	var gate *domain.SafetyGateError
	require.True(t, errors.As(err, &gate))
	assert.Equal(t, StatusActive, unchanged.Status)
	assert.Nil(t, unchanged.SavedProtocolID)
	assert.Equal(t, 0, store.protocolCount(t, owner))

	s, err = c.ConfirmSafetyCheck(s, true)
	require.NoError(t, err)
	saved, err := c.Save(ctx, s, "Gentle reset", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSaved, saved.Status)
	require.NotNil(t, saved.SavedProtocolID)
	assert.Equal(t, 1, saved.SavedVersion)
	assert.Equal(t, "1.0", domain.VersionLabel(saved.SavedVersion))

	history, err := store.GetVersionHistory(ctx, *saved.SavedProtocolID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Config.ApprovalAcknowledged)
}

func TestChangedAssessmentClearsAcknowledgement(t *testing.T) {
	c := newTestController(generatorFunc(aiContent), newTestStore())
	s := c.NewSession(trainer(), primitive.NewObjectID())
	s, err := c.SelectTemplate(s, "parasite-cleanse-intensive")
	require.NoError(t, err)
	s, err = c.SetHealthInfo(s, domain.HealthInfo{Age: 70, WeightKg: 68, HeightCm: 165, ActivityLevel: domain.ActivityLight})
	require.NoError(t, err)
	s, err = c.SetMedicalConditions(s, []string{"diabetes"}, nil)
	require.NoError(t, err)
	s, err = c.ConfirmSafetyCheck(s, true)
	require.NoError(t, err)
	require.False(t, s.ApprovalPending())

	s, err = c.SetMedicalConditions(s, []string{"diabetes"}, []string{"Warfarin 5mg"})
	require.NoError(t, err)
	assert.Empty(t, s.Acknowledged)
	assert.True(t, s.ApprovalPending())
}

func TestConfirmWithoutApprovalIsPassThrough(t *testing.T) {
	c := newTestController(generatorFunc(aiContent), newTestStore())
	s := c.NewSession(trainer(), primitive.NewObjectID())
	s, err := c.SetMedicalConditions(s, nil, nil)
	require.NoError(t, err)

	next, err := c.ConfirmSafetyCheck(s, true)
	require.NoError(t, err)
	assert.Equal(t, s, next)
}

func TestGenerationTimeoutFallsBackToTemplate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	c := newTestController(generatorFunc(blockUntilDone), store)
	s := c.NewSession(trainer(), primitive.NewObjectID())
	s = fillThroughCustomization(t, c, s, scenario{template: "longevity-foundation", health: healthyAdult()})
	entered := s.Clone()

	s, err := c.RequestGeneration(ctx, s)
	var genErr *domain.GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.True(t, genErr.FallbackAvailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, s.Generation.Failed)
	assert.NotEmpty(t, s.Generation.LastError)
	assert.Equal(t, entered.Health, s.Health)
	assert.Equal(t, entered.Template, s.Template)

	_, err = c.Next(s)
	assert.True(t, isErr[*domain.ValidationError](err))

	s, err = c.UseTemplateFallback(s)
	require.NoError(t, err)
	require.NotNil(t, s.Generation.Content)
	assert.Equal(t, domain.SourceTemplate, s.Generation.Content.Source)
	assert.NotEmpty(t, s.Generation.Content.Sections)

	for s.Step < LastStep {
		s, err = c.Next(s)
		require.NoError(t, err)
	}
	saved, err := c.Save(ctx, s, "Foundation", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSaved, saved.Status)
}

func TestGenerationOnlyRunsOnGenerationStep(t *testing.T) {
	c := newTestController(generatorFunc(aiContent), newTestStore())
	s := c.NewSession(trainer(), primitive.NewObjectID())
	_, err := c.RequestGeneration(context.Background(), s)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "step", ve.Field)
}

func TestSaveFailureKeepsSessionForRetry(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	c := newTestController(generatorFunc(aiContent), store)
	owner := primitive.NewObjectID()
	s := c.NewSession(domain.Identity{UserID: owner, Role: domain.RoleTrainer}, owner)
	s = fillThroughCustomization(t, c, s, scenario{template: "weight-loss", health: healthyAdult()})
	s, err := c.RequestGeneration(ctx, s)
	require.NoError(t, err)

	store.failSave = errStorageDown
	after, err := c.Save(ctx, s, "Cut", nil)
	var pe *domain.PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.ErrorIs(t, err, errStorageDown)
	assert.Equal(t, s, after)

	store.failSave = nil
	saved, err := c.Save(ctx, after, "Cut", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSaved, saved.Status)
	assert.Equal(t, 1, store.protocolCount(t, owner))
}

func TestAssignmentFailureDiscardsNewProtocol(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	c := newTestController(generatorFunc(aiContent), store)
	owner := primitive.NewObjectID()
	s := c.NewSession(domain.Identity{UserID: owner, Role: domain.RoleTrainer}, owner)
	s = fillThroughCustomization(t, c, s, scenario{template: "ailments-support", health: healthyAdult()})
	s, err := c.RequestGeneration(ctx, s)
	require.NoError(t, err)

	store.failAssign = errStorageDown
	after, err := c.Save(ctx, s, "Support", s.ClientID)
	assert.True(t, isErr[*domain.PersistenceError](err))
	assert.Equal(t, s, after)
	assert.Len(t, store.deleted, 1)
	assert.Equal(t, 0, store.protocolCount(t, owner))

	store.failAssign = nil
	saved, err := c.Save(ctx, after, "Support", s.ClientID)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.SavedVersion)
	assignments, err := store.assignments.GetByCustomerID(ctx, *s.ClientID)
	require.NoError(t, err)
	assert.Len(t, assignments, 1)
}

func TestSaveRequiresName(t *testing.T) {
	ctx := context.Background()
	c := newTestController(generatorFunc(aiContent), newTestStore())
	s := c.NewSession(trainer(), primitive.NewObjectID())
	s = fillThroughCustomization(t, c, s, scenario{template: "custom-blank", health: healthyAdult()})
	s, err := c.UseTemplateFallback(s)
	require.NoError(t, err)

	_, err = c.Save(ctx, s, "   ", nil)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "name", ve.Field)
}

func TestSaveReportsFirstFailingStep(t *testing.T) {
	c := newTestController(generatorFunc(aiContent), newTestStore())
	s := c.NewSession(trainer(), primitive.NewObjectID())
	s, err := c.SelectTemplate(s, "longevity-foundation")
	require.NoError(t, err)

	_, err = c.Save(context.Background(), s, "Draft", nil)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "clientId", ve.Field)
}

func TestReviewIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c := newTestController(generatorFunc(aiContent), newTestStore())
	s := c.NewSession(trainer(), primitive.NewObjectID())
	s = fillThroughCustomization(t, c, s, scenario{
		template:    "longevity-intensive",
		health:      healthyAdult(),
		conditions:  []string{"Hypertension"},
		medications: []string{"warfarin"},
	})
	s, err := c.RequestGeneration(ctx, s)
	require.NoError(t, err)
	before := s.Clone()

	first := c.Review(s)
	second := c.Review(s)
	assert.Equal(t, first, second)
	assert.Equal(t, before, s)
	assert.True(t, first.ReadyToSave)
	assert.False(t, first.ContentStale)
	assert.True(t, first.Acknowledged)

	s, err = c.SetCustomization(s, Customization{DurationDays: 20})
	require.NoError(t, err)
	assert.True(t, c.Review(s).ContentStale)
}

func TestCancelIsTerminal(t *testing.T) {
	c := newTestController(generatorFunc(aiContent), newTestStore())
	s := c.NewSession(trainer(), primitive.NewObjectID())
	s, err := c.Cancel(s)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, s.Status)

	_, err = c.Next(s)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "status", ve.Field)

	_, err = c.Save(context.Background(), s, "x", nil)
	assert.True(t, isErr[*domain.ValidationError](err))
}

func TestEditExistingProtocolBumpsVersion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	c := newTestController(generatorFunc(aiContent), store)
	owner := primitive.NewObjectID()
	op := domain.Identity{UserID: owner, Role: domain.RoleTrainer}
	s := c.NewSession(op, owner)
	s = fillThroughCustomization(t, c, s, scenario{template: "longevity-foundation", health: healthyAdult()})
	s, err := c.RequestGeneration(ctx, s)
	require.NoError(t, err)
	saved, err := c.Save(ctx, s, "Base", nil)
	require.NoError(t, err)

	p, err := store.protocols.GetByID(ctx, *saved.SavedProtocolID)
	require.NoError(t, err)
	edit, err := c.OpenForProtocol(op, *p)
	require.NoError(t, err)
	assert.Equal(t, p.ID, *edit.ProtocolID)
	assert.Equal(t, healthyAdult().Age, edit.Health.Age)

	edit, err = c.SetCustomization(edit, Customization{Intensity: domain.IntensityLow})
	require.NoError(t, err)
	resaved, err := c.Save(ctx, edit, "Base", nil)
	require.NoError(t, err)
	assert.Equal(t, p.ID, *resaved.SavedProtocolID)
	assert.Equal(t, 2, resaved.SavedVersion)

	history, err := store.GetVersionHistory(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSetHealthInfoRejectsNonFiniteNumbers(t *testing.T) {
	c := newTestController(generatorFunc(aiContent), newTestStore())
	s := c.NewSession(trainer(), primitive.NewObjectID())

	for name, h := range map[string]domain.HealthInfo{
		"weightKg": {Age: 40, WeightKg: math.NaN(), HeightCm: 170},
		"heightCm": {Age: 40, WeightKg: 70, HeightCm: math.Inf(1)},
	} {
		unchanged, err := c.SetHealthInfo(s, h)
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve, name)
		assert.Equal(t, name, ve.Field)
		assert.Zero(t, unchanged.Health.WeightKg)
	}
}

func TestPromptHashDistinguishesNonFiniteInput(t *testing.T) {
	base := generation.Prompt{TemplateID: "longevity-foundation", Health: healthyAdult()}
	nan, inf := base, base
	nan.Health.WeightKg = math.NaN()
	inf.Health.WeightKg = math.Inf(1)

	assert.NotEqual(t, promptHash(nan), promptHash(inf))
	assert.NotEqual(t, promptHash(base), promptHash(nan))
	assert.Equal(t, promptHash(inf), promptHash(inf))
}
