package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Health-Education-England/tis-trainee-actions/internal/dto"
	"github.com/Health-Education-England/tis-trainee-actions/internal/models"
)

const (
	testTraineeID = "40"
	testTisID     = "6e302be5-a8d6-4f2f-b779-1a4b6f476dbd"
)

var testNow = time.Date(2025, time.March, 14, 10, 30, 0, 0, time.UTC)

// fakeActionRepository is an in-memory IActionRepository honouring the
// unique (type, tisReferenceInfo) index.
type fakeActionRepository struct {
	actions []models.Action
}

func (r *fakeActionRepository) Insert(_ context.Context, actions []models.Action) ([]models.Action, error) {
	var inserted []models.Action
	for _, action := range actions {
		if r.hasConflict(action) {
			continue
		}
		if action.ID.IsZero() {
			action.ID = primitive.NewObjectID()
		}
		r.actions = append(r.actions, action)
		inserted = append(inserted, action)
	}
	return inserted, nil
}

func (r *fakeActionRepository) hasConflict(action models.Action) bool {
	for _, stored := range r.actions {
		if stored.Type == action.Type && stored.ReferenceInfo == action.ReferenceInfo {
			return true
		}
	}
	return false
}

func (r *fakeActionRepository) Save(_ context.Context, action models.Action) (models.Action, error) {
	for i := range r.actions {
		if r.actions[i].ID == action.ID {
			r.actions[i] = action
			return action, nil
		}
	}
	return models.Action{}, assert.AnError
}

func (r *fakeActionRepository) FindByTraineeAndReference(_ context.Context, traineeID, referenceID string, referenceType models.ReferenceType) ([]models.Action, error) {
	var found []models.Action
	for _, action := range r.actions {
		if action.TraineeID == traineeID && action.ReferenceInfo.ID == referenceID && action.ReferenceInfo.Type == referenceType {
			found = append(found, action)
		}
	}
	return found, nil
}

func (r *fakeActionRepository) FindIncompleteByTrainee(_ context.Context, traineeID string) ([]models.Action, error) {
	var found []models.Action
	for _, action := range r.actions {
		if action.TraineeID == traineeID && action.Completed == nil {
			found = append(found, action)
		}
	}
	return found, nil
}

func (r *fakeActionRepository) FindByIDAndTrainee(_ context.Context, id primitive.ObjectID, traineeID string) (*models.Action, error) {
	for _, action := range r.actions {
		if action.ID == id && action.TraineeID == traineeID {
			found := action
			return &found, nil
		}
	}
	return nil, nil
}

func (r *fakeActionRepository) DeleteIncompleteByReference(_ context.Context, traineeID, referenceID string, referenceType models.ReferenceType) ([]models.Action, error) {
	return r.delete(func(a models.Action) bool {
		return a.TraineeID == traineeID && a.ReferenceInfo.ID == referenceID &&
			a.ReferenceInfo.Type == referenceType && a.Completed == nil
	})
}

func (r *fakeActionRepository) DeleteByReferenceAndType(_ context.Context, traineeID, referenceID string, referenceType models.ReferenceType, actionType models.ActionType) ([]models.Action, error) {
	return r.delete(func(a models.Action) bool {
		return a.TraineeID == traineeID && a.ReferenceInfo.ID == referenceID &&
			a.ReferenceInfo.Type == referenceType && a.Type == actionType
	})
}

func (r *fakeActionRepository) delete(match func(models.Action) bool) ([]models.Action, error) {
	var deleted []models.Action
	var remaining []models.Action
	for _, action := range r.actions {
		if match(action) {
			deleted = append(deleted, action)
		} else {
			remaining = append(remaining, action)
		}
	}
	r.actions = remaining
	return deleted, nil
}

func (r *fakeActionRepository) MoveAllByTrainee(_ context.Context, fromTraineeID, toTraineeID string) ([]models.Action, error) {
	var moved []models.Action
	for i := range r.actions {
		if r.actions[i].TraineeID == fromTraineeID {
			r.actions[i].TraineeID = toTraineeID
			moved = append(moved, r.actions[i])
		}
	}
	return moved, nil
}

// recordingPublisher captures broadcast calls.
type recordingPublisher struct {
	updates []models.Action
	deletes []models.Action
}

func (p *recordingPublisher) PublishActionUpdate(_ context.Context, action models.Action) error {
	p.updates = append(p.updates, action)
	return nil
}

func (p *recordingPublisher) PublishActionDelete(_ context.Context, action models.Action) error {
	p.deletes = append(p.deletes, action)
	return nil
}

func newTestService() (*actionService, *fakeActionRepository, *recordingPublisher) {
	repo := &fakeActionRepository{}
	publisher := &recordingPublisher{}
	service := NewActionService(repo, publisher).(*actionService)
	service.now = func() time.Time { return testNow }
	return service, repo, publisher
}

func datePtr(d models.Date) *models.Date { return &d }

func placementDto(start *models.Date, placementType string) dto.PlacementDto {
	return dto.PlacementDto{
		ID:            testTisID,
		TraineeID:     testTraineeID,
		StartDate:     start,
		PlacementType: placementType,
	}
}

func TestUpdatePlacementActions_InsertsOnFirstSight(t *testing.T) {
	service, repo, publisher := newTestService()

	actions, err := service.UpdatePlacementActions(context.Background(), dto.OperationLoad,
		placementDto(datePtr(ActionsEpoch), "In post"))
	require.NoError(t, err)
	require.Len(t, actions, 1)

	action := actions[0]
	assert.Equal(t, models.ActionReviewData, action.Type)
	assert.Equal(t, testTraineeID, action.TraineeID)
	assert.Equal(t, models.ReferenceInfo{ID: testTisID, Type: models.RefPlacement}, action.ReferenceInfo)
	require.NotNil(t, action.DueBy)
	assert.Equal(t, ActionsEpoch, *action.DueBy)
	require.NotNil(t, action.AvailableFrom)
	assert.Equal(t, ActionsEpoch.AddDays(-12*7), *action.AvailableFrom)
	assert.Nil(t, action.Completed)

	assert.Len(t, repo.actions, 1)
	assert.Len(t, publisher.updates, 1)
	assert.Empty(t, publisher.deletes)
}

func TestUpdatePlacementActions_ReplayIsIdempotent(t *testing.T) {
	service, repo, publisher := newTestService()
	event := placementDto(datePtr(ActionsEpoch), "In post")

	for i := 0; i < 3; i++ {
		_, err := service.UpdatePlacementActions(context.Background(), dto.OperationLoad, event)
		require.NoError(t, err)
	}

	assert.Len(t, repo.actions, 1, "replaying the same load must not duplicate actions")
	assert.Len(t, publisher.updates, 1, "replaying the same load must not re-broadcast")
}

func TestUpdatePlacementActions_FiltersPreEpochDueDates(t *testing.T) {
	service, repo, publisher := newTestService()
	preEpoch := ActionsEpoch.AddDays(-1)

	actions, err := service.UpdatePlacementActions(context.Background(), dto.OperationLoad,
		placementDto(&preEpoch, "In post"))
	require.NoError(t, err)

	assert.Empty(t, actions)
	assert.Empty(t, repo.actions)
	assert.Empty(t, publisher.updates)
}

func TestUpdatePlacementActions_CaseInsensitivePlacementType(t *testing.T) {
	service, repo, _ := newTestService()

	_, err := service.UpdatePlacementActions(context.Background(), dto.OperationLoad,
		placementDto(datePtr(ActionsEpoch), "IN POST - ACTING UP"))
	require.NoError(t, err)

	assert.Len(t, repo.actions, 1)
}

func TestUpdatePlacementActions_NonActionableTypeDeletesIncomplete(t *testing.T) {
	service, repo, publisher := newTestService()
	reference := models.ReferenceInfo{ID: testTisID, Type: models.RefPlacement}

	completedAt := testNow.Add(-time.Hour)
	completed := models.Action{
		ID: primitive.NewObjectID(), Type: models.ActionSignCoj, TraineeID: testTraineeID,
		ReferenceInfo: reference, Completed: &completedAt,
	}
	incomplete := models.Action{
		ID: primitive.NewObjectID(), Type: models.ActionReviewData, TraineeID: testTraineeID,
		ReferenceInfo: reference,
	}
	repo.actions = []models.Action{completed, incomplete}

	actions, err := service.UpdatePlacementActions(context.Background(), dto.OperationLoad,
		placementDto(datePtr(ActionsEpoch), "Out of programme"))
	require.NoError(t, err)

	assert.Empty(t, actions)
	require.Len(t, repo.actions, 1, "completed actions are a historical record and must survive")
	assert.Equal(t, completed.ID, repo.actions[0].ID)
	require.Len(t, publisher.deletes, 1)
	assert.Equal(t, incomplete.ID, publisher.deletes[0].ID)
}

func TestUpdatePlacementActions_DeleteOperationRemovesIncomplete(t *testing.T) {
	service, repo, publisher := newTestService()
	reference := models.ReferenceInfo{ID: testTisID, Type: models.RefPlacement}
	incomplete := models.Action{
		ID: primitive.NewObjectID(), Type: models.ActionReviewData, TraineeID: testTraineeID,
		ReferenceInfo: reference,
	}
	repo.actions = []models.Action{incomplete}

	actions, err := service.UpdatePlacementActions(context.Background(), dto.OperationDelete,
		placementDto(nil, ""))
	require.NoError(t, err)

	assert.Empty(t, actions)
	assert.Empty(t, repo.actions)
	require.Len(t, publisher.deletes, 1)
	assert.Equal(t, incomplete.ID, publisher.deletes[0].ID)
	assert.Empty(t, publisher.updates)
}

func TestUpdatePlacementActions_ReplacesOnDueDateChange(t *testing.T) {
	service, repo, publisher := newTestService()
	reference := models.ReferenceInfo{ID: testTisID, Type: models.RefPlacement}

	oldDue := ActionsEpoch
	completedAt := testNow.Add(-time.Hour)
	existing := models.Action{
		ID: primitive.NewObjectID(), Type: models.ActionReviewData, TraineeID: testTraineeID,
		ReferenceInfo: reference, DueBy: &oldDue, Completed: &completedAt,
	}
	repo.actions = []models.Action{existing}

	newStart := ActionsEpoch.AddDays(30)
	actions, err := service.UpdatePlacementActions(context.Background(), dto.OperationLoad,
		placementDto(&newStart, "In post"))
	require.NoError(t, err)
	require.Len(t, actions, 1)

	// The completed action is replaced unconditionally.
	require.Len(t, publisher.deletes, 1)
	assert.Equal(t, existing.ID, publisher.deletes[0].ID)

	require.Len(t, repo.actions, 1)
	replacement := repo.actions[0]
	assert.NotEqual(t, existing.ID, replacement.ID)
	assert.Equal(t, newStart, *replacement.DueBy)
	assert.Equal(t, newStart.AddDays(-12*7), *replacement.AvailableFrom)
	assert.Nil(t, replacement.Completed, "a replacement action starts incomplete")
}

func TestUpdatePlacementActions_UnchangedDueDateLeftAsIs(t *testing.T) {
	service, repo, publisher := newTestService()
	reference := models.ReferenceInfo{ID: testTisID, Type: models.RefPlacement}

	due := ActionsEpoch
	existing := models.Action{
		ID: primitive.NewObjectID(), Type: models.ActionReviewData, TraineeID: testTraineeID,
		ReferenceInfo: reference, DueBy: &due,
	}
	repo.actions = []models.Action{existing}

	actions, err := service.UpdatePlacementActions(context.Background(), dto.OperationLoad,
		placementDto(datePtr(ActionsEpoch), "In post"))
	require.NoError(t, err)

	assert.Empty(t, actions)
	require.Len(t, repo.actions, 1)
	assert.Equal(t, existing.ID, repo.actions[0].ID)
	assert.Empty(t, publisher.deletes)
	assert.Empty(t, publisher.updates)
}

func TestUpdatePlacementActions_MissingStartDateIsAnError(t *testing.T) {
	service, _, _ := newTestService()

	_, err := service.UpdatePlacementActions(context.Background(), dto.OperationLoad,
		placementDto(nil, "In post"))
	assert.Error(t, err)
}

func programmeMembershipDto(start *models.Date, coj *dto.ConditionsOfJoining) dto.ProgrammeMembershipDto {
	return dto.ProgrammeMembershipDto{
		ID:                  testTisID,
		TraineeID:           testTraineeID,
		StartDate:           start,
		ConditionsOfJoining: coj,
	}
}

func TestUpdateProgrammeMembershipActions_InsertsAllTypesOnFirstSight(t *testing.T) {
	service, repo, publisher := newTestService()

	actions, err := service.UpdateProgrammeMembershipActions(context.Background(), dto.OperationLoad,
		programmeMembershipDto(datePtr(ActionsEpoch), nil))
	require.NoError(t, err)
	require.Len(t, actions, len(models.ProgrammeActionTypes))

	today := models.DateOf(testNow)
	for _, actionType := range models.ProgrammeActionTypes {
		var found *dto.ActionDto
		for i := range actions {
			if actions[i].Type == actionType {
				found = &actions[i]
				break
			}
		}
		require.NotNil(t, found, "missing action for type %s", actionType)
		assert.Equal(t, testTraineeID, found.TraineeID)
		assert.Equal(t, models.ReferenceInfo{ID: testTisID, Type: models.RefProgrammeMembership}, found.ReferenceInfo)
		assert.Equal(t, today, *found.AvailableFrom)
		assert.Equal(t, ActionsEpoch, *found.DueBy)
		assert.Nil(t, found.Completed)
	}

	assert.Len(t, publisher.updates, len(models.ProgrammeActionTypes))
	assert.Len(t, repo.actions, len(models.ProgrammeActionTypes))
}

func TestUpdateProgrammeMembershipActions_PreEpochStartCreatesNothing(t *testing.T) {
	service, repo, publisher := newTestService()
	preEpoch := ActionsEpoch.AddDays(-1)

	actions, err := service.UpdateProgrammeMembershipActions(context.Background(), dto.OperationLoad,
		programmeMembershipDto(&preEpoch, nil))
	require.NoError(t, err)

	assert.Empty(t, actions)
	assert.Empty(t, repo.actions)
	assert.Empty(t, publisher.updates)
}

func TestUpdateProgrammeMembershipActions_ExistingActionsLeftAlone(t *testing.T) {
	service, repo, publisher := newTestService()
	event := programmeMembershipDto(datePtr(ActionsEpoch), nil)

	_, err := service.UpdateProgrammeMembershipActions(context.Background(), dto.OperationLoad, event)
	require.NoError(t, err)
	stored := append([]models.Action(nil), repo.actions...)

	// A membership sync never replaces existing programme actions.
	actions, err := service.UpdateProgrammeMembershipActions(context.Background(), dto.OperationLoad, event)
	require.NoError(t, err)

	assert.Empty(t, actions)
	assert.Equal(t, stored, repo.actions)
	assert.Len(t, publisher.updates, len(models.ProgrammeActionTypes))
}

func TestUpdateProgrammeMembershipActions_SyncedCojCreatesCompletedAction(t *testing.T) {
	service, repo, _ := newTestService()
	syncedAt := testNow.Add(-24 * time.Hour)
	coj := &dto.ConditionsOfJoining{SyncedAt: &syncedAt}

	actions, err := service.UpdateProgrammeMembershipActions(context.Background(), dto.OperationLoad,
		programmeMembershipDto(datePtr(ActionsEpoch), coj))
	require.NoError(t, err)
	require.Len(t, actions, len(models.ProgrammeActionTypes))

	for _, action := range repo.actions {
		if action.Type == models.ActionSignCoj {
			require.NotNil(t, action.Completed)
			assert.Equal(t, syncedAt, *action.Completed)
		} else {
			assert.Nil(t, action.Completed)
		}
	}
}

func TestUpdateProgrammeMembershipActions_SyncedCojCompletesExistingAction(t *testing.T) {
	service, repo, publisher := newTestService()
	reference := models.ReferenceInfo{ID: testTisID, Type: models.RefProgrammeMembership}
	due := ActionsEpoch
	existing := models.Action{
		ID: primitive.NewObjectID(), Type: models.ActionSignCoj, TraineeID: testTraineeID,
		ReferenceInfo: reference, DueBy: &due,
	}
	repo.actions = []models.Action{existing}

	syncedAt := testNow.Add(-24 * time.Hour)
	// A pre-epoch start date must not prevent CoJ completion, otherwise an
	// edited membership leaves a dangling outstanding action.
	preEpoch := ActionsEpoch.AddDays(-10)
	_, err := service.UpdateProgrammeMembershipActions(context.Background(), dto.OperationLoad,
		programmeMembershipDto(&preEpoch, &dto.ConditionsOfJoining{SyncedAt: &syncedAt}))
	require.NoError(t, err)

	require.Len(t, repo.actions, 1)
	require.NotNil(t, repo.actions[0].Completed)
	assert.Equal(t, syncedAt, *repo.actions[0].Completed)
	require.Len(t, publisher.updates, 1)
	assert.Equal(t, existing.ID, publisher.updates[0].ID)
}

func TestUpdateProgrammeMembershipActions_DeleteOperationRemovesIncomplete(t *testing.T) {
	service, repo, publisher := newTestService()
	reference := models.ReferenceInfo{ID: testTisID, Type: models.RefProgrammeMembership}
	incomplete := models.Action{
		ID: primitive.NewObjectID(), Type: models.ActionReviewData, TraineeID: testTraineeID,
		ReferenceInfo: reference,
	}
	repo.actions = []models.Action{incomplete}

	_, err := service.UpdateProgrammeMembershipActions(context.Background(), dto.OperationDelete,
		programmeMembershipDto(nil, nil))
	require.NoError(t, err)

	assert.Empty(t, repo.actions)
	require.Len(t, publisher.deletes, 1)
	assert.Equal(t, incomplete.ID, publisher.deletes[0].ID)
}

func TestUpdateAccountActions_CreatesCompletedActions(t *testing.T) {
	service, repo, publisher := newTestService()
	event := dto.AccountConfirmedEvent{UserID: "user-1", TraineeID: testTraineeID, Email: "some@email.test"}

	actions, err := service.UpdateAccountActions(context.Background(), dto.OperationLoad, event)
	require.NoError(t, err)
	require.Len(t, actions, len(models.PersonActionTypes))

	action := actions[0]
	assert.Equal(t, models.ActionRegisterTss, action.Type)
	assert.Equal(t, models.ReferenceInfo{ID: testTraineeID, Type: models.RefPerson}, action.ReferenceInfo)
	assert.Nil(t, action.AvailableFrom)
	assert.Nil(t, action.DueBy)
	require.NotNil(t, action.Completed, "registration is implied by the event itself")
	assert.Equal(t, testNow, *action.Completed)

	assert.Len(t, publisher.updates, 1)

	// A repeated confirmation changes nothing.
	actions, err = service.UpdateAccountActions(context.Background(), dto.OperationLoad, event)
	require.NoError(t, err)
	assert.Empty(t, actions)
	assert.Len(t, repo.actions, 1)
	assert.Len(t, publisher.updates, 1)
}

func TestUpdateCojAction_NoExistingActionIsANoOp(t *testing.T) {
	service, repo, publisher := newTestService()
	syncedAt := testNow

	result, err := service.UpdateCojAction(context.Background(), dto.CojReceivedEvent{
		ProgrammeMembershipID: testTisID,
		TraineeID:             testTraineeID,
		ConditionsOfJoining:   &dto.ConditionsOfJoining{SyncedAt: &syncedAt},
	})
	require.NoError(t, err)

	assert.Nil(t, result)
	assert.Empty(t, repo.actions)
	assert.Empty(t, publisher.updates)
}

func TestUpdateCojAction_MissingSyncedTimestampIsANoOp(t *testing.T) {
	service, _, publisher := newTestService()

	result, err := service.UpdateCojAction(context.Background(), dto.CojReceivedEvent{
		ProgrammeMembershipID: testTisID,
		TraineeID:             testTraineeID,
		ConditionsOfJoining:   &dto.ConditionsOfJoining{},
	})
	require.NoError(t, err)

	assert.Nil(t, result)
	assert.Empty(t, publisher.updates)
}

func TestUpdateCojAction_CompletesExistingAction(t *testing.T) {
	service, repo, publisher := newTestService()
	reference := models.ReferenceInfo{ID: testTisID, Type: models.RefProgrammeMembership}
	existing := models.Action{
		ID: primitive.NewObjectID(), Type: models.ActionSignCoj, TraineeID: testTraineeID,
		ReferenceInfo: reference,
	}
	repo.actions = []models.Action{existing}

	syncedAt := testNow.Add(-time.Hour)
	event := dto.CojReceivedEvent{
		ProgrammeMembershipID: testTisID,
		TraineeID:             testTraineeID,
		ConditionsOfJoining:   &dto.ConditionsOfJoining{SyncedAt: &syncedAt},
	}

	result, err := service.UpdateCojAction(context.Background(), event)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, syncedAt, *result.Completed)
	assert.Len(t, publisher.updates, 1)

	// Completing an already-complete action is a no-op.
	result, err = service.UpdateCojAction(context.Background(), event)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Len(t, publisher.updates, 1, "an idempotent completion must not re-broadcast")
}

func formEvent(state string, eventDate time.Time) dto.FormUpdateEvent {
	return dto.FormUpdateEvent{
		FormName:       "form name",
		LifecycleState: state,
		TraineeID:      testTraineeID,
		FormType:       "formr-a",
		EventDate:      &eventDate,
		FormContent:    map[string]any{"programmeMembershipId": testTisID},
	}
}

func TestUpdateFormAction_CompletesAndUncompletes(t *testing.T) {
	service, repo, publisher := newTestService()
	reference := models.ReferenceInfo{ID: testTisID, Type: models.RefProgrammeMembership}
	available := ActionsEpoch
	due := ActionsEpoch.AddDays(42)
	existing := models.Action{
		ID: primitive.NewObjectID(), Type: models.ActionSignFormRPartA, TraineeID: testTraineeID,
		ReferenceInfo: reference, AvailableFrom: &available, DueBy: &due,
	}
	repo.actions = []models.Action{existing}

	eventDate := testNow.Add(-time.Minute)
	result, err := service.UpdateFormAction(context.Background(), formEvent("SUBMITTED", eventDate))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, eventDate, *result.Completed)

	// A second identical event is a no-op.
	result, err = service.UpdateFormAction(context.Background(), formEvent("SUBMITTED", eventDate))
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Len(t, publisher.updates, 1)

	// Unsubmitting restores the action with only the completion cleared.
	result, err = service.UpdateFormAction(context.Background(), formEvent("UNSUBMITTED", testNow))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Nil(t, result.Completed)

	restored := repo.actions[0]
	assert.Equal(t, existing.ID, restored.ID)
	assert.Equal(t, existing.AvailableFrom, restored.AvailableFrom)
	assert.Equal(t, existing.DueBy, restored.DueBy)
	assert.Nil(t, restored.Completed)
}

func TestUpdateFormAction_UnhandledStateIsANoOp(t *testing.T) {
	service, repo, publisher := newTestService()
	reference := models.ReferenceInfo{ID: testTisID, Type: models.RefProgrammeMembership}
	repo.actions = []models.Action{{
		ID: primitive.NewObjectID(), Type: models.ActionSignFormRPartA, TraineeID: testTraineeID,
		ReferenceInfo: reference,
	}}

	result, err := service.UpdateFormAction(context.Background(), formEvent("SOMETHING_ELSE", testNow))
	require.NoError(t, err)

	assert.Nil(t, result)
	assert.Empty(t, publisher.updates)
}

func TestUpdateFormAction_MissingDataIsANoOp(t *testing.T) {
	service, _, publisher := newTestService()

	cases := map[string]dto.FormUpdateEvent{
		"no trainee id": {
			FormType:       "formr-a",
			LifecycleState: "SUBMITTED",
			FormContent:    map[string]any{"programmeMembershipId": testTisID},
		},
		"unknown form type": {
			TraineeID:      testTraineeID,
			FormType:       "not-a-form",
			LifecycleState: "SUBMITTED",
			FormContent:    map[string]any{"programmeMembershipId": testTisID},
		},
		"no membership reference": {
			TraineeID:      testTraineeID,
			FormType:       "formr-a",
			LifecycleState: "SUBMITTED",
		},
	}

	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			result, err := service.UpdateFormAction(context.Background(), event)
			require.NoError(t, err)
			assert.Nil(t, result)
			assert.Empty(t, publisher.updates)
		})
	}
}

func TestCompleteAsUser(t *testing.T) {
	reference := models.ReferenceInfo{ID: testTisID, Type: models.RefPlacement}

	t.Run("invalid id reports not found", func(t *testing.T) {
		service, _, _ := newTestService()
		result, err := service.CompleteAsUser(context.Background(), testTraineeID, "not-an-object-id")
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("unknown action reports not found", func(t *testing.T) {
		service, _, _ := newTestService()
		result, err := service.CompleteAsUser(context.Background(), testTraineeID,
			primitive.NewObjectID().Hex())
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("another trainee's action reports not found", func(t *testing.T) {
		service, repo, publisher := newTestService()
		action := models.Action{
			ID: primitive.NewObjectID(), Type: models.ActionReviewData, TraineeID: "someone-else",
			ReferenceInfo: reference,
		}
		repo.actions = []models.Action{action}

		result, err := service.CompleteAsUser(context.Background(), testTraineeID, action.ID.Hex())
		require.NoError(t, err)
		assert.Nil(t, result)
		assert.Empty(t, publisher.updates)
	})

	t.Run("non user-completable type reports not found", func(t *testing.T) {
		service, repo, publisher := newTestService()
		action := models.Action{
			ID: primitive.NewObjectID(), Type: models.ActionSignCoj, TraineeID: testTraineeID,
			ReferenceInfo: models.ReferenceInfo{ID: testTisID, Type: models.RefProgrammeMembership},
		}
		repo.actions = []models.Action{action}

		result, err := service.CompleteAsUser(context.Background(), testTraineeID, action.ID.Hex())
		require.NoError(t, err)
		assert.Nil(t, result)
		assert.Empty(t, publisher.updates)
	})

	t.Run("own action completes at current time", func(t *testing.T) {
		service, repo, publisher := newTestService()
		action := models.Action{
			ID: primitive.NewObjectID(), Type: models.ActionReviewData, TraineeID: testTraineeID,
			ReferenceInfo: reference,
		}
		repo.actions = []models.Action{action}

		result, err := service.CompleteAsUser(context.Background(), testTraineeID, action.ID.Hex())
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, testNow, *result.Completed)
		assert.Len(t, publisher.updates, 1)
	})

	t.Run("already complete reports not found", func(t *testing.T) {
		service, repo, publisher := newTestService()
		completedAt := testNow.Add(-time.Hour)
		action := models.Action{
			ID: primitive.NewObjectID(), Type: models.ActionReviewData, TraineeID: testTraineeID,
			ReferenceInfo: reference, Completed: &completedAt,
		}
		repo.actions = []models.Action{action}

		result, err := service.CompleteAsUser(context.Background(), testTraineeID, action.ID.Hex())
		require.NoError(t, err)
		assert.Nil(t, result)
		assert.Empty(t, publisher.updates)
		assert.Equal(t, completedAt, *repo.actions[0].Completed)
	})
}

func TestFindIncompleteTraineeActions(t *testing.T) {
	service, repo, _ := newTestService()
	reference := models.ReferenceInfo{Type: models.RefPlacement}

	today := models.DateOf(testNow)
	later := today.AddDays(30)
	future := today.AddDays(1)
	completedAt := testNow

	repo.actions = []models.Action{
		{ID: primitive.NewObjectID(), Type: models.ActionReviewData, TraineeID: testTraineeID,
			ReferenceInfo: models.ReferenceInfo{ID: "undated", Type: reference.Type}},
		{ID: primitive.NewObjectID(), Type: models.ActionReviewData, TraineeID: testTraineeID,
			ReferenceInfo: models.ReferenceInfo{ID: "later", Type: reference.Type}, DueBy: &later},
		{ID: primitive.NewObjectID(), Type: models.ActionReviewData, TraineeID: testTraineeID,
			ReferenceInfo: models.ReferenceInfo{ID: "soon", Type: reference.Type}, DueBy: &today},
		{ID: primitive.NewObjectID(), Type: models.ActionReviewData, TraineeID: testTraineeID,
			ReferenceInfo: models.ReferenceInfo{ID: "not-yet-available", Type: reference.Type},
			AvailableFrom: &future, DueBy: &today},
		{ID: primitive.NewObjectID(), Type: models.ActionReviewData, TraineeID: testTraineeID,
			ReferenceInfo: models.ReferenceInfo{ID: "done", Type: reference.Type},
			DueBy:         &today, Completed: &completedAt},
		{ID: primitive.NewObjectID(), Type: models.ActionReviewData, TraineeID: "someone-else",
			ReferenceInfo: models.ReferenceInfo{ID: "other", Type: reference.Type}, DueBy: &today},
	}

	actions, err := service.FindIncompleteTraineeActions(context.Background(), testTraineeID)
	require.NoError(t, err)

	require.Len(t, actions, 3)
	assert.Equal(t, "soon", actions[0].ReferenceInfo.ID)
	assert.Equal(t, "later", actions[1].ReferenceInfo.ID)
	assert.Equal(t, "undated", actions[2].ReferenceInfo.ID, "undated actions sort last")
}

func TestFindTraineeProgrammeMembershipActions(t *testing.T) {
	service, repo, _ := newTestService()
	completedAt := testNow

	repo.actions = []models.Action{
		{ID: primitive.NewObjectID(), Type: models.ActionSignCoj, TraineeID: testTraineeID,
			ReferenceInfo: models.ReferenceInfo{ID: testTisID, Type: models.RefProgrammeMembership},
			Completed:     &completedAt},
		{ID: primitive.NewObjectID(), Type: models.ActionReviewData, TraineeID: testTraineeID,
			ReferenceInfo: models.ReferenceInfo{ID: testTisID, Type: models.RefProgrammeMembership}},
		{ID: primitive.NewObjectID(), Type: models.ActionRegisterTss, TraineeID: testTraineeID,
			ReferenceInfo: models.ReferenceInfo{ID: testTraineeID, Type: models.RefPerson},
			Completed:     &completedAt},
		{ID: primitive.NewObjectID(), Type: models.ActionReviewData, TraineeID: testTraineeID,
			ReferenceInfo: models.ReferenceInfo{ID: "other-membership", Type: models.RefProgrammeMembership}},
	}

	actions, err := service.FindTraineeProgrammeMembershipActions(context.Background(), testTraineeID, testTisID)
	require.NoError(t, err)

	require.Len(t, actions, 3, "expected programme actions plus person actions")
	types := make(map[models.ActionType]bool)
	for _, action := range actions {
		types[action.Type] = true
	}
	assert.True(t, types[models.ActionSignCoj])
	assert.True(t, types[models.ActionReviewData])
	assert.True(t, types[models.ActionRegisterTss])
}

func TestMoveActions(t *testing.T) {
	service, repo, publisher := newTestService()
	completedAt := testNow

	repo.actions = []models.Action{
		{ID: primitive.NewObjectID(), Type: models.ActionSignCoj, TraineeID: testTraineeID,
			ReferenceInfo: models.ReferenceInfo{ID: testTisID, Type: models.RefProgrammeMembership},
			Completed:     &completedAt},
		{ID: primitive.NewObjectID(), Type: models.ActionReviewData, TraineeID: testTraineeID,
			ReferenceInfo: models.ReferenceInfo{ID: "placement-1", Type: models.RefPlacement}},
		{ID: primitive.NewObjectID(), Type: models.ActionReviewData, TraineeID: "unrelated",
			ReferenceInfo: models.ReferenceInfo{ID: "placement-2", Type: models.RefPlacement}},
	}

	err := service.MoveActions(context.Background(), testTraineeID, "50")
	require.NoError(t, err)

	for _, action := range repo.actions {
		if action.ReferenceInfo.ID == "placement-2" {
			assert.Equal(t, "unrelated", action.TraineeID)
		} else {
			assert.Equal(t, "50", action.TraineeID)
		}
	}
	assert.Len(t, publisher.updates, 2, "moved actions are re-broadcast with their new owner")
}
