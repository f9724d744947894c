package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Health-Education-England/tis-trainee-actions/internal/dto"
	"github.com/Health-Education-England/tis-trainee-actions/internal/models"
	"github.com/Health-Education-England/tis-trainee-actions/internal/repository"
)

// ActionsEpoch is the cutoff date, no new actions are generated for
// anything due before it.
var ActionsEpoch = models.NewDate(2024, time.August, 1)

// placementTypesToActOn are the placement types that require actions, any
// other type disqualifies the placement.
var placementTypesToActOn = []string{"In post", "In post - Acting up", "In Post - Extension"}

// IEventPublisher broadcasts action mutations to downstream consumers.
type IEventPublisher interface {
	PublishActionUpdate(ctx context.Context, action models.Action) error
	PublishActionDelete(ctx context.Context, action models.Action) error
}

// IActionService defines the action reconciliation, completion and query
// operations.
type IActionService interface {
	UpdatePlacementActions(ctx context.Context, operation dto.Operation, placement dto.PlacementDto) ([]dto.ActionDto, error)
	UpdateProgrammeMembershipActions(ctx context.Context, operation dto.Operation, pm dto.ProgrammeMembershipDto) ([]dto.ActionDto, error)
	UpdateAccountActions(ctx context.Context, operation dto.Operation, account dto.AccountConfirmedEvent) ([]dto.ActionDto, error)
	UpdateCojAction(ctx context.Context, event dto.CojReceivedEvent) (*dto.ActionDto, error)
	UpdateFormAction(ctx context.Context, event dto.FormUpdateEvent) (*dto.ActionDto, error)
	FindIncompleteTraineeActions(ctx context.Context, traineeID string) ([]dto.ActionDto, error)
	FindTraineeProgrammeMembershipActions(ctx context.Context, traineeID, programmeMembershipID string) ([]dto.ActionDto, error)
	CompleteAsUser(ctx context.Context, traineeID, actionID string) (*dto.ActionDto, error)
	MoveActions(ctx context.Context, fromTraineeID, toTraineeID string) error
}

// actionService implements IActionService.
type actionService struct {
	repo      repository.IActionRepository
	publisher IEventPublisher
	now       func() time.Time
}

// NewActionService creates a new action service over the given repository
// and publisher.
func NewActionService(repo repository.IActionRepository, publisher IEventPublisher) IActionService {
	return &actionService{repo: repo, publisher: publisher, now: time.Now}
}

// UpdatePlacementActions reconciles the stored actions for a placement
// against a sync event.
func (s *actionService) UpdatePlacementActions(ctx context.Context, operation dto.Operation, placement dto.PlacementDto) ([]dto.ActionDto, error) {
	deleteIncomplete := false
	var toInsert []models.Action

	switch {
	case operation.IsLoad():
		if !isActionablePlacementType(placement.PlacementType) {
			log.Printf("Placement %s of type %q is ignored.", placement.ID, placement.PlacementType)
			deleteIncomplete = true
			break
		}
		if placement.StartDate == nil {
			return nil, fmt.Errorf("placement %s has no start date", placement.ID)
		}

		existing, err := s.repo.FindByTraineeAndReference(ctx, placement.TraineeID, placement.ID, models.RefPlacement)
		if err != nil {
			return nil, fmt.Errorf("failed to find actions for placement %s: %w", placement.ID, err)
		}

		for _, actionType := range models.PlacementActionTypes {
			newAction := placementAction(placement, actionType)
			existingOfType := actionsOfType(existing, actionType)

			if len(existingOfType) == 0 {
				toInsert = s.appendIfDueAfterEpoch(newAction, toInsert)
				continue
			}

			if !dueByChanged(existingOfType, *newAction.DueBy) {
				log.Printf("Placement %s already has %d %s action(s), these are left as-is.",
					placement.ID, len(existingOfType), actionType)
				continue
			}

			// The placement start date changed, so replace the stored
			// action(s) of this type, completed or not.
			log.Printf("Placement %s start date changed, replacing %d %s action(s).",
				placement.ID, len(existingOfType), actionType)
			deleted, err := s.repo.DeleteByReferenceAndType(ctx, placement.TraineeID,
				placement.ID, models.RefPlacement, actionType)
			if err != nil {
				return nil, fmt.Errorf("failed to replace actions for placement %s: %w", placement.ID, err)
			}
			if err := s.publishDeletes(ctx, deleted); err != nil {
				return nil, err
			}
			toInsert = s.appendIfDueAfterEpoch(newAction, toInsert)
		}

	case operation == dto.OperationDelete:
		log.Printf("Placement %s is deleted.", placement.ID)
		deleteIncomplete = true
	}

	if deleteIncomplete {
		if err := s.deleteIncompleteActions(ctx, placement.TraineeID, placement.ID, models.RefPlacement); err != nil {
			return nil, err
		}
	}

	return s.insertAndPublish(ctx, toInsert, "Placement", placement.ID)
}

// UpdateProgrammeMembershipActions reconciles the stored actions for a
// programme membership against a sync event.
func (s *actionService) UpdateProgrammeMembershipActions(ctx context.Context, operation dto.Operation, pm dto.ProgrammeMembershipDto) ([]dto.ActionDto, error) {
	existing, err := s.repo.FindByTraineeAndReference(ctx, pm.TraineeID, pm.ID, models.RefProgrammeMembership)
	if err != nil {
		return nil, fmt.Errorf("failed to find actions for programme membership %s: %w", pm.ID, err)
	}

	var toInsert []models.Action

	switch {
	case operation.IsLoad():
		if pm.StartDate == nil {
			return nil, fmt.Errorf("programme membership %s has no start date", pm.ID)
		}
		if pm.StartDate.Before(ActionsEpoch) {
			log.Printf("Programme membership %s starts %s, before the actions epoch.",
				pm.ID, pm.StartDate)
			break
		}
		today := models.DateOf(s.now())
		for _, actionType := range models.ProgrammeActionTypes {
			if len(actionsOfType(existing, actionType)) > 0 {
				log.Printf("Programme membership %s already has action of type %s, skipping.",
					pm.ID, actionType)
				continue
			}
			toInsert = s.appendIfDueAfterEpoch(programmeMembershipAction(pm, actionType, today), toInsert)
		}

	case operation == dto.OperationDelete:
		log.Printf("Programme membership %s is deleted.", pm.ID)
		if err := s.deleteIncompleteActions(ctx, pm.TraineeID, pm.ID, models.RefProgrammeMembership); err != nil {
			return nil, err
		}
	}

	// Complete any sign-CoJ action when the membership carries a synced
	// conditions of joining. The epoch and start date gates are ignored so
	// a membership edited to start before the epoch cannot leave a
	// dangling outstanding action.
	if operation.IsLoad() && pm.ConditionsOfJoining != nil && pm.ConditionsOfJoining.SyncedAt != nil {
		syncedAt := *pm.ConditionsOfJoining.SyncedAt
		log.Printf("Completing any CoJ actions for programme membership %s.", pm.ID)

		for i := range toInsert {
			if toInsert[i].Type == models.ActionSignCoj {
				// The action is about to be created for an
				// already-signed CoJ, store it complete from the start.
				toInsert[i] = completeAction(toInsert[i], syncedAt)
			}
		}
		if existingCoj := firstOfType(existing, models.ActionSignCoj); existingCoj != nil {
			if _, err := s.complete(ctx, *existingCoj, &syncedAt); err != nil {
				return nil, err
			}
		}
	}

	return s.insertAndPublish(ctx, toInsert, "Programme membership", pm.ID)
}

// UpdateAccountActions reconciles the stored actions for a person account
// against a confirmation event. Account actions record something the trainee
// has already done, so they are created complete.
func (s *actionService) UpdateAccountActions(ctx context.Context, operation dto.Operation, account dto.AccountConfirmedEvent) ([]dto.ActionDto, error) {
	var toInsert []models.Action

	switch {
	case operation.IsLoad():
		existing, err := s.repo.FindByTraineeAndReference(ctx, account.TraineeID, account.TraineeID, models.RefPerson)
		if err != nil {
			return nil, fmt.Errorf("failed to find actions for person %s: %w", account.TraineeID, err)
		}
		for _, actionType := range models.PersonActionTypes {
			if len(actionsOfType(existing, actionType)) > 0 {
				log.Printf("Account for person %s already has action of type %s, skipping.",
					account.TraineeID, actionType)
				continue
			}
			toInsert = append(toInsert, accountAction(account, actionType, s.now()))
		}

	case operation == dto.OperationDelete:
		log.Printf("Account for person %s is deleted.", account.TraineeID)
		// Account actions are created complete, so in practice nothing is
		// deleted here.
		if err := s.deleteIncompleteActions(ctx, account.TraineeID, account.TraineeID, models.RefPerson); err != nil {
			return nil, err
		}
	}

	return s.insertAndPublish(ctx, toInsert, "Person account", account.TraineeID)
}

// UpdateCojAction completes the sign-CoJ action for a programme membership
// when a signed conditions of joining is received. Missing actions are
// tolerated, the CoJ event may simply have arrived before the membership
// sync.
func (s *actionService) UpdateCojAction(ctx context.Context, event dto.CojReceivedEvent) (*dto.ActionDto, error) {
	if event.ConditionsOfJoining == nil || event.ConditionsOfJoining.SyncedAt == nil {
		log.Printf("No synced CoJ data provided in the event for programme membership %s.",
			event.ProgrammeMembershipID)
		return nil, nil
	}

	existing, err := s.repo.FindByTraineeAndReference(ctx, event.TraineeID,
		event.ProgrammeMembershipID, models.RefProgrammeMembership)
	if err != nil {
		return nil, fmt.Errorf("failed to find actions for programme membership %s: %w",
			event.ProgrammeMembershipID, err)
	}

	action := firstOfType(existing, models.ActionSignCoj)
	if action == nil {
		log.Printf("No existing CoJ action found for trainee %s and programme membership %s.",
			event.TraineeID, event.ProgrammeMembershipID)
		return nil, nil
	}
	return s.complete(ctx, *action, event.ConditionsOfJoining.SyncedAt)
}

// UpdateFormAction applies a form life-cycle change to the matching
// sign-form action. Events without usable form data, or without a matching
// action, are no-ops.
func (s *actionService) UpdateFormAction(ctx context.Context, event dto.FormUpdateEvent) (*dto.ActionDto, error) {
	formActionType, known := models.FormActionType(event.FormType)
	pmID := event.ProgrammeMembershipID()
	if event.TraineeID == "" || !known || pmID == "" {
		log.Printf("No usable form data provided in the event, form type %q.", event.FormType)
		return nil, nil
	}

	existing, err := s.repo.FindByTraineeAndReference(ctx, event.TraineeID, pmID, models.RefProgrammeMembership)
	if err != nil {
		return nil, fmt.Errorf("failed to find actions for programme membership %s: %w", pmID, err)
	}

	action := firstOfType(existing, formActionType)
	if action == nil {
		log.Printf("No existing %s action found for trainee %s and programme membership %s.",
			formActionType, event.TraineeID, pmID)
		return nil, nil
	}

	state := models.FormState(event.LifecycleState)
	switch {
	case state.CompletesSignForm():
		return s.complete(ctx, *action, event.EventDate)
	case state.UncompletesSignForm():
		return s.uncomplete(ctx, *action)
	default:
		log.Printf("Form lifecycle state %q is not handled for action update.", event.LifecycleState)
		return nil, nil
	}
}

// FindIncompleteTraineeActions returns the trainee's available incomplete
// actions, ordered by due-by date ascending with undated actions last.
func (s *actionService) FindIncompleteTraineeActions(ctx context.Context, traineeID string) ([]dto.ActionDto, error) {
	actions, err := s.repo.FindIncompleteByTrainee(ctx, traineeID)
	if err != nil {
		return nil, fmt.Errorf("failed to find incomplete actions for trainee %s: %w", traineeID, err)
	}

	today := models.DateOf(s.now())
	available := actions[:0]
	for _, action := range actions {
		if action.IsAvailable(today) {
			available = append(available, action)
		}
	}

	sort.SliceStable(available, func(i, j int) bool {
		di, dj := available[i].DueBy, available[j].DueBy
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return di.Before(*dj)
		}
	})

	return toActionDtos(available), nil
}

// FindTraineeProgrammeMembershipActions returns every action, complete or
// not, for the given trainee and programme membership, together with the
// trainee's person-level actions.
func (s *actionService) FindTraineeProgrammeMembershipActions(ctx context.Context, traineeID, programmeMembershipID string) ([]dto.ActionDto, error) {
	programmeActions, err := s.repo.FindByTraineeAndReference(ctx, traineeID,
		programmeMembershipID, models.RefProgrammeMembership)
	if err != nil {
		return nil, fmt.Errorf("failed to find actions for programme membership %s: %w",
			programmeMembershipID, err)
	}

	personActions, err := s.repo.FindByTraineeAndReference(ctx, traineeID, traineeID, models.RefPerson)
	if err != nil {
		return nil, fmt.Errorf("failed to find person actions for trainee %s: %w", traineeID, err)
	}

	return toActionDtos(append(programmeActions, personActions...)), nil
}

// CompleteAsUser completes a trainee's own action. Unknown actions, actions
// owned by someone else and non user-completable types all report not-found,
// the caller cannot tell them apart.
func (s *actionService) CompleteAsUser(ctx context.Context, traineeID, actionID string) (*dto.ActionDto, error) {
	id, err := primitive.ObjectIDFromHex(actionID)
	if err != nil {
		log.Printf("Skipping action completion due to invalid id %q.", actionID)
		return nil, nil
	}

	action, err := s.repo.FindByIDAndTrainee(ctx, id, traineeID)
	if err != nil {
		return nil, fmt.Errorf("failed to find action %s: %w", actionID, err)
	}
	if action == nil {
		log.Printf("Skipping action completion as action %s was not found.", actionID)
		return nil, nil
	}

	if !action.Type.IsUserCompletable() {
		log.Printf("Skipping action completion as the action type %s is not user-completable.",
			action.Type)
		return nil, nil
	}

	return s.complete(ctx, *action, nil)
}

// MoveActions reassigns every action from one trainee to another and
// re-broadcasts the moved actions so downstream consumers learn the new
// owner.
func (s *actionService) MoveActions(ctx context.Context, fromTraineeID, toTraineeID string) error {
	moved, err := s.repo.MoveAllByTrainee(ctx, fromTraineeID, toTraineeID)
	if err != nil {
		return fmt.Errorf("failed to move actions from trainee %s to %s: %w",
			fromTraineeID, toTraineeID, err)
	}
	log.Printf("%d action(s) moved from trainee %s to trainee %s.",
		len(moved), fromTraineeID, toTraineeID)

	for _, action := range moved {
		if err := s.publisher.PublishActionUpdate(ctx, action); err != nil {
			return fmt.Errorf("failed to broadcast moved action %s: %w", action.ID.Hex(), err)
		}
	}
	return nil
}

// updateActionStatus toggles the completed timestamp on an action. A
// transition matching the current state is a no-op with no store write and
// no broadcast.
func (s *actionService) updateActionStatus(ctx context.Context, action models.Action, complete bool, completedAt *time.Time) (*dto.ActionDto, error) {
	if (action.Completed != nil) == complete {
		log.Printf("Skipping action completion = %t as action %s already had that status.",
			complete, action.ID.Hex())
		return nil, nil
	}

	var updated models.Action
	if complete {
		at := s.now()
		if completedAt != nil {
			at = *completedAt
		}
		updated = completeAction(action, at)
	} else {
		updated = uncompleteAction(action)
	}

	saved, err := s.repo.Save(ctx, updated)
	if err != nil {
		return nil, fmt.Errorf("failed to update status of action %s: %w", action.ID.Hex(), err)
	}
	if err := s.publisher.PublishActionUpdate(ctx, saved); err != nil {
		return nil, fmt.Errorf("failed to broadcast action %s: %w", saved.ID.Hex(), err)
	}

	log.Printf("Action %s marked as completed = %t.", saved.ID.Hex(), complete)
	result := toActionDto(saved)
	return &result, nil
}

func (s *actionService) complete(ctx context.Context, action models.Action, completedAt *time.Time) (*dto.ActionDto, error) {
	return s.updateActionStatus(ctx, action, true, completedAt)
}

func (s *actionService) uncomplete(ctx context.Context, action models.Action) (*dto.ActionDto, error) {
	return s.updateActionStatus(ctx, action, false, nil)
}

// appendIfDueAfterEpoch adds the action to the pending inserts unless it is
// due before the actions epoch.
func (s *actionService) appendIfDueAfterEpoch(action models.Action, toInsert []models.Action) []models.Action {
	if action.DueBy != nil && action.DueBy.Before(ActionsEpoch) {
		log.Printf("Not adding %s action for %s %s due %s, before epoch %s.",
			action.Type, action.ReferenceInfo.Type, action.ReferenceInfo.ID,
			action.DueBy, ActionsEpoch)
		return toInsert
	}
	return append(toInsert, action)
}

// deleteIncompleteActions removes the trainee's not-yet-completed actions
// for an upstream entity and broadcasts a tombstone per deleted record.
// Completed actions are kept as a historical record.
func (s *actionService) deleteIncompleteActions(ctx context.Context, traineeID, referenceID string, referenceType models.ReferenceType) error {
	deleted, err := s.repo.DeleteIncompleteByReference(ctx, traineeID, referenceID, referenceType)
	if err != nil {
		return fmt.Errorf("failed to delete actions for %s %s: %w", referenceType, referenceID, err)
	}
	log.Printf("%d obsolete not completed action(s) deleted for %s %s.",
		len(deleted), referenceType, referenceID)
	return s.publishDeletes(ctx, deleted)
}

func (s *actionService) publishDeletes(ctx context.Context, deleted []models.Action) error {
	for _, action := range deleted {
		if err := s.publisher.PublishActionDelete(ctx, action); err != nil {
			return fmt.Errorf("failed to broadcast deletion of action %s: %w", action.ID.Hex(), err)
		}
	}
	return nil
}

// insertAndPublish stores the pending actions and broadcasts each one that
// was actually inserted. Uniqueness conflicts are skipped inside the
// repository, so replayed events insert and broadcast nothing.
func (s *actionService) insertAndPublish(ctx context.Context, toInsert []models.Action, entity, entityID string) ([]dto.ActionDto, error) {
	if len(toInsert) == 0 {
		log.Printf("No new actions required for %s %s.", entity, entityID)
		return nil, nil
	}

	log.Printf("Adding %d new action(s) for %s %s.", len(toInsert), entity, entityID)
	inserted, err := s.repo.Insert(ctx, toInsert)
	if err != nil {
		return nil, fmt.Errorf("failed to insert actions for %s %s: %w", entity, entityID, err)
	}

	for _, action := range inserted {
		if err := s.publisher.PublishActionUpdate(ctx, action); err != nil {
			return nil, fmt.Errorf("failed to broadcast action %s: %w", action.ID.Hex(), err)
		}
	}
	return toActionDtos(inserted), nil
}

func isActionablePlacementType(placementType string) bool {
	for _, actionable := range placementTypesToActOn {
		if strings.EqualFold(actionable, placementType) {
			return true
		}
	}
	return false
}

func actionsOfType(actions []models.Action, actionType models.ActionType) []models.Action {
	var matched []models.Action
	for _, action := range actions {
		if action.Type == actionType {
			matched = append(matched, action)
		}
	}
	return matched
}

func firstOfType(actions []models.Action, actionType models.ActionType) *models.Action {
	for i := range actions {
		if actions[i].Type == actionType {
			return &actions[i]
		}
	}
	return nil
}

func dueByChanged(existing []models.Action, newDueBy models.Date) bool {
	for _, action := range existing {
		if action.DueBy == nil || *action.DueBy != newDueBy {
			return true
		}
	}
	return false
}
