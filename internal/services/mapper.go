package services

import (
	"time"

	"github.com/Health-Education-England/tis-trainee-actions/internal/dto"
	"github.com/Health-Education-England/tis-trainee-actions/internal/models"
)

// placementAvailabilityLeadDays is how far before the placement start date
// its actions become available to the trainee (12 weeks).
const placementAvailabilityLeadDays = 12 * 7

// placementAction builds the action prompted by a placement. The action is
// due on the placement start date and available from 12 weeks before it.
func placementAction(placement dto.PlacementDto, actionType models.ActionType) models.Action {
	availableFrom := placement.StartDate.AddDays(-placementAvailabilityLeadDays)
	dueBy := *placement.StartDate
	return models.Action{
		Type:      actionType,
		TraineeID: placement.TraineeID,
		ReferenceInfo: models.ReferenceInfo{
			ID:   placement.ID,
			Type: models.RefPlacement,
		},
		AvailableFrom: &availableFrom,
		DueBy:         &dueBy,
	}
}

// programmeMembershipAction builds the action prompted by a programme
// membership. The action is available immediately and due on the programme
// start date.
func programmeMembershipAction(pm dto.ProgrammeMembershipDto, actionType models.ActionType, today models.Date) models.Action {
	dueBy := *pm.StartDate
	return models.Action{
		Type:      actionType,
		TraineeID: pm.TraineeID,
		ReferenceInfo: models.ReferenceInfo{
			ID:   pm.ID,
			Type: models.RefProgrammeMembership,
		},
		AvailableFrom: &today,
		DueBy:         &dueBy,
	}
}

// accountAction builds the action prompted by a confirmed user account.
// Registration is implied by the triggering event, so the action is created
// already complete.
func accountAction(account dto.AccountConfirmedEvent, actionType models.ActionType, completedAt time.Time) models.Action {
	return models.Action{
		Type:      actionType,
		TraineeID: account.TraineeID,
		ReferenceInfo: models.ReferenceInfo{
			ID:   account.TraineeID,
			Type: models.RefPerson,
		},
		Completed: &completedAt,
	}
}

// completeAction returns a copy of the action with the completed timestamp
// set.
func completeAction(action models.Action, completedAt time.Time) models.Action {
	action.Completed = &completedAt
	return action
}

// uncompleteAction returns a copy of the action with the completed timestamp
// cleared.
func uncompleteAction(action models.Action) models.Action {
	action.Completed = nil
	return action
}

func toActionDto(action models.Action) dto.ActionDto {
	id := ""
	if !action.ID.IsZero() {
		id = action.ID.Hex()
	}
	return dto.ActionDto{
		ID:            id,
		Type:          action.Type,
		TraineeID:     action.TraineeID,
		ReferenceInfo: action.ReferenceInfo,
		AvailableFrom: action.AvailableFrom,
		DueBy:         action.DueBy,
		Completed:     action.Completed,
	}
}

func toActionDtos(actions []models.Action) []dto.ActionDto {
	dtos := make([]dto.ActionDto, 0, len(actions))
	for _, action := range actions {
		dtos = append(dtos, toActionDto(action))
	}
	return dtos
}
