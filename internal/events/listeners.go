package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/Health-Education-England/tis-trainee-actions/internal/dto"
	"github.com/Health-Education-England/tis-trainee-actions/internal/services"
)

// Listeners decode inbound queue messages and hand them to the action
// service. A returned error signals the consumer to leave the message on the
// queue for redelivery.

// PlacementListener handles placement sync events.
type PlacementListener struct {
	service services.IActionService
}

func NewPlacementListener(service services.IActionService) *PlacementListener {
	return &PlacementListener{service: service}
}

// HandlePlacementSync handles a placement sync event.
func (l *PlacementListener) HandlePlacementSync(ctx context.Context, body []byte) error {
	var placement dto.PlacementDto
	operation, err := DecodeRecord(body, &placement)
	if err != nil {
		return fmt.Errorf("failed to decode placement sync event: %w", err)
	}
	log.Printf("Placement sync event received for placement %s.", placement.ID)

	if operation == "" || placement.ID == "" {
		return errors.New("skipping event handling due to incomplete placement event data")
	}
	_, err = l.service.UpdatePlacementActions(ctx, operation, placement)
	return err
}

// ProgrammeMembershipListener handles programme membership sync events and
// CoJ received events.
type ProgrammeMembershipListener struct {
	service services.IActionService
}

func NewProgrammeMembershipListener(service services.IActionService) *ProgrammeMembershipListener {
	return &ProgrammeMembershipListener{service: service}
}

// HandleProgrammeMembershipSync handles a programme membership sync event.
func (l *ProgrammeMembershipListener) HandleProgrammeMembershipSync(ctx context.Context, body []byte) error {
	var pm dto.ProgrammeMembershipDto
	operation, err := DecodeRecord(body, &pm)
	if err != nil {
		return fmt.Errorf("failed to decode programme membership sync event: %w", err)
	}
	log.Printf("Programme membership sync event received for membership %s.", pm.ID)

	if operation == "" || pm.ID == "" {
		return errors.New("skipping event handling due to incomplete programme membership event data")
	}
	_, err = l.service.UpdateProgrammeMembershipActions(ctx, operation, pm)
	return err
}

// HandleCojReceived handles a conditions of joining received event.
func (l *ProgrammeMembershipListener) HandleCojReceived(ctx context.Context, body []byte) error {
	var event dto.CojReceivedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to decode CoJ received event: %w", err)
	}
	log.Printf("CoJ received for programme membership %s.", event.ProgrammeMembershipID)

	if event.ProgrammeMembershipID == "" || event.ConditionsOfJoining == nil {
		return errors.New("skipping event handling due to incomplete CoJ event data")
	}
	_, err := l.service.UpdateCojAction(ctx, event)
	return err
}

// UserAccountListener handles account confirmation events.
type UserAccountListener struct {
	service services.IActionService
}

func NewUserAccountListener(service services.IActionService) *UserAccountListener {
	return &UserAccountListener{service: service}
}

// HandleAccountConfirmation handles an account confirmation event. These
// carry no operation tag and are always treated as a load.
func (l *UserAccountListener) HandleAccountConfirmation(ctx context.Context, body []byte) error {
	var event dto.AccountConfirmedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to decode account confirmation event: %w", err)
	}
	log.Printf("Handling account confirmation event for trainee %s.", event.TraineeID)

	if event.TraineeID == "" {
		return errors.New("skipping event handling due to incomplete account event data")
	}
	_, err := l.service.UpdateAccountActions(ctx, dto.OperationLoad, event)
	return err
}

// FormListener handles form update events.
type FormListener struct {
	service services.IActionService
}

func NewFormListener(service services.IActionService) *FormListener {
	return &FormListener{service: service}
}

// HandleFormUpdate handles a form update event.
func (l *FormListener) HandleFormUpdate(ctx context.Context, body []byte) error {
	var event dto.FormUpdateEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to decode form update event: %w", err)
	}
	log.Printf("Handling form update event for trainee %s, form type %q.",
		event.TraineeID, event.FormType)

	_, err := l.service.UpdateFormAction(ctx, event)
	return err
}

// ProfileMoveListener handles profile move events.
type ProfileMoveListener struct {
	service services.IActionService
}

func NewProfileMoveListener(service services.IActionService) *ProfileMoveListener {
	return &ProfileMoveListener{service: service}
}

// HandleProfileMove handles a profile move event.
func (l *ProfileMoveListener) HandleProfileMove(ctx context.Context, body []byte) error {
	var event dto.ProfileMoveEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to decode profile move event: %w", err)
	}
	log.Printf("Handling profile move event from trainee %s to trainee %s.",
		event.FromTraineeID, event.ToTraineeID)

	if event.FromTraineeID == "" || event.ToTraineeID == "" {
		return errors.New("skipping event handling due to incomplete profile move event data")
	}
	return l.service.MoveActions(ctx, event.FromTraineeID, event.ToTraineeID)
}
