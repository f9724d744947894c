package dto

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Health-Education-England/tis-trainee-actions/internal/models"
)

// Operation tags the life-cycle change that produced a sync event.
type Operation string

const (
	OperationLoad   Operation = "LOAD"
	OperationCreate Operation = "CREATE"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

// IsLoad reports whether the operation should be treated as a load of
// current entity state. Bulk loads and individual creates are equivalent
// from the engine's point of view.
func (o Operation) IsLoad() bool {
	return o == OperationLoad || o == OperationCreate
}

// ConditionsOfJoining holds the signing state of a conditions of joining
// agreement. Upstream sometimes serializes the whole record as a JSON string
// within the surrounding document, so unmarshalling accepts both an object
// and a string-wrapped object.
type ConditionsOfJoining struct {
	SignedAt *time.Time `json:"signedAt,omitempty"`
	Version  string     `json:"version,omitempty"`
	SyncedAt *time.Time `json:"syncedAt,omitempty"`
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (c *ConditionsOfJoining) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return fmt.Errorf("failed to unwrap conditions of joining: %w", err)
		}
		if inner == "" || inner == "null" {
			return nil
		}
		data = []byte(inner)
	}

	type plain ConditionsOfJoining
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("failed to decode conditions of joining: %w", err)
	}
	*c = ConditionsOfJoining(p)
	return nil
}

// PlacementDto carries the placement fields relevant to action generation.
type PlacementDto struct {
	ID            string       `json:"tisId"`
	TraineeID     string       `json:"traineeId"`
	StartDate     *models.Date `json:"dateFrom"`
	PlacementType string       `json:"placementType"`
}

// ProgrammeMembershipDto carries the programme membership fields relevant to
// action generation.
type ProgrammeMembershipDto struct {
	ID                  string               `json:"tisId"`
	TraineeID           string               `json:"personId"`
	StartDate           *models.Date         `json:"startDate"`
	ConditionsOfJoining *ConditionsOfJoining `json:"conditionsOfJoining,omitempty"`
}

// AccountConfirmedEvent signals that a trainee has registered and confirmed
// their user account.
type AccountConfirmedEvent struct {
	UserID    string `json:"userId"`
	TraineeID string `json:"traineeId"`
	Email     string `json:"email"`
}

// CojReceivedEvent signals that a signed conditions of joining has been
// received for a programme membership.
type CojReceivedEvent struct {
	ProgrammeMembershipID string               `json:"tisId"`
	TraineeID             string               `json:"personId"`
	ConditionsOfJoining   *ConditionsOfJoining `json:"conditionsOfJoining"`
}

// FormUpdateEvent signals a change in a form submission's life-cycle state.
type FormUpdateEvent struct {
	FormName       string         `json:"formName"`
	LifecycleState string         `json:"lifecycleState"`
	TraineeID      string         `json:"traineeId"`
	FormType       string         `json:"formType"`
	EventDate      *time.Time     `json:"eventDate"`
	FormContent    map[string]any `json:"formContentDto"`
}

// ProgrammeMembershipID extracts the referenced programme membership ID from
// the form content, empty if not present.
func (e FormUpdateEvent) ProgrammeMembershipID() string {
	value, ok := e.FormContent["programmeMembershipId"]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

// ProfileMoveEvent signals that all of a trainee's records should be moved
// to another trainee profile.
type ProfileMoveEvent struct {
	FromTraineeID string `json:"fromTraineeId"`
	ToTraineeID   string `json:"toTraineeId"`
}

// ActionDto is the API representation of an action.
type ActionDto struct {
	ID            string               `json:"id,omitempty"`
	Type          models.ActionType    `json:"type"`
	TraineeID     string               `json:"traineeId"`
	ReferenceInfo models.ReferenceInfo `json:"tisReferenceInfo"`
	AvailableFrom *models.Date         `json:"availableFrom,omitempty"`
	DueBy         *models.Date         `json:"dueBy,omitempty"`
	Completed     *time.Time           `json:"completed,omitempty"`
}
