package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ActionType defines the different kinds of task a trainee may be required
// to complete.
type ActionType string

const (
	ActionReviewData     ActionType = "REVIEW_DATA"
	ActionSignCoj        ActionType = "SIGN_COJ"
	ActionSignFormRPartA ActionType = "SIGN_FORM_R_PART_A"
	ActionSignFormRPartB ActionType = "SIGN_FORM_R_PART_B"
	ActionRegisterTss    ActionType = "REGISTER_TSS"
)

// ReferenceType identifies the kind of upstream TIS entity that prompted an
// action.
type ReferenceType string

const (
	RefProgrammeMembership ReferenceType = "PROGRAMME_MEMBERSHIP"
	RefPlacement           ReferenceType = "PLACEMENT"
	RefPerson              ReferenceType = "PERSON"
)

// ActionStatus is the state attached to a broadcast action record.
type ActionStatus string

const (
	StatusCurrent ActionStatus = "CURRENT"
	StatusDeleted ActionStatus = "DELETED"
)

var (
	// ProgrammeActionTypes are generated for a programme membership.
	ProgrammeActionTypes = []ActionType{
		ActionReviewData,
		ActionSignCoj,
		ActionSignFormRPartA,
		ActionSignFormRPartB,
	}

	// PlacementActionTypes are generated for a placement.
	PlacementActionTypes = []ActionType{ActionReviewData}

	// PersonActionTypes are generated for a person account.
	PersonActionTypes = []ActionType{ActionRegisterTss}

	// UserCompletableActionTypes may be completed directly by the trainee,
	// all other types are completed by downstream life-cycle signals.
	UserCompletableActionTypes = []ActionType{ActionReviewData}
)

// IsUserCompletable reports whether the action type can be completed by the
// trainee themselves.
func (t ActionType) IsUserCompletable() bool {
	for _, u := range UserCompletableActionTypes {
		if t == u {
			return true
		}
	}
	return false
}

// FormActionType maps a form type to its corresponding sign-form action type.
func FormActionType(formType string) (ActionType, bool) {
	switch strings.ToLower(formType) {
	case "formr-a":
		return ActionSignFormRPartA, true
	case "formr-b":
		return ActionSignFormRPartB, true
	}
	return "", false
}

// ReferenceInfo identifies the upstream TIS record that caused an action to
// exist.
type ReferenceInfo struct {
	ID   string        `bson:"id" json:"id"`
	Type ReferenceType `bson:"type" json:"type"`
}

// Action represents a task owed by a trainee, tied to one upstream entity.
// At most one action exists per (type, tisReferenceInfo) pair, enforced by a
// unique index on the collection.
type Action struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Type          ActionType         `bson:"type" json:"type"`
	TraineeID     string             `bson:"traineeId" json:"traineeId"`
	ReferenceInfo ReferenceInfo      `bson:"tisReferenceInfo" json:"tisReferenceInfo"`
	AvailableFrom *Date              `bson:"availableFrom,omitempty" json:"availableFrom,omitempty"`
	DueBy         *Date              `bson:"dueBy,omitempty" json:"dueBy,omitempty"`
	Completed     *time.Time         `bson:"completed" json:"completed,omitempty"`
}

// IsAvailable reports whether the action should be surfaced to its owner on
// the given date. Completed actions and actions not yet available are hidden.
func (a Action) IsAvailable(today Date) bool {
	if a.Completed != nil {
		return false
	}
	return a.AvailableFrom == nil || !a.AvailableFrom.After(today)
}
