package models

// FormState is the life-cycle state of a form submission.
type FormState string

const (
	FormStateApproved    FormState = "APPROVED"
	FormStateDeleted     FormState = "DELETED"
	FormStateDraft       FormState = "DRAFT"
	FormStateRejected    FormState = "REJECTED"
	FormStateSubmitted   FormState = "SUBMITTED"
	FormStateUnsubmitted FormState = "UNSUBMITTED"
	FormStateWithdrawn   FormState = "WITHDRAWN"
)

// CompletesSignForm reports whether the state should complete the
// corresponding sign-form action.
func (s FormState) CompletesSignForm() bool {
	return s == FormStateApproved || s == FormStateSubmitted
}

// UncompletesSignForm reports whether the state should revert the
// corresponding sign-form action to incomplete.
func (s FormState) UncompletesSignForm() bool {
	switch s {
	case FormStateDeleted, FormStateDraft, FormStateRejected, FormStateUnsubmitted, FormStateWithdrawn:
		return true
	}
	return false
}
