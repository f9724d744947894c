package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormStateTransitions(t *testing.T) {
	for _, state := range []FormState{FormStateApproved, FormStateSubmitted} {
		assert.True(t, state.CompletesSignForm(), "%s should complete the action", state)
		assert.False(t, state.UncompletesSignForm())
	}

	for _, state := range []FormState{FormStateDeleted, FormStateDraft, FormStateRejected, FormStateUnsubmitted, FormStateWithdrawn} {
		assert.True(t, state.UncompletesSignForm(), "%s should uncomplete the action", state)
		assert.False(t, state.CompletesSignForm())
	}

	unknown := FormState("ARCHIVED")
	assert.False(t, unknown.CompletesSignForm())
	assert.False(t, unknown.UncompletesSignForm())
}
