package faults

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	err := NewTransport("GET", "http://api/account/v1/accounts/1", 503, nil)
	assert.Equal(t, "TRANSPORT_ERROR: unexpected status 503 (GET http://api/account/v1/accounts/1)", err.Error())

	cause := errors.New("connection refused")
	err = NewTransport("PUT", "http://api/x", 0, cause)
	assert.Contains(t, err.Error(), "request failed")
	assert.Contains(t, err.Error(), "connection refused")
	assert.ErrorIs(t, err, cause)
}

func TestConditionFaults(t *testing.T) {
	pre := NewPrecondition("ACCOUNT_CREATED", "ACCOUNT_PENDING")
	assert.Equal(t, CodePrecondition, pre.Code)
	assert.Equal(t, "ACCOUNT_CREATED", pre.Expected)
	assert.Equal(t, "ACCOUNT_PENDING", pre.Actual)
	assert.Contains(t, pre.Error(), "resource state invalid: ACCOUNT_PENDING")

	post := NewPostcondition("ACCOUNT_PENDING", "ACCOUNT_CREATED")
	assert.Equal(t, CodePostcondition, post.Code)
	assert.Contains(t, post.Error(), "status could not be updated to ACCOUNT_PENDING")
}

func TestIsHelpers_Wrapped(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"transport", NewTransport("GET", "u", 500, nil), IsTransport},
		{"precondition", NewPrecondition("A", "B"), IsPrecondition},
		{"postcondition", NewPostcondition("A", "B"), IsPostcondition},
		{"reconciliation", NewReconciliation(5, 3), IsReconciliation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("step resolve: %w", tt.err)
			assert.True(t, tt.check(wrapped))
		})
	}
}

func TestCodeOf_NonFault(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
	assert.Equal(t, Code(""), CodeOf(nil))
	assert.False(t, IsTransport(errors.New("plain")))
}

func TestNewReconciliation(t *testing.T) {
	err := NewReconciliation(5, 3)
	require.NotNil(t, err)
	assert.Equal(t, "RECONCILIATION_FAULT: event feed shrank from 5 to 3", err.Error())
}
