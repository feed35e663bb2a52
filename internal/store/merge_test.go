package store

import (
	"testing"

	internalErrors "apna-payments/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeUnionLaterValuesWin(t *testing.T) {
	existing := Document{"UniqueCode": "abc123", "plan": "basic", "seats": float64(1)}
	incoming := Document{"plan": "pro", "id": "pr_1"}

	merged, changed, err := Merge(existing, incoming, Policy{})
	require.NoError(t, err)

	assert.True(t, changed)
	assert.Equal(t, Document{"UniqueCode": "abc123", "plan": "pro", "seats": float64(1), "id": "pr_1"}, merged)
	assert.Equal(t, "basic", existing["plan"], "existing document must not be modified")
}

func TestMergeReportsUnchanged(t *testing.T) {
	existing := Document{"id": "pr_1", "status": "Credit"}

	merged, changed, err := Merge(existing, Document{"status": "Credit"}, Policy{})
	require.NoError(t, err)

	assert.False(t, changed)
	assert.Equal(t, existing, merged)
}

func TestMergeKeepsTerminalValues(t *testing.T) {
	p := Policy{Monotonic: map[string][]string{"status": {"Credit"}}}
	existing := Document{"status": "Credit"}

	merged, changed, err := Merge(existing, Document{"status": "Failed", "payment_id": "pay_9"}, p)
	require.NoError(t, err)

	assert.True(t, changed)
	assert.Equal(t, "Credit", merged["status"])
	assert.Equal(t, "pay_9", merged["payment_id"])
}

func TestMergeAllowsProgressToTerminal(t *testing.T) {
	p := Policy{Monotonic: map[string][]string{"status": {"Credit"}}}

	merged, _, err := Merge(Document{"status": "Pending"}, Document{"status": "Credit"}, p)
	require.NoError(t, err)
	assert.Equal(t, "Credit", merged["status"])

	merged, _, err = Merge(Document{"status": "Pending"}, Document{"status": "Failed"}, p)
	require.NoError(t, err)
	assert.Equal(t, "Failed", merged["status"])
}

func TestMergeRejectsImmutableChange(t *testing.T) {
	p := Policy{Immutable: []string{"UniqueCode"}}

	_, _, err := Merge(Document{"UniqueCode": "abc123"}, Document{"UniqueCode": "other"}, p)
	require.ErrorIs(t, err, internalErrors.ErrImmutableField)

	_, changed, err := Merge(Document{"UniqueCode": "abc123"}, Document{"UniqueCode": "abc123"}, p)
	require.NoError(t, err)
	assert.False(t, changed)

	merged, _, err := Merge(Document{}, Document{"UniqueCode": "abc123"}, p)
	require.NoError(t, err)
	assert.Equal(t, "abc123", merged["UniqueCode"])
}

func TestMergeSealsFieldsAfterTerminalValue(t *testing.T) {
	p := Policy{
		Monotonic: map[string][]string{"status": {"Credit"}},
		Sealed:    map[string][]string{"status": {"id"}},
	}

	merged, _, err := Merge(Document{"id": "pr_1", "status": "Pending"}, Document{"id": "pr_2"}, p)
	require.NoError(t, err)
	assert.Equal(t, "pr_2", merged["id"])

	_, _, err = Merge(Document{"id": "pr_1", "status": "Credit"}, Document{"id": "pr_2", "status": "Pending"}, p)
	require.ErrorIs(t, err, internalErrors.ErrImmutableField)

	_, changed, err := Merge(Document{"id": "pr_1", "status": "Credit"}, Document{"id": "pr_1", "payment_id": "pay_9"}, p)
	require.NoError(t, err)
	assert.True(t, changed)
}
