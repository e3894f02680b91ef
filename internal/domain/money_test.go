package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountJSONShapes(t *testing.T) {
	data, err := json.Marshal(struct {
		Fee   Amount `json:"fee"`
		Total Amount `json:"total"`
	}{Fee: Pending(), Total: Resolved(Money("1525.50"))})
	require.NoError(t, err)
	assert.JSONEq(t, `{"fee":"TBD","total":1525.5}`, string(data))

	var decoded struct {
		Fee   Amount `json:"fee"`
		Total Amount `json:"total"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Fee.IsPending())
	value, ok := decoded.Total.Value()
	require.True(t, ok)
	assert.True(t, value.Equal(Money("1525.5")))
}

func TestAmountRejectsNull(t *testing.T) {
	var a Amount
	err := json.Unmarshal([]byte("null"), &a)
	require.Error(t, err)
}

func TestAmountStoredRoundTrip(t *testing.T) {
	pending, err := AmountFromStored(Pending().StoredValue())
	require.NoError(t, err)
	assert.True(t, pending.IsPending())

	resolved, err := AmountFromStored(Resolved(Money("25")).StoredValue())
	require.NoError(t, err)
	assert.True(t, resolved.Equal(Resolved(Money("25"))))

	_, err = AmountFromStored(nil)
	require.Error(t, err)
}

func TestStateErrorMatchesSentinel(t *testing.T) {
	err := error(NewStateError(StateReasonOverpayment, "paid %s of %s", "10", "5"))
	assert.ErrorIs(t, err, ErrState)
	reason, ok := StateReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, StateReasonOverpayment, reason)
}
