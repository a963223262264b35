package ledger_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesa/pos-edge/ledger"
)

func TestOrderEvent_JSONEnvelope_RoundTrip(t *testing.T) {
	// GIVEN: An ItemsAdded event with a priced line
	// WHEN: Marshalled and unmarshalled through the tagged envelope
	// THEN: The payload comes back as its concrete type

	original := evt(7, "ord-1", ledger.ItemsAddedPayload{
		Items: []ledger.CartItemSnapshot{line("i-1", "espresso", 2, "3.50")},
	})
	original.OperatorID = "op-9"

	raw, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"items_added"`)

	var decoded ledger.OrderEvent
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, original.EventID, decoded.EventID)
	assert.Equal(t, original.Sequence, decoded.Sequence)
	assert.Equal(t, original.OperatorID, decoded.OperatorID)

	payload, ok := decoded.Payload.(ledger.ItemsAddedPayload)
	require.True(t, ok, "payload must decode to its concrete type")
	require.Len(t, payload.Items, 1)
	assert.True(t, payload.Items[0].UnitPrice.Equal(decimal.RequireFromString("3.50")))
}

func TestOrderEvent_UnknownType_FailsDecode(t *testing.T) {
	_, err := ledger.DecodePayload(ledger.EventType("bogus"), []byte(`{}`))
	assert.Error(t, err)
}

func TestCommand_JSONEnvelope_RoundTrip(t *testing.T) {
	original := ledger.Command{
		CommandID: "c-1",
		Type:      ledger.CmdAddPayment,
		OrderID:   "ord-1",
		Payload: ledger.AddPaymentPayload{
			Method:   "cash",
			Amount:   decimal.RequireFromString("9.90"),
			Tendered: decimal.RequireFromString("10.00"),
		},
	}

	raw, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded ledger.Command
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, original.Type, decoded.Type)

	payload, ok := decoded.Payload.(ledger.AddPaymentPayload)
	require.True(t, ok)
	assert.Equal(t, "cash", payload.Method)
	assert.True(t, payload.Amount.Equal(decimal.RequireFromString("9.90")))
}

func TestDecodeCommandPayload_UnknownType_Fails(t *testing.T) {
	_, err := ledger.DecodeCommandPayload(ledger.CommandType("bogus"), []byte(`{}`))
	assert.Error(t, err)
}
