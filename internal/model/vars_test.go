package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeVariables(t *testing.T) {
	got := MergeVariables(`{"discount": "20%", "city": "Nairobi"}`, `{"city": "Kisumu"}`)

	assert.Equal(t, map[string]string{"discount": "20%", "city": "Kisumu"}, got)
}

func TestMergeVariables_MalformedInputIgnored(t *testing.T) {
	assert.Equal(t, map[string]string{"a": "1"}, MergeVariables(`{"a": "1"}`, `{broken`))
	assert.Empty(t, MergeVariables("", ""))
}

func TestDeliveryRank_Ordering(t *testing.T) {
	assert.Less(t, DeliveryRank(RecipientSent), DeliveryRank(RecipientDelivered))
	assert.Less(t, DeliveryRank(RecipientDelivered), DeliveryRank(RecipientRead))
	assert.Less(t, DeliveryRank(RecipientRead), DeliveryRank(RecipientResponded))
	assert.Equal(t, 0, DeliveryRank(RecipientFailed))
	assert.Equal(t, 0, DeliveryRank(RecipientPending))
}
