package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catcher/internal/item"
)

func TestMetadataRoundTrip(t *testing.T) {
	fields := item.Fields{
		Name:         "MacBook Pro",
		SerialNumber: "C02XK1GY",
		Status:       item.StatusSafe,
		Description:  "Space grey",
	}

	metadata, err := EncodeMetadata("user-1", fields)
	require.NoError(t, err)
	assert.Equal(t, "user-1", metadata.UserID)

	decoded, err := metadata.DecodeItem()
	require.NoError(t, err)
	assert.Equal(t, fields, decoded)
}

func TestDecodeItemRejectsGarbage(t *testing.T) {
	m := Metadata{ItemData: "{not json", UserID: "user-1"}
	_, err := m.DecodeItem()
	require.Error(t, err)
}

func TestDecodeItemRejectsEmptyPayload(t *testing.T) {
	m := Metadata{UserID: "user-1"}
	_, err := m.DecodeItem()
	require.Error(t, err)
}

func TestVerifyResultSucceeded(t *testing.T) {
	assert.True(t, VerifyResult{Status: StatusSuccess}.Succeeded())
	assert.False(t, VerifyResult{Status: StatusFailed}.Succeeded())
	assert.False(t, VerifyResult{Status: StatusAbandoned}.Succeeded())
	assert.False(t, VerifyResult{}.Succeeded())
}
