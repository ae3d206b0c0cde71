package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdentityID(t *testing.T) {
	t.Run("valid uuid round trips", func(t *testing.T) {
		original := NewIdentityID()
		parsed, err := ParseIdentityID(original.String())
		require.NoError(t, err)
		assert.Equal(t, original, parsed)
	})

	t.Run("empty rejected", func(t *testing.T) {
		_, err := ParseIdentityID("")
		assert.Error(t, err)
	})

	t.Run("malformed rejected", func(t *testing.T) {
		_, err := ParseIdentityID("not-a-uuid")
		assert.Error(t, err)
	})

	t.Run("nil uuid rejected", func(t *testing.T) {
		_, err := ParseIdentityID(uuid.Nil.String())
		assert.Error(t, err)
	})
}

func TestJSONRoundTrip(t *testing.T) {
	original := NewIdentityID()
	raw, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Equal(t, `"`+original.String()+`"`, string(raw))

	var decoded IdentityID
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, original, decoded)
}

func TestIsNil(t *testing.T) {
	assert.True(t, IdentityID{}.IsNil())
	assert.False(t, NewIdentityID().IsNil())
	assert.True(t, SwitchID{}.IsNil())
}
