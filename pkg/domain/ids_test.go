package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "aidledger/pkg/domain-errors"
)

// TestParseUserID_Invariants validates that user IDs are valid, non-nil UUIDs.
func TestParseUserID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseUserID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseUserID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseUserID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseUserID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, UserID(validUUID), id)
	})
}

// TestParseID_SecurityInvariants rejects attack vectors at API entry points.
func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE users;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Unicode zero-width space", "550e8400\u200B-e29b-41d4-a716-446655440000", true},
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUserID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestParseSchemeID(t *testing.T) {
	valid := []string{"education-support", "pm-kisan", "scheme-1"}
	for _, in := range valid {
		got, err := ParseSchemeID(in)
		require.NoError(t, err, in)
		assert.Equal(t, SchemeID(in), got)
	}

	invalid := []string{"", "Education", "-leading", "has space", "../etc", strings.Repeat("a", 65)}
	for _, in := range invalid {
		_, err := ParseSchemeID(in)
		require.Error(t, err, in)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	}
}

func TestParseApplicationID(t *testing.T) {
	id := NewApplicationID("01J9ZQ4X7M8N2P3R4S5T6V7W8X")
	parsed, err := ParseApplicationID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	for _, in := range []string{"", "APP-", "app-123", "TXN123", "APP-12;DROP"} {
		_, err := ParseApplicationID(in)
		assert.Error(t, err, in)
	}
}

func TestUserIDJSONRoundTrip(t *testing.T) {
	type payload struct {
		ID UserID `json:"id"`
	}
	in := payload{ID: NewUserID()}

	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out payload
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in.ID, out.ID)
}

func TestActorRoles(t *testing.T) {
	admin := Actor{ID: NewUserID(), Role: RoleAdmin}
	citizen := Actor{ID: NewUserID(), Role: RoleCitizen}

	assert.True(t, admin.IsAdmin())
	assert.False(t, admin.IsCitizen())
	assert.True(t, citizen.IsCitizen())
	assert.False(t, citizen.IsAdmin())
	assert.True(t, Actor{}.IsZero())
	assert.False(t, Actor{Role: RoleAdmin}.IsAdmin(), "role without id is not an admin")
}
