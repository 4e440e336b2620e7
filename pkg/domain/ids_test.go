package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/pkg/derrors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// IDs must be valid, non-empty, non-nil UUIDs at trust boundaries.
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseAuditID("")
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, derrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseAuditID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, derrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseAuditID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, derrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		auditID, err := ParseAuditID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, AuditID(validUUID), auditID)
	})
}

// TestTypeDistinction verifies the compiler enforces type safety between ID
// kinds. Distinctness at runtime is checked here; cross-assignment would not
// compile.
func TestTypeDistinction(t *testing.T) {
	auditID := AuditID(uuid.New())
	templateID := TemplateID(uuid.New())
	assert.NotEqual(t, uuid.UUID(auditID), uuid.UUID(templateID))
}

// TestIDJSONRoundTrip pins the wire shape: typed IDs marshal as canonical
// UUID strings, not byte arrays, and round-trip unchanged.
func TestIDJSONRoundTrip(t *testing.T) {
	original := AuditID(uuid.New())

	raw, err := json.Marshal(original)
	require.NoError(t, err)
	assert.JSONEq(t, `"`+original.String()+`"`, string(raw))

	var decoded AuditID
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, original, decoded)
}

func TestEntityType_IsValid(t *testing.T) {
	for _, entityType := range []EntityType{EntityOutlet, EntityCentralKitchen, EntitySupplier} {
		assert.True(t, entityType.IsValid(), string(entityType))
	}
	assert.False(t, EntityType("warehouse").IsValid())
	assert.False(t, EntityType("").IsValid())
}
