package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "medguard/pkg/domain-errors"
)

func TestParseActorID(t *testing.T) {
	t.Run("valid uuid", func(t *testing.T) {
		raw := uuid.New()
		actor, err := ParseActorID(raw.String())
		require.NoError(t, err)
		assert.Equal(t, raw.String(), actor.String())
	})

	t.Run("rejects empty, malformed, and nil", func(t *testing.T) {
		for _, input := range []string{"", "not-a-uuid", uuid.Nil.String()} {
			_, err := ParseActorID(input)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), "input %q", input)
		}
	})
}

func TestTypedIDsAreDistinct(t *testing.T) {
	// Same underlying bytes, distinct types; String output matches the source.
	raw := uuid.New()
	patient := PatientID(raw)
	alert := AlertID(raw)
	assert.Equal(t, patient.String(), alert.String())
	assert.False(t, patient.IsNil())
	assert.True(t, PatientID{}.IsNil())
}
