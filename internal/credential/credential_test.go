package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_Resolve_Found(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key == "KAIX_API_KEY" {
			return "sk-test-123", true
		}
		return "", false
	}
	r := NewResolver(lookup)

	value, err := r.Resolve("mock", "KAIX_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", value)
}

func TestResolver_Resolve_Unset(t *testing.T) {
	r := NewResolver(func(string) (string, bool) { return "", false })

	_, err := r.Resolve("mock", "KAIX_API_KEY")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolver_Resolve_EmptyValueTreatedAsUnset(t *testing.T) {
	r := NewResolver(func(string) (string, bool) { return "", true })

	_, err := r.Resolve("mock", "KAIX_API_KEY")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolver_Resolve_NoEnvVarConfigured(t *testing.T) {
	r := NewResolver(nil)

	_, err := r.Resolve("mock", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedact_NeverEchoesValue(t *testing.T) {
	assert.Equal(t, "***redacted***", Redact("sk-super-secret"))
	assert.Equal(t, "", Redact(""))
}
