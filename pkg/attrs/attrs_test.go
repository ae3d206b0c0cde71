package attrs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractString(t *testing.T) {
	kv := []any{"actor", "alice", "count", 3, "module", "consent"}

	assert.Equal(t, "alice", ExtractString(kv, "actor"))
	assert.Equal(t, "consent", ExtractString(kv, "module"))
	assert.Empty(t, ExtractString(kv, "count"), "non-string value skipped")
	assert.Empty(t, ExtractString(kv, "missing"))
	assert.Empty(t, ExtractString(nil, "actor"))
}

func TestToMap(t *testing.T) {
	kv := []any{"actor", "alice", 7, "ignored", "module", "consent", "dangling"}

	got := ToMap(kv)
	assert.Equal(t, map[string]string{"actor": "alice", "module": "consent"}, got)
}
