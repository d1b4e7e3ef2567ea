package vars

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SetAndGet(t *testing.T) {
	store := NewStore()

	t.Run("missing variable", func(t *testing.T) {
		_, ok := store.Get("NOPE")
		assert.False(t, ok)
	})

	t.Run("exact match", func(t *testing.T) {
		store.Set("HOST", "10.0.0.1")
		v, ok := store.Get("HOST")
		require.True(t, ok)
		assert.Equal(t, "10.0.0.1", v)
	})

	t.Run("case-insensitive fallback", func(t *testing.T) {
		v, ok := store.Get("host")
		require.True(t, ok)
		assert.Equal(t, "10.0.0.1", v)
	})

	t.Run("last write wins", func(t *testing.T) {
		store.Set("HOST", "10.0.0.2")
		v, _ := store.Get("HOST")
		assert.Equal(t, "10.0.0.2", v)
	})
}

func TestStore_Snapshot(t *testing.T) {
	store := NewStore()
	store.Set("A", "1")

	snap := store.Snapshot()
	assert.Equal(t, map[string]string{"A": "1"}, snap)

	// Mutating the snapshot must not affect the store.
	snap["A"] = "changed"
	v, _ := store.Get("A")
	assert.Equal(t, "1", v)
}

func TestStore_Clear(t *testing.T) {
	store := NewStore()
	store.Set("A", "1")
	store.Clear()
	_, ok := store.Get("A")
	assert.False(t, ok)
}

func TestStore_Interpolate(t *testing.T) {
	store := NewStore()
	store.Set("TOKEN", "abc123")
	store.Set("HOST", "example.com")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain reference", in: "Bearer $TOKEN", want: "Bearer abc123"},
		{name: "braced reference", in: "Bearer ${TOKEN}", want: "Bearer abc123"},
		{name: "braces bound the name", in: "${HOST}name", want: "example.comname"},
		{name: "multiple references", in: "http://$HOST/?t=$TOKEN", want: "http://example.com/?t=abc123"},
		{name: "case-insensitive resolution", in: "$token", want: "abc123"},
		{name: "unresolved left verbatim", in: "value: $MISSING", want: "value: $MISSING"},
		{name: "no references", in: "untouched", want: "untouched"},
		{name: "bare dollar", in: "cost: $5", want: "cost: $5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, store.Interpolate(tt.in))
		})
	}
}

func TestStore_InterpolateMap(t *testing.T) {
	store := NewStore()
	store.Set("V", "resolved")

	out := store.InterpolateMap(map[string]string{
		"Authorization": "Bearer $V",
		"$V":            "static",
	})
	assert.Equal(t, "Bearer resolved", out["Authorization"])
	// Keys are never interpolated.
	assert.Equal(t, "static", out["$V"])

	assert.Nil(t, store.InterpolateMap(nil))
}

func TestStore_Environ(t *testing.T) {
	t.Setenv("KUBECHECK_ENV_PROBE", "from-process")

	store := NewStore()
	store.Set("EXTRACTED", "42")

	env := store.Environ()
	assert.Contains(t, env, "KUBECHECK_ENV_PROBE=from-process")
	assert.Contains(t, env, "EXTRACTED=42")
}
