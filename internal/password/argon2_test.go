package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Cheap parameters keep the suite fast; the PHC format is identical.
func testParams() Params {
	return Params{Memory: 64, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func newTestHasher(t *testing.T) *Argon2 {
	t.Helper()
	h, err := New(testParams())
	require.NoError(t, err)
	return h
}

func TestHash_PHCFormat(t *testing.T) {
	h := newTestHasher(t)

	encoded, err := h.Hash("Aa1!aaaa")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=64,t=1,p=1$"), encoded)
	assert.Len(t, strings.Split(encoded, "$"), 6)
}

func TestHash_SaltedPerCall(t *testing.T) {
	h := newTestHasher(t)

	a, err := h.Hash("same-password")
	require.NoError(t, err)
	b, err := h.Hash("same-password")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerify_RoundTrip(t *testing.T) {
	h := newTestHasher(t)
	for _, pw := range []string{"Aa1!aaaa", "", "pässwörd", strings.Repeat("x", 200)} {
		encoded, err := h.Hash(pw)
		require.NoError(t, err)
		assert.True(t, h.Verify(encoded, pw), "password %q", pw)
	}
}

func TestVerify_WrongPassword(t *testing.T) {
	h := newTestHasher(t)
	pairs := [][2]string{
		{"Aa1!aaaa", "Aa1!aaab"},
		{"secret", "Secret"},
		{"abc", ""},
	}
	for _, p := range pairs {
		encoded, err := h.Hash(p[0])
		require.NoError(t, err)
		assert.False(t, h.Verify(encoded, p[1]))
	}
}

func TestVerify_MalformedHashNeverMatches(t *testing.T) {
	h := newTestHasher(t)
	for _, encoded := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=64,t=1,p=1$c2FsdHNhbHQ$aGFzaA",
		"$argon2id$v=18$m=64,t=1,p=1$c2FsdHNhbHQ$aGFzaA",
		"$argon2id$v=19$m=64,t=1$c2FsdHNhbHQ$aGFzaA",
		"$argon2id$v=19$m=64,t=1,p=1$!!!$aGFzaA",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHQ$aGFzaA",
	} {
		assert.False(t, h.Verify(encoded, "anything"), encoded)
	}
}

func TestVerify_UsesParamsFromHash(t *testing.T) {
	old, err := New(Params{Memory: 32, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16})
	require.NoError(t, err)
	encoded, err := old.Hash("legacy")
	require.NoError(t, err)

	current := newTestHasher(t)
	assert.True(t, current.Verify(encoded, "legacy"))
	assert.True(t, current.NeedsRehash(encoded))
}

func TestNeedsRehash_CurrentParams(t *testing.T) {
	h := newTestHasher(t)
	encoded, err := h.Hash("pw")
	require.NoError(t, err)
	assert.False(t, h.NeedsRehash(encoded))
	assert.True(t, h.NeedsRehash("garbage"))
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"zero parallelism", func(p *Params) { p.Parallelism = 0 }},
		{"memory below 8*p", func(p *Params) { p.Memory = 7 }},
		{"zero time", func(p *Params) { p.Time = 0 }},
		{"short salt", func(p *Params) { p.SaltLength = 4 }},
		{"short key", func(p *Params) { p.KeyLength = 8 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams()
			tt.mutate(&p)
			_, err := New(p)
			assert.Error(t, err)
		})
	}

	assert.NoError(t, DefaultParams().Validate())
}
