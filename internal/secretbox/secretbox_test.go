package secretbox

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresKey(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, ErrKeyNotConfigured)
}

func TestSealOpen_RoundTrip(t *testing.T) {
	box, err := New("operator-secret")
	require.NoError(t, err)

	inputs := []string{
		"JBSWY3DPEHPK3PXP",
		"a",
		"unicode ✓ secret",
		strings.Repeat("x", MaxPlaintext),
	}
	for _, in := range inputs {
		sealed, err := box.Seal(in)
		require.NoError(t, err)
		out, err := box.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestSeal_FreshNonce(t *testing.T) {
	box, err := New("operator-secret")
	require.NoError(t, err)

	a, err := box.Seal("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	b, err := box.Seal("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	rawA, _ := base64.StdEncoding.DecodeString(a)
	rawB, _ := base64.StdEncoding.DecodeString(b)
	assert.NotEqual(t, rawA[:nonceSize], rawB[:nonceSize])
}

func TestSeal_Bounds(t *testing.T) {
	box, err := New("operator-secret")
	require.NoError(t, err)

	_, err = box.Seal("")
	assert.ErrorIs(t, err, ErrEmptyPlaintext)

	_, err = box.Seal(strings.Repeat("x", MaxPlaintext+1))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestOpen_Rejects(t *testing.T) {
	box, err := New("operator-secret")
	require.NoError(t, err)
	other, err := New("another-secret")
	require.NoError(t, err)

	sealed, err := box.Seal("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = box.Open("%%%not-base64")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = box.Open(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrMalformed)

	raw, _ := base64.StdEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0xff
	_, err = box.Open(base64.StdEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDerivedKeyIsNotPaddedPassphrase(t *testing.T) {
	padded := make([]byte, keySize)
	copy(padded, "operator-secret")
	naive, err := newWithKey(padded, bytes.NewReader(make([]byte, nonceSize)))
	require.NoError(t, err)

	box, err := New("operator-secret")
	require.NoError(t, err)

	sealed, err := naive.Seal("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	_, err = box.Open(sealed)
	assert.ErrorIs(t, err, ErrDecrypt)
}
