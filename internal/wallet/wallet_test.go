package wallet

import (
	"path/filepath"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	w, err := New()
	require.NoError(t, err)

	addr := w.Address()
	assert.NoError(t, ValidateAddress(addr))
	assert.Len(t, w.PublicKey, 64)
	assert.Equal(t, addr, AddressFromPublicKey(w.PublicKey))

	other, err := New()
	require.NoError(t, err)
	assert.NotEqual(t, addr, other.Address())
}

func TestValidateAddressRejectsCorruption(t *testing.T) {
	w, err := New()
	require.NoError(t, err)
	raw, err := base58.Decode(w.Address())
	require.NoError(t, err)

	raw[3] ^= 0xff
	assert.ErrorIs(t, ValidateAddress(base58.Encode(raw)), ErrInvalidAddress)
	assert.ErrorIs(t, ValidateAddress("0OIl"), ErrInvalidAddress)
	assert.ErrorIs(t, ValidateAddress(base58.Encode([]byte{0, 1, 2})), ErrInvalidAddress)
}

func TestSignAndVerify(t *testing.T) {
	w, err := New()
	require.NoError(t, err)
	msg := LoginMessage("1760000000000")

	sig, err := w.Sign(msg)
	require.NoError(t, err)
	assert.NoError(t, VerifySignature(w.PublicKey, msg, sig))
	assert.ErrorIs(t, VerifySignature(w.PublicKey, LoginMessage("1760000000001"), sig), ErrBadSignature)

	other, err := New()
	require.NoError(t, err)
	assert.ErrorIs(t, VerifySignature(other.PublicKey, msg, sig), ErrBadSignature)
	assert.ErrorIs(t, VerifySignature([]byte{1, 2, 3}, msg, sig), ErrInvalidPublicKey)
}

func TestSaveLoad(t *testing.T) {
	w, err := New()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "keys", "wallet.json")
	require.NoError(t, w.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), loaded.Address())
	assert.Equal(t, w.PublicKey, loaded.PublicKey)
}
