package solana

import (
	"crypto/ed25519"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcutil/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWalletFromSeed(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	want := ed25519.NewKeyFromSeed(seed)

	w, err := LoadWallet(base58.Encode(seed), "", false)
	require.NoError(t, err)
	assert.Equal(t, base58.Encode(want.Public().(ed25519.PublicKey)), w.Address())
	assert.False(t, w.Ephemeral())
}

func TestLoadWalletFromFullKey(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	w, err := LoadWallet(base58.Encode(priv), "", false)
	require.NoError(t, err)
	assert.Equal(t, base58.Encode(pub), w.Address())
}

func TestLoadWalletFromFile(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	data, err := json.Marshal([]byte(priv))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	w, err := LoadWallet("", path, false)
	require.NoError(t, err)
	assert.Equal(t, base58.Encode(priv.Public().(ed25519.PublicKey)), w.Address())
}

func TestLoadWalletBadLength(t *testing.T) {
	_, err := LoadWallet(base58.Encode([]byte{1, 2, 3}), "", false)
	assert.Error(t, err)
}

func TestLoadWalletInvalidBase58(t *testing.T) {
	_, err := LoadWallet("not-base58-0OIl", "", false)
	assert.Error(t, err)
}

func TestLoadWalletMissingFile(t *testing.T) {
	_, err := LoadWallet("", filepath.Join(t.TempDir(), "absent.json"), false)
	assert.Error(t, err)
}

func TestLoadWalletEphemeral(t *testing.T) {
	w, err := LoadWallet("", "", true)
	require.NoError(t, err)
	assert.True(t, w.Ephemeral())
	assert.NotEmpty(t, w.Address())
}

func TestLoadWalletNoneConfigured(t *testing.T) {
	_, err := LoadWallet("", "", false)
	assert.ErrorIs(t, err, ErrNoWallet)
}

func TestWalletSign(t *testing.T) {
	w, err := LoadWallet("", "", true)
	require.NoError(t, err)

	msg := []byte("the message")
	sig := w.Sign(msg)
	assert.True(t, ed25519.Verify(w.PublicKey(), msg, sig))
}
