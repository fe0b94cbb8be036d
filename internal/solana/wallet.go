package solana

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcutil/base58"
)

// Wallet holds the gateway keypair. The secret is loaded once at startup and
// is read-only afterwards; it must never appear in logs.
type Wallet struct {
	priv      ed25519.PrivateKey
	pub       ed25519.PublicKey
	address   string
	ephemeral bool
}

// LoadWallet loads a keypair from a base58-encoded secret or a JSON byte-array
// file. When neither is configured an ephemeral keypair is generated, which is
// only permitted in simulation mode.
func LoadWallet(privateKeyB58, walletPath string, allowEphemeral bool) (*Wallet, error) {
	switch {
	case privateKeyB58 != "":
		raw := base58.Decode(privateKeyB58)
		if len(raw) == 0 {
			return nil, fmt.Errorf("private key is not valid base58")
		}
		return walletFromSecret(raw, false)

	case walletPath != "":
		path := expandHome(walletPath)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read wallet file: %w", err)
		}
		var raw []byte
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("wallet file is not a JSON byte array: %w", err)
		}
		return walletFromSecret(raw, false)

	case allowEphemeral:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate ephemeral keypair: %w", err)
		}
		return &Wallet{priv: priv, pub: pub, address: base58.Encode(pub), ephemeral: true}, nil

	default:
		return nil, ErrNoWallet
	}
}

func walletFromSecret(raw []byte, ephemeral bool) (*Wallet, error) {
	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.PrivateKeySize: // 64-byte secret: seed || pubkey
		priv = ed25519.PrivateKey(raw)
	case ed25519.SeedSize: // 32-byte seed
		priv = ed25519.NewKeyFromSeed(raw)
	default:
		return nil, fmt.Errorf("secret key must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
	pub := priv.Public().(ed25519.PublicKey)
	return &Wallet{priv: priv, pub: pub, address: base58.Encode(pub), ephemeral: ephemeral}, nil
}

func expandHome(path string) string {
	if len(path) > 1 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// Address returns the base58-encoded public key
func (w *Wallet) Address() string { return w.address }

// PublicKey returns the raw public key bytes
func (w *Wallet) PublicKey() ed25519.PublicKey { return w.pub }

// Ephemeral reports whether this keypair was generated at startup
func (w *Wallet) Ephemeral() bool { return w.ephemeral }

// Sign signs a message with the wallet keypair
func (w *Wallet) Sign(message []byte) []byte {
	return ed25519.Sign(w.priv, message)
}
