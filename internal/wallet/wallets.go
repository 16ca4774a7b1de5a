package wallet

import (
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// keyFile is the on-disk form of a wallet.
type keyFile struct {
	Address    string `json:"address"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"` // hex SEC 1 DER
}

// Save writes the wallet to path with owner-only permissions.
func (w *Wallet) Save(path string) error {
	der, err := x509.MarshalECPrivateKey(w.PrivateKey)
	if err != nil {
		return fmt.Errorf("wallet: encode key: %w", err)
	}
	body, err := json.MarshalIndent(keyFile{
		Address:    w.Address(),
		PublicKey:  hex.EncodeToString(w.PublicKey),
		PrivateKey: hex.EncodeToString(der),
	}, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("wallet: mkdir: %w", err)
		}
	}
	return os.WriteFile(path, body, 0o600)
}

// Load reads a wallet written by Save and checks that the stored address
// matches the key.
func Load(path string) (*Wallet, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var kf keyFile
	if err := json.Unmarshal(body, &kf); err != nil {
		return nil, fmt.Errorf("wallet: parse %s: %w", path, err)
	}
	der, err := hex.DecodeString(kf.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("wallet: decode key: %w", err)
	}
	private, err := x509.ParseECPrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("wallet: parse key: %w", err)
	}
	w := FromPrivateKey(private)
	if kf.Address != "" && kf.Address != w.Address() {
		return nil, fmt.Errorf("wallet: %s: address %s does not match key", path, kf.Address)
	}
	return w, nil
}
