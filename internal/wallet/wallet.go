// Package wallet manages the key pairs principals sign with.  An address is
// the base58 encoding of version || RIPEMD160(SHA256(pubkey)) || checksum,
// where the checksum is the first four bytes of a double SHA-256.
package wallet

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160"
)

const (
	checksumLength = 4
	version        = byte(0x00)
	coordLength    = 32 // P-256 coordinate size
)

var (
	ErrInvalidAddress   = errors.New("invalid wallet address")
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrBadSignature     = errors.New("signature does not verify")
)

// Wallet is an ECDSA P-256 key pair.  PublicKey is X || Y, each left-padded
// to 32 bytes.
type Wallet struct {
	PrivateKey *ecdsa.PrivateKey
	PublicKey  []byte
}

// New generates a fresh wallet.
func New() (*Wallet, error) {
	private, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("wallet: generate key: %w", err)
	}
	return FromPrivateKey(private), nil
}

// FromPrivateKey wraps an existing key.
func FromPrivateKey(private *ecdsa.PrivateKey) *Wallet {
	return &Wallet{PrivateKey: private, PublicKey: encodePublicKey(&private.PublicKey)}
}

func encodePublicKey(pub *ecdsa.PublicKey) []byte {
	out := make([]byte, 2*coordLength)
	pub.X.FillBytes(out[:coordLength])
	pub.Y.FillBytes(out[coordLength:])
	return out
}

// Address derives the wallet's principal address.
func (w *Wallet) Address() string {
	return AddressFromPublicKey(w.PublicKey)
}

// Sign returns an ASN.1 ECDSA signature over SHA-256(message).
func (w *Wallet) Sign(message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	return ecdsa.SignASN1(rand.Reader, w.PrivateKey, digest[:])
}

// PublicKeyHash is RIPEMD160(SHA256(pubKey)).
func PublicKeyHash(pubKey []byte) []byte {
	pubHash := sha256.Sum256(pubKey)
	hasher := ripemd160.New()
	hasher.Write(pubHash[:])
	return hasher.Sum(nil)
}

// Checksum is the first four bytes of SHA256(SHA256(payload)).
func Checksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:checksumLength]
}

// AddressFromPublicKey derives the address for an encoded public key.
func AddressFromPublicKey(pubKey []byte) string {
	versioned := append([]byte{version}, PublicKeyHash(pubKey)...)
	full := append(versioned, Checksum(versioned)...)
	return base58.Encode(full)
}

// ValidateAddress checks the encoding, version and checksum of address.
func ValidateAddress(address string) error {
	raw, err := base58.Decode(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != 1+ripemd160.Size+checksumLength {
		return fmt.Errorf("%w: length %d", ErrInvalidAddress, len(raw))
	}
	if raw[0] != version {
		return fmt.Errorf("%w: version %#x", ErrInvalidAddress, raw[0])
	}
	body, sum := raw[:len(raw)-checksumLength], raw[len(raw)-checksumLength:]
	if !bytes.Equal(Checksum(body), sum) {
		return fmt.Errorf("%w: checksum mismatch", ErrInvalidAddress)
	}
	return nil
}

// ParsePublicKey decodes X || Y into a P-256 public key.
func ParsePublicKey(pubKey []byte) (*ecdsa.PublicKey, error) {
	if len(pubKey) != 2*coordLength {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidPublicKey, len(pubKey))
	}
	curve := elliptic.P256()
	x := new(big.Int).SetBytes(pubKey[:coordLength])
	y := new(big.Int).SetBytes(pubKey[coordLength:])
	if !curve.IsOnCurve(x, y) {
		return nil, fmt.Errorf("%w: point not on curve", ErrInvalidPublicKey)
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// VerifySignature checks sig over message for the encoded public key.
func VerifySignature(pubKey, message, sig []byte) error {
	pub, err := ParsePublicKey(pubKey)
	if err != nil {
		return err
	}
	digest := sha256.Sum256(message)
	if !ecdsa.VerifyASN1(pub, digest[:], sig) {
		return ErrBadSignature
	}
	return nil
}

// LoginMessage is the text a wallet signs to obtain an access token.
// timestamp is Unix milliseconds as sent by the client.
func LoginMessage(timestamp string) []byte {
	return []byte("ticket-ledger login " + timestamp)
}
