// Package sigs holds the signing keys a client can attach to a request and the ordered
// SignerSet that turns request body bytes into signature pairs.
package sigs

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	btcSecp256k1 "github.com/btcsuite/btcd/btcec/v2"
	btcSecp256k1Ecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/lavanet/ledgerclient/utils"
)

type Scheme uint32

const (
	SchemeEd25519 Scheme = iota + 1
	SchemeECDSASecp256k1
)

func (s Scheme) String() string {
	switch s {
	case SchemeEd25519:
		return "ed25519"
	case SchemeECDSASecp256k1:
		return "ecdsa_secp256k1"
	default:
		return fmt.Sprintf("scheme(%d)", uint32(s))
	}
}

// der prefix of a PKCS#8 wrapped ed25519 seed, accepted when parsing keys from config
const ed25519PrivateKeyDERPrefix = "302e020100300506032b657004220420"

type PublicKey interface {
	Bytes() []byte
	Scheme() Scheme
	Verify(message, signature []byte) bool
	String() string
}

type PrivateKey interface {
	PublicKey() PublicKey
	Sign(message []byte) ([]byte, error)
}

type Ed25519PublicKey struct {
	key ed25519.PublicKey
}

func (k Ed25519PublicKey) Bytes() []byte { return append([]byte(nil), k.key...) }

func (k Ed25519PublicKey) Scheme() Scheme { return SchemeEd25519 }

func (k Ed25519PublicKey) Verify(message, signature []byte) bool {
	return len(signature) == ed25519.SignatureSize && ed25519.Verify(k.key, message, signature)
}

func (k Ed25519PublicKey) String() string { return hex.EncodeToString(k.key) }

type Ed25519PrivateKey struct {
	key ed25519.PrivateKey
}

func GenerateEd25519() (*Ed25519PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	return &Ed25519PrivateKey{key: priv}, nil
}

func Ed25519FromSeed(seed []byte) (*Ed25519PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, utils.FormatWarning("invalid ed25519 seed length", nil, utils.LogAttr("length", len(seed)))
	}
	return &Ed25519PrivateKey{key: ed25519.NewKeyFromSeed(seed)}, nil
}

func (k *Ed25519PrivateKey) PublicKey() PublicKey {
	return Ed25519PublicKey{key: k.key.Public().(ed25519.PublicKey)}
}

func (k *Ed25519PrivateKey) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(k.key, message), nil
}

type Secp256k1PublicKey struct {
	key *btcSecp256k1.PublicKey
}

func (k Secp256k1PublicKey) Bytes() []byte { return k.key.SerializeCompressed() }

func (k Secp256k1PublicKey) Scheme() Scheme { return SchemeECDSASecp256k1 }

// Verify expects the 64 byte r||s form produced by Secp256k1PrivateKey.Sign.
func (k Secp256k1PublicKey) Verify(message, signature []byte) bool {
	if len(signature) != 64 {
		return false
	}
	var r, s btcSecp256k1.ModNScalar
	if r.SetByteSlice(signature[:32]) || s.SetByteSlice(signature[32:]) {
		return false
	}
	return btcSecp256k1Ecdsa.NewSignature(&r, &s).Verify(HashMsg(message), k.key)
}

func (k Secp256k1PublicKey) String() string { return hex.EncodeToString(k.Bytes()) }

type Secp256k1PrivateKey struct {
	key *btcSecp256k1.PrivateKey
}

func GenerateSecp256k1() (*Secp256k1PrivateKey, error) {
	priv, err := btcSecp256k1.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return &Secp256k1PrivateKey{key: priv}, nil
}

func Secp256k1FromBytes(raw []byte) (*Secp256k1PrivateKey, error) {
	if len(raw) != btcSecp256k1.PrivKeyBytesLen {
		return nil, utils.FormatWarning("invalid secp256k1 key length", nil, utils.LogAttr("length", len(raw)))
	}
	priv, _ := btcSecp256k1.PrivKeyFromBytes(raw)
	return &Secp256k1PrivateKey{key: priv}, nil
}

func (k *Secp256k1PrivateKey) PublicKey() PublicKey {
	return Secp256k1PublicKey{key: k.key.PubKey()}
}

// Sign returns r||s over the SHA-256 digest of message.
func (k *Secp256k1PrivateKey) Sign(message []byte) ([]byte, error) {
	sig, err := btcSecp256k1Ecdsa.SignCompact(k.key, HashMsg(message), true)
	if err != nil {
		return nil, err
	}
	// drop the recovery byte
	return sig[1:], nil
}

// HashMsg hashes msgData using SHA-256
func HashMsg(msgData []byte) []byte {
	sum := sha256.Sum256(msgData)
	return sum[:]
}

// ParsePrivateKey reads a hex encoded key. A "secp256k1:" or "ecdsa:" prefix selects
// secp256k1, otherwise the value is an ed25519 seed, optionally DER wrapped.
func ParsePrivateKey(encoded string) (PrivateKey, error) {
	encoded = strings.TrimPrefix(strings.TrimSpace(encoded), "0x")
	lowered := strings.ToLower(encoded)
	for _, prefix := range []string{"secp256k1:", "ecdsa:"} {
		if strings.HasPrefix(lowered, prefix) {
			raw, err := hex.DecodeString(strings.TrimPrefix(encoded[len(prefix):], "0x"))
			if err != nil {
				return nil, utils.FormatWarning("invalid secp256k1 private key hex", err)
			}
			return Secp256k1FromBytes(raw)
		}
	}
	lowered = strings.TrimPrefix(lowered, ed25519PrivateKeyDERPrefix)
	raw, err := hex.DecodeString(lowered)
	if err != nil {
		return nil, utils.FormatWarning("invalid ed25519 private key hex", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return Ed25519FromSeed(raw)
	case ed25519.PrivateKeySize:
		return Ed25519FromSeed(raw[:ed25519.SeedSize])
	default:
		return nil, utils.FormatWarning("invalid ed25519 private key length", nil, utils.LogAttr("length", len(raw)))
	}
}
