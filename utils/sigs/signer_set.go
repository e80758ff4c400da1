package sigs

import (
	"bytes"
	"sync"

	sdkerrors "cosmossdk.io/errors"
	"github.com/lavanet/ledgerclient/utils"
)

var (
	NoSignersError      = sdkerrors.New("NoSigners Error", 901, "signer set has no signers")
	SignCallbackError   = sdkerrors.New("SignCallback Error", 902, "sign callback failed")
	InvalidSignerError  = sdkerrors.New("InvalidSigner Error", 903, "signer needs a public key and a sign callback")
	SignatureCheckError = sdkerrors.New("SignatureCheck Error", 904, "signature does not verify")
)

// SignFunc signs the exact body bytes it is given. It may call out to a hardware wallet
// or a remote signer.
type SignFunc func(message []byte) ([]byte, error)

type SignaturePair struct {
	PublicKey PublicKey
	Signature []byte
}

type signer struct {
	publicKey PublicKey
	sign      SignFunc
}

// SignerSet is an ordered list of signers. Order of insertion is the order of the
// produced signature pairs.
type SignerSet struct {
	lock    sync.RWMutex
	signers []signer
}

func NewSignerSet(keys ...PrivateKey) *SignerSet {
	set := &SignerSet{}
	for _, key := range keys {
		set.AddKey(key)
	}
	return set
}

// Add appends a signer. Adding a public key that is already present is a no-op and
// returns false.
func (ss *SignerSet) Add(publicKey PublicKey, sign SignFunc) (bool, error) {
	if publicKey == nil || sign == nil {
		return false, InvalidSignerError
	}
	ss.lock.Lock()
	defer ss.lock.Unlock()
	raw := publicKey.Bytes()
	for _, existing := range ss.signers {
		if existing.publicKey.Scheme() == publicKey.Scheme() && bytes.Equal(existing.publicKey.Bytes(), raw) {
			return false, nil
		}
	}
	ss.signers = append(ss.signers, signer{publicKey: publicKey, sign: sign})
	return true, nil
}

func (ss *SignerSet) AddKey(key PrivateKey) bool {
	added, _ := ss.Add(key.PublicKey(), key.Sign)
	return added
}

func (ss *SignerSet) Len() int {
	if ss == nil {
		return 0
	}
	ss.lock.RLock()
	defer ss.lock.RUnlock()
	return len(ss.signers)
}

func (ss *SignerSet) PublicKeys() []PublicKey {
	ss.lock.RLock()
	defer ss.lock.RUnlock()
	keys := make([]PublicKey, len(ss.signers))
	for idx, s := range ss.signers {
		keys[idx] = s.publicKey
	}
	return keys
}

// Clone returns an independent copy, later additions to either set do not leak.
func (ss *SignerSet) Clone() *SignerSet {
	clone := &SignerSet{}
	if ss == nil {
		return clone
	}
	ss.lock.RLock()
	defer ss.lock.RUnlock()
	clone.signers = append(clone.signers, ss.signers...)
	return clone
}

// Sign runs every callback over body, in insertion order.
func (ss *SignerSet) Sign(body []byte) ([]SignaturePair, error) {
	if ss == nil {
		return nil, NoSignersError
	}
	ss.lock.RLock()
	signers := append([]signer(nil), ss.signers...)
	ss.lock.RUnlock()
	if len(signers) == 0 {
		return nil, NoSignersError
	}
	pairs := make([]SignaturePair, 0, len(signers))
	for idx, s := range signers {
		signature, err := s.sign(body)
		if err != nil {
			return nil, utils.FormatWarning("signer failed", sdkerrors.Wrap(SignCallbackError, err.Error()),
				utils.LogAttr("index", idx),
				utils.LogAttr("publicKey", s.publicKey),
			)
		}
		pairs = append(pairs, SignaturePair{PublicKey: s.publicKey, Signature: signature})
	}
	return pairs, nil
}

// Verify checks every pair against body.
func Verify(body []byte, pairs []SignaturePair) error {
	for idx, pair := range pairs {
		if !pair.PublicKey.Verify(body, pair.Signature) {
			return utils.FormatWarning("signature check failed", SignatureCheckError,
				utils.LogAttr("index", idx),
				utils.LogAttr("publicKey", pair.PublicKey),
			)
		}
	}
	return nil
}
