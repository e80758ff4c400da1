package sigs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeysSignAndVerify(t *testing.T) {
	edKey, err := GenerateEd25519()
	require.NoError(t, err)
	ecKey, err := GenerateSecp256k1()
	require.NoError(t, err)

	message := []byte("transaction body bytes")
	for _, key := range []PrivateKey{edKey, ecKey} {
		signature, err := key.Sign(message)
		require.NoError(t, err)
		require.True(t, key.PublicKey().Verify(message, signature), key.PublicKey().Scheme().String())
		require.False(t, key.PublicKey().Verify([]byte("other body"), signature))
	}
}

func TestSecp256k1SignatureIsRS(t *testing.T) {
	key, err := GenerateSecp256k1()
	require.NoError(t, err)
	signature, err := key.Sign([]byte("abc"))
	require.NoError(t, err)
	require.Len(t, signature, 64)
	require.Len(t, key.PublicKey().Bytes(), 33)
}

func TestSignerSetOrderAndDedup(t *testing.T) {
	first, err := GenerateEd25519()
	require.NoError(t, err)
	second, err := GenerateSecp256k1()
	require.NoError(t, err)

	set := NewSignerSet(first, second)
	require.False(t, set.AddKey(first))
	require.Equal(t, 2, set.Len())

	body := []byte("body")
	pairs, err := set.Sign(body)
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	require.Equal(t, first.PublicKey().Bytes(), pairs[0].PublicKey.Bytes())
	require.Equal(t, second.PublicKey().Bytes(), pairs[1].PublicKey.Bytes())
	require.NoError(t, Verify(body, pairs))
	require.ErrorIs(t, Verify([]byte("tampered"), pairs), SignatureCheckError)
}

func TestSignerSetCallbackFailure(t *testing.T) {
	key, err := GenerateEd25519()
	require.NoError(t, err)
	set := &SignerSet{}
	added, err := set.Add(key.PublicKey(), func([]byte) ([]byte, error) { return nil, errors.New("hsm offline") })
	require.NoError(t, err)
	require.True(t, added)

	_, err = set.Sign([]byte("body"))
	require.ErrorIs(t, err, SignCallbackError)

	_, err = set.Add(nil, key.Sign)
	require.ErrorIs(t, err, InvalidSignerError)

	_, err = (&SignerSet{}).Sign([]byte("body"))
	require.ErrorIs(t, err, NoSignersError)
}

func TestSignerSetClone(t *testing.T) {
	key, err := GenerateEd25519()
	require.NoError(t, err)
	other, err := GenerateEd25519()
	require.NoError(t, err)

	set := NewSignerSet(key)
	clone := set.Clone()
	clone.AddKey(other)
	require.Equal(t, 1, set.Len())
	require.Equal(t, 2, clone.Len())
}

func TestParsePrivateKey(t *testing.T) {
	seed := "0102030405060708091011121314151617181920212223242526272829303132"
	plain, err := ParsePrivateKey(seed)
	require.NoError(t, err)
	der, err := ParsePrivateKey(ed25519PrivateKeyDERPrefix + seed)
	require.NoError(t, err)
	require.Equal(t, plain.PublicKey().Bytes(), der.PublicKey().Bytes())
	require.Equal(t, SchemeEd25519, plain.PublicKey().Scheme())

	ec, err := ParsePrivateKey("ecdsa:" + seed)
	require.NoError(t, err)
	require.Equal(t, SchemeECDSASecp256k1, ec.PublicKey().Scheme())

	_, err = ParsePrivateKey("abcd")
	require.Error(t, err)
	_, err = ParsePrivateKey("zz")
	require.Error(t, err)
}
