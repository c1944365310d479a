package crypto

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBLSSignVerify(t *testing.T) {
	msg := []byte("hello world")
	k1, err := NewBLSPrivateKey()
	require.NoError(t, err)
	k2, err := NewBLSPrivateKey()
	require.NoError(t, err)
	sig := k1.Sign(msg)
	require.Len(t, sig, BLS12381SignatureSize)
	// the signer's own key verifies
	require.True(t, k1.PublicKey().VerifyBytes(msg, sig))
	// a different key doesn't
	require.False(t, k2.PublicKey().VerifyBytes(msg, sig))
	// a different message doesn't
	require.False(t, k1.PublicKey().VerifyBytes([]byte("hello world!"), sig))
}

func TestBLSKeyEncoding(t *testing.T) {
	k, err := NewBLSPrivateKey()
	require.NoError(t, err)
	// private key from string
	fromString, err := NewBLSPrivateKeyFromString(k.String())
	require.NoError(t, err)
	require.True(t, k.Equals(fromString))
	// public key from string
	pub := k.PublicKey()
	require.Len(t, pub.Bytes(), BLS12381PubKeySize)
	pubFromString, err := NewBLSPublicKeyFromString(pub.String())
	require.NoError(t, err)
	require.True(t, pub.Equals(pubFromString))
	// json
	bz, err := json.Marshal(pub)
	require.NoError(t, err)
	got := new(BLS12381PublicKey)
	require.NoError(t, json.Unmarshal(bz, got))
	require.True(t, pub.Equals(got))
	// garbage is rejected
	_, err = NewBLSPublicKeyFromString("abcd")
	require.Error(t, err)
}

func TestPrivateKeyFile(t *testing.T) {
	k, err := NewBLSPrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key")
	require.NoError(t, PrivateKeyToFile(k, path))
	got, err := NewPrivateKeyFromFile(path)
	require.NoError(t, err)
	require.True(t, k.Equals(got))
}
