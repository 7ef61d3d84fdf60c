package cryptoutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeypairAddressIsDeterministic(t *testing.T) {
	_, pub, err := GenerateKeypair()
	require.NoError(t, err)

	addr1 := Address(pub)
	addr2 := Address(pub)
	assert.Equal(t, addr1, addr2)
	assert.Len(t, addr1, 64)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	priv, pub, err := GenerateKeypair()
	require.NoError(t, err)

	msg := []byte("some prev txid bytes")
	sig, err := Sign(priv, msg)
	require.NoError(t, err)

	assert.True(t, Verify(PubKeyHex(pub), msg, sig))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	priv, _, err := GenerateKeypair()
	require.NoError(t, err)
	_, otherPub, err := GenerateKeypair()
	require.NoError(t, err)

	msg := []byte("payload")
	sig, err := Sign(priv, msg)
	require.NoError(t, err)

	assert.False(t, Verify(PubKeyHex(otherPub), msg, sig))
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	priv, pub, err := GenerateKeypair()
	require.NoError(t, err)

	sig, err := Sign(priv, []byte("original"))
	require.NoError(t, err)

	assert.False(t, Verify(PubKeyHex(pub), []byte("tampered"), sig))
}

func TestVerifyRejectsMalformedInputs(t *testing.T) {
	assert.False(t, Verify("not-hex!!", []byte("x"), "alsonothex"))
	assert.False(t, Verify("aabb", []byte("x"), "ccdd"))
}
