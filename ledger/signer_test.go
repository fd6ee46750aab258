package ledger

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyOne = "0000000000000000000000000000000000000000000000000000000000000001"

func TestNewSigningIdentityDerivesAddress(t *testing.T) {
	// Well-known address for private key 1.
	identity, err := NewSigningIdentity(testKeyOne)
	require.NoError(t, err)
	assert.Equal(t, "0x7e5f4552091a69125d5dfcb7b8c2659029395bdf", identity.Address())

	withPrefix, err := NewSigningIdentity("0x" + testKeyOne)
	require.NoError(t, err)
	assert.Equal(t, identity.Address(), withPrefix.Address())
}

func TestNewSigningIdentityRejectsBadKeys(t *testing.T) {
	_, err := NewSigningIdentity("zz")
	assert.Error(t, err)

	_, err = NewSigningIdentity("abcd")
	assert.Error(t, err)
}

func TestSigningIdentityNeverRendersKeyMaterial(t *testing.T) {
	identity, err := NewSigningIdentity(testKeyOne)
	require.NoError(t, err)
	assert.Equal(t, identity.Address(), identity.String())
	assert.NotContains(t, identity.String(), strings.TrimLeft(testKeyOne, "0"))
}

func TestSignTransaction(t *testing.T) {
	identity, err := NewSigningIdentity(testKeyOne)
	require.NoError(t, err)

	to, err := ParseAddress("0x3535353535353535353535353535353535353535")
	require.NoError(t, err)

	raw, err := identity.SignTransaction(&Transaction{
		Nonce:    9,
		GasPrice: big.NewInt(20000000000),
		GasLimit: 21000,
		To:       to,
		Value:    big.NewInt(1000000000000000000),
		Data:     nil,
	}, 1)
	require.NoError(t, err)

	// A legacy payload this size frames as a single-byte-length list.
	require.Greater(t, len(raw), 2)
	assert.Equal(t, byte(0xf8), raw[0])
	assert.Equal(t, len(raw)-2, int(raw[1]))

	// Same input signs deterministically (RFC 6979 nonces).
	again, err := identity.SignTransaction(&Transaction{
		Nonce:    9,
		GasPrice: big.NewInt(20000000000),
		GasLimit: 21000,
		To:       to,
		Value:    big.NewInt(1000000000000000000),
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, raw, again)
}

func TestSignTransactionRejectsBadRecipient(t *testing.T) {
	identity, err := NewSigningIdentity(testKeyOne)
	require.NoError(t, err)

	_, err = identity.SignTransaction(&Transaction{To: []byte{0x01}}, 1)
	assert.Error(t, err)
}
