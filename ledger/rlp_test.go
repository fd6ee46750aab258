package ledger

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Vectors from the reference RLP description.
func TestRlpBytes(t *testing.T) {
	assert.Equal(t, "83646f67", hex.EncodeToString(rlpBytes([]byte("dog"))))
	assert.Equal(t, "80", hex.EncodeToString(rlpBytes(nil)))
	assert.Equal(t, "00", hex.EncodeToString(rlpBytes([]byte{0x00})))
	assert.Equal(t, "7f", hex.EncodeToString(rlpBytes([]byte{0x7f})))
	assert.Equal(t, "8180", hex.EncodeToString(rlpBytes([]byte{0x80})))

	long := bytes.Repeat([]byte{0x61}, 56)
	encoded := rlpBytes(long)
	assert.Equal(t, byte(0xb8), encoded[0])
	assert.Equal(t, byte(56), encoded[1])
	assert.Equal(t, long, encoded[2:])
}

func TestRlpList(t *testing.T) {
	encoded := rlpList(rlpBytes([]byte("cat")), rlpBytes([]byte("dog")))
	assert.Equal(t, "c88363617483646f67", hex.EncodeToString(encoded))

	assert.Equal(t, "c0", hex.EncodeToString(rlpList()))
}

func TestRlpUint(t *testing.T) {
	assert.Equal(t, "80", hex.EncodeToString(rlpUint(0)))
	assert.Equal(t, "0f", hex.EncodeToString(rlpUint(15)))
	assert.Equal(t, "820400", hex.EncodeToString(rlpUint(1024)))
}

func TestRlpBig(t *testing.T) {
	assert.Equal(t, "80", hex.EncodeToString(rlpBig(nil)))
	assert.Equal(t, "80", hex.EncodeToString(rlpBig(new(big.Int))))
	assert.Equal(t, "820400", hex.EncodeToString(rlpBig(big.NewInt(1024))))
}
