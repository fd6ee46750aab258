package ledger

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Transaction is an unsigned legacy ledger transaction.
type Transaction struct {
	Nonce    uint64
	GasPrice *big.Int
	GasLimit uint64
	To       []byte // 20-byte contract address
	Value    *big.Int
	Data     []byte
}

// SigningIdentity is the key material that authorizes ledger transactions on
// behalf of one role. The private key never leaves this struct; String and
// error paths render only the derived address.
type SigningIdentity struct {
	key     *secp256k1.PrivateKey
	address string
}

// NewSigningIdentity derives a signing identity from a 32-byte hex-encoded
// private key (with or without 0x prefix). Error messages never echo the key.
func NewSigningIdentity(privateKeyHex string) (*SigningIdentity, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("private key is not valid hex")
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(raw))
	}
	key := secp256k1.PrivKeyFromBytes(raw)
	pub := key.PubKey().SerializeUncompressed()
	digest := Keccak256(pub[1:])
	return &SigningIdentity{
		key:     key,
		address: "0x" + hex.EncodeToString(digest[12:]),
	}, nil
}

// Address returns the hex form of the identity's 20-byte account address.
func (s *SigningIdentity) Address() string {
	return s.address
}

func (s *SigningIdentity) String() string {
	return s.address
}

// SignTransaction signs tx with EIP-155 replay protection for the given chain
// and returns the raw RLP-encoded transaction ready for submission.
func (s *SigningIdentity) SignTransaction(tx *Transaction, chainID uint64) ([]byte, error) {
	if len(tx.To) != 20 {
		return nil, fmt.Errorf("transaction recipient must be a 20-byte address")
	}

	sigHash := Keccak256(rlpList(
		rlpUint(tx.Nonce),
		rlpBig(tx.GasPrice),
		rlpUint(tx.GasLimit),
		rlpBytes(tx.To),
		rlpBig(tx.Value),
		rlpBytes(tx.Data),
		rlpUint(chainID),
		rlpUint(0),
		rlpUint(0),
	))

	// SignCompact prefixes the recovery code: 27 + recid for uncompressed keys.
	sig := secpecdsa.SignCompact(s.key, sigHash, false)
	recID := uint64(sig[0] - 27)
	r := new(big.Int).SetBytes(sig[1:33])
	sv := new(big.Int).SetBytes(sig[33:65])
	v := chainID*2 + 35 + recID

	return rlpList(
		rlpUint(tx.Nonce),
		rlpBig(tx.GasPrice),
		rlpUint(tx.GasLimit),
		rlpBytes(tx.To),
		rlpBig(tx.Value),
		rlpBytes(tx.Data),
		rlpUint(v),
		rlpBig(r),
		rlpBig(sv),
	), nil
}
