package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// ErrInvalidIdentifier is returned when a textual lot identifier cannot be
// converted to the contract's uint256 form. It is raised before any network
// call is attempted.
var ErrInvalidIdentifier = errors.New("invalid lot identifier")

// EncodeLotID converts a textual lot identifier (canonical hyphenated UUID)
// into the single big-endian unsigned integer the contract keys its records by.
// The mapping is total and injective over well-formed identifiers.
func EncodeLotID(lotID string) (*big.Int, error) {
	id, err := uuid.Parse(lotID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, lotID)
	}
	return new(big.Int).SetBytes(id[:]), nil
}

// DecodeLotID is the inverse of EncodeLotID.
func DecodeLotID(v *big.Int) (string, error) {
	if v == nil || v.Sign() < 0 || v.BitLen() > 128 {
		return "", fmt.Errorf("%w: value does not fit a 128-bit identifier", ErrInvalidIdentifier)
	}
	var raw [16]byte
	v.FillBytes(raw[:])
	id, err := uuid.FromBytes(raw[:])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidIdentifier, err)
	}
	return id.String(), nil
}
