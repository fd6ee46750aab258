package ledger

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

const wordSize = 32

// Keccak256 returns the Keccak-256 digest of the concatenation of data.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// Selector returns the 4-byte call tag for a canonical function signature,
// e.g. "createLot(uint256,string)".
func Selector(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], Keccak256([]byte(signature)))
	return sel
}

// EventTopic returns the 32-byte topic hash for a canonical event signature,
// e.g. "LotCreated(uint256,string)".
func EventTopic(signature string) [32]byte {
	var topic [32]byte
	copy(topic[:], Keccak256([]byte(signature)))
	return topic
}

// EncodeCall builds a contract call payload: the function selector followed by
// ABI-encoded arguments. Supported argument kinds are *big.Int (uint256,
// right-aligned and zero-padded to a word) and string (offset word in the head,
// length-prefixed padded bytes in the tail).
func EncodeCall(signature string, args ...any) ([]byte, error) {
	sel := Selector(signature)
	head := make([][]byte, len(args))
	var tail []byte
	headSize := wordSize * len(args)

	for i, arg := range args {
		switch a := arg.(type) {
		case *big.Int:
			word, err := uint256Word(a)
			if err != nil {
				return nil, err
			}
			head[i] = word
		case string:
			head[i] = uint64Word(uint64(headSize + len(tail)))
			tail = append(tail, encodeString(a)...)
		default:
			return nil, fmt.Errorf("unsupported abi argument type %T", arg)
		}
	}

	out := make([]byte, 0, len(sel)+headSize+len(tail))
	out = append(out, sel[:]...)
	for _, word := range head {
		out = append(out, word...)
	}
	return append(out, tail...), nil
}

func uint256Word(v *big.Int) ([]byte, error) {
	if v == nil || v.Sign() < 0 || v.BitLen() > 256 {
		return nil, fmt.Errorf("value out of range for uint256")
	}
	word := make([]byte, wordSize)
	v.FillBytes(word)
	return word, nil
}

func uint64Word(v uint64) []byte {
	word := make([]byte, wordSize)
	new(big.Int).SetUint64(v).FillBytes(word)
	return word
}

func encodeString(s string) []byte {
	b := []byte(s)
	padded := (len(b) + wordSize - 1) / wordSize * wordSize
	out := make([]byte, wordSize+padded)
	copy(out, uint64Word(uint64(len(b))))
	copy(out[wordSize:], b)
	return out
}

// decodeLotTuple decodes the contract's lot view return value: the ordered
// 5-tuple (uint256 id, string name, uint8 status, address actor, uint256
// timestamp).
func decodeLotTuple(data []byte) (*LotRecord, error) {
	idWord, err := tupleWord(data, 0)
	if err != nil {
		return nil, err
	}
	offsetWord, err := tupleWord(data, 1)
	if err != nil {
		return nil, err
	}
	statusWord, err := tupleWord(data, 2)
	if err != nil {
		return nil, err
	}
	actorWord, err := tupleWord(data, 3)
	if err != nil {
		return nil, err
	}
	tsWord, err := tupleWord(data, 4)
	if err != nil {
		return nil, err
	}

	name, err := decodeStringAt(data, new(big.Int).SetBytes(offsetWord))
	if err != nil {
		return nil, err
	}

	lotID, err := DecodeLotID(new(big.Int).SetBytes(idWord))
	if err != nil {
		return nil, err
	}

	return &LotRecord{
		LotID:      lotID,
		Name:       name,
		StatusCode: int(new(big.Int).SetBytes(statusWord).Int64()),
		Actor:      "0x" + hex.EncodeToString(actorWord[wordSize-20:]),
		Timestamp:  new(big.Int).SetBytes(tsWord).Int64(),
	}, nil
}

func tupleWord(data []byte, index int) ([]byte, error) {
	start := index * wordSize
	if len(data) < start+wordSize {
		return nil, fmt.Errorf("tuple response truncated: want word %d, have %d bytes", index, len(data))
	}
	return data[start : start+wordSize], nil
}

func decodeStringAt(data []byte, offset *big.Int) (string, error) {
	if !offset.IsInt64() || offset.Int64() < 0 || offset.Int64()+wordSize > int64(len(data)) {
		return "", fmt.Errorf("string offset %s out of bounds", offset)
	}
	start := int(offset.Int64())
	length := new(big.Int).SetBytes(data[start : start+wordSize])
	if !length.IsInt64() || start+wordSize+int(length.Int64()) > len(data) {
		return "", fmt.Errorf("string length %s out of bounds", length)
	}
	return string(data[start+wordSize : start+wordSize+int(length.Int64())]), nil
}

// ParseAddress decodes a 20-byte hex account or contract address.
func ParseAddress(s string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("malformed address %q: %w", s, err)
	}
	if len(raw) != 20 {
		return nil, fmt.Errorf("address %q must be 20 bytes, got %d", s, len(raw))
	}
	return raw, nil
}
