package ledger

import "math/big"

// Minimal RLP encoding, enough to frame legacy transactions. Only encoding is
// needed; the node returns JSON, never RLP.

func rlpBytes(b []byte) []byte {
	if len(b) == 1 && b[0] < 0x80 {
		return []byte{b[0]}
	}
	return append(rlpLength(len(b), 0x80), b...)
}

func rlpList(items ...[]byte) []byte {
	var payload []byte
	for _, item := range items {
		payload = append(payload, item...)
	}
	return append(rlpLength(len(payload), 0xc0), payload...)
}

func rlpLength(n int, offset byte) []byte {
	if n <= 55 {
		return []byte{offset + byte(n)}
	}
	size := minimalBigEndian(uint64(n))
	return append([]byte{offset + 55 + byte(len(size))}, size...)
}

// rlpUint encodes an unsigned integer as its minimal big-endian byte string;
// zero encodes as the empty string.
func rlpUint(v uint64) []byte {
	if v == 0 {
		return []byte{0x80}
	}
	return rlpBytes(minimalBigEndian(v))
}

func rlpBig(v *big.Int) []byte {
	if v == nil || v.Sign() == 0 {
		return []byte{0x80}
	}
	return rlpBytes(v.Bytes())
}

func minimalBigEndian(v uint64) []byte {
	var buf []byte
	for v > 0 {
		buf = append([]byte{byte(v)}, buf...)
		v >>= 8
	}
	return buf
}
