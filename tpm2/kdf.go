package tpm2

import (
	"crypto/hmac"
	"encoding/binary"
)

// KDFa implements TPM 2.0's default key derivation function, as defined in
// section 11.4.9.2 of the TPM revision 2 specification part 1. It returns
// (bits+7)/8 bytes; when bits is not a multiple of 8 the unused high-order
// bits of the first byte are cleared.
func KDFa(hashAlg TPMIAlgHash, key []byte, label string, contextU, contextV []byte, bits int) ([]byte, error) {
	h, err := hashAlg.Hash()
	if err != nil {
		return nil, err
	}
	mac := hmac.New(h.New, key)

	var counter uint32
	remaining := (bits + 7) / 8 // As per note at the bottom of page 44.
	out := make([]byte, 0, remaining+mac.Size())
	for len(out) < remaining {
		counter++
		mac.Reset()
		var word [4]byte
		binary.BigEndian.PutUint32(word[:], counter)
		mac.Write(word[:])
		mac.Write([]byte(label))
		mac.Write([]byte{0}) // Terminating null chacter for C-string.
		mac.Write(contextU)
		mac.Write(contextV)
		binary.BigEndian.PutUint32(word[:], uint32(bits))
		mac.Write(word[:])
		out = mac.Sum(out)
	}
	out = out[:remaining]
	if bits%8 != 0 {
		out[0] &= (1 << uint(bits%8)) - 1
	}
	return out, nil
}
