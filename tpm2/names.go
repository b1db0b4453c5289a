package tpm2

import (
	"encoding/binary"
)

// HandleName returns the TPM Name of a PCR, session, or permanent value
// (e.g., hierarchy) handle.
func HandleName(h TPMHandle) TPM2BName {
	result := make([]byte, 4)
	binary.BigEndian.PutUint32(result, uint32(h))
	return TPM2BName{
		Buffer: result,
	}
}

// ObjectName returns the TPM Name of an object: its nameAlg followed by the
// nameAlg digest of its public area.
func ObjectName(p *TPMTPublic) (*TPM2BName, error) {
	h, err := p.NameAlg.Hash()
	if err != nil {
		return nil, err
	}

	// Create a byte slice with the correct reserved size and marshal the
	// NameAlg to it.
	result := make([]byte, 2, 2+h.Size())
	binary.BigEndian.PutUint16(result, uint16(p.NameAlg))

	// Calculate the hash of the entire Public contents and append it to the
	// result.
	ha := h.New()
	marshalledPub, err := Marshal(p)
	if err != nil {
		return nil, err
	}
	ha.Write(marshalledPub)
	result = ha.Sum(result)

	return &TPM2BName{
		Buffer: result,
	}, nil
}
