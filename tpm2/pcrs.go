package tpm2

import (
	"fmt"
)

// pcrSelectionFormatter is a Platform TPM Profile-specific interface for
// formatting TPM PCR selections.
type pcrSelectionFormatter interface {
	// PCRs returns the TPM PCR selection bitmask associated with the given PCR indices.
	// May panic if passed invalid PCR indices (e.g., negative values).
	PCRs(pcrs ...int) []byte
}

// PCClientCompatible is a pcrSelectionFormatter that formats PCR selections
// suitable for use in PC Client PTP-compatible TPMs (the vast majority):
// https://trustedcomputinggroup.org/resource/pc-client-platform-tpm-profile-ptp-specification/
// PC Client mandates at least 24 PCRs but does not provide an upper limit.
var PCClientCompatible pcrSelectionFormatter = pcClient{}

type pcClient struct{}

// The TPM requires all PCR selections to be at least big enough to select all
// the PCRs in the minimum PCR allocation.
const pcClientMinimumPCRCount = 24

func (pcClient) PCRs(pcrs ...int) []byte {
	maxPCR := 0
	for _, pcr := range pcrs {
		if pcr > maxPCR {
			maxPCR = pcr
		}
	}
	selectionSize := maxPCR/8 + 1
	if selectionSize < pcClientMinimumPCRCount/8 {
		selectionSize = pcClientMinimumPCRCount / 8
	}

	selection := make([]byte, selectionSize)
	for _, pcr := range pcrs {
		if pcr < 0 {
			panic(fmt.Sprintf("invalid PCR index %v selected", pcr))
		}
		// Byte-wise little-endian, bit-wise big-endian: bit 0 of select[0]
		// is PCR 0, bit 0 of select[1] is PCR 8.
		selection[pcr/8] |= 1 << (pcr % 8)
	}
	return selection
}

// PCRSelection returns a selection of the given PCRs in the bank of hash,
// formatted for a PC Client TPM.
func PCRSelection(hash TPMIAlgHash, pcrs ...int) TPMLPCRSelection {
	return TPMLPCRSelection{
		PCRSelections: []TPMSPCRSelection{{
			Hash:      hash,
			PCRSelect: PCClientCompatible.PCRs(pcrs...),
		}},
	}
}

// PCRs returns the indices of the PCRs selected in s, in ascending order.
func (s TPMSPCRSelection) PCRs() []int {
	var pcrs []int
	for i, b := range s.PCRSelect {
		for bit := 0; bit < 8; bit++ {
			if b&(1<<bit) != 0 {
				pcrs = append(pcrs, i*8+bit)
			}
		}
	}
	return pcrs
}

// PCRValue is one PCR reading.
type PCRValue struct {
	Hash  TPMIAlgHash
	Index int
	Value []byte
}

// Readings pairs the selection a TPM2_PCR_Read answered with the digests it
// returned. The TPM returns the digests in selection order: by bank in the
// order the banks were selected, then by ascending index. Readings keeps that
// order.
func (r *PCRReadResponse) Readings() ([]PCRValue, error) {
	var out []PCRValue
	i := 0
	for _, sel := range r.PCRSelectionOut.PCRSelections {
		for _, pcr := range sel.PCRs() {
			if i >= len(r.PCRValues.Digests) {
				return nil, fmt.Errorf("%w: selection names more PCRs than the %d digests returned", ErrSizeMismatch, len(r.PCRValues.Digests))
			}
			out = append(out, PCRValue{Hash: sel.Hash, Index: pcr, Value: r.PCRValues.Digests[i].Buffer})
			i++
		}
	}
	if i != len(r.PCRValues.Digests) {
		return nil, fmt.Errorf("%w: %d digests returned for %d selected PCRs", ErrSizeMismatch, len(r.PCRValues.Digests), i)
	}
	return out, nil
}
