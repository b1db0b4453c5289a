package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tpmwire/go-tpmwire/tpm2"
)

func newCapsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "caps",
		Short: "Describe the TPM: manufacturer, firmware and PCR banks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			w := cmd.OutOrStdout()

			rsp, err := tpm2.GetCapability{
				Capability:    tpm2.TPMCapTPMProperties,
				Property:      uint32(tpm2.TPMPTManufacturer),
				PropertyCount: uint32(tpm2.TPMPTFirmwareVersion1 - tpm2.TPMPTManufacturer + 1),
			}.Execute(ctx, a.d)
			if err != nil {
				return fmt.Errorf("unable to get TPM properties: %w", err)
			}
			props, ok := rsp.CapabilityData.Data.(tpm2.TPMLTaggedTPMProperty)
			if !ok {
				return fmt.Errorf("TPM answered with %T, want TPM properties", rsp.CapabilityData.Data)
			}
			printProperties(w, props)

			rsp, err = tpm2.GetCapability{
				Capability:    tpm2.TPMCapPCRs,
				PropertyCount: 1,
			}.Execute(ctx, a.d)
			if err != nil {
				return fmt.Errorf("unable to get PCR banks: %w", err)
			}
			banks, ok := rsp.CapabilityData.Data.(tpm2.TPMLPCRSelection)
			if !ok {
				return fmt.Errorf("TPM answered with %T, want PCR selections", rsp.CapabilityData.Data)
			}
			for _, sel := range banks.PCRSelections {
				fmt.Fprintf(w, "bank %s: %d PCRs allocated\n", bankName(sel.Hash), len(sel.PCRs()))
			}
			return nil
		},
	}
}

func printProperties(w io.Writer, props tpm2.TPMLTaggedTPMProperty) {
	for _, p := range props.TPMProperty {
		switch p.Property {
		case tpm2.TPMPTManufacturer:
			fmt.Fprintf(w, "manufacturer: %q\n", fourCC(p.Value))
		case tpm2.TPMPTVendorString1:
			fmt.Fprintf(w, "vendor: %q\n", bytes.TrimRight([]byte(fourCC(p.Value)), "\x00"))
		case tpm2.TPMPTFirmwareVersion1:
			fmt.Fprintf(w, "firmware: %d.%d\n", p.Value>>16, p.Value&0xffff)
		}
	}
}

func fourCC(v uint32) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return string(b[:])
}
