// Copyright (c) 2014, Google Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tpmwire/go-tpmwire/tpm2"
)

// maxPCR is the highest PCR index a PC Client TPM must implement.
const maxPCR = 23

var bankNames = map[string]tpm2.TPMIAlgHash{
	"sha1":   tpm2.TPMAlgSHA1,
	"sha256": tpm2.TPMAlgSHA256,
	"sha384": tpm2.TPMAlgSHA384,
	"sha512": tpm2.TPMAlgSHA512,
}

func parseBank(name string) (tpm2.TPMIAlgHash, error) {
	alg, ok := bankNames[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("invalid flag 'bank': unknown hash %q", name)
	}
	return alg, nil
}

func bankName(alg tpm2.TPMIAlgHash) string {
	for name, a := range bankNames {
		if a == alg {
			return name
		}
	}
	return fmt.Sprintf("0x%04x", uint16(alg))
}

func checkPCRs(pcrs []int) error {
	for _, pcr := range pcrs {
		if pcr < 0 || pcr > maxPCR {
			return fmt.Errorf("invalid flag 'pcr': %d is out of range", pcr)
		}
	}
	return nil
}

// readPCRs reads the given PCRs of one bank. A TPM returns at most eight
// digests per TPM2_PCR_Read, so larger selections take several round trips.
func readPCRs(ctx context.Context, d *tpm2.Dispatcher, bank tpm2.TPMIAlgHash, pcrs []int) ([]tpm2.PCRValue, error) {
	var out []tpm2.PCRValue
	remaining := append([]int(nil), pcrs...)
	for len(remaining) > 0 {
		rsp, err := tpm2.PCRRead{PCRSelectionIn: tpm2.PCRSelection(bank, remaining...)}.Execute(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("unable to read PCRs from TPM: %w", err)
		}
		values, err := rsp.Readings()
		if err != nil {
			return nil, err
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("PCR values %v missing from response", remaining)
		}
		read := make(map[int]bool, len(values))
		for _, v := range values {
			read[v.Index] = true
		}
		out = append(out, values...)
		var next []int
		for _, pcr := range remaining {
			if !read[pcr] {
				next = append(next, pcr)
			}
		}
		remaining = next
	}
	return out, nil
}

func newPCRReadCmd(a *app) *cobra.Command {
	var bank string
	var pcrs []int
	cmd := &cobra.Command{
		Use:   "pcrread",
		Short: "Output the values of PCRs in hex",
		RunE: func(cmd *cobra.Command, _ []string) error {
			alg, err := parseBank(bank)
			if err != nil {
				return err
			}
			if err := checkPCRs(pcrs); err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			values, err := readPCRs(ctx, a.d, alg, pcrs)
			if err != nil {
				return err
			}
			for _, v := range values {
				fmt.Fprintf(cmd.OutOrStdout(), "%s:%d %x\n", bankName(v.Hash), v.Index, v.Value)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bank, "bank", "sha256", "PCR bank: sha1, sha256, sha384 or sha512.")
	cmd.Flags().IntSliceVar(&pcrs, "pcr", []int{0}, "PCRs to read. Each must be within [0, 23].")
	return cmd
}
