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
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tpmwire/go-tpmwire/tpm2"
)

func newPCRExtendCmd(a *app) *cobra.Command {
	var pcr int
	var data string
	var hmacAuth bool
	cmd := &cobra.Command{
		Use:   "pcrextend",
		Short: "Extend a PCR in the SHA-256 bank with the digest of some data",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkPCRs([]int{pcr}); err != nil {
				return err
			}
			dataBytes, err := hex.DecodeString(data)
			if err != nil {
				return fmt.Errorf("invalid flag 'data': %w", err)
			}
			if len(dataBytes) > 1024 {
				return fmt.Errorf("the data flag value must not exceed 1024 bytes")
			}

			ctx, cancel := a.context(cmd)
			defer cancel()
			handle := tpm2.AuthHandle{Handle: tpm2.TPMHandle(pcr)}
			if hmacAuth {
				// PCRs have an empty auth value; an HMAC session still proves
				// the command reached the TPM unmodified.
				sess, err := tpm2.HMAC(ctx, a.d, tpm2.TPMAlgSHA256, 16)
				if err != nil {
					return err
				}
				defer sess.Close(ctx, a.d)
				handle.Auth = sess
			}
			_, err = tpm2.PCRExtend{
				PCRHandle: handle,
				Digests: tpm2.TPMLDigestValues{
					Digests: []tpm2.TPMTHA{tpm2.HA(tpm2.DigestSHA256(sha256.Sum256(dataBytes)))},
				},
			}.Execute(ctx, a.d)
			if err != nil {
				return fmt.Errorf("unable to extend PCR %d: %w", pcr, err)
			}

			values, err := readPCRs(ctx, a.d, tpm2.TPMAlgSHA256, []int{pcr})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sha256:%d %x\n", pcr, values[0].Value)
			return nil
		},
	}
	cmd.Flags().IntVar(&pcr, "pcr", -1, "PCR to extend. Must be within [0, 23].")
	cmd.Flags().StringVar(&data, "data", "", "The hex encoded bytes with which to extend the PCR. Must not exceed 1024 bytes.")
	cmd.Flags().BoolVar(&hmacAuth, "hmac", false, "Authorize with an HMAC session instead of a password.")
	return cmd
}
