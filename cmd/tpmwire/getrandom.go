package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tpmwire/go-tpmwire/tpm2"
)

// maxRandomChunk is the most bytes requested per TPM2_GetRandom; TPMs cap
// the answer at the size of their largest digest.
const maxRandomChunk = 32

func newGetRandomCmd(a *app) *cobra.Command {
	var n int
	var encrypt bool
	cmd := &cobra.Command{
		Use:   "getrandom",
		Short: "Output random bytes from the TPM in hex",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if n <= 0 || n > 4096 {
				return fmt.Errorf("invalid flag 'bytes': %d is out of range", n)
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			var sessions []tpm2.Session
			if encrypt {
				sess, err := tpm2.HMAC(ctx, a.d, tpm2.TPMAlgSHA256, 16,
					tpm2.AESEncryption(128, tpm2.EncryptOut))
				if err != nil {
					return err
				}
				defer sess.Close(ctx, a.d)
				sessions = append(sessions, sess)
			}

			out := make([]byte, 0, n)
			for len(out) < n {
				want := n - len(out)
				if want > maxRandomChunk {
					want = maxRandomChunk
				}
				rsp, err := tpm2.GetRandom{BytesRequested: uint16(want)}.Execute(ctx, a.d, sessions...)
				if err != nil {
					return fmt.Errorf("unable to get random bytes: %w", err)
				}
				if len(rsp.RandomBytes.Buffer) == 0 {
					return fmt.Errorf("TPM returned no random bytes")
				}
				out = append(out, rsp.RandomBytes.Buffer...)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(out[:n]))
			return nil
		},
	}
	cmd.Flags().IntVar(&n, "bytes", 16, "Number of random bytes, at most 4096.")
	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "Have the TPM encrypt the bytes with an AES-128 session.")
	return cmd
}
