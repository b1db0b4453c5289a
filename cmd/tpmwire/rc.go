package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tpmwire/go-tpmwire/tpm2"
)

func newRCCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "rc CODE",
		Short:       "Explain a TPM response code",
		Example:     "  tpmwire rc 0x1c4",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{annotationNoTPM: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseUint(args[0], 0, 32)
			if err != nil {
				return fmt.Errorf("invalid response code %q: %w", args[0], err)
			}
			rc := tpm2.TPMRC(v)
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "0x%03x: %v\n", uint32(rc), rc.Error())
			fmt.Fprintf(w, "kind: %v\n", rc.Kind())
			var fe tpm2.Fmt1Error
			if rc.As(&fe) {
				fmt.Fprintf(w, "canonical: 0x%03x\n", uint32(fe.Code()))
				if ok, i := fe.Handle(); ok {
					fmt.Fprintf(w, "handle: %d\n", i)
				}
				if ok, i := fe.Parameter(); ok {
					fmt.Fprintf(w, "parameter: %d\n", i)
				}
				if ok, i := fe.Session(); ok {
					fmt.Fprintf(w, "session: %d\n", i)
				}
			}
			if rc.IsWarning() {
				fmt.Fprintln(w, "retryable: true")
			}
			return nil
		},
	}
}
