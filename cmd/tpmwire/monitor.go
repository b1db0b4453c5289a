package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tpmwire/go-tpmwire/tpm2"
)

func newMonitorCmd(a *app) *cobra.Command {
	var bank string
	var pcrs []int
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Poll PCRs and log every change until interrupted",
		Long: "Poll PCRs and log every change until interrupted. With --metrics-listen\n" +
			"the dispatcher metrics of the polling are served for scraping.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			alg, err := parseBank(bank)
			if err != nil {
				return err
			}
			if err := checkPCRs(pcrs); err != nil {
				return err
			}
			if interval <= 0 {
				return fmt.Errorf("invalid flag 'interval': %v", interval)
			}
			return monitor(cmd.Context(), a, alg, pcrs, interval)
		},
	}
	cmd.Flags().StringVar(&bank, "bank", "sha256", "PCR bank: sha1, sha256, sha384 or sha512.")
	cmd.Flags().IntSliceVar(&pcrs, "pcr", []int{0, 1, 2, 3, 4, 5, 6, 7}, "PCRs to watch. Each must be within [0, 23].")
	cmd.Flags().DurationVar(&interval, "interval", 10*time.Second, "Time between polls.")
	return cmd
}

func monitor(ctx context.Context, a *app, bank tpm2.TPMIAlgHash, pcrs []int, interval time.Duration) error {
	last := make(map[int][]byte)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		pollCtx, cancel := context.WithTimeout(ctx, a.timeout)
		values, err := readPCRs(pollCtx, a.d, bank, pcrs)
		cancel()
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			a.log.Warn("polling PCRs failed", zap.Error(err))
		default:
			for _, v := range values {
				if prev, ok := last[v.Index]; !ok || !bytes.Equal(prev, v.Value) {
					a.log.Info("PCR value",
						zap.Int("pcr", v.Index),
						zap.String("bank", bankName(v.Hash)),
						zap.String("value", hex.EncodeToString(v.Value)),
						zap.Bool("changed", ok))
					last[v.Index] = v.Value
				}
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
