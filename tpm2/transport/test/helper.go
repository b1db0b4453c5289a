// Package testhelper holds the smoke test every transport package runs
// against the TPM it connects to.
package testhelper

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/tpmwire/go-tpmwire/tpm2"
	"github.com/tpmwire/go-tpmwire/tpm2/transport"
)

// smokeTimeout bounds each command of the smoke test.
const smokeTimeout = 30 * time.Second

func skipOn(t *testing.T, skipErrs []error, err error) {
	t.Helper()
	for _, skipErr := range skipErrs {
		if errors.Is(err, skipErr) {
			t.Skipf("%v", err)
		}
	}
}

// RunTest opens a TPM with tpmOpener and sends it a few read-only commands
// through a dispatcher that logs to the test. Errors matching skipErrs skip
// the test instead of failing it, for TPMs that may be absent.
func RunTest(t *testing.T, skipErrs []error, tpmOpener func() (transport.TPMCloser, error)) {
	t.Helper()
	tpm, err := tpmOpener()
	skipOn(t, skipErrs, err)
	if err != nil {
		t.Fatalf("opening TPM: %v", err)
	}
	t.Cleanup(func() {
		if err := tpm.Close(); err != nil {
			t.Errorf("closing TPM: %v", err)
		}
	})

	log := zaptest.NewLogger(t, zaptest.Level(zap.DebugLevel))
	d := tpm2.NewDispatcher(tpm, tpm2.WithLogger(log))

	for _, tc := range []struct {
		name string
		run  func(ctx context.Context, t *testing.T) error
	}{
		{"manufacturer", func(ctx context.Context, t *testing.T) error {
			rsp, err := tpm2.GetCapability{
				Capability:    tpm2.TPMCapTPMProperties,
				Property:      uint32(tpm2.TPMPTManufacturer),
				PropertyCount: 1,
			}.Execute(ctx, d)
			if err != nil {
				return err
			}
			props, ok := rsp.CapabilityData.Data.(tpm2.TPMLTaggedTPMProperty)
			if !ok || len(props.TPMProperty) != 1 {
				t.Errorf("GetCapability() = %+v, want one TPM property", rsp.CapabilityData)
				return nil
			}
			var id [4]byte
			binary.BigEndian.PutUint32(id[:], props.TPMProperty[0].Value)
			log.Info("TPM manufacturer", zap.ByteString("id", id[:]))
			return nil
		}},
		{"random", func(ctx context.Context, t *testing.T) error {
			rsp, err := tpm2.GetRandom{BytesRequested: 16}.Execute(ctx, d)
			if err != nil {
				return err
			}
			if n := len(rsp.RandomBytes.Buffer); n == 0 || n > 16 {
				t.Errorf("GetRandom(16) returned %d bytes", n)
			}
			return nil
		}},
		{"pcr", func(ctx context.Context, t *testing.T) error {
			rsp, err := tpm2.PCRRead{PCRSelectionIn: tpm2.PCRSelection(tpm2.TPMAlgSHA256, 0)}.Execute(ctx, d)
			if err != nil {
				return err
			}
			if _, err := rsp.Readings(); err != nil {
				t.Errorf("PCR_Read() readings: %v", err)
			}
			return nil
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), smokeTimeout)
			defer cancel()
			err := tc.run(ctx, t)
			skipOn(t, skipErrs, err)
			if err != nil {
				t.Fatalf("%v", err)
			}
		})
	}
}
