package simulator

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-tpm-tools/simulator"
	"go.uber.org/zap/zaptest"

	"github.com/tpmwire/go-tpmwire/tpm2"
	testhelper "github.com/tpmwire/go-tpmwire/tpm2/transport/test"
)

func TestSimulator(t *testing.T) {
	testhelper.RunTest(t, nil, OpenSimulator)
}

func TestOnlyOneSimulator(t *testing.T) {
	tpm, err := Open(WithLogger(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	if _, err := Open(); !errors.Is(err, simulator.ErrSimulatorInUse) {
		t.Errorf("second Open() = %v, want %v", err, simulator.ErrSimulatorInUse)
	}
	if err := tpm.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	again, err := Open()
	if err != nil {
		t.Fatalf("Open() after Close() = %v", err)
	}
	again.Close()
}

func primaryName(t *testing.T, seed int64) tpm2.TPM2BName {
	t.Helper()
	tpm, err := Open(WithFixedSeed(seed), WithLogger(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	defer tpm.Close()
	rsp, err := tpm2.CreatePrimary{
		PrimaryHandle: tpm2.AuthHandle{Handle: tpm2.TPMRHOwner},
		InPublic: tpm2.TPM2BPublic{PublicArea: tpm2.TPMTPublic{
			Type:    tpm2.TPMAlgECC,
			NameAlg: tpm2.TPMAlgSHA256,
			ObjectAttributes: tpm2.TPMAObjectFixedTPM | tpm2.TPMAObjectFixedParent |
				tpm2.TPMAObjectSensitiveDataOrigin | tpm2.TPMAObjectUserWithAuth | tpm2.TPMAObjectSignEncrypt,
			Parameters: tpm2.TPMSECCParms{
				Symmetric: tpm2.TPMTSymDef{Algorithm: tpm2.TPMAlgNull},
				Scheme: tpm2.TPMTECCScheme{
					Scheme:  tpm2.TPMAlgECDSA,
					Details: tpm2.SchemeECDSA{HashAlg: tpm2.TPMAlgSHA256},
				},
				CurveID: tpm2.TPMECCNistP256,
				KDF:     tpm2.TPMTKDFScheme{Scheme: tpm2.TPMAlgNull},
			},
			Unique: tpm2.ECCID{},
		}},
	}.Execute(context.Background(), tpm2.NewDispatcher(tpm))
	if err != nil {
		t.Fatalf("CreatePrimary() = %v", err)
	}
	return rsp.Name
}

func TestFixedSeed(t *testing.T) {
	first := primaryName(t, 42)
	if diff := cmp.Diff(first, primaryName(t, 42)); diff != "" {
		t.Errorf("primary key Name changed between runs with the same seed (-first +second):\n%s", diff)
	}
	if cmp.Equal(first, primaryName(t, 43)) {
		t.Errorf("different seeds produced the same primary key")
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	tpm, err := Open(WithLogger(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	defer tpm.Close()
	d := tpm2.NewDispatcher(tpm)

	read := func() []byte {
		t.Helper()
		rsp, err := tpm2.PCRRead{PCRSelectionIn: tpm2.PCRSelection(tpm2.TPMAlgSHA256, 16)}.Execute(ctx, d)
		if err != nil {
			t.Fatalf("PCR_Read() = %v", err)
		}
		return rsp.PCRValues.Digests[0].Buffer
	}
	_, err = tpm2.PCRExtend{
		PCRHandle: tpm2.AuthHandle{Handle: 16},
		Digests: tpm2.TPMLDigestValues{Digests: []tpm2.TPMTHA{
			tpm2.HA(tpm2.DigestSHA256(sha256.Sum256([]byte("boot")))),
		}},
	}.Execute(ctx, d)
	if err != nil {
		t.Fatalf("PCR_Extend() = %v", err)
	}
	if bytes.Equal(read(), make([]byte, 32)) {
		t.Fatalf("PCR 16 unchanged by PCR_Extend")
	}
	if err := tpm.Reset(); err != nil {
		t.Fatalf("Reset() = %v", err)
	}
	if got := read(); !bytes.Equal(got, make([]byte, 32)) {
		t.Errorf("PCR 16 after Reset() = %x, want zeros", got)
	}
}
