package tpm2

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewVariant(t *testing.T) {
	v, err := NewVariant[TPMUHA](uint32(TPMAlgSHA256))
	if err != nil {
		t.Fatalf("NewVariant() = %v", err)
	}
	if _, ok := v.(DigestSHA256); !ok {
		t.Errorf("NewVariant(SHA256) = %T, want DigestSHA256", v)
	}
	if got := SelectorOf(v); got != uint32(TPMAlgSHA256) {
		t.Errorf("SelectorOf() = 0x%x", got)
	}

	parms, err := NewVariant[TPMUPublicParms](uint32(TPMAlgECC))
	if err != nil {
		t.Fatalf("NewVariant() = %v", err)
	}
	if _, ok := parms.(TPMSECCParms); !ok {
		t.Errorf("NewVariant(ECC) = %T, want TPMSECCParms", parms)
	}
}

func TestNewVariantNull(t *testing.T) {
	v, err := NewVariant[TPMUSymMode](uint32(TPMAlgNull))
	if err != nil || v != nil {
		t.Errorf("NewVariant(NULL) = %v, %v; want nil, nil", v, err)
	}
}

func TestNewVariantUnknownSelector(t *testing.T) {
	_, err := NewVariant[TPMUHA](uint32(TPMAlgAES))
	if !errors.Is(err, ErrUnknownSelector) {
		t.Fatalf("NewVariant(AES) = %v, want %v", err, ErrUnknownSelector)
	}
	// Public parameters have no NULL variant.
	if _, err := NewVariant[TPMUPublicParms](uint32(TPMAlgNull)); !errors.Is(err, ErrUnknownSelector) {
		t.Errorf("NewVariant[TPMUPublicParms](NULL) = %v, want %v", err, ErrUnknownSelector)
	}
}

// Every variant a resolver returns must report the selector it was resolved
// from; otherwise a decoded value would not encode again.
func TestResolversAgreeWithVariants(t *testing.T) {
	selectors := []uint32{
		uint32(TPMAlgRSA), uint32(TPMAlgSHA1), uint32(TPMAlgHMAC), uint32(TPMAlgAES),
		uint32(TPMAlgMGF1), uint32(TPMAlgKeyedHash), uint32(TPMAlgXOR), uint32(TPMAlgSHA256),
		uint32(TPMAlgSHA384), uint32(TPMAlgSHA512), uint32(TPMAlgRSASSA), uint32(TPMAlgRSAES),
		uint32(TPMAlgRSAPSS), uint32(TPMAlgOAEP), uint32(TPMAlgECDSA), uint32(TPMAlgECDH),
		uint32(TPMAlgKDF1SP80056A), uint32(TPMAlgKDF2), uint32(TPMAlgKDF1SP800108),
		uint32(TPMAlgECC), uint32(TPMAlgSymCipher),
		uint32(TPMSTAttestCertify), uint32(TPMSTAttestQuote), uint32(TPMSTAttestCreation),
		uint32(TPMCapAlgs), uint32(TPMCapHandles), uint32(TPMCapCommands), uint32(TPMCapPCRs),
		uint32(TPMCapTPMProperties),
	}
	for typ, resolve := range unionResolvers {
		resolved := 0
		for _, sel := range selectors {
			v, err := resolve(sel)
			if err != nil {
				if !errors.Is(err, ErrUnknownSelector) {
					t.Errorf("%v: resolve(0x%x) = %v", typ, sel, err)
				}
				continue
			}
			resolved++
			if got := SelectorOf(v); got != sel {
				t.Errorf("%v: %T resolved from 0x%x reports selector 0x%x", typ, v, sel, got)
			}
		}
		if resolved == 0 {
			t.Errorf("%v: no selector resolved", typ)
		}
	}
}

func TestHA(t *testing.T) {
	d := DigestSHA1{1, 2, 3}
	ha := HA(d)
	if ha.HashAlg != TPMAlgSHA1 {
		t.Errorf("HA().HashAlg = 0x%x", ha.HashAlg)
	}
	if diff := cmp.Diff(d[:], ha.Bytes()); diff != "" {
		t.Errorf("Bytes() (-want +got):\n%s", diff)
	}
	if b := (TPMTHA{HashAlg: TPMAlgNull}).Bytes(); b != nil {
		t.Errorf("NULL Bytes() = %x, want nil", b)
	}
}
