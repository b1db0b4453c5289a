package tpm2

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func rsaTemplate() TPMTPublic {
	return TPMTPublic{
		Type:    TPMAlgRSA,
		NameAlg: TPMAlgSHA256,
		ObjectAttributes: TPMAObjectFixedTPM | TPMAObjectFixedParent | TPMAObjectSensitiveDataOrigin |
			TPMAObjectUserWithAuth | TPMAObjectRestricted | TPMAObjectDecrypt | TPMAObjectNoDA,
		Parameters: TPMSRSAParms{
			Symmetric: TPMTSymDef{
				Algorithm: TPMAlgAES,
				KeyBits:   SymKeyBitsAES(128),
				Mode:      SymModeAES(TPMAlgCFB),
			},
			Scheme:  TPMTRSAScheme{Scheme: TPMAlgNull},
			KeyBits: 2048,
		},
		Unique: RSAID{Buffer: bytes.Repeat([]byte{0x5a}, 256)},
	}
}

func eccTemplate() TPMTPublic {
	return TPMTPublic{
		Type:             TPMAlgECC,
		NameAlg:          TPMAlgSHA256,
		ObjectAttributes: TPMAObjectFixedTPM | TPMAObjectFixedParent | TPMAObjectSensitiveDataOrigin | TPMAObjectUserWithAuth | TPMAObjectSignEncrypt,
		AuthPolicy:       TPM2BDigest{Buffer: bytes.Repeat([]byte{1}, 32)},
		Parameters: TPMSECCParms{
			Symmetric: TPMTSymDef{Algorithm: TPMAlgNull},
			Scheme: TPMTECCScheme{
				Scheme:  TPMAlgECDSA,
				Details: SchemeECDSA{HashAlg: TPMAlgSHA256},
			},
			CurveID: TPMECCNistP256,
			KDF:     TPMTKDFScheme{Scheme: TPMAlgNull},
		},
		Unique: ECCID{
			X: TPM2BECCParameter{Buffer: bytes.Repeat([]byte{2}, 32)},
			Y: TPM2BECCParameter{Buffer: bytes.Repeat([]byte{3}, 32)},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   TPMTPublic
	}{
		{"rsa", rsaTemplate()},
		{"ecc", eccTemplate()},
		{"keyedhash", TPMTPublic{
			Type:    TPMAlgKeyedHash,
			NameAlg: TPMAlgSHA1,
			Parameters: TPMSKeyedHashParms{
				Scheme: TPMTKeyedHashScheme{
					Scheme:  TPMAlgXOR,
					Details: SchemeXOR{HashAlg: TPMAlgSHA1, KDF: TPMAlgKDF1SP800108},
				},
			},
			Unique: KeyedHashID{},
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			data, err := Marshal(tc.in)
			if err != nil {
				t.Fatalf("Marshal() = %v", err)
			}
			got, err := Unmarshal[TPMTPublic](data)
			if err != nil {
				t.Fatalf("Unmarshal() = %v", err)
			}
			if diff := cmp.Diff(tc.in, *got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("round trip (-want +got):\n%s", diff)
			}
			again, err := Marshal(got)
			if err != nil {
				t.Fatalf("Marshal() of decoded value = %v", err)
			}
			if !bytes.Equal(data, again) {
				t.Errorf("re-encoding differs:\n%x\n%x", data, again)
			}
		})
	}
}

func TestMarshalBytes(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   interface{}
		want string
	}{
		{"scalar", uint32(5), "00000005"},
		{"pointer", &TPMSTaggedProperty{Property: TPMPTManufacturer, Value: 0x49424d00}, "0000010549424d00"},
		{"aes sym def", TPMTSymDef{Algorithm: TPMAlgAES, KeyBits: SymKeyBitsAES(128), Mode: SymModeAES(TPMAlgCFB)}, "000600800043"},
		{"xor sym def", TPMTSymDef{Algorithm: TPMAlgXOR, KeyBits: SymKeyBitsXOR(TPMAlgSHA256), Mode: SymModeXOR{}}, "000a000b"},
		{"null sym def", TPMTSymDef{Algorithm: TPMAlgNull}, "0010"},
		{"pcr read", PCRRead{PCRSelectionIn: PCRSelection(TPMAlgSHA256, 0)}, "00000001000b03010000"},
		{"pcr selection", PCRSelection(TPMAlgSHA1, 0, 7, 23), "000000010004038100" + "80"},
		{"handles are skipped", PCRExtend{
			PCRHandle: AuthHandle{Handle: 16},
			Digests:   TPMLDigestValues{Digests: []TPMTHA{HA(DigestSHA1{0xff})}},
		}, "000000010004ff" + "00000000000000000000000000000000000000"},
		{"empty optional", TPM2BPublic{}, "0000"},
		{"empty non-optional", TPM2BCreationData{}, "000f000000000000000000000000000000"},
		{"bool", TPMSClockInfo{Clock: 1, Safe: true}, "0000000000000001" + "00000000" + "00000000" + "01"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Marshal(tc.in)
			if err != nil {
				t.Fatalf("Marshal() = %v", err)
			}
			if want := mustHex(t, tc.want); !bytes.Equal(got, want) {
				t.Errorf("Marshal() = %x\nwant %x", got, want)
			}
		})
	}
}

func TestMarshalNilPointer(t *testing.T) {
	if _, err := Marshal((*TPMTPublic)(nil)); err == nil {
		t.Errorf("Marshal(nil) succeeded")
	}
}

func TestUnmarshalTruncated(t *testing.T) {
	data, err := Marshal(eccTemplate())
	if err != nil {
		t.Fatalf("Marshal() = %v", err)
	}
	for i := 0; i < len(data); i++ {
		if _, err := Unmarshal[TPMTPublic](data[:i]); !errors.Is(err, ErrTruncatedBuffer) {
			t.Errorf("Unmarshal() of %d of %d bytes = %v, want %v", i, len(data), err, ErrTruncatedBuffer)
		}
	}
}

func TestUnmarshalSizeMismatch(t *testing.T) {
	for _, tc := range []struct {
		name string
		data string
		want error
	}{
		{"unused bytes in sized", "0005" + "0000" + "0000" + "00", ErrSizeMismatch},
		{"bytes after value", "0004" + "0000" + "0000" + "ff", ErrSizeMismatch},
		{"sized too small", "0003" + "0000" + "0000", ErrTruncatedBuffer},
		{"sized past the end", "0006" + "0000" + "0000", ErrTruncatedBuffer},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Unmarshal[TPM2BSensitiveCreate](mustHex(t, tc.data))
			if !errors.Is(err, tc.want) {
				t.Errorf("Unmarshal() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestArrayTooLong(t *testing.T) {
	if _, err := Marshal(TPM2BDigest{Buffer: make([]byte, 65)}); !errors.Is(err, ErrArrayTooLong) {
		t.Errorf("Marshal() of a 65-byte digest = %v, want %v", err, ErrArrayTooLong)
	}
	data := append([]byte{0x00, 0x41}, make([]byte, 65)...)
	if _, err := Unmarshal[TPM2BDigest](data); !errors.Is(err, ErrArrayTooLong) {
		t.Errorf("Unmarshal() of a 65-byte digest = %v, want %v", err, ErrArrayTooLong)
	}
	if _, err := Marshal(TPMLPCRSelection{PCRSelections: make([]TPMSPCRSelection, 17)}); !errors.Is(err, ErrArrayTooLong) {
		t.Errorf("Marshal() of 17 PCR selections = %v, want %v", err, ErrArrayTooLong)
	}
}

func TestUnionSelectorErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   TPMTHA
		want error
	}{
		{"wrong variant", TPMTHA{HashAlg: TPMAlgSHA1, Digest: DigestSHA256{}}, ErrSelectorMismatch},
		{"missing variant", TPMTHA{HashAlg: TPMAlgSHA256}, ErrSelectorMismatch},
		{"variant under NULL", TPMTHA{HashAlg: TPMAlgNull, Digest: DigestSHA1{}}, ErrSelectorMismatch},
		{"unknown selector", TPMTHA{HashAlg: TPMAlgAES, Digest: DigestSHA1{}}, ErrUnknownSelector},
		{"pointer variant", TPMTHA{HashAlg: TPMAlgSHA256, Digest: &DigestSHA256{}}, ErrSelectorMismatch},
		{"nil pointer variant", TPMTHA{HashAlg: TPMAlgSHA256, Digest: (*DigestSHA256)(nil)}, ErrSelectorMismatch},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Marshal(tc.in); !errors.Is(err, tc.want) {
				t.Errorf("Marshal() = %v, want %v", err, tc.want)
			}
		})
	}

	if _, err := Unmarshal[TPMTHA](mustHex(t, "0006")); !errors.Is(err, ErrUnknownSelector) {
		t.Errorf("Unmarshal() with selector AES = %v, want %v", err, ErrUnknownSelector)
	}
	got, err := Unmarshal[TPMTHA](mustHex(t, "0010"))
	if err != nil {
		t.Fatalf("Unmarshal() with NULL selector = %v", err)
	}
	if got.Digest != nil {
		t.Errorf("NULL selector decoded variant %T", got.Digest)
	}
}

func TestUnmarshalBool(t *testing.T) {
	prefix := "0000000000000001" + "00000002" + "00000003"
	got, err := Unmarshal[TPMSClockInfo](mustHex(t, prefix+"01"))
	if err != nil {
		t.Fatalf("Unmarshal() = %v", err)
	}
	want := TPMSClockInfo{Clock: 1, ResetCount: 2, RestartCount: 3, Safe: true}
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("Unmarshal() (-want +got):\n%s", diff)
	}
	if _, err := Unmarshal[TPMSClockInfo](mustHex(t, prefix+"02")); err == nil {
		t.Errorf("Unmarshal() accepted 2 as a boolean")
	}
}

func TestOptionalSized(t *testing.T) {
	got, err := Unmarshal[TPM2BPublic]([]byte{0, 0})
	if err != nil {
		t.Fatalf("Unmarshal() = %v", err)
	}
	if diff := cmp.Diff(TPM2BPublic{}, *got); diff != "" {
		t.Errorf("empty TPM2B_PUBLIC (-want +got):\n%s", diff)
	}

	// A required sized structure cannot be empty.
	if _, err := Unmarshal[TPM2BCreationData]([]byte{0, 0}); !errors.Is(err, ErrTruncatedBuffer) {
		t.Errorf("Unmarshal() of empty TPM2B_CREATION_DATA = %v, want %v", err, ErrTruncatedBuffer)
	}

	in := TPM2BPublic{PublicArea: eccTemplate()}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() = %v", err)
	}
	if size := int(data[0])<<8 | int(data[1]); size != len(data)-2 {
		t.Errorf("size prefix %d, want %d", size, len(data)-2)
	}
	out, err := Unmarshal[TPM2BPublic](data)
	if err != nil {
		t.Fatalf("Unmarshal() = %v", err)
	}
	if diff := cmp.Diff(in, *out, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestDecodePrefix(t *testing.T) {
	data := mustHex(t, "000b"+"0000000000000000000000000000000000000000000000000000000000000001"+"ffff")
	var ha TPMTHA
	n, err := Decode(data, &ha)
	if err != nil {
		t.Fatalf("Decode() = %v", err)
	}
	if n != 34 {
		t.Errorf("Decode() consumed %d bytes, want 34", n)
	}
	if d, ok := ha.Digest.(DigestSHA256); !ok || d[31] != 1 {
		t.Errorf("Decode() = %+v", ha)
	}

	before := ha
	if _, err := Decode(data[:20], &ha); !errors.Is(err, ErrTruncatedBuffer) {
		t.Errorf("Decode() of a short buffer = %v, want %v", err, ErrTruncatedBuffer)
	}
	if diff := cmp.Diff(before, ha); diff != "" {
		t.Errorf("failed Decode() modified its target (-before +after):\n%s", diff)
	}
	if _, err := Decode(data, ha); err == nil {
		t.Errorf("Decode() into a non-pointer succeeded")
	}
}

func TestUnmarshalPCRReadResponse(t *testing.T) {
	data := mustHex(t, "00000007"+"00000001"+"000b"+"03"+"010000"+"00000001"+"0020"+
		"0000000000000000000000000000000000000000000000000000000000000000")
	got, err := Unmarshal[PCRReadResponse](data)
	if err != nil {
		t.Fatalf("Unmarshal() = %v", err)
	}
	want := PCRReadResponse{
		PCRUpdateCounter: 7,
		PCRSelectionOut:  PCRSelection(TPMAlgSHA256, 0),
		PCRValues:        TPMLDigest{Digests: []TPM2BDigest{{Buffer: make([]byte, 32)}}},
	}
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("Unmarshal() (-want +got):\n%s", diff)
	}
}
