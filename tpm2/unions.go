package tpm2

import (
	"fmt"
	"reflect"
)

// Union is implemented by every variant of every tagged union. A variant
// reports the selector value it belongs under.
type Union interface {
	unionSelector() uint32
}

// SelectorOf returns the selector value under which u is encoded.
func SelectorOf(u Union) uint32 {
	return u.unionSelector()
}

// NewVariant returns the zero value of the variant of U registered for
// selector. A NULL selector yields the zero U (no variant) and no error.
func NewVariant[U Union](selector uint32) (U, error) {
	var zero U
	res, ok := unionResolvers[reflect.TypeOf((*U)(nil)).Elem()]
	if !ok {
		return zero, fmt.Errorf("%v is not a union: %w", reflect.TypeOf((*U)(nil)).Elem(), ErrUnknownSelector)
	}
	v, err := res(selector)
	if err != nil || v == nil {
		return zero, err
	}
	return v.(U), nil
}

type resolver func(selector uint32) (Union, error)

func unknownSelector(union string, selector uint32) error {
	return fmt.Errorf("%w 0x%x for %s", ErrUnknownSelector, selector, union)
}

var unionResolvers = map[reflect.Type]resolver{
	reflect.TypeOf((*TPMUHA)(nil)).Elem(): func(s uint32) (Union, error) {
		v, err := resolveHA(TPMAlgID(s))
		return v, err
	},
	reflect.TypeOf((*TPMUSymKeyBits)(nil)).Elem(): func(s uint32) (Union, error) {
		v, err := resolveSymKeyBits(TPMAlgID(s))
		return v, err
	},
	reflect.TypeOf((*TPMUSymMode)(nil)).Elem(): func(s uint32) (Union, error) {
		v, err := resolveSymMode(TPMAlgID(s))
		return v, err
	},
	reflect.TypeOf((*TPMUSigScheme)(nil)).Elem(): func(s uint32) (Union, error) {
		v, err := resolveSigScheme(TPMAlgID(s))
		return v, err
	},
	reflect.TypeOf((*TPMUAsymScheme)(nil)).Elem(): func(s uint32) (Union, error) {
		v, err := resolveAsymScheme(TPMAlgID(s))
		return v, err
	},
	reflect.TypeOf((*TPMUSchemeKeyedHash)(nil)).Elem(): func(s uint32) (Union, error) {
		v, err := resolveSchemeKeyedHash(TPMAlgID(s))
		return v, err
	},
	reflect.TypeOf((*TPMUKDFScheme)(nil)).Elem(): func(s uint32) (Union, error) {
		v, err := resolveKDFScheme(TPMAlgID(s))
		return v, err
	},
	reflect.TypeOf((*TPMUSignature)(nil)).Elem(): func(s uint32) (Union, error) {
		v, err := resolveSignature(TPMAlgID(s))
		return v, err
	},
	reflect.TypeOf((*TPMUPublicParms)(nil)).Elem(): func(s uint32) (Union, error) {
		v, err := resolvePublicParms(TPMAlgID(s))
		return v, err
	},
	reflect.TypeOf((*TPMUPublicID)(nil)).Elem(): func(s uint32) (Union, error) {
		v, err := resolvePublicID(TPMAlgID(s))
		return v, err
	},
	reflect.TypeOf((*TPMUAttest)(nil)).Elem(): func(s uint32) (Union, error) {
		v, err := resolveAttest(TPMST(s))
		return v, err
	},
	reflect.TypeOf((*TPMUCapabilities)(nil)).Elem(): func(s uint32) (Union, error) {
		v, err := resolveCapabilities(TPMCap(s))
		return v, err
	},
}

// TPMUHA represents a TPMU_HA.
// See definition in Part 2: Structures, section 10.3.1.
type TPMUHA interface {
	Union
	isHA()
}

// Digest variants of TPMUHA.
type (
	DigestSHA1   [20]byte
	DigestSHA256 [32]byte
	DigestSHA384 [48]byte
	DigestSHA512 [64]byte
)

func (DigestSHA1) unionSelector() uint32   { return uint32(TPMAlgSHA1) }
func (DigestSHA256) unionSelector() uint32 { return uint32(TPMAlgSHA256) }
func (DigestSHA384) unionSelector() uint32 { return uint32(TPMAlgSHA384) }
func (DigestSHA512) unionSelector() uint32 { return uint32(TPMAlgSHA512) }
func (DigestSHA1) isHA()                   {}
func (DigestSHA256) isHA()                 {}
func (DigestSHA384) isHA()                 {}
func (DigestSHA512) isHA()                 {}

func resolveHA(alg TPMAlgID) (TPMUHA, error) {
	switch alg {
	case TPMAlgNull:
		return nil, nil
	case TPMAlgSHA1:
		return DigestSHA1{}, nil
	case TPMAlgSHA256:
		return DigestSHA256{}, nil
	case TPMAlgSHA384:
		return DigestSHA384{}, nil
	case TPMAlgSHA512:
		return DigestSHA512{}, nil
	}
	return nil, unknownSelector("TPMU_HA", uint32(alg))
}

// HA wraps a digest into a TPMT_HA tagged with its algorithm.
func HA(d TPMUHA) TPMTHA {
	return TPMTHA{HashAlg: TPMIAlgHash(SelectorOf(d)), Digest: d}
}

// Bytes returns the digest held by a TPMT_HA, or nil for TPM_ALG_NULL.
func (ha TPMTHA) Bytes() []byte {
	switch d := ha.Digest.(type) {
	case DigestSHA1:
		return d[:]
	case DigestSHA256:
		return d[:]
	case DigestSHA384:
		return d[:]
	case DigestSHA512:
		return d[:]
	}
	return nil
}

// TPMUSymKeyBits represents a TPMU_SYM_KEY_BITS.
// See definition in Part 2: Structures, section 11.1.3.
type TPMUSymKeyBits interface {
	Union
	isSymKeyBits()
}

// SymKeyBitsAES is the AES key size in bits.
type SymKeyBitsAES TPMKeyBits

// SymKeyBitsXOR is the hash algorithm driving the XOR obfuscation.
type SymKeyBitsXOR TPMIAlgHash

func (SymKeyBitsAES) unionSelector() uint32 { return uint32(TPMAlgAES) }
func (SymKeyBitsXOR) unionSelector() uint32 { return uint32(TPMAlgXOR) }
func (SymKeyBitsAES) isSymKeyBits()         {}
func (SymKeyBitsXOR) isSymKeyBits()         {}

func resolveSymKeyBits(alg TPMAlgID) (TPMUSymKeyBits, error) {
	switch alg {
	case TPMAlgNull:
		return nil, nil
	case TPMAlgAES:
		return SymKeyBitsAES(0), nil
	case TPMAlgXOR:
		return SymKeyBitsXOR(0), nil
	}
	return nil, unknownSelector("TPMU_SYM_KEY_BITS", uint32(alg))
}

// TPMUSymMode represents a TPMU_SYM_MODE.
// See definition in Part 2: Structures, section 11.1.4.
type TPMUSymMode interface {
	Union
	isSymMode()
}

// SymModeAES is the block cipher mode used with AES.
type SymModeAES TPMIAlgSymMode

// SymModeXOR has no payload: XOR has no mode.
type SymModeXOR struct{}

func (SymModeAES) unionSelector() uint32 { return uint32(TPMAlgAES) }
func (SymModeXOR) unionSelector() uint32 { return uint32(TPMAlgXOR) }
func (SymModeAES) isSymMode()            {}
func (SymModeXOR) isSymMode()            {}

func resolveSymMode(alg TPMAlgID) (TPMUSymMode, error) {
	switch alg {
	case TPMAlgNull:
		return nil, nil
	case TPMAlgAES:
		return SymModeAES(0), nil
	case TPMAlgXOR:
		return SymModeXOR{}, nil
	}
	return nil, unknownSelector("TPMU_SYM_MODE", uint32(alg))
}

// TPMUSigScheme represents a TPMU_SIG_SCHEME.
// See definition in Part 2: Structures, section 11.2.1.4.
type TPMUSigScheme interface {
	Union
	isSigScheme()
}

// TPMUAsymScheme represents a TPMU_ASYM_SCHEME.
// See definition in Part 2: Structures, section 11.2.3.5.
type TPMUAsymScheme interface {
	Union
	isAsymScheme()
}

// TPMUSchemeKeyedHash represents a TPMU_SCHEME_KEYEDHASH.
// See definition in Part 2: Structures, section 11.1.22.
type TPMUSchemeKeyedHash interface {
	Union
	isSchemeKeyedHash()
}

// Scheme variants. Each has the TPMS_SCHEME_HASH layout except RSAES, which
// is empty, and XOR.
type (
	SchemeRSASSA TPMSSchemeHash
	SchemeRSAPSS TPMSSchemeHash
	SchemeECDSA  TPMSSchemeHash
	SchemeHMAC   TPMSSchemeHash
	SchemeOAEP   TPMSSchemeHash
	SchemeECDH   TPMSSchemeHash
	SchemeRSAES  struct{}
)

// SchemeXOR represents a TPMS_SCHEME_XOR.
// See definition in Part 2: Structures, section 11.1.21.
type SchemeXOR struct {
	// the hash algorithm used to generate the mask
	HashAlg TPMIAlgHash `tpm:"1"`
	// the key derivation function
	KDF TPMIAlgKDF `tpm:"2"`
}

func (SchemeRSASSA) unionSelector() uint32 { return uint32(TPMAlgRSASSA) }
func (SchemeRSAPSS) unionSelector() uint32 { return uint32(TPMAlgRSAPSS) }
func (SchemeECDSA) unionSelector() uint32  { return uint32(TPMAlgECDSA) }
func (SchemeHMAC) unionSelector() uint32   { return uint32(TPMAlgHMAC) }
func (SchemeOAEP) unionSelector() uint32   { return uint32(TPMAlgOAEP) }
func (SchemeECDH) unionSelector() uint32   { return uint32(TPMAlgECDH) }
func (SchemeRSAES) unionSelector() uint32  { return uint32(TPMAlgRSAES) }
func (SchemeXOR) unionSelector() uint32    { return uint32(TPMAlgXOR) }

func (SchemeRSASSA) isSigScheme() {}
func (SchemeRSAPSS) isSigScheme() {}
func (SchemeECDSA) isSigScheme()  {}
func (SchemeHMAC) isSigScheme()   {}

func (SchemeRSASSA) isAsymScheme() {}
func (SchemeRSAPSS) isAsymScheme() {}
func (SchemeECDSA) isAsymScheme()  {}
func (SchemeOAEP) isAsymScheme()   {}
func (SchemeECDH) isAsymScheme()   {}
func (SchemeRSAES) isAsymScheme()  {}

func (SchemeHMAC) isSchemeKeyedHash() {}
func (SchemeXOR) isSchemeKeyedHash()  {}

func resolveSigScheme(alg TPMAlgID) (TPMUSigScheme, error) {
	switch alg {
	case TPMAlgNull:
		return nil, nil
	case TPMAlgRSASSA:
		return SchemeRSASSA{}, nil
	case TPMAlgRSAPSS:
		return SchemeRSAPSS{}, nil
	case TPMAlgECDSA:
		return SchemeECDSA{}, nil
	case TPMAlgHMAC:
		return SchemeHMAC{}, nil
	}
	return nil, unknownSelector("TPMU_SIG_SCHEME", uint32(alg))
}

func resolveAsymScheme(alg TPMAlgID) (TPMUAsymScheme, error) {
	switch alg {
	case TPMAlgNull:
		return nil, nil
	case TPMAlgRSASSA:
		return SchemeRSASSA{}, nil
	case TPMAlgRSAPSS:
		return SchemeRSAPSS{}, nil
	case TPMAlgECDSA:
		return SchemeECDSA{}, nil
	case TPMAlgRSAES:
		return SchemeRSAES{}, nil
	case TPMAlgOAEP:
		return SchemeOAEP{}, nil
	case TPMAlgECDH:
		return SchemeECDH{}, nil
	}
	return nil, unknownSelector("TPMU_ASYM_SCHEME", uint32(alg))
}

func resolveSchemeKeyedHash(alg TPMAlgID) (TPMUSchemeKeyedHash, error) {
	switch alg {
	case TPMAlgNull:
		return nil, nil
	case TPMAlgHMAC:
		return SchemeHMAC{}, nil
	case TPMAlgXOR:
		return SchemeXOR{}, nil
	}
	return nil, unknownSelector("TPMU_SCHEME_KEYEDHASH", uint32(alg))
}

// TPMUKDFScheme represents a TPMU_KDF_SCHEME.
// See definition in Part 2: Structures, section 11.2.3.2.
type TPMUKDFScheme interface {
	Union
	isKDFScheme()
}

// KDF scheme variants.
type (
	KDFSchemeMGF1         TPMSSchemeHash
	KDFSchemeKDF1SP80056A TPMSSchemeHash
	KDFSchemeKDF2         TPMSSchemeHash
	KDFSchemeKDF1SP800108 TPMSSchemeHash
)

func (KDFSchemeMGF1) unionSelector() uint32         { return uint32(TPMAlgMGF1) }
func (KDFSchemeKDF1SP80056A) unionSelector() uint32 { return uint32(TPMAlgKDF1SP80056A) }
func (KDFSchemeKDF2) unionSelector() uint32         { return uint32(TPMAlgKDF2) }
func (KDFSchemeKDF1SP800108) unionSelector() uint32 { return uint32(TPMAlgKDF1SP800108) }
func (KDFSchemeMGF1) isKDFScheme()                  {}
func (KDFSchemeKDF1SP80056A) isKDFScheme()          {}
func (KDFSchemeKDF2) isKDFScheme()                  {}
func (KDFSchemeKDF1SP800108) isKDFScheme()          {}

func resolveKDFScheme(alg TPMAlgID) (TPMUKDFScheme, error) {
	switch alg {
	case TPMAlgNull:
		return nil, nil
	case TPMAlgMGF1:
		return KDFSchemeMGF1{}, nil
	case TPMAlgKDF1SP80056A:
		return KDFSchemeKDF1SP80056A{}, nil
	case TPMAlgKDF2:
		return KDFSchemeKDF2{}, nil
	case TPMAlgKDF1SP800108:
		return KDFSchemeKDF1SP800108{}, nil
	}
	return nil, unknownSelector("TPMU_KDF_SCHEME", uint32(alg))
}

// TPMUSignature represents a TPMU_SIGNATURE.
// See definition in Part 2: Structures, section 11.3.3.
type TPMUSignature interface {
	Union
	isSignature()
}

// TPMSSignatureRSA represents a TPMS_SIGNATURE_RSA.
// See definition in Part 2: Structures, section 11.3.1.
type TPMSSignatureRSA struct {
	// the hash algorithm used to digest the message
	Hash TPMIAlgHash `tpm:"1"`
	// The signature is the size of a public key.
	Sig TPM2BPublicKeyRSA `tpm:"2"`
}

// TPMSSignatureECC represents a TPMS_SIGNATURE_ECC.
// See definition in Part 2: Structures, section 11.3.2.
type TPMSSignatureECC struct {
	// the hash algorithm used in the signature process
	Hash       TPMIAlgHash       `tpm:"1"`
	SignatureR TPM2BECCParameter `tpm:"2"`
	SignatureS TPM2BECCParameter `tpm:"3"`
}

// Signature variants.
type (
	SignatureRSASSA TPMSSignatureRSA
	SignatureRSAPSS TPMSSignatureRSA
	SignatureECDSA  TPMSSignatureECC
	SignatureHMAC   TPMTHA
)

func (SignatureRSASSA) unionSelector() uint32 { return uint32(TPMAlgRSASSA) }
func (SignatureRSAPSS) unionSelector() uint32 { return uint32(TPMAlgRSAPSS) }
func (SignatureECDSA) unionSelector() uint32  { return uint32(TPMAlgECDSA) }
func (SignatureHMAC) unionSelector() uint32   { return uint32(TPMAlgHMAC) }
func (SignatureRSASSA) isSignature()          {}
func (SignatureRSAPSS) isSignature()          {}
func (SignatureECDSA) isSignature()           {}
func (SignatureHMAC) isSignature()            {}

func resolveSignature(alg TPMAlgID) (TPMUSignature, error) {
	switch alg {
	case TPMAlgNull:
		return nil, nil
	case TPMAlgRSASSA:
		return SignatureRSASSA{}, nil
	case TPMAlgRSAPSS:
		return SignatureRSAPSS{}, nil
	case TPMAlgECDSA:
		return SignatureECDSA{}, nil
	case TPMAlgHMAC:
		return SignatureHMAC{}, nil
	}
	return nil, unknownSelector("TPMU_SIGNATURE", uint32(alg))
}

// TPMUPublicParms represents a TPMU_PUBLIC_PARMS.
// See definition in Part 2: Structures, section 12.2.3.7.
type TPMUPublicParms interface {
	Union
	isPublicParms()
}

func (TPMSKeyedHashParms) unionSelector() uint32 { return uint32(TPMAlgKeyedHash) }
func (TPMSSymCipherParms) unionSelector() uint32 { return uint32(TPMAlgSymCipher) }
func (TPMSRSAParms) unionSelector() uint32       { return uint32(TPMAlgRSA) }
func (TPMSECCParms) unionSelector() uint32       { return uint32(TPMAlgECC) }
func (TPMSKeyedHashParms) isPublicParms()        {}
func (TPMSSymCipherParms) isPublicParms()        {}
func (TPMSRSAParms) isPublicParms()              {}
func (TPMSECCParms) isPublicParms()              {}

func resolvePublicParms(alg TPMAlgID) (TPMUPublicParms, error) {
	switch alg {
	case TPMAlgKeyedHash:
		return TPMSKeyedHashParms{}, nil
	case TPMAlgSymCipher:
		return TPMSSymCipherParms{}, nil
	case TPMAlgRSA:
		return TPMSRSAParms{}, nil
	case TPMAlgECC:
		return TPMSECCParms{}, nil
	}
	return nil, unknownSelector("TPMU_PUBLIC_PARMS", uint32(alg))
}

// TPMUPublicID represents a TPMU_PUBLIC_ID.
// See definition in Part 2: Structures, section 12.2.3.2.
type TPMUPublicID interface {
	Union
	isPublicID()
}

// Unique identifier variants.
type (
	KeyedHashID TPM2BDigest
	SymCipherID TPM2BDigest
	RSAID       TPM2BPublicKeyRSA
	ECCID       TPMSECCPoint
)

func (KeyedHashID) unionSelector() uint32 { return uint32(TPMAlgKeyedHash) }
func (SymCipherID) unionSelector() uint32 { return uint32(TPMAlgSymCipher) }
func (RSAID) unionSelector() uint32       { return uint32(TPMAlgRSA) }
func (ECCID) unionSelector() uint32       { return uint32(TPMAlgECC) }
func (KeyedHashID) isPublicID()           {}
func (SymCipherID) isPublicID()           {}
func (RSAID) isPublicID()                 {}
func (ECCID) isPublicID()                 {}

func resolvePublicID(alg TPMAlgID) (TPMUPublicID, error) {
	switch alg {
	case TPMAlgKeyedHash:
		return KeyedHashID{}, nil
	case TPMAlgSymCipher:
		return SymCipherID{}, nil
	case TPMAlgRSA:
		return RSAID{}, nil
	case TPMAlgECC:
		return ECCID{}, nil
	}
	return nil, unknownSelector("TPMU_PUBLIC_ID", uint32(alg))
}

// TPMUAttest represents a TPMU_ATTEST.
// See definition in Part 2: Structures, section 10.12.11.
type TPMUAttest interface {
	Union
	isAttest()
}

func (TPMSCertifyInfo) unionSelector() uint32  { return uint32(TPMSTAttestCertify) }
func (TPMSQuoteInfo) unionSelector() uint32    { return uint32(TPMSTAttestQuote) }
func (TPMSCreationInfo) unionSelector() uint32 { return uint32(TPMSTAttestCreation) }
func (TPMSCertifyInfo) isAttest()              {}
func (TPMSQuoteInfo) isAttest()                {}
func (TPMSCreationInfo) isAttest()             {}

func resolveAttest(st TPMST) (TPMUAttest, error) {
	switch st {
	case TPMSTAttestCertify:
		return TPMSCertifyInfo{}, nil
	case TPMSTAttestQuote:
		return TPMSQuoteInfo{}, nil
	case TPMSTAttestCreation:
		return TPMSCreationInfo{}, nil
	}
	return nil, unknownSelector("TPMU_ATTEST", uint32(st))
}

// TPMUCapabilities represents a TPMU_CAPABILITIES.
// See definition in Part 2: Structures, section 10.10.1.
type TPMUCapabilities interface {
	Union
	isCapabilities()
}

func (TPMLAlgProperty) unionSelector() uint32       { return uint32(TPMCapAlgs) }
func (TPMLHandle) unionSelector() uint32            { return uint32(TPMCapHandles) }
func (TPMLCCA) unionSelector() uint32               { return uint32(TPMCapCommands) }
func (TPMLPCRSelection) unionSelector() uint32      { return uint32(TPMCapPCRs) }
func (TPMLTaggedTPMProperty) unionSelector() uint32 { return uint32(TPMCapTPMProperties) }
func (TPMLAlgProperty) isCapabilities()             {}
func (TPMLHandle) isCapabilities()                  {}
func (TPMLCCA) isCapabilities()                     {}
func (TPMLPCRSelection) isCapabilities()            {}
func (TPMLTaggedTPMProperty) isCapabilities()       {}

func resolveCapabilities(c TPMCap) (TPMUCapabilities, error) {
	switch c {
	case TPMCapAlgs:
		return TPMLAlgProperty{}, nil
	case TPMCapHandles:
		return TPMLHandle{}, nil
	case TPMCapCommands:
		return TPMLCCA{}, nil
	case TPMCapPCRs:
		return TPMLPCRSelection{}, nil
	case TPMCapTPMProperties:
		return TPMLTaggedTPMProperty{}, nil
	}
	return nil, unknownSelector("TPMU_CAPABILITIES", uint32(c))
}
