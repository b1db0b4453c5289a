// Copyright (c) 2018, Google Inc. All rights reserved.
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

package tpm2

// Scalar types from Part 2: Structures, sections 5 through 9.
type (
	// TPMAlgID represents a TPM_ALG_ID.
	TPMAlgID uint16
	// TPMECCCurve represents a TPM_ECC_CURVE.
	TPMECCCurve uint16
	// TPMCC represents a TPM_CC.
	TPMCC uint32
	// TPMRC represents a TPM_RC.
	TPMRC uint32
	// TPMST represents a TPM_ST.
	TPMST uint16
	// TPMSU represents a TPM_SU.
	TPMSU uint16
	// TPMSE represents a TPM_SE.
	TPMSE uint8
	// TPMCap represents a TPM_CAP.
	TPMCap uint32
	// TPMPT represents a TPM_PT.
	TPMPT uint32
	// TPMHT represents a TPM_HT.
	TPMHT uint8
	// TPMHandle represents a TPM_HANDLE.
	TPMHandle uint32
	// TPMGenerated represents a TPM_GENERATED.
	TPMGenerated uint32
	// TPMKeyBits represents a TPM_KEY_BITS.
	TPMKeyBits uint16
	// TPMASession represents a TPMA_SESSION.
	TPMASession uint8
	// TPMAObject represents a TPMA_OBJECT.
	TPMAObject uint32
	// TPMAAlgorithm represents a TPMA_ALGORITHM.
	TPMAAlgorithm uint32
	// TPMACC represents a TPMA_CC.
	TPMACC uint32
	// TPMALocality represents a TPMA_LOCALITY.
	TPMALocality uint8
)

// Interface types. These restrict the values of the underlying type but are
// encoded the same way.
type (
	TPMIYesNo         = bool
	TPMIAlgHash       = TPMAlgID
	TPMIAlgSym        = TPMAlgID
	TPMIAlgSymObject  = TPMAlgID
	TPMIAlgSymMode    = TPMAlgID
	TPMIAlgKDF        = TPMAlgID
	TPMIAlgSigScheme  = TPMAlgID
	TPMIAlgPublic     = TPMAlgID
	TPMIAlgKeyedHash  = TPMAlgID
	TPMIAlgRSAScheme  = TPMAlgID
	TPMIAlgECCScheme  = TPMAlgID
	TPMIECCCurve      = TPMECCCurve
	TPMIRSAKeyBits    = TPMKeyBits
	TPMIAESKeyBits    = TPMKeyBits
	TPMISTAttest      = TPMST
	TPMIDHObject      = TPMHandle
	TPMIDHEntity      = TPMHandle
	TPMIDHContext     = TPMHandle
	TPMIDHPCR         = TPMHandle
	TPMISHAuthSession = TPMHandle
	TPMISHPolicy      = TPMHandle
	TPMIRHHierarchy   = TPMHandle
)

// TPM2BDigest represents a TPM2B_DIGEST.
// See definition in Part 2: Structures, section 10.4.2.
type TPM2BDigest struct {
	Buffer []byte `tpm:"1,list=2,max=64"`
}

// TPM2BData represents a TPM2B_DATA.
// See definition in Part 2: Structures, section 10.4.3.
type TPM2BData struct {
	Buffer []byte `tpm:"1,list=2,max=64"`
}

// TPM2BNonce represents a TPM2B_NONCE.
// See definition in Part 2: Structures, section 10.4.4.
type TPM2BNonce = TPM2BDigest

// TPM2BAuth represents a TPM2B_AUTH.
// See definition in Part 2: Structures, section 10.4.5.
type TPM2BAuth = TPM2BDigest

// TPM2BMaxBuffer represents a TPM2B_MAX_BUFFER.
// See definition in Part 2: Structures, section 10.4.8.
type TPM2BMaxBuffer struct {
	Buffer []byte `tpm:"1,list=2,max=1024"`
}

// TPM2BName represents a TPM2B_NAME.
// See definition in Part 2: Structures, section 10.5.3.
type TPM2BName struct {
	Buffer []byte `tpm:"1,list=2,max=66"`
}

// TPM2BSensitiveData represents a TPM2B_SENSITIVE_DATA.
// See definition in Part 2: Structures, section 11.1.14.
type TPM2BSensitiveData struct {
	Buffer []byte `tpm:"1,list=2,max=256"`
}

// TPM2BPublicKeyRSA represents a TPM2B_PUBLIC_KEY_RSA.
// See definition in Part 2: Structures, section 11.2.4.5.
type TPM2BPublicKeyRSA struct {
	Buffer []byte `tpm:"1,list=2,max=512"`
}

// TPM2BECCParameter represents a TPM2B_ECC_PARAMETER.
// See definition in Part 2: Structures, section 11.2.5.1.
type TPM2BECCParameter struct {
	Buffer []byte `tpm:"1,list=2,max=128"`
}

// TPM2BEncryptedSecret represents a TPM2B_ENCRYPTED_SECRET.
// See definition in Part 2: Structures, section 11.4.33.
type TPM2BEncryptedSecret struct {
	Secret []byte `tpm:"1,list=2,max=512"`
}

// TPM2BPrivate represents a TPM2B_PRIVATE.
// See definition in Part 2: Structures, section 12.3.7.
type TPM2BPrivate struct {
	Buffer []byte `tpm:"1,list=2"`
}

// TPMSPCRSelection represents a TPMS_PCR_SELECTION.
// See definition in Part 2: Structures, section 10.6.2.
type TPMSPCRSelection struct {
	Hash      TPMIAlgHash `tpm:"1"`
	PCRSelect []byte      `tpm:"2,list=1,max=32"`
}

// TPMLPCRSelection represents a TPML_PCR_SELECTION.
// See definition in Part 2: Structures, section 10.9.7.
type TPMLPCRSelection struct {
	PCRSelections []TPMSPCRSelection `tpm:"1,list,max=16"`
}

// TPMLDigest represents a TPML_DIGEST.
// See definition in Part 2: Structures, section 10.9.3.
type TPMLDigest struct {
	// a list of digests
	Digests []TPM2BDigest `tpm:"1,list,max=8"`
}

// TPMLDigestValues represents a TPML_DIGEST_VALUES.
// See definition in Part 2: Structures, section 10.9.4.
type TPMLDigestValues struct {
	// a list of tagged digests
	Digests []TPMTHA `tpm:"1,list,max=16"`
}

// TPMTHA represents a TPMT_HA.
// See definition in Part 2: Structures, section 10.3.2.
type TPMTHA struct {
	// selector of the hash contained in the digest that implies the size of the digest
	HashAlg TPMIAlgHash `tpm:"1"`
	// the digest data
	Digest TPMUHA `tpm:"2,union=HashAlg"`
}

// TPMSAlgProperty represents a TPMS_ALG_PROPERTY.
// See definition in Part 2: Structures, section 10.8.1.
type TPMSAlgProperty struct {
	Alg           TPMAlgID      `tpm:"1"`
	AlgProperties TPMAAlgorithm `tpm:"2"`
}

// TPMSTaggedProperty represents a TPMS_TAGGED_PROPERTY.
// See definition in Part 2: Structures, section 10.8.2.
type TPMSTaggedProperty struct {
	// a property identifier
	Property TPMPT `tpm:"1"`
	// the value of the property
	Value uint32 `tpm:"2"`
}

// TPMLAlgProperty represents a TPML_ALG_PROPERTY.
// See definition in Part 2: Structures, section 10.9.8.
type TPMLAlgProperty struct {
	AlgProperties []TPMSAlgProperty `tpm:"1,list,max=169"`
}

// TPMLHandle represents a TPML_HANDLE.
// See definition in Part 2: Structures, section 10.9.2.
type TPMLHandle struct {
	Handle []TPMHandle `tpm:"1,list,max=254"`
}

// TPMLCCA represents a TPML_CCA.
// See definition in Part 2: Structures, section 10.9.2.
type TPMLCCA struct {
	CommandAttributes []TPMACC `tpm:"1,list,max=254"`
}

// TPMLTaggedTPMProperty represents a TPML_TAGGED_TPM_PROPERTY.
// See definition in Part 2: Structures, section 10.9.9.
type TPMLTaggedTPMProperty struct {
	TPMProperty []TPMSTaggedProperty `tpm:"1,list,max=127"`
}

// TPMSCapabilityData represents a TPMS_CAPABILITY_DATA.
// See definition in Part 2: Structures, section 10.10.2.
type TPMSCapabilityData struct {
	// the capability
	Capability TPMCap `tpm:"1"`
	// the capability data
	Data TPMUCapabilities `tpm:"2,union=Capability"`
}

// TPMSClockInfo represents a TPMS_CLOCK_INFO.
// See definition in Part 2: Structures, section 10.11.1.
type TPMSClockInfo struct {
	// time value in milliseconds that advances while the TPM is powered
	Clock uint64 `tpm:"1"`
	// number of occurrences of TPM Reset since the last TPM2_Clear()
	ResetCount uint32 `tpm:"2"`
	// number of times that TPM2_Shutdown() or _TPM_Hash_Start have occurred
	// since the last TPM Reset or TPM2_Clear().
	RestartCount uint32 `tpm:"3"`
	// no value of Clock greater than the current value of Clock has been
	// previously reported by the TPM
	Safe TPMIYesNo `tpm:"4"`
}

// TPMSCertifyInfo represents a TPMS_CERTIFY_INFO.
// See definition in Part 2: Structures, section 10.12.3.
type TPMSCertifyInfo struct {
	// Name of the certified object
	Name TPM2BName `tpm:"1"`
	// Qualified Name of the certified object
	QualifiedName TPM2BName `tpm:"2"`
}

// TPMSQuoteInfo represents a TPMS_QUOTE_INFO.
// See definition in Part 2: Structures, section 10.12.4.
type TPMSQuoteInfo struct {
	// information on algID, PCR selected and digest
	PCRSelect TPMLPCRSelection `tpm:"1"`
	// digest of the selected PCR using the hash of the signing key
	PCRDigest TPM2BDigest `tpm:"2"`
}

// TPMSCreationInfo represents a TPMS_CREATION_INFO.
// See definition in Part 2: Structures, section 10.12.7.
type TPMSCreationInfo struct {
	// Name of the object
	ObjectName TPM2BName `tpm:"1"`
	// creationHash
	CreationHash TPM2BDigest `tpm:"2"`
}

// TPMSAttest represents a TPMS_ATTEST.
// See definition in Part 2: Structures, section 10.12.12.
type TPMSAttest struct {
	// the indication that this structure was created by a TPM (always TPM_GENERATED_VALUE)
	Magic TPMGenerated `tpm:"1"`
	// type of the attestation structure
	Type TPMISTAttest `tpm:"2"`
	// Qualified Name of the signing key
	QualifiedSigner TPM2BName `tpm:"3"`
	// external information supplied by caller
	ExtraData TPM2BData `tpm:"4"`
	// Clock, resetCount, restartCount, and Safe
	ClockInfo TPMSClockInfo `tpm:"5"`
	// TPM-vendor-specific value identifying the version number of the firmware
	FirmwareVersion uint64 `tpm:"6"`
	// the type-specific attestation information
	Attested TPMUAttest `tpm:"7,union=Type"`
}

// TPM2BAttest represents a TPM2B_ATTEST.
// See definition in Part 2: Structures, section 10.12.13.
type TPM2BAttest struct {
	AttestationData TPMSAttest `tpm:"1,sized"`
}

// TPMSAuthCommand represents a TPMS_AUTH_COMMAND.
// See definition in Part 2: Structures, section 10.13.2.
type TPMSAuthCommand struct {
	Handle        TPMISHAuthSession `tpm:"1"`
	Nonce         TPM2BNonce        `tpm:"2"`
	Attributes    TPMASession       `tpm:"3"`
	Authorization TPM2BAuth         `tpm:"4"`
}

// TPMSAuthResponse represents a TPMS_AUTH_RESPONSE.
// See definition in Part 2: Structures, section 10.13.3.
type TPMSAuthResponse struct {
	Nonce         TPM2BNonce  `tpm:"1"`
	Attributes    TPMASession `tpm:"2"`
	Authorization TPM2BAuth   `tpm:"3"`
}

// TPMTSymDef represents a TPMT_SYM_DEF.
// See definition in Part 2: Structures, section 11.1.6.
type TPMTSymDef struct {
	// indicates a symmetric algorithm
	Algorithm TPMIAlgSym `tpm:"1"`
	// the key size
	KeyBits TPMUSymKeyBits `tpm:"2,union=Algorithm"`
	// the mode for the key
	Mode TPMUSymMode `tpm:"3,union=Algorithm"`
}

// TPMTSymDefObject represents a TPMT_SYM_DEF_OBJECT.
// See definition in Part 2: Structures, section 11.1.7.
type TPMTSymDefObject = TPMTSymDef

// TPMSSymCipherParms represents a TPMS_SYMCIPHER_PARMS.
// See definition in Part 2: Structures, section 11.1.9.
type TPMSSymCipherParms struct {
	// a symmetric block cipher
	Sym TPMTSymDefObject `tpm:"1"`
}

// TPMSSensitiveCreate represents a TPMS_SENSITIVE_CREATE.
// See definition in Part 2: Structures, section 11.1.15.
type TPMSSensitiveCreate struct {
	// the USER auth secret value.
	UserAuth TPM2BAuth `tpm:"1"`
	// data to be sealed, a key, or derivation values.
	Data TPM2BSensitiveData `tpm:"2"`
}

// TPM2BSensitiveCreate represents a TPM2B_SENSITIVE_CREATE.
// See definition in Part 2: Structures, section 11.1.16.
type TPM2BSensitiveCreate struct {
	Sensitive TPMSSensitiveCreate `tpm:"1,sized"`
}

// TPMSSchemeHash represents a TPMS_SCHEME_HASH.
// See definition in Part 2: Structures, section 11.1.17.
type TPMSSchemeHash struct {
	// the hash algorithm used to digest the message
	HashAlg TPMIAlgHash `tpm:"1"`
}

// TPMTKeyedHashScheme represents a TPMT_KEYEDHASH_SCHEME.
// See definition in Part 2: Structures, section 11.1.23.
type TPMTKeyedHashScheme struct {
	Scheme  TPMIAlgKeyedHash    `tpm:"1"`
	Details TPMUSchemeKeyedHash `tpm:"2,union=Scheme"`
}

// TPMTSigScheme represents a TPMT_SIG_SCHEME.
// See definition in Part 2: Structures, section 11.2.1.5.
type TPMTSigScheme struct {
	Scheme  TPMIAlgSigScheme `tpm:"1"`
	Details TPMUSigScheme    `tpm:"2,union=Scheme"`
}

// TPMTKDFScheme represents a TPMT_KDF_SCHEME.
// See definition in Part 2: Structures, section 11.2.3.3.
type TPMTKDFScheme struct {
	// scheme selector
	Scheme TPMIAlgKDF `tpm:"1"`
	// scheme parameters
	Details TPMUKDFScheme `tpm:"2,union=Scheme"`
}

// TPMTRSAScheme represents a TPMT_RSA_SCHEME.
// See definition in Part 2: Structures, section 11.2.4.2.
type TPMTRSAScheme struct {
	Scheme  TPMIAlgRSAScheme `tpm:"1"`
	Details TPMUAsymScheme   `tpm:"2,union=Scheme"`
}

// TPMTECCScheme represents a TPMT_ECC_SCHEME.
// See definition in Part 2: Structures, section 11.2.5.6.
type TPMTECCScheme struct {
	Scheme  TPMIAlgECCScheme `tpm:"1"`
	Details TPMUAsymScheme   `tpm:"2,union=Scheme"`
}

// TPMSECCPoint represents a TPMS_ECC_POINT.
// See definition in Part 2: Structures, section 11.2.5.2.
type TPMSECCPoint struct {
	// X coordinate
	X TPM2BECCParameter `tpm:"1"`
	// Y coordinate
	Y TPM2BECCParameter `tpm:"2"`
}

// TPMTSignature represents a TPMT_SIGNATURE.
// See definition in Part 2: Structures, section 11.3.4.
type TPMTSignature struct {
	// selector of the algorithm used to construct the signature
	SigAlg TPMIAlgSigScheme `tpm:"1"`
	// This shall be the actual signature information.
	Signature TPMUSignature `tpm:"2,union=SigAlg"`
}

// TPMSKeyedHashParms represents a TPMS_KEYEDHASH_PARMS.
// See definition in Part 2: Structures, section 12.2.3.3.
type TPMSKeyedHashParms struct {
	// Indicates the signing method used for a keyedHash signing
	// object. This field also determines the size of the data field
	// for a data object created with TPM2_Create() or
	// TPM2_CreatePrimary().
	Scheme TPMTKeyedHashScheme `tpm:"1"`
}

// TPMSRSAParms represents a TPMS_RSA_PARMS.
// See definition in Part 2: Structures, section 12.2.3.5.
type TPMSRSAParms struct {
	// for a restricted decryption key, shall be set to a supported
	// symmetric algorithm, key size, and mode.
	// if the key is not a restricted decryption key, this field shall
	// be set to TPM_ALG_NULL.
	Symmetric TPMTSymDefObject `tpm:"1"`
	// scheme.scheme shall be:
	// for an unrestricted signing key, either TPM_ALG_RSAPSS
	// TPM_ALG_RSASSA or TPM_ALG_NULL
	// for a restricted signing key, either TPM_ALG_RSAPSS or
	// TPM_ALG_RSASSA
	// for an unrestricted decryption key, TPM_ALG_RSAES, TPM_ALG_OAEP,
	// or TPM_ALG_NULL unless the object also has the sign attribute
	// for a restricted decryption key, TPM_ALG_NULL
	Scheme TPMTRSAScheme `tpm:"2"`
	// number of bits in the public modulus
	KeyBits TPMIRSAKeyBits `tpm:"3"`
	// the public exponent
	// A prime number greater than 2.
	Exponent uint32 `tpm:"4"`
}

// TPMSECCParms represents a TPMS_ECC_PARMS.
// See definition in Part 2: Structures, section 12.2.3.6.
type TPMSECCParms struct {
	// for a restricted decryption key, shall be set to a supported
	// symmetric algorithm, key size. and mode.
	// if the key is not a restricted decryption key, this field shall
	// be set to TPM_ALG_NULL.
	Symmetric TPMTSymDefObject `tpm:"1"`
	// If the sign attribute of the key is SET, then this shall be a
	// valid signing scheme.
	Scheme TPMTECCScheme `tpm:"2"`
	// ECC curve ID
	CurveID TPMIECCCurve `tpm:"3"`
	// an optional key derivation scheme for generating a symmetric key
	// from a Z value
	// If the kdf parameter associated with curveID is not TPM_ALG_NULL
	// then this is required to be NULL.
	KDF TPMTKDFScheme `tpm:"4"`
}

// TPMTPublic represents a TPMT_PUBLIC.
// See definition in Part 2: Structures, section 12.2.4.
type TPMTPublic struct {
	// “algorithm” associated with this object
	Type TPMIAlgPublic `tpm:"1"`
	// algorithm used for computing the Name of the object
	NameAlg TPMIAlgHash `tpm:"2"`
	// attributes that, along with type, determine the manipulations
	// of this object
	ObjectAttributes TPMAObject `tpm:"3"`
	// optional policy for using this key
	// The policy is computed using the nameAlg of the object.
	AuthPolicy TPM2BDigest `tpm:"4"`
	// the algorithm or structure details
	Parameters TPMUPublicParms `tpm:"5,union=Type"`
	// the unique identifier of the structure
	// For an asymmetric key, this would be the public key.
	Unique TPMUPublicID `tpm:"6,union=Type"`
}

// TPM2BPublic represents a TPM2B_PUBLIC.
// See definition in Part 2: Structures, section 12.2.5.
type TPM2BPublic struct {
	PublicArea TPMTPublic `tpm:"1,sized,optional"`
}

// TPMSCreationData represents a TPMS_CREATION_DATA.
// See definition in Part 2: Structures, section 15.1.
type TPMSCreationData struct {
	// list indicating the PCR included in pcrDigest
	PCRSelect TPMLPCRSelection `tpm:"1"`
	// digest of the selected PCR using nameAlg of the object for which
	// this structure is being created
	PCRDigest TPM2BDigest `tpm:"2"`
	// the locality at which the object was created
	Locality TPMALocality `tpm:"3"`
	// nameAlg of the parent
	ParentNameAlg TPMAlgID `tpm:"4"`
	// Name of the parent at time of creation
	ParentName TPM2BName `tpm:"5"`
	// Qualified Name of the parent at the time of creation
	ParentQualifiedName TPM2BName `tpm:"6"`
	// association with additional information added by the key
	// creator
	OutsideInfo TPM2BData `tpm:"7"`
}

// TPM2BCreationData represents a TPM2B_CREATION_DATA.
// See definition in Part 2: Structures, section 15.2.
type TPM2BCreationData struct {
	CreationData TPMSCreationData `tpm:"1,sized"`
}

// TPMTTKCreation represents a TPMT_TK_CREATION.
// See definition in Part 2: Structures, section 10.7.3.
type TPMTTKCreation struct {
	// ticket structure tag
	Tag TPMST `tpm:"1"`
	// the hierarchy containing name
	Hierarchy TPMIRHHierarchy `tpm:"2"`
	// This shall be the HMAC produced using a proof value of hierarchy.
	Digest TPM2BDigest `tpm:"3"`
}

// commandHeader is the fixed header of every command.
// See definition in Part 1: Architecture, section 18.2.
type commandHeader struct {
	Tag         TPMST  `tpm:"1"`
	Size        uint32 `tpm:"2"`
	CommandCode TPMCC  `tpm:"3"`
}

// responseHeader is the fixed header of every response.
// See definition in Part 1: Architecture, section 18.3.
type responseHeader struct {
	Tag          TPMST  `tpm:"1"`
	Size         uint32 `tpm:"2"`
	ResponseCode TPMRC  `tpm:"3"`
}

// AuthHandle is a handle that needs authorization.
type AuthHandle struct {
	// The handle that is authorized.
	Handle TPMHandle
	// The Name of the entity at Handle. If empty, HandleName(Handle) is used,
	// which is only correct for PCRs, sessions and permanent handles.
	Name TPM2BName
	// The session used to authorize the entity. If nil, an empty password
	// session is used.
	Auth Session
}

// NamedHandle is a handle paired with the Name the TPM knows it by. The Name
// is bound into the HMAC of any session used with the command.
type NamedHandle struct {
	Handle TPMHandle
	Name   TPM2BName
}

func (a AuthHandle) effectiveName() TPM2BName {
	if len(a.Name.Buffer) > 0 {
		return a.Name
	}
	return HandleName(a.Handle)
}

func (a AuthHandle) effectiveAuth() Session {
	if a.Auth == nil {
		return PasswordAuth(nil)
	}
	return a.Auth
}
