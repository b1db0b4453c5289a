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

package tpm2

import (
	"fmt"
)

// TPMRC values come from Part 2: Structures, section 6.6.3.
const (
	TPMRCSuccess TPMRC = 0x00000000
	rcVer1       TPMRC = 0x00000100
	// FMT0 error codes
	TPMRCInitialize      TPMRC = rcVer1 + 0x000
	TPMRCFailure         TPMRC = rcVer1 + 0x001
	TPMRCSequence        TPMRC = rcVer1 + 0x003
	TPMRCPrivate         TPMRC = rcVer1 + 0x00B
	TPMRCHMAC            TPMRC = rcVer1 + 0x019
	TPMRCDisabled        TPMRC = rcVer1 + 0x020
	TPMRCExclusive       TPMRC = rcVer1 + 0x021
	TPMRCAuthType        TPMRC = rcVer1 + 0x024
	TPMRCAuthMissing     TPMRC = rcVer1 + 0x025
	TPMRCPolicy          TPMRC = rcVer1 + 0x026
	TPMRCPCR             TPMRC = rcVer1 + 0x027
	TPMRCPCRChanged      TPMRC = rcVer1 + 0x028
	TPMRCUpgrade         TPMRC = rcVer1 + 0x02D
	TPMRCTooManyContexts TPMRC = rcVer1 + 0x02E
	TPMRCAuthUnavailable TPMRC = rcVer1 + 0x02F
	TPMRCReboot          TPMRC = rcVer1 + 0x030
	TPMRCUnbalanced      TPMRC = rcVer1 + 0x031
	TPMRCCommandSize     TPMRC = rcVer1 + 0x042
	TPMRCCommandCode     TPMRC = rcVer1 + 0x043
	TPMRCAuthSize        TPMRC = rcVer1 + 0x044
	TPMRCAuthContext     TPMRC = rcVer1 + 0x045
	TPMRCNVRange         TPMRC = rcVer1 + 0x046
	TPMRCNVSize          TPMRC = rcVer1 + 0x047
	TPMRCNVLocked        TPMRC = rcVer1 + 0x048
	TPMRCNVAuthorization TPMRC = rcVer1 + 0x049
	TPMRCNVUninitialized TPMRC = rcVer1 + 0x04A
	TPMRCNVSpace         TPMRC = rcVer1 + 0x04B
	TPMRCNVDefined       TPMRC = rcVer1 + 0x04C
	TPMRCBadContext      TPMRC = rcVer1 + 0x050
	TPMRCCPHash          TPMRC = rcVer1 + 0x051
	TPMRCParent          TPMRC = rcVer1 + 0x052
	TPMRCNeedsTest       TPMRC = rcVer1 + 0x053
	TPMRCNoResult        TPMRC = rcVer1 + 0x054
	TPMRCSensitive       TPMRC = rcVer1 + 0x055
	rcFmt1               TPMRC = 0x00000080
	// FMT1 error codes
	TPMRCAsymmetric   TPMRC = rcFmt1 + 0x001
	TPMRCAttributes   TPMRC = rcFmt1 + 0x002
	TPMRCHash         TPMRC = rcFmt1 + 0x003
	TPMRCValue        TPMRC = rcFmt1 + 0x004
	TPMRCHierarchy    TPMRC = rcFmt1 + 0x005
	TPMRCKeySize      TPMRC = rcFmt1 + 0x007
	TPMRCMGF          TPMRC = rcFmt1 + 0x008
	TPMRCMode         TPMRC = rcFmt1 + 0x009
	TPMRCType         TPMRC = rcFmt1 + 0x00A
	TPMRCHandle       TPMRC = rcFmt1 + 0x00B
	TPMRCKDF          TPMRC = rcFmt1 + 0x00C
	TPMRCRange        TPMRC = rcFmt1 + 0x00D
	TPMRCAuthFail     TPMRC = rcFmt1 + 0x00E
	TPMRCNonce        TPMRC = rcFmt1 + 0x00F
	TPMRCPP           TPMRC = rcFmt1 + 0x010
	TPMRCScheme       TPMRC = rcFmt1 + 0x012
	TPMRCSize         TPMRC = rcFmt1 + 0x015
	TPMRCSymmetric    TPMRC = rcFmt1 + 0x016
	TPMRCTag          TPMRC = rcFmt1 + 0x017
	TPMRCSelector     TPMRC = rcFmt1 + 0x018
	TPMRCInsufficient TPMRC = rcFmt1 + 0x01A
	TPMRCSignature    TPMRC = rcFmt1 + 0x01B
	TPMRCKey          TPMRC = rcFmt1 + 0x01C
	TPMRCPolicyFail   TPMRC = rcFmt1 + 0x01D
	TPMRCIntegrity    TPMRC = rcFmt1 + 0x01F
	TPMRCTicket       TPMRC = rcFmt1 + 0x020
	TPMRCReservedBits TPMRC = rcFmt1 + 0x021
	TPMRCBadAuth      TPMRC = rcFmt1 + 0x022
	TPMRCExpired      TPMRC = rcFmt1 + 0x023
	TPMRCPolicyCC     TPMRC = rcFmt1 + 0x024
	TPMRCBinding      TPMRC = rcFmt1 + 0x025
	TPMRCCurve        TPMRC = rcFmt1 + 0x026
	TPMRCECCPoint     TPMRC = rcFmt1 + 0x027
	// Warnings
	rcWarn              TPMRC = 0x00000900
	TPMRCContextGap     TPMRC = rcWarn + 0x001
	TPMRCObjectMemory   TPMRC = rcWarn + 0x002
	TPMRCSessionMemory  TPMRC = rcWarn + 0x003
	TPMRCMemory         TPMRC = rcWarn + 0x004
	TPMRCSessionHandles TPMRC = rcWarn + 0x005
	TPMRCObjectHandles  TPMRC = rcWarn + 0x006
	TPMRCLocality       TPMRC = rcWarn + 0x007
	TPMRCYielded        TPMRC = rcWarn + 0x008
	TPMRCCanceled       TPMRC = rcWarn + 0x009
	TPMRCTesting        TPMRC = rcWarn + 0x00A
	TPMRCReferenceH0    TPMRC = rcWarn + 0x010
	TPMRCReferenceH1    TPMRC = rcWarn + 0x011
	TPMRCReferenceH2    TPMRC = rcWarn + 0x012
	TPMRCReferenceH3    TPMRC = rcWarn + 0x013
	TPMRCReferenceH4    TPMRC = rcWarn + 0x014
	TPMRCReferenceH5    TPMRC = rcWarn + 0x015
	TPMRCReferenceH6    TPMRC = rcWarn + 0x016
	TPMRCReferenceS0    TPMRC = rcWarn + 0x018
	TPMRCReferenceS1    TPMRC = rcWarn + 0x019
	TPMRCReferenceS2    TPMRC = rcWarn + 0x01A
	TPMRCReferenceS3    TPMRC = rcWarn + 0x01B
	TPMRCReferenceS4    TPMRC = rcWarn + 0x01C
	TPMRCReferenceS5    TPMRC = rcWarn + 0x01D
	TPMRCReferenceS6    TPMRC = rcWarn + 0x01E
	TPMRCNVRate         TPMRC = rcWarn + 0x020
	TPMRCLockout        TPMRC = rcWarn + 0x021
	TPMRCRetry          TPMRC = rcWarn + 0x022
	TPMRCNVUnavailable  TPMRC = rcWarn + 0x023
	rcP                 TPMRC = 0x00000040
	rcS                 TPMRC = 0x00000800
)

// rcVendor marks a vendor-defined format-0 code (bit 10). rcS is bit 11:
// severity for format-0 codes and the session flag for format-1 codes. rcP
// is bit 6, the parameter flag of format-1 codes.
const rcVendor TPMRC = 0x400

// RCKind classifies a response code.
type RCKind int

// Response code classes.
const (
	RCKindSuccess RCKind = iota
	// RCKindTPM12 is a TPM 1.2 code (bits 7 and 8 clear).
	RCKindTPM12
	// RCKindVendor is a vendor-defined format-0 code.
	RCKindVendor
	// RCKindWarning is a format-0 warning. Retrying later may succeed.
	RCKindWarning
	// RCKindError is a format-0 error.
	RCKindError
	// RCKindFormat1 is a format-1 error naming a handle, session or
	// parameter.
	RCKindFormat1
)

// String returns the string representation of the kind.
func (k RCKind) String() string {
	switch k {
	case RCKindSuccess:
		return "success"
	case RCKindTPM12:
		return "tpm12"
	case RCKindVendor:
		return "vendor"
	case RCKindWarning:
		return "warning"
	case RCKindError:
		return "error"
	case RCKindFormat1:
		return "format1"
	default:
		return fmt.Sprintf("RCKind(%d)", int(k))
	}
}

type rcDesc struct {
	name        string
	description string
}

// fmt0Names names and describes format-0 error codes.
var fmt0Names = map[TPMRC]rcDesc{
	TPMRCInitialize:      {"TPM_RC_INITIALIZE", "TPM not initialized by TPM2_Startup or already initialized"},
	TPMRCFailure:         {"TPM_RC_FAILURE", "commands not being accepted because of a TPM failure"},
	TPMRCSequence:        {"TPM_RC_SEQUENCE", "improper use of a sequence handle"},
	TPMRCPrivate:         {"TPM_RC_PRIVATE", "not currently used"},
	TPMRCHMAC:            {"TPM_RC_HMAC", "not currently used"},
	TPMRCDisabled:        {"TPM_RC_DISABLED", "the command is disabled"},
	TPMRCExclusive:       {"TPM_RC_EXCLUSIVE", "command failed because audit sequence required exclusivity"},
	TPMRCAuthType:        {"TPM_RC_AUTH_TYPE", "authorization handle is not correct for command"},
	TPMRCAuthMissing:     {"TPM_RC_AUTH_MISSING", "command requires an authorization session for handle and it is not present"},
	TPMRCPolicy:          {"TPM_RC_POLICY", "policy failure in math operation or an invalid authPolicy value"},
	TPMRCPCR:             {"TPM_RC_PCR", "PCR check fail"},
	TPMRCPCRChanged:      {"TPM_RC_PCR_CHANGED", "PCR have changed since checked"},
	TPMRCUpgrade:         {"TPM_RC_UPGRADE", "for all commands other than TPM2_FieldUpgradeData(), this code indicates that the TPM is in field upgrade mode; for TPM2_FieldUpgradeData(), this code indicates that the TPM is not in field upgrade mode"},
	TPMRCTooManyContexts: {"TPM_RC_TOO_MANY_CONTEXTS", "context ID counter is at maximum"},
	TPMRCAuthUnavailable: {"TPM_RC_AUTH_UNAVAILABLE", "authValue or authPolicy is not available for selected entity"},
	TPMRCReboot:          {"TPM_RC_REBOOT", "a _TPM_Init and Startup(CLEAR) is required before the TPM can resume operation"},
	TPMRCUnbalanced:      {"TPM_RC_UNBALANCED", "the protection algorithms (hash and symmetric) are not reasonably balanced. The digest size of the hash must be larger than the key size of the symmetric algorithm"},
	TPMRCCommandSize:     {"TPM_RC_COMMAND_SIZE", "command commandSize value is inconsistent with contents of the command buffer; either the size is not the same as the octets loaded by the hardware interface layer or the value is not large enough to hold a command header"},
	TPMRCCommandCode:     {"TPM_RC_COMMAND_CODE", "command code not supported"},
	TPMRCAuthSize:        {"TPM_RC_AUTHSIZE", "the value of authorizationSize is out of range or the number of octets in the Authorization Area is greater than required"},
	TPMRCAuthContext:     {"TPM_RC_AUTH_CONTEXT", "use of an authorization session with a context command or another command that cannot have an authorization session"},
	TPMRCNVRange:         {"TPM_RC_NV_RANGE", "NV offset+size is out of range"},
	TPMRCNVSize:          {"TPM_RC_NV_SIZE", "Requested allocation size is larger than allowed"},
	TPMRCNVLocked:        {"TPM_RC_NV_LOCKED", "NV access locked"},
	TPMRCNVAuthorization: {"TPM_RC_NV_AUTHORIZATION", "NV access authorization fails in command actions (this failure does not affect lockout.action)"},
	TPMRCNVUninitialized: {"TPM_RC_NV_UNINITIALIZED", "an NV Index is used before being initialized or the state saved by TPM2_Shutdown(STATE) could not be restored"},
	TPMRCNVSpace:         {"TPM_RC_NV_SPACE", "insufficient space for NV allocation"},
	TPMRCNVDefined:       {"TPM_RC_NV_DEFINED", "NV Index or persistent object already defined"},
	TPMRCBadContext:      {"TPM_RC_BAD_CONTEXT", "context in TPM2_ContextLoad() is not valid"},
	TPMRCCPHash:          {"TPM_RC_CPHASH", "cpHash value already set or not correct for use"},
	TPMRCParent:          {"TPM_RC_PARENT", "handle for parent is not a valid parent"},
	TPMRCNeedsTest:       {"TPM_RC_NEEDS_TEST", "some function needs testing"},
	TPMRCNoResult:        {"TPM_RC_NO_RESULT", "an internal function cannot process a request due to an unspecified problem. This code is usually related to invalid parameters that are not properly filtered by the input unmarshaling code"},
	TPMRCSensitive:       {"TPM_RC_SENSITIVE", "the sensitive area did not unmarshal correctly after decryption – this code is used in lieu of the other unmarshaling errors so that an attacker cannot determine where the unmarshaling error occurred"},
}

// fmt1Names names and describes format-1 error codes, without slot attribution.
var fmt1Names = map[TPMRC]rcDesc{
	TPMRCAsymmetric:   {"TPM_RC_ASYMMETRIC RC_FMT1", "asymmetric algorithm not supported or not correct"},
	TPMRCAttributes:   {"TPM_RC_ATTRIBUTES", "inconsistent attributes"},
	TPMRCHash:         {"TPM_RC_HASH", "hash algorithm not supported or not appropriate"},
	TPMRCValue:        {"TPM_RC_VALUE", "value is out of range or is not correct for the context"},
	TPMRCHierarchy:    {"TPM_RC_HIERARCHY", "hierarchy is not enabled or is not correct for the use"},
	TPMRCKeySize:      {"TPM_RC_KEY_SIZE", "key size is not supported"},
	TPMRCMGF:          {"TPM_RC_MGF", "mask generation function not supported"},
	TPMRCMode:         {"TPM_RC_MODE", "mode of operation not supported"},
	TPMRCType:         {"TPM_RC_TYPE", "the type of the value is not appropriate for the use"},
	TPMRCHandle:       {"TPM_RC_HANDLE", "the handle is not correct for the use"},
	TPMRCKDF:          {"TPM_RC_KDF", "unsupported key derivation function or function not appropriate for use"},
	TPMRCRange:        {"TPM_RC_RANGE", "value was out of allowed range"},
	TPMRCAuthFail:     {"TPM_RC_AUTH_FAIL", "the authorization HMAC check failed and DA counter incremented"},
	TPMRCNonce:        {"TPM_RC_NONCE", "invalid nonce size or nonce value mismatch"},
	TPMRCPP:           {"TPM_RC_PP", "authorization requires assertion of PP"},
	TPMRCScheme:       {"TPM_RC_SCHEME", "unsupported or incompatible scheme"},
	TPMRCSize:         {"TPM_RC_SIZE", "structure is the wrong size"},
	TPMRCSymmetric:    {"TPM_RC_SYMMETRIC", "unsupported symmetric algorithm or key size, or not appropriate for instance"},
	TPMRCTag:          {"TPM_RC_TAG", "incorrect structure tag"},
	TPMRCSelector:     {"TPM_RC_SELECTOR", "union selector is incorrect"},
	TPMRCInsufficient: {"TPM_RC_INSUFFICIENT", "the TPM was unable to unmarshal a value because there were not enough octets in the input buffer"},
	TPMRCSignature:    {"TPM_RC_SIGNATURE", "the signature is not valid"},
	TPMRCKey:          {"TPM_RC_KEY", "key fields are not compatible with the selected use"},
	TPMRCPolicyFail:   {"TPM_RC_POLICY_FAIL", "a policy check failed"},
	TPMRCIntegrity:    {"TPM_RC_INTEGRITY", "integrity check failed"},
	TPMRCTicket:       {"TPM_RC_TICKET", "invalid ticket"},
	TPMRCReservedBits: {"TPM_RC_RESERVED_BITS", "reserved bits not set to zero as required"},
	TPMRCBadAuth:      {"TPM_RC_BAD_AUTH", "authorization failure without DA implications"},
	TPMRCExpired:      {"TPM_RC_EXPIRED", "the policy has expired"},
	TPMRCPolicyCC:     {"TPM_RC_POLICY_CC", "the commandCode in the policy is not the commandCode of the command or the command code in a policy command references a command that is not implemented"},
	TPMRCBinding:      {"TPM_RC_BINDING", "public and sensitive portions of an object are not cryptographically bound"},
	TPMRCCurve:        {"TPM_RC_CURVE", "curve not supported"},
	TPMRCECCPoint:     {"TPM_RC_ECC_POINT", "point is not on the required curve"},
}

// warnNames names and describes format-0 warning codes.
var warnNames = map[TPMRC]rcDesc{
	TPMRCContextGap:     {"TPM_RC_CONTEXT_GAP", "gap for context ID is too large"},
	TPMRCObjectMemory:   {"TPM_RC_OBJECT_MEMORY", "out of memory for object contexts"},
	TPMRCSessionMemory:  {"TPM_RC_SESSION_MEMORY", "out of memory for session contexts"},
	TPMRCMemory:         {"TPM_RC_MEMORY", "out of shared object/session memory or need space for internal operations"},
	TPMRCSessionHandles: {"TPM_RC_SESSION_HANDLES", "out of session handles – a session must be flushed before a new session may be created"},
	TPMRCObjectHandles:  {"TPM_RC_OBJECT_HANDLES", "out of object handles – the handle space for objects is depleted and a reboot is required"},
	TPMRCLocality:       {"TPM_RC_LOCALITY", "bad locality"},
	TPMRCYielded:        {"TPM_RC_YIELDED", "the TPM has suspended operation on the command; forward progress was made and the command may be retried"},
	TPMRCCanceled:       {"TPM_RC_CANCELED", "the command was canceled"},
	TPMRCTesting:        {"TPM_RC_TESTING", "TPM is performing self-tests"},
	TPMRCReferenceH0:    {"TPM_RC_REFERENCE_H0", "the 1st handle in the handle area references a transient object or session that is not loaded"},
	TPMRCReferenceH1:    {"TPM_RC_REFERENCE_H1", "the 2nd handle in the handle area references a transient object or session that is not loaded"},
	TPMRCReferenceH2:    {"TPM_RC_REFERENCE_H2", "the 3rd handle in the handle area references a transient object or session that is not loaded"},
	TPMRCReferenceH3:    {"TPM_RC_REFERENCE_H3", "the 4th handle in the handle area references a transient object or session that is not loaded"},
	TPMRCReferenceH4:    {"TPM_RC_REFERENCE_H4", "the 5th handle in the handle area references a transient object or session that is not loaded"},
	TPMRCReferenceH5:    {"TPM_RC_REFERENCE_H5", "the 6th handle in the handle area references a transient object or session that is not loaded"},
	TPMRCReferenceH6:    {"TPM_RC_REFERENCE_H6", "the 7th handle in the handle area references a transient object or session that is not loaded"},
	TPMRCReferenceS0:    {"TPM_RC_REFERENCE_S0", "the 1st authorization session handle references a session that is not loaded"},
	TPMRCReferenceS1:    {"TPM_RC_REFERENCE_S1", "the 2nd authorization session handle references a session that is not loaded"},
	TPMRCReferenceS2:    {"TPM_RC_REFERENCE_S2", "the 3rd authorization session handle references a session that is not loaded"},
	TPMRCReferenceS3:    {"TPM_RC_REFERENCE_S3", "the 4th authorization session handle references a session that is not loaded"},
	TPMRCReferenceS4:    {"TPM_RC_REFERENCE_S4", "the 5th session handle references a session that is not loaded"},
	TPMRCReferenceS5:    {"TPM_RC_REFERENCE_S5", "the 6th session handle references a session that is not loaded"},
	TPMRCReferenceS6:    {"TPM_RC_REFERENCE_S6", "the 7th authorization session handle references a session that is not loaded"},
	TPMRCNVRate:         {"TPM_RC_NV_RATE", "the TPM is rate-limiting accesses to prevent wearout of NV"},
	TPMRCLockout:        {"TPM_RC_LOCKOUT", "authorizations for objects subject to DA protection are not allowed at this time because the TPM is in DA lockout mode"},
	TPMRCRetry:          {"TPM_RC_RETRY", "the TPM was not able to start the command"},
	TPMRCNVUnavailable:  {"TPM_RC_NV_UNAVAILABLE", "the command may require writing of NV and NV is not current accessible"},
}

// subject is the thing a format-1 code is about.
type subject int

const (
	handle subject = iota + 1
	parameter
	session
)

// String returns the string representation of the subject.
func (s subject) String() string {
	switch s {
	case handle:
		return "handle"
	case parameter:
		return "parameter"
	case session:
		return "session"
	default:
		return "unknown subject"
	}
}

// Fmt1Error represents a TPM 2.0 format-1 error, with additional information.
// With the parameter bit (0x040) clear, bit 11 (0x800) selects a session and
// otherwise the number is a handle: 0x184 is TPM_RC_VALUE on handle 1 and
// 0x1C4 is TPM_RC_VALUE on parameter 1.
type Fmt1Error struct {
	// The canonical TPM error code, with handle/parameter/session info
	// stripped out.
	canonical TPMRC
	// Whether this was a handle, parameter, or session error.
	subject subject
	// Which handle, parameter, or session was in error (1-based).
	index int
}

// Error returns the string representation of the error.
func (e Fmt1Error) Error() string {
	desc, ok := fmt1Names[e.canonical]
	if !ok {
		return fmt.Sprintf("unknown format-1 error: %s %d (%x)", e.subject, e.index, uint32(e.canonical))
	}
	return fmt.Sprintf("%s (%v %d): %s", desc.name, e.subject, e.index, desc.description)
}

// Code returns the canonical response code, without slot attribution.
func (e Fmt1Error) Code() TPMRC { return e.canonical }

// Handle returns whether the error is handle-related and if so, which handle is
// in error.
func (e Fmt1Error) Handle() (bool, int) {
	if e.subject != handle {
		return false, 0
	}
	return true, e.index
}

// Parameter returns whether the error is parameter-related and if so, which
// parameter is in error.
func (e Fmt1Error) Parameter() (bool, int) {
	if e.subject != parameter {
		return false, 0
	}
	return true, e.index
}

// Session returns whether the error is session-related and if so, which
// session is in error.
func (e Fmt1Error) Session() (bool, int) {
	if e.subject != session {
		return false, 0
	}
	return true, e.index
}

// Kind classifies the response code. Every format-1 code is RCKindFormat1;
// use errors.As with a Fmt1Error to learn which handle, parameter or session
// it names.
func (r TPMRC) Kind() RCKind {
	switch {
	case r == TPMRCSuccess:
		return RCKindSuccess
	case r&(rcFmt1|rcVer1) == 0:
		return RCKindTPM12
	case r&rcFmt1 != 0:
		return RCKindFormat1
	case r&rcVendor != 0:
		return RCKindVendor
	case r&rcS != 0:
		return RCKindWarning
	default:
		return RCKindError
	}
}

// fmt1 decodes a format-1 response code. A set parameter bit puts the
// parameter number in bits 8..11; otherwise bit 11 picks between a handle
// and a session number in bits 8..10.
func (r TPMRC) fmt1() (Fmt1Error, bool) {
	if r.Kind() != RCKindFormat1 {
		return Fmt1Error{}, false
	}
	e := Fmt1Error{canonical: rcFmt1 + r&0x3F}
	switch {
	case r&rcP != 0:
		e.subject = parameter
		e.index = int((r & 0xF00) >> 8)
	case r&rcS == 0:
		e.subject = handle
		e.index = int((r & 0x700) >> 8)
	default:
		e.subject = session
		e.index = int((r & 0x700) >> 8)
	}
	return e, true
}

// IsWarning returns true if the error is a warning code.
// This usually indicates a problem with the TPM state, and not the command.
// Retrying the command later may succeed.
func (r TPMRC) IsWarning() bool {
	return r.Kind() == RCKindWarning
}

// Canonical strips format-1 slot attribution and returns the base code.
// Other codes are returned unchanged.
func (r TPMRC) Canonical() TPMRC {
	if e, ok := r.fmt1(); ok {
		return e.canonical
	}
	return r
}

// Error produces a nice human-readable representation of the error, parsing TPM
// FMT1 errors as needed.
func (r TPMRC) Error() string {
	switch r.Kind() {
	case RCKindSuccess:
		return "TPM_RC_SUCCESS"
	case RCKindFormat1:
		e, _ := r.fmt1()
		return e.Error()
	case RCKindWarning:
		if desc, ok := warnNames[r]; ok {
			return fmt.Sprintf("%s: %s", desc.name, desc.description)
		}
		return fmt.Sprintf("unknown warning (0x%x)", uint32(r))
	case RCKindError:
		if desc, ok := fmt0Names[r]; ok {
			return fmt.Sprintf("%s: %s", desc.name, desc.description)
		}
		return fmt.Sprintf("unknown format-0 error code (0x%x)", uint32(r))
	case RCKindVendor:
		return fmt.Sprintf("vendor-defined error code (0x%x)", uint32(r))
	default:
		return fmt.Sprintf("TPM 1.2 response status (0x%x)", uint32(r))
	}
}

// Is returns whether the TPMRC (which may be a FMT1 error) is equal to the
// given canonical error.
func (r TPMRC) Is(target error) bool {
	targetRC, ok := target.(TPMRC)
	if !ok {
		return false
	}
	return r.Canonical() == targetRC
}

// As returns whether the error can be assigned to the given interface type.
// If supported, it updates the value pointed at by target.
// Supports the Fmt1Error type.
func (r TPMRC) As(target interface{}) bool {
	pFmt1, ok := target.(*Fmt1Error)
	if !ok {
		return false
	}
	fmt1, isFmt1 := r.fmt1()
	if !isFmt1 {
		return false
	}
	*pFmt1 = fmt1
	return true
}
