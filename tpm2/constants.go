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

import "fmt"

// TPMGenerated values come from Part 2: Structures, section 6.2.
const (
	TPMGeneratedValue TPMGenerated = 0xff544347
)

// TPMAlgID values come from Part 2: Structures, section 6.3.
const (
	TPMAlgRSA          TPMAlgID = 0x0001
	TPMAlgSHA1         TPMAlgID = 0x0004
	TPMAlgHMAC         TPMAlgID = 0x0005
	TPMAlgAES          TPMAlgID = 0x0006
	TPMAlgMGF1         TPMAlgID = 0x0007
	TPMAlgKeyedHash    TPMAlgID = 0x0008
	TPMAlgXOR          TPMAlgID = 0x000A
	TPMAlgSHA256       TPMAlgID = 0x000B
	TPMAlgSHA384       TPMAlgID = 0x000C
	TPMAlgSHA512       TPMAlgID = 0x000D
	TPMAlgNull         TPMAlgID = 0x0010
	TPMAlgRSASSA       TPMAlgID = 0x0014
	TPMAlgRSAES        TPMAlgID = 0x0015
	TPMAlgRSAPSS       TPMAlgID = 0x0016
	TPMAlgOAEP         TPMAlgID = 0x0017
	TPMAlgECDSA        TPMAlgID = 0x0018
	TPMAlgECDH         TPMAlgID = 0x0019
	TPMAlgKDF1SP80056A TPMAlgID = 0x0020
	TPMAlgKDF2         TPMAlgID = 0x0021
	TPMAlgKDF1SP800108 TPMAlgID = 0x0022
	TPMAlgECC          TPMAlgID = 0x0023
	TPMAlgSymCipher    TPMAlgID = 0x0025
	TPMAlgCTR          TPMAlgID = 0x0040
	TPMAlgOFB          TPMAlgID = 0x0041
	TPMAlgCBC          TPMAlgID = 0x0042
	TPMAlgCFB          TPMAlgID = 0x0043
	TPMAlgECB          TPMAlgID = 0x0044
)

// TPMECCCurve values come from Part 2: Structures, section 6.4.
const (
	TPMECCNone     TPMECCCurve = 0x0000
	TPMECCNistP256 TPMECCCurve = 0x0003
	TPMECCNistP384 TPMECCCurve = 0x0004
	TPMECCNistP521 TPMECCCurve = 0x0005
)

// TPMCC values come from Part 2: Structures, section 6.5.2.
const (
	TPMCCCreatePrimary    TPMCC = 0x00000131
	TPMCCStartup          TPMCC = 0x00000144
	TPMCCShutdown         TPMCC = 0x00000145
	TPMCCCreate           TPMCC = 0x00000153
	TPMCCLoad             TPMCC = 0x00000157
	TPMCCQuote            TPMCC = 0x00000158
	TPMCCUnseal           TPMCC = 0x0000015E
	TPMCCFlushContext     TPMCC = 0x00000165
	TPMCCReadPublic       TPMCC = 0x00000173
	TPMCCStartAuthSession TPMCC = 0x00000176
	TPMCCGetCapability    TPMCC = 0x0000017A
	TPMCCGetRandom        TPMCC = 0x0000017B
	TPMCCPCRRead          TPMCC = 0x0000017E
	TPMCCPolicyPCR        TPMCC = 0x0000017F
	TPMCCPCRExtend        TPMCC = 0x00000182
	TPMCCPolicyGetDigest  TPMCC = 0x00000189
)

var ccNames = map[TPMCC]string{
	TPMCCCreatePrimary:    "TPM2_CreatePrimary",
	TPMCCStartup:          "TPM2_Startup",
	TPMCCShutdown:         "TPM2_Shutdown",
	TPMCCCreate:           "TPM2_Create",
	TPMCCLoad:             "TPM2_Load",
	TPMCCQuote:            "TPM2_Quote",
	TPMCCUnseal:           "TPM2_Unseal",
	TPMCCFlushContext:     "TPM2_FlushContext",
	TPMCCReadPublic:       "TPM2_ReadPublic",
	TPMCCStartAuthSession: "TPM2_StartAuthSession",
	TPMCCGetCapability:    "TPM2_GetCapability",
	TPMCCGetRandom:        "TPM2_GetRandom",
	TPMCCPCRRead:          "TPM2_PCR_Read",
	TPMCCPolicyPCR:        "TPM2_PolicyPCR",
	TPMCCPCRExtend:        "TPM2_PCR_Extend",
	TPMCCPolicyGetDigest:  "TPM2_PolicyGetDigest",
}

// TPMST values come from Part 2: Structures, section 6.9.
const (
	TPMSTRspCommand     TPMST = 0x00C4
	TPMSTNull           TPMST = 0x8000
	TPMSTNoSessions     TPMST = 0x8001
	TPMSTSessions       TPMST = 0x8002
	TPMSTAttestCertify  TPMST = 0x8017
	TPMSTAttestQuote    TPMST = 0x8018
	TPMSTAttestCreation TPMST = 0x801A
	TPMSTCreation       TPMST = 0x8021
	TPMSTHashCheck      TPMST = 0x8024
)

// TPMSU values come from Part 2: Structures, section 6.10.
const (
	TPMSUClear TPMSU = 0x0000
	TPMSUState TPMSU = 0x0001
)

// TPMSE values come from Part 2: Structures, section 6.11.
const (
	TPMSEHMAC   TPMSE = 0x00
	TPMSEPolicy TPMSE = 0x01
	TPMSETrial  TPMSE = 0x03
)

// TPMCap values come from Part 2: Structures, section 6.12.
const (
	TPMCapAlgs          TPMCap = 0x00000000
	TPMCapHandles       TPMCap = 0x00000001
	TPMCapCommands      TPMCap = 0x00000002
	TPMCapPCRs          TPMCap = 0x00000005
	TPMCapTPMProperties TPMCap = 0x00000006
)

// TPMPT values come from Part 2: Structures, section 6.13.
const (
	// a 4-octet character string containing the TPM Family value
	TPMPTFamilyIndicator TPMPT = 0x00000100
	// the vendor ID unique to each TPM manufacturer
	TPMPTManufacturer     TPMPT = 0x00000105
	TPMPTVendorString1    TPMPT = 0x00000106
	TPMPTFirmwareVersion1 TPMPT = 0x0000010B
	// the maximum size of a parameter (TPM2B_MAX_BUFFER)
	TPMPTInputBuffer TPMPT = 0x0000010D
	// the number of PCR implemented
	TPMPTPCRCount        TPMPT = 0x00000112
	TPMPTMaxCommandSize  TPMPT = 0x0000011E
	TPMPTMaxResponseSize TPMPT = 0x0000011F
	TPMPTMaxDigest       TPMPT = 0x00000120
)

// TPMHT values come from Part 2: Structures, section 7.2.
const (
	TPMHTPCR           TPMHT = 0x00
	TPMHTNVIndex       TPMHT = 0x01
	TPMHTHMACSession   TPMHT = 0x02
	TPMHTPolicySession TPMHT = 0x03
	TPMHTPermanent     TPMHT = 0x40
	TPMHTTransient     TPMHT = 0x80
	TPMHTPersistent    TPMHT = 0x81
)

// TPMRH values come from Part 2: Structures, section 7.4.
const (
	TPMRHOwner       TPMHandle = 0x40000001
	TPMRHNull        TPMHandle = 0x40000007
	TPMRSPW          TPMHandle = 0x40000009
	TPMRHLockout     TPMHandle = 0x4000000A
	TPMRHEndorsement TPMHandle = 0x4000000B
	TPMRHPlatform    TPMHandle = 0x4000000C
)

// TPMASession bits come from Part 2: Structures, section 8.4.
const (
	TPMASessionContinueSession TPMASession = 1 << 0
	TPMASessionAuditExclusive  TPMASession = 1 << 1
	TPMASessionAuditReset      TPMASession = 1 << 2
	TPMASessionDecrypt         TPMASession = 1 << 5
	TPMASessionEncrypt         TPMASession = 1 << 6
	TPMASessionAudit           TPMASession = 1 << 7
)

// TPMAObject bits come from Part 2: Structures, section 8.3.
const (
	TPMAObjectFixedTPM             TPMAObject = 1 << 1
	TPMAObjectSTClear              TPMAObject = 1 << 2
	TPMAObjectFixedParent          TPMAObject = 1 << 4
	TPMAObjectSensitiveDataOrigin  TPMAObject = 1 << 5
	TPMAObjectUserWithAuth         TPMAObject = 1 << 6
	TPMAObjectAdminWithPolicy      TPMAObject = 1 << 7
	TPMAObjectNoDA                 TPMAObject = 1 << 10
	TPMAObjectEncryptedDuplication TPMAObject = 1 << 11
	TPMAObjectRestricted           TPMAObject = 1 << 16
	TPMAObjectDecrypt              TPMAObject = 1 << 17
	TPMAObjectSignEncrypt          TPMAObject = 1 << 18
)

// String returns the command's name from Part 3, or its code in hex.
func (c TPMCC) String() string {
	if name, ok := ccNames[c]; ok {
		return name
	}
	return fmt.Sprintf("TPM_CC(0x%08x)", uint32(c))
}
