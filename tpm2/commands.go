package tpm2

import "context"

// Startup is the input to TPM2_Startup.
// See definition in Part 3, Commands, section 9.3
type Startup struct {
	// TPM_SU_CLEAR or TPM_SU_STATE
	StartupType TPMSU `tpm:"1"`
}

// Command implements the Command interface.
func (Startup) Command() TPMCC { return TPMCCStartup }

// Execute executes the command and returns the response.
func (cmd Startup) Execute(ctx context.Context, d *Dispatcher, s ...Session) (*StartupResponse, error) {
	var rsp StartupResponse
	if err := d.Execute(ctx, cmd, &rsp, s...); err != nil {
		return nil, err
	}
	return &rsp, nil
}

// StartupResponse is the response from TPM2_Startup.
type StartupResponse struct{}

// Response implements the Response interface.
func (*StartupResponse) Response() TPMCC { return TPMCCStartup }

// Shutdown is the input to TPM2_Shutdown.
// See definition in Part 3, Commands, section 9.4
type Shutdown struct {
	// TPM_SU_CLEAR or TPM_SU_STATE
	ShutdownType TPMSU `tpm:"1"`
}

// Command implements the Command interface.
func (Shutdown) Command() TPMCC { return TPMCCShutdown }

// Execute executes the command and returns the response.
func (cmd Shutdown) Execute(ctx context.Context, d *Dispatcher, s ...Session) (*ShutdownResponse, error) {
	var rsp ShutdownResponse
	if err := d.Execute(ctx, cmd, &rsp, s...); err != nil {
		return nil, err
	}
	return &rsp, nil
}

// ShutdownResponse is the response from TPM2_Shutdown.
type ShutdownResponse struct{}

// Response implements the Response interface.
func (*ShutdownResponse) Response() TPMCC { return TPMCCShutdown }

// StartAuthSession is the input to TPM2_StartAuthSession.
// See definition in Part 3, Commands, section 11.1
type StartAuthSession struct {
	// handle of a loaded decrypt key used to encrypt salt
	// may be TPM_RH_NULL
	TPMKey TPMIDHObject `tpm:"1,handle"`
	// entity providing the authValue
	// may be TPM_RH_NULL
	Bind TPMIDHEntity `tpm:"2,handle"`
	// initial nonceCaller, sets nonceTPM size for the session
	// shall be at least 16 octets
	NonceCaller TPM2BNonce `tpm:"3"`
	// value encrypted according to the type of tpmKey
	// If tpmKey is TPM_RH_NULL, this shall be the Empty Buffer.
	EncryptedSalt TPM2BEncryptedSecret `tpm:"4"`
	// indicates the type of the session; simple HMAC or policy (including
	// a trial policy)
	SessionType TPMSE `tpm:"5"`
	// the algorithm and key size for parameter encryption
	// may select TPM_ALG_NULL
	Symmetric TPMTSymDef `tpm:"6"`
	// hash algorithm to use for the session
	// Shall be a hash algorithm supported by the TPM and not TPM_ALG_NULL
	AuthHash TPMIAlgHash `tpm:"7"`
}

// Command implements the Command interface.
func (StartAuthSession) Command() TPMCC { return TPMCCStartAuthSession }

// Execute executes the command and returns the response.
func (cmd StartAuthSession) Execute(ctx context.Context, d *Dispatcher, s ...Session) (*StartAuthSessionResponse, error) {
	var rsp StartAuthSessionResponse
	if err := d.Execute(ctx, cmd, &rsp, s...); err != nil {
		return nil, err
	}
	return &rsp, nil
}

// StartAuthSessionResponse is the response from TPM2_StartAuthSession.
type StartAuthSessionResponse struct {
	// handle for the newly created session
	SessionHandle TPMISHAuthSession `tpm:"1,handle"`
	// the initial nonce from the TPM, used in the computation of the sessionKey
	NonceTPM TPM2BNonce `tpm:"2"`
}

// Response implements the Response interface.
func (*StartAuthSessionResponse) Response() TPMCC { return TPMCCStartAuthSession }

// CreatePrimary is the input to TPM2_CreatePrimary.
// See definition in Part 3, Commands, section 24.1
type CreatePrimary struct {
	// TPM_RH_ENDORSEMENT, TPM_RH_OWNER, TPM_RH_PLATFORM+{PP},
	// or TPM_RH_NULL
	PrimaryHandle AuthHandle `tpm:"1,auth"`
	// the sensitive data
	InSensitive TPM2BSensitiveCreate `tpm:"2"`
	// the public template
	InPublic TPM2BPublic `tpm:"3"`
	// data that will be included in the creation data for this
	// object to provide permanent, verifiable linkage between this
	// object and some object owner data
	OutsideInfo TPM2BData `tpm:"4"`
	// PCR that will be used in creation data
	CreationPCR TPMLPCRSelection `tpm:"5"`
}

// Command implements the Command interface.
func (CreatePrimary) Command() TPMCC { return TPMCCCreatePrimary }

// Execute executes the command and returns the response.
func (cmd CreatePrimary) Execute(ctx context.Context, d *Dispatcher, s ...Session) (*CreatePrimaryResponse, error) {
	var rsp CreatePrimaryResponse
	if err := d.Execute(ctx, cmd, &rsp, s...); err != nil {
		return nil, err
	}
	return &rsp, nil
}

// CreatePrimaryResponse is the response from TPM2_CreatePrimary.
type CreatePrimaryResponse struct {
	// handle of type TPM_HT_TRANSIENT for created Primary Object
	ObjectHandle TPMHandle `tpm:"1,handle"`
	// the public portion of the created object
	OutPublic TPM2BPublic `tpm:"2"`
	// contains a TPMS_CREATION_DATA
	CreationData TPM2BCreationData `tpm:"3"`
	// digest of creationData using nameAlg of outPublic
	CreationHash TPM2BDigest `tpm:"4"`
	// ticket used by TPM2_CertifyCreation() to validate that the
	// creation data was produced by the TPM
	CreationTicket TPMTTKCreation `tpm:"5"`
	// the name of the created object
	Name TPM2BName `tpm:"6"`
}

// Response implements the Response interface.
func (*CreatePrimaryResponse) Response() TPMCC { return TPMCCCreatePrimary }

// Create is the input to TPM2_Create.
// See definition in Part 3, Commands, section 12.1
type Create struct {
	// handle of parent for new object
	ParentHandle AuthHandle `tpm:"1,auth"`
	// the sensitive data
	InSensitive TPM2BSensitiveCreate `tpm:"2"`
	// the public template
	InPublic TPM2BPublic `tpm:"3"`
	// data that will be included in the creation data for this
	// object to provide permanent, verifiable linkage between this
	// object and some object owner data
	OutsideInfo TPM2BData `tpm:"4"`
	// PCR that will be used in creation data
	CreationPCR TPMLPCRSelection `tpm:"5"`
}

// Command implements the Command interface.
func (Create) Command() TPMCC { return TPMCCCreate }

// Execute executes the command and returns the response.
func (cmd Create) Execute(ctx context.Context, d *Dispatcher, s ...Session) (*CreateResponse, error) {
	var rsp CreateResponse
	if err := d.Execute(ctx, cmd, &rsp, s...); err != nil {
		return nil, err
	}
	return &rsp, nil
}

// CreateResponse is the response from TPM2_Create.
type CreateResponse struct {
	// the private portion of the object
	OutPrivate TPM2BPrivate `tpm:"1"`
	// the public portion of the created object
	OutPublic TPM2BPublic `tpm:"2"`
	// contains a TPMS_CREATION_DATA
	CreationData TPM2BCreationData `tpm:"3"`
	// digest of creationData using nameAlg of outPublic
	CreationHash TPM2BDigest `tpm:"4"`
	// ticket used by TPM2_CertifyCreation() to validate that the
	// creation data was produced by the TPM
	CreationTicket TPMTTKCreation `tpm:"5"`
}

// Response implements the Response interface.
func (*CreateResponse) Response() TPMCC { return TPMCCCreate }

// Load is the input to TPM2_Load.
// See definition in Part 3, Commands, section 12.2
type Load struct {
	// handle of parent for new object
	ParentHandle AuthHandle `tpm:"1,auth"`
	// the private portion of the object
	InPrivate TPM2BPrivate `tpm:"2"`
	// the public portion of the object
	InPublic TPM2BPublic `tpm:"3"`
}

// Command implements the Command interface.
func (Load) Command() TPMCC { return TPMCCLoad }

// Execute executes the command and returns the response.
func (cmd Load) Execute(ctx context.Context, d *Dispatcher, s ...Session) (*LoadResponse, error) {
	var rsp LoadResponse
	if err := d.Execute(ctx, cmd, &rsp, s...); err != nil {
		return nil, err
	}
	return &rsp, nil
}

// LoadResponse is the response from TPM2_Load.
type LoadResponse struct {
	// handle of type TPM_HT_TRANSIENT for loaded object
	ObjectHandle TPMHandle `tpm:"1,handle"`
	// Name of the loaded object
	Name TPM2BName `tpm:"2"`
}

// Response implements the Response interface.
func (*LoadResponse) Response() TPMCC { return TPMCCLoad }

// ReadPublic is the input to TPM2_ReadPublic.
// See definition in Part 3, Commands, section 12.4
type ReadPublic struct {
	// TPM handle of an object
	ObjectHandle TPMIDHObject `tpm:"1,handle"`
}

// Command implements the Command interface.
func (ReadPublic) Command() TPMCC { return TPMCCReadPublic }

// Execute executes the command and returns the response.
func (cmd ReadPublic) Execute(ctx context.Context, d *Dispatcher, s ...Session) (*ReadPublicResponse, error) {
	var rsp ReadPublicResponse
	if err := d.Execute(ctx, cmd, &rsp, s...); err != nil {
		return nil, err
	}
	return &rsp, nil
}

// ReadPublicResponse is the response from TPM2_ReadPublic.
type ReadPublicResponse struct {
	// structure containing the public area of an object
	OutPublic TPM2BPublic `tpm:"1"`
	// name of object
	Name TPM2BName `tpm:"2"`
	// the Qualified Name of the object
	QualifiedName TPM2BName `tpm:"3"`
}

// Response implements the Response interface.
func (*ReadPublicResponse) Response() TPMCC { return TPMCCReadPublic }

// Unseal is the input to TPM2_Unseal.
// See definition in Part 3, Commands, section 12.7
type Unseal struct {
	// handle of a loaded data object
	ItemHandle AuthHandle `tpm:"1,auth"`
}

// Command implements the Command interface.
func (Unseal) Command() TPMCC { return TPMCCUnseal }

// Execute executes the command and returns the response.
func (cmd Unseal) Execute(ctx context.Context, d *Dispatcher, s ...Session) (*UnsealResponse, error) {
	var rsp UnsealResponse
	if err := d.Execute(ctx, cmd, &rsp, s...); err != nil {
		return nil, err
	}
	return &rsp, nil
}

// UnsealResponse is the response from TPM2_Unseal.
type UnsealResponse struct {
	// unsealed data
	OutData TPM2BSensitiveData `tpm:"1"`
}

// Response implements the Response interface.
func (*UnsealResponse) Response() TPMCC { return TPMCCUnseal }

// Quote is the input to TPM2_Quote.
// See definition in Part 3, Commands, section 18.4
type Quote struct {
	// handle of key that will perform signature
	SignHandle AuthHandle `tpm:"1,auth"`
	// data supplied by the caller
	QualifyingData TPM2BData `tpm:"2"`
	// signing scheme to use if the scheme for signHandle is TPM_ALG_NULL
	InScheme TPMTSigScheme `tpm:"3"`
	// PCR set to quote
	PCRSelect TPMLPCRSelection `tpm:"4"`
}

// Command implements the Command interface.
func (Quote) Command() TPMCC { return TPMCCQuote }

// Execute executes the command and returns the response.
func (cmd Quote) Execute(ctx context.Context, d *Dispatcher, s ...Session) (*QuoteResponse, error) {
	var rsp QuoteResponse
	if err := d.Execute(ctx, cmd, &rsp, s...); err != nil {
		return nil, err
	}
	return &rsp, nil
}

// QuoteResponse is the response from TPM2_Quote.
type QuoteResponse struct {
	// the quoted information
	Quoted TPM2BAttest `tpm:"1"`
	// the signature over quoted
	Signature TPMTSignature `tpm:"2"`
}

// Response implements the Response interface.
func (*QuoteResponse) Response() TPMCC { return TPMCCQuote }

// PCRExtend is the input to TPM2_PCR_Extend.
// See definition in Part 3, Commands, section 22.2
type PCRExtend struct {
	// handle of the PCR
	PCRHandle AuthHandle `tpm:"1,auth"`
	// list of tagged digest values to be extended
	Digests TPMLDigestValues `tpm:"2"`
}

// Command implements the Command interface.
func (PCRExtend) Command() TPMCC { return TPMCCPCRExtend }

// Execute executes the command and returns the response.
func (cmd PCRExtend) Execute(ctx context.Context, d *Dispatcher, s ...Session) (*PCRExtendResponse, error) {
	var rsp PCRExtendResponse
	if err := d.Execute(ctx, cmd, &rsp, s...); err != nil {
		return nil, err
	}
	return &rsp, nil
}

// PCRExtendResponse is the response from TPM2_PCR_Extend.
type PCRExtendResponse struct{}

// Response implements the Response interface.
func (*PCRExtendResponse) Response() TPMCC { return TPMCCPCRExtend }

// PCRRead is the input to TPM2_PCR_Read.
// See definition in Part 3, Commands, section 22.4
type PCRRead struct {
	// The selection of PCR to read
	PCRSelectionIn TPMLPCRSelection `tpm:"1"`
}

// Command implements the Command interface.
func (PCRRead) Command() TPMCC { return TPMCCPCRRead }

// Execute executes the command and returns the response.
func (cmd PCRRead) Execute(ctx context.Context, d *Dispatcher, s ...Session) (*PCRReadResponse, error) {
	var rsp PCRReadResponse
	if err := d.Execute(ctx, cmd, &rsp, s...); err != nil {
		return nil, err
	}
	return &rsp, nil
}

// PCRReadResponse is the response from TPM2_PCR_Read.
type PCRReadResponse struct {
	// the current value of the PCR update counter
	PCRUpdateCounter uint32 `tpm:"1"`
	// the PCR in the returned list
	PCRSelectionOut TPMLPCRSelection `tpm:"2"`
	// the contents of the PCR indicated in pcrSelectOut-> pcrSelection[] as tagged digests
	PCRValues TPMLDigest `tpm:"3"`
}

// Response implements the Response interface.
func (*PCRReadResponse) Response() TPMCC { return TPMCCPCRRead }

// PolicyPCR is the input to TPM2_PolicyPCR.
// See definition in Part 3, Commands, section 23.7
type PolicyPCR struct {
	// handle for the policy session being extended
	PolicySession TPMISHPolicy `tpm:"1,handle"`
	// expected digest value of the selected PCR using the
	// hash algorithm of the session; may be zero length
	PcrDigest TPM2BDigest `tpm:"2"`
	// the PCR to include in the check digest
	Pcrs TPMLPCRSelection `tpm:"3"`
}

// Command implements the Command interface.
func (PolicyPCR) Command() TPMCC { return TPMCCPolicyPCR }

// Execute executes the command and returns the response.
func (cmd PolicyPCR) Execute(ctx context.Context, d *Dispatcher, s ...Session) (*PolicyPCRResponse, error) {
	var rsp PolicyPCRResponse
	if err := d.Execute(ctx, cmd, &rsp, s...); err != nil {
		return nil, err
	}
	return &rsp, nil
}

// PolicyPCRResponse is the response from TPM2_PolicyPCR.
type PolicyPCRResponse struct{}

// Response implements the Response interface.
func (*PolicyPCRResponse) Response() TPMCC { return TPMCCPolicyPCR }

// PolicyGetDigest is the input to TPM2_PolicyGetDigest.
// See definition in Part 3, Commands, section 23.19
type PolicyGetDigest struct {
	// handle for the policy session
	PolicySession TPMISHPolicy `tpm:"1,handle"`
}

// Command implements the Command interface.
func (PolicyGetDigest) Command() TPMCC { return TPMCCPolicyGetDigest }

// Execute executes the command and returns the response.
func (cmd PolicyGetDigest) Execute(ctx context.Context, d *Dispatcher, s ...Session) (*PolicyGetDigestResponse, error) {
	var rsp PolicyGetDigestResponse
	if err := d.Execute(ctx, cmd, &rsp, s...); err != nil {
		return nil, err
	}
	return &rsp, nil
}

// PolicyGetDigestResponse is the response from TPM2_PolicyGetDigest.
type PolicyGetDigestResponse struct {
	// the current value of the policySession→policyDigest
	PolicyDigest TPM2BDigest `tpm:"1"`
}

// Response implements the Response interface.
func (*PolicyGetDigestResponse) Response() TPMCC { return TPMCCPolicyGetDigest }

// FlushContext is the input to TPM2_FlushContext.
// See definition in Part 3, Commands, section 28.4
type FlushContext struct {
	// the handle of the item to flush
	FlushHandle TPMIDHContext `tpm:"1"`
}

// Command implements the Command interface.
func (FlushContext) Command() TPMCC { return TPMCCFlushContext }

// Execute executes the command and returns the response.
func (cmd FlushContext) Execute(ctx context.Context, d *Dispatcher, s ...Session) (*FlushContextResponse, error) {
	var rsp FlushContextResponse
	if err := d.Execute(ctx, cmd, &rsp, s...); err != nil {
		return nil, err
	}
	return &rsp, nil
}

// FlushContextResponse is the response from TPM2_FlushContext.
type FlushContextResponse struct{}

// Response implements the Response interface.
func (*FlushContextResponse) Response() TPMCC { return TPMCCFlushContext }

// GetCapability is the input to TPM2_GetCapability.
// See definition in Part 3, Commands, section 30.2
type GetCapability struct {
	// group selection; determines the format of the response
	Capability TPMCap `tpm:"1"`
	// further definition of information
	Property uint32 `tpm:"2"`
	// number of properties of the indicated type to return
	PropertyCount uint32 `tpm:"3"`
}

// Command implements the Command interface.
func (GetCapability) Command() TPMCC { return TPMCCGetCapability }

// Execute executes the command and returns the response.
func (cmd GetCapability) Execute(ctx context.Context, d *Dispatcher, s ...Session) (*GetCapabilityResponse, error) {
	var rsp GetCapabilityResponse
	if err := d.Execute(ctx, cmd, &rsp, s...); err != nil {
		return nil, err
	}
	return &rsp, nil
}

// GetCapabilityResponse is the response from TPM2_GetCapability.
type GetCapabilityResponse struct {
	// flag to indicate if there are more values of this type
	MoreData TPMIYesNo `tpm:"1"`
	// the capability data
	CapabilityData TPMSCapabilityData `tpm:"2"`
}

// Response implements the Response interface.
func (*GetCapabilityResponse) Response() TPMCC { return TPMCCGetCapability }

// GetRandom is the input to TPM2_GetRandom.
// See definition in Part 3, Commands, section 16.1
type GetRandom struct {
	// number of octets to return
	BytesRequested uint16 `tpm:"1"`
}

// Command implements the Command interface.
func (GetRandom) Command() TPMCC { return TPMCCGetRandom }

// Execute executes the command and returns the response.
func (cmd GetRandom) Execute(ctx context.Context, d *Dispatcher, s ...Session) (*GetRandomResponse, error) {
	var rsp GetRandomResponse
	if err := d.Execute(ctx, cmd, &rsp, s...); err != nil {
		return nil, err
	}
	return &rsp, nil
}

// GetRandomResponse is the response from TPM2_GetRandom.
type GetRandomResponse struct {
	// the random octets
	RandomBytes TPM2BDigest `tpm:"1"`
}

// Response implements the Response interface.
func (*GetRandomResponse) Response() TPMCC { return TPMCCGetRandom }
