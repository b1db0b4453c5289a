package tpm2

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// Session represents a session in the TPM.
type Session interface {
	// Handle returns the session handle, TPM_RS_PW for a password session.
	Handle() TPMHandle
	// NonceTPM returns the last nonceTPM value received from the TPM.
	NonceTPM() TPM2BNonce
	// IsEncryption reports whether the TPM encrypts the first response
	// parameter with this session.
	IsEncryption() bool
	// IsDecryption reports whether the TPM expects the first command
	// parameter to be encrypted with this session.
	IsDecryption() bool
	// NewNonceCaller generates the nonceCaller for the next command.
	NewNonceCaller() error
	// Authorize computes the authorization structure for the session.
	// addNonces holds the decrypt and encrypt sessions' nonceTPM values,
	// which only the first session of a command covers. authIndex is the
	// position in names of the handle this session authorizes, or -1.
	Authorize(cc TPMCC, parms, addNonces []byte, names []TPM2BName, authIndex int) (*TPMSAuthCommand, error)
	// Validate checks the response authorization structure and takes the
	// new nonceTPM from it.
	Validate(rc TPMRC, cc TPMCC, parms []byte, names []TPM2BName, authIndex int, auth *TPMSAuthResponse) error
	// Encrypt encrypts the first command parameter in place, if this is a
	// decryption session.
	Encrypt(parameter []byte) error
	// Decrypt decrypts the first response parameter in place, if this is an
	// encryption session.
	Decrypt(parameter []byte) error
	// Invalidate marks the session's nonces as unknown. Every later use
	// fails until the session is established again.
	Invalidate()
	// Terminated reports whether the TPM has closed the session.
	Terminated() bool
}

// pwSession is a password pseudo-session: the auth value is sent in the
// clear where the HMAC would go.
type pwSession struct {
	auth []byte
}

// PasswordAuth returns a password session with the given auth value.
func PasswordAuth(auth []byte) Session {
	return &pwSession{auth: auth}
}

func (s *pwSession) Handle() TPMHandle     { return TPMRSPW }
func (s *pwSession) NonceTPM() TPM2BNonce  { return TPM2BNonce{} }
func (s *pwSession) IsEncryption() bool    { return false }
func (s *pwSession) IsDecryption() bool    { return false }
func (s *pwSession) NewNonceCaller() error { return nil }
func (s *pwSession) Encrypt([]byte) error  { return nil }
func (s *pwSession) Decrypt([]byte) error  { return nil }
func (s *pwSession) Invalidate()           {}
func (s *pwSession) Terminated() bool      { return false }

func (s *pwSession) Authorize(TPMCC, []byte, []byte, []TPM2BName, int) (*TPMSAuthCommand, error) {
	return &TPMSAuthCommand{
		Handle:        TPMRSPW,
		Nonce:         TPM2BNonce{},
		Attributes:    TPMASessionContinueSession,
		Authorization: TPM2BAuth{Buffer: s.auth},
	}, nil
}

func (s *pwSession) Validate(_ TPMRC, _ TPMCC, _ []byte, _ []TPM2BName, _ int, auth *TPMSAuthResponse) error {
	if len(auth.Nonce.Buffer) != 0 {
		return fmt.Errorf("expected empty nonce in response auth to PW session, got %x", auth.Nonce.Buffer)
	}
	if auth.Attributes != TPMASessionContinueSession {
		return fmt.Errorf("expected only ContinueSession in response auth to PW session, got 0x%02x", uint8(auth.Attributes))
	}
	if len(auth.Authorization.Buffer) != 0 {
		return fmt.Errorf("expected empty HMAC in response auth to PW session, got %x", auth.Authorization.Buffer)
	}
	return nil
}

// ParameterEncryptionDirection selects which parameters a session protects.
type ParameterEncryptionDirection int

const (
	// EncryptIn protects the first command parameter.
	EncryptIn ParameterEncryptionDirection = 1 + iota
	// EncryptOut protects the first response parameter.
	EncryptOut
	// EncryptInOut protects both.
	EncryptInOut
)

// HMACSession is an HMAC or policy session. It is not safe for concurrent
// use: a session belongs to one command at a time.
type HMACSession struct {
	kind      TPMSE
	handle    TPMHandle
	hash      TPMIAlgHash
	nonceSize int

	nonceCaller TPM2BNonce
	nonceTPM    TPM2BNonce
	sessionKey  []byte
	// authValue of the entity this session authorizes.
	auth []byte

	bindHandle TPMHandle
	bindName   TPM2BName
	bindAuth   []byte
	bound      bool

	attrs  TPMASession
	cipher *paramCipher
	dir    ParameterEncryptionDirection

	policyAuthValue bool
	policyPassword  bool

	// rolled is set by NewNonceCaller and consumed by Authorize.
	rolled     bool
	terminated bool
	desynced   bool
}

// AuthOption configures an HMACSession before it is started.
type AuthOption func(*HMACSession)

// Auth sets the auth value of the entity the session will authorize.
func Auth(auth []byte) AuthOption {
	return func(s *HMACSession) { s.auth = auth }
}

// AESEncryption uses AES-CFB with the given key size for parameter
// encryption in the given direction.
func AESEncryption(keyBits int, dir ParameterEncryptionDirection) AuthOption {
	return func(s *HMACSession) {
		s.cipher = &paramCipher{alg: TPMAlgAES, keyBits: keyBits}
		s.dir = dir
	}
}

// XOREncryption uses XOR obfuscation for parameter encryption in the given
// direction.
func XOREncryption(dir ParameterEncryptionDirection) AuthOption {
	return func(s *HMACSession) {
		s.cipher = &paramCipher{alg: TPMAlgXOR}
		s.dir = dir
	}
}

// Bound binds the session to the entity at handle, whose Name and auth value
// are given. The auth value is then part of the session key.
func Bound(handle TPMHandle, name TPM2BName, auth []byte) AuthOption {
	return func(s *HMACSession) {
		s.bound = true
		s.bindHandle = handle
		s.bindName = name
		s.bindAuth = auth
	}
}

// Audit sets the audit attribute on every use of the session.
func Audit() AuthOption {
	return func(s *HMACSession) { s.attrs |= TPMASessionAudit }
}

// OneShot clears continueSession, so the TPM closes the session after its
// next use.
func OneShot() AuthOption {
	return func(s *HMACSession) { s.attrs |= oneShot }
}

// PolicyAuthValue makes a policy session include the auth value in its HMAC
// key, matching a TPM2_PolicyAuthValue in the policy.
func PolicyAuthValue() AuthOption {
	return func(s *HMACSession) { s.policyAuthValue = true }
}

// PolicyPassword makes a policy session send the auth value in the clear,
// matching a TPM2_PolicyPassword in the policy.
func PolicyPassword() AuthOption {
	return func(s *HMACSession) { s.policyPassword = true }
}

// oneShot is a private marker kept in attrs; it is never sent.
const oneShot TPMASession = 1 << 3

// HMAC starts an unsalted HMAC session through d.
func HMAC(ctx context.Context, d *Dispatcher, hash TPMIAlgHash, nonceSize int, opts ...AuthOption) (*HMACSession, error) {
	return startSession(ctx, d, TPMSEHMAC, hash, nonceSize, opts...)
}

// Policy starts an unsalted policy session through d.
func Policy(ctx context.Context, d *Dispatcher, hash TPMIAlgHash, nonceSize int, opts ...AuthOption) (*HMACSession, error) {
	return startSession(ctx, d, TPMSEPolicy, hash, nonceSize, opts...)
}

func newHMACSession(kind TPMSE, hash TPMIAlgHash, nonceSize int, opts ...AuthOption) (*HMACSession, error) {
	s := &HMACSession{kind: kind, hash: hash, nonceSize: nonceSize}
	for _, opt := range opts {
		opt(s)
	}
	h, err := hash.Hash()
	if err != nil {
		return nil, err
	}
	if nonceSize < 16 || nonceSize > h.Size() {
		return nil, fmt.Errorf("nonce size %d outside [16, %d] for hash 0x%04x", nonceSize, h.Size(), uint16(hash))
	}
	if s.cipher != nil {
		s.cipher.hash = hash
		if s.cipher.alg == TPMAlgAES && s.cipher.keyBits != 128 && s.cipher.keyBits != 192 && s.cipher.keyBits != 256 {
			return nil, fmt.Errorf("%w: AES-%d", ErrUnsupportedAlgorithm, s.cipher.keyBits)
		}
	}
	return s, nil
}

func startSession(ctx context.Context, d *Dispatcher, kind TPMSE, hash TPMIAlgHash, nonceSize int, opts ...AuthOption) (*HMACSession, error) {
	s, err := newHMACSession(kind, hash, nonceSize, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.roll(); err != nil {
		return nil, err
	}
	bind := TPMRHNull
	if s.bound {
		bind = s.bindHandle
	}
	cmd := StartAuthSession{
		TPMKey:      TPMRHNull,
		Bind:        bind,
		NonceCaller: s.nonceCaller,
		SessionType: kind,
		Symmetric:   s.cipher.symDef(),
		AuthHash:    hash,
	}
	rsp, err := cmd.Execute(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("starting session: %w", err)
	}
	if err := s.start(rsp.SessionHandle, rsp.NonceTPM); err != nil {
		return nil, err
	}
	return s, nil
}

// start records the TPM's answer to TPM2_StartAuthSession, derives the
// session key and rolls the nonce for the first command.
func (s *HMACSession) start(handle TPMHandle, nonceTPM TPM2BNonce) error {
	s.handle = handle
	s.nonceTPM = nonceTPM
	if s.bound {
		h, err := s.hash.Hash()
		if err != nil {
			return err
		}
		key, err := KDFa(s.hash, trimAuth(s.bindAuth), labelSessionKey, s.nonceTPM.Buffer, s.nonceCaller.Buffer, h.Size()*8)
		if err != nil {
			return err
		}
		s.sessionKey = key
	}
	return s.roll()
}

// Close flushes the session from the TPM.
func (s *HMACSession) Close(ctx context.Context, d *Dispatcher) error {
	s.terminated = true
	_, err := FlushContext{FlushHandle: s.handle}.Execute(ctx, d)
	return err
}

func (s *HMACSession) roll() error {
	nonce := make([]byte, s.nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating nonceCaller: %w", err)
	}
	s.nonceCaller = TPM2BNonce{Buffer: nonce}
	s.rolled = true
	return nil
}

// Handle returns the session handle.
func (s *HMACSession) Handle() TPMHandle { return s.handle }

// NonceTPM returns the last nonceTPM value received from the TPM.
func (s *HMACSession) NonceTPM() TPM2BNonce { return s.nonceTPM }

// IsEncryption reports whether the TPM encrypts the first response parameter.
func (s *HMACSession) IsEncryption() bool {
	return s.cipher != nil && (s.dir == EncryptOut || s.dir == EncryptInOut)
}

// IsDecryption reports whether the first command parameter is encrypted.
func (s *HMACSession) IsDecryption() bool {
	return s.cipher != nil && (s.dir == EncryptIn || s.dir == EncryptInOut)
}

// Invalidate marks the session's nonces as unknown.
func (s *HMACSession) Invalidate() { s.desynced = true }

// Terminated reports whether the TPM has closed the session.
func (s *HMACSession) Terminated() bool { return s.terminated }

func (s *HMACSession) usable() error {
	if s.desynced {
		return ErrSessionDesynchronized
	}
	if s.terminated {
		return ErrSessionTerminated
	}
	return nil
}

// NewNonceCaller generates the nonceCaller for the next command.
func (s *HMACSession) NewNonceCaller() error {
	if err := s.usable(); err != nil {
		return err
	}
	return s.roll()
}

// attributes returns the session attributes sent with the next command.
func (s *HMACSession) attributes() TPMASession {
	attrs := s.attrs &^ oneShot
	if s.attrs&oneShot == 0 {
		attrs |= TPMASessionContinueSession
	}
	if s.IsDecryption() {
		attrs |= TPMASessionDecrypt
	}
	if s.IsEncryption() {
		attrs |= TPMASessionEncrypt
	}
	return attrs
}

// hmacKey returns the key of the command and response HMACs. The auth value
// is left out when the session is bound to the entity it authorizes, since
// the session key already covers it.
func (s *HMACSession) hmacKey(names []TPM2BName, authIndex int) []byte {
	key := append([]byte(nil), s.sessionKey...)
	if authIndex < 0 || authIndex >= len(names) {
		return key
	}
	if s.kind == TPMSEPolicy && !s.policyAuthValue {
		return key
	}
	if s.kind == TPMSEHMAC && s.bound && bytes.Equal(s.bindName.Buffer, names[authIndex].Buffer) {
		return key
	}
	return append(key, trimAuth(s.auth)...)
}

// Authorize computes the authorization structure for the session.
// See Part 1, section 19.6.5.
func (s *HMACSession) Authorize(cc TPMCC, parms, addNonces []byte, names []TPM2BName, authIndex int) (*TPMSAuthCommand, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	if !s.rolled {
		return nil, ErrNonceNotRolled
	}
	s.rolled = false
	attrs := s.attributes()
	result := TPMSAuthCommand{
		Handle:     s.handle,
		Nonce:      s.nonceCaller,
		Attributes: attrs,
	}
	if s.kind == TPMSEPolicy && s.policyPassword {
		result.Authorization = TPM2BAuth{Buffer: s.auth}
		return &result, nil
	}
	h, err := s.hash.Hash()
	if err != nil {
		return nil, err
	}
	cpHash := h.New()
	var word [4]byte
	binary.BigEndian.PutUint32(word[:], uint32(cc))
	cpHash.Write(word[:])
	for _, name := range names {
		cpHash.Write(name.Buffer)
	}
	cpHash.Write(parms)

	mac := hmac.New(h.New, s.hmacKey(names, authIndex))
	mac.Write(cpHash.Sum(nil))
	mac.Write(s.nonceCaller.Buffer)
	mac.Write(s.nonceTPM.Buffer)
	mac.Write(addNonces)
	mac.Write([]byte{byte(attrs)})
	result.Authorization = TPM2BAuth{Buffer: mac.Sum(nil)}
	return &result, nil
}

// Validate checks the response HMAC and takes the new nonceTPM.
// See Part 1, section 19.6.7.
func (s *HMACSession) Validate(rc TPMRC, cc TPMCC, parms []byte, names []TPM2BName, authIndex int, auth *TPMSAuthResponse) error {
	if err := s.usable(); err != nil {
		return err
	}
	if s.kind == TPMSEPolicy && s.policyPassword {
		if len(auth.Authorization.Buffer) != 0 {
			return fmt.Errorf("%w: expected empty HMAC for a password policy session", ErrHMACMismatch)
		}
	} else {
		h, err := s.hash.Hash()
		if err != nil {
			return err
		}
		rpHash := h.New()
		var word [4]byte
		binary.BigEndian.PutUint32(word[:], uint32(rc))
		rpHash.Write(word[:])
		binary.BigEndian.PutUint32(word[:], uint32(cc))
		rpHash.Write(word[:])
		rpHash.Write(parms)

		mac := hmac.New(h.New, s.hmacKey(names, authIndex))
		mac.Write(rpHash.Sum(nil))
		mac.Write(auth.Nonce.Buffer)
		mac.Write(s.nonceCaller.Buffer)
		mac.Write([]byte{byte(auth.Attributes)})
		if !hmac.Equal(mac.Sum(nil), auth.Authorization.Buffer) {
			return ErrHMACMismatch
		}
	}
	s.nonceTPM = auth.Nonce
	if auth.Attributes&TPMASessionContinueSession == 0 {
		s.terminated = true
	}
	return nil
}

// paramKey is the key parameter encryption derives from.
func (s *HMACSession) paramKey() []byte {
	key := append([]byte(nil), s.sessionKey...)
	return append(key, trimAuth(s.auth)...)
}

// Encrypt encrypts the first command parameter in place. It runs before
// Authorize, whose cpHash covers the encrypted form.
func (s *HMACSession) Encrypt(parameter []byte) error {
	if !s.IsDecryption() {
		return nil
	}
	if err := s.usable(); err != nil {
		return err
	}
	if !s.rolled {
		return ErrNonceNotRolled
	}
	return s.cipher.apply(s.paramKey(), s.nonceCaller.Buffer, s.nonceTPM.Buffer, parameter, true)
}

// Decrypt decrypts the first response parameter in place. It runs after
// Validate, so nonceTPM is the one the TPM encrypted with.
func (s *HMACSession) Decrypt(parameter []byte) error {
	if !s.IsEncryption() {
		return nil
	}
	if s.desynced {
		return ErrSessionDesynchronized
	}
	return s.cipher.apply(s.paramKey(), s.nonceTPM.Buffer, s.nonceCaller.Buffer, parameter, false)
}

// trimAuth removes trailing zero octets, as the TPM does for auth values.
func trimAuth(auth []byte) []byte {
	return bytes.TrimRight(auth, "\x00")
}
