package tpm2

import (
	"bytes"
	"crypto"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tpmwire/go-tpmwire/tpmutil"
)

type tamperMode int

const (
	tamperNone tamperMode = iota
	// flip a bit of the first response HMAC
	tamperHMAC
	// flip a bit of the last response parameter byte, after the HMACs are computed
	tamperParameters
)

// fakeTPM is an in-memory TPM for the handful of commands the dispatcher and
// session tests send. It checks command HMACs and produces response HMACs the
// way a TPM does, so a session that talks to it successfully computes them
// correctly.
type fakeTPM struct {
	inFlight atomic.Int32
	overlap  atomic.Bool

	mu       sync.Mutex
	sessions map[TPMHandle]*fakeSession
	next     uint32
	// auth holds the authValue of entities. Missing entries are empty.
	auth       map[TPMHandle][]byte
	pcrs       map[int][]byte
	pcrUpdates uint32

	// Fault injection.
	warnings int           // answer this many commands with TPM_RC_RETRY
	rc       TPMRC         // answer the next command with rc
	sendErr  error         // fail every Send
	tamper   tamperMode    // corrupt the next authorized response
	block    chan struct{} // hold Send until closed
	delay    time.Duration

	sent      int
	commands  [][]byte
	responses [][]byte
	// decrypted is the plaintext of the last encrypted command parameter.
	decrypted []byte
}

type fakeSession struct {
	handle       TPMHandle
	kind         TPMSE
	hash         TPMIAlgHash
	nonceTPM     []byte
	nonceCaller  []byte
	sessionKey   []byte
	bindName     []byte
	cipher       *paramCipher
	policyDigest []byte
}

func newFakeTPM() *fakeTPM {
	return &fakeTPM{
		sessions: make(map[TPMHandle]*fakeSession),
		auth:     make(map[TPMHandle][]byte),
		pcrs:     make(map[int][]byte),
	}
}

// fakeLayout is the number of handles of a command, and how many of them need
// authorization.
var fakeLayout = map[TPMCC]struct{ handles, auths int }{
	TPMCCStartAuthSession: {2, 0},
	TPMCCGetRandom:        {0, 0},
	TPMCCPCRRead:          {0, 0},
	TPMCCPCRExtend:        {1, 1},
	TPMCCPolicyPCR:        {1, 0},
	TPMCCPolicyGetDigest:  {1, 0},
	TPMCCFlushContext:     {0, 0},
}

func (f *fakeTPM) Send(cmd []byte) ([]byte, error) {
	if f.inFlight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.inFlight.Add(-1)

	f.mu.Lock()
	block, delay := f.block, f.delay
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	time.Sleep(delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	f.commands = append(f.commands, append([]byte(nil), cmd...))
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	var rsp []byte
	switch {
	case f.warnings > 0:
		f.warnings--
		rsp = rcResponse(TPMRCRetry)
	case f.rc != TPMRCSuccess:
		rsp = rcResponse(f.rc)
		f.rc = TPMRCSuccess
	default:
		var rc TPMRC
		if rsp, rc = f.execute(cmd); rc != TPMRCSuccess {
			rsp = rcResponse(rc)
		}
	}
	f.responses = append(f.responses, rsp)
	return rsp, nil
}

func (f *fakeTPM) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

func (f *fakeTPM) pcr(i int) []byte {
	if v, ok := f.pcrs[i]; ok {
		return v
	}
	return make([]byte, sha256.Size)
}

func rcResponse(rc TPMRC) []byte {
	rsp := make([]byte, 10)
	binary.BigEndian.PutUint16(rsp[0:], uint16(TPMSTNoSessions))
	binary.BigEndian.PutUint32(rsp[2:], 10)
	binary.BigEndian.PutUint32(rsp[6:], uint32(rc))
	return rsp
}

// sessionRC attributes a format-1 code to session i (0-based).
func sessionRC(rc TPMRC, i int) TPMRC {
	return rc | rcS | TPMRC(i+1)<<8
}

func mustMarshal(v interface{}) []byte {
	b, err := Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// fakeAuth is one session of a command being executed.
type fakeAuth struct {
	cmd  TPMSAuthCommand
	sess *fakeSession // nil for a password session
	// entity is the handle the session authorizes, if authorizes is set.
	entity     TPMHandle
	name       TPM2BName
	authorizes bool
}

func (f *fakeTPM) hmacKey(a *fakeAuth) []byte {
	key := append([]byte(nil), a.sess.sessionKey...)
	if !a.authorizes {
		return key
	}
	if a.sess.bindName != nil && bytes.Equal(a.sess.bindName, a.name.Buffer) {
		return key
	}
	return append(key, trimAuth(f.auth[a.entity])...)
}

func (f *fakeTPM) paramKey(a *fakeAuth) []byte {
	key := append([]byte(nil), a.sess.sessionKey...)
	if a.authorizes {
		key = append(key, trimAuth(f.auth[a.entity])...)
	}
	return key
}

func hashOf(alg TPMIAlgHash) crypto.Hash {
	h, err := alg.Hash()
	if err != nil {
		panic(err)
	}
	return h
}

// firstTPM2B returns the contents of the TPM2B at the start of parms.
func firstTPM2B(parms []byte) []byte {
	if len(parms) < 2 {
		return nil
	}
	n := int(binary.BigEndian.Uint16(parms))
	if 2+n > len(parms) {
		return nil
	}
	return parms[2 : 2+n]
}

func (f *fakeTPM) execute(cmd []byte) ([]byte, TPMRC) {
	r := tpmutil.NewReader(cmd)
	var hdr commandHeader
	if err := unmarshal(r, reflect.ValueOf(&hdr).Elem()); err != nil || int(hdr.Size) != len(cmd) {
		return nil, TPMRCCommandSize
	}
	layout, ok := fakeLayout[hdr.CommandCode]
	if !ok {
		return nil, TPMRCCommandCode
	}
	var handles []TPMHandle
	var names []TPM2BName
	for i := 0; i < layout.handles; i++ {
		h, err := r.ReadU32()
		if err != nil {
			return nil, TPMRCInsufficient
		}
		handles = append(handles, TPMHandle(h))
		names = append(names, HandleName(TPMHandle(h)))
	}

	var auths []*fakeAuth
	if hdr.Tag == TPMSTSessions {
		size, err := r.ReadU32()
		if err != nil {
			return nil, TPMRCAuthSize
		}
		area, err := r.Sub(int(size))
		if err != nil {
			return nil, TPMRCAuthSize
		}
		for area.Len() > 0 {
			a := &fakeAuth{}
			if err := unmarshal(area, reflect.ValueOf(&a.cmd).Elem()); err != nil {
				return nil, TPMRCAuthSize
			}
			if i := len(auths); i < layout.auths {
				a.entity, a.name, a.authorizes = handles[i], names[i], true
			}
			if a.cmd.Handle != TPMRSPW {
				s, ok := f.sessions[a.cmd.Handle]
				if !ok {
					return nil, TPMRCReferenceS0 + TPMRC(len(auths))
				}
				a.sess = s
			}
			auths = append(auths, a)
		}
	}
	if len(auths) < layout.auths {
		return nil, TPMRCAuthMissing
	}
	params, err := r.ReadBytes(r.Len())
	if err != nil {
		return nil, TPMRCInsufficient
	}

	// Check every authorization before touching any state.
	for i, a := range auths {
		if a.sess == nil {
			if !bytes.Equal(a.cmd.Authorization.Buffer, trimAuth(f.auth[a.entity])) {
				return nil, sessionRC(TPMRCAuthFail, i)
			}
			continue
		}
		h := hashOf(a.sess.hash)
		cpHash := h.New()
		var word [4]byte
		binary.BigEndian.PutUint32(word[:], uint32(hdr.CommandCode))
		cpHash.Write(word[:])
		for _, name := range names {
			cpHash.Write(name.Buffer)
		}
		cpHash.Write(params)

		mac := hmac.New(h.New, f.hmacKey(a))
		mac.Write(cpHash.Sum(nil))
		mac.Write(a.cmd.Nonce.Buffer)
		mac.Write(a.sess.nonceTPM)
		if i == 0 {
			var decNonce, encNonce []byte
			for _, other := range auths[1:] {
				if other.sess == nil {
					continue
				}
				if other.cmd.Attributes&TPMASessionDecrypt != 0 {
					decNonce = other.sess.nonceTPM
				} else if other.cmd.Attributes&TPMASessionEncrypt != 0 {
					encNonce = other.sess.nonceTPM
				}
			}
			mac.Write(decNonce)
			mac.Write(encNonce)
		}
		mac.Write([]byte{byte(a.cmd.Attributes)})
		if !hmac.Equal(mac.Sum(nil), a.cmd.Authorization.Buffer) {
			return nil, sessionRC(TPMRCAuthFail, i)
		}
	}
	for _, a := range auths {
		if a.sess != nil {
			a.sess.nonceCaller = a.cmd.Nonce.Buffer
		}
	}

	params = append([]byte(nil), params...)
	for _, a := range auths {
		if a.sess == nil || a.cmd.Attributes&TPMASessionDecrypt == 0 {
			continue
		}
		data := firstTPM2B(params)
		if data == nil || a.sess.cipher == nil {
			return nil, TPMRCAttributes
		}
		if err := a.sess.cipher.apply(f.paramKey(a), a.sess.nonceCaller, a.sess.nonceTPM, data, false); err != nil {
			return nil, TPMRCSymmetric
		}
		f.decrypted = append([]byte(nil), data...)
	}

	rspHandles, out, rc := f.run(hdr.CommandCode, handles, params)
	if rc != TPMRCSuccess {
		return nil, rc
	}

	w := tpmutil.NewWriter(64)
	tag := TPMSTNoSessions
	if len(auths) > 0 {
		tag = TPMSTSessions
	}
	w.WriteU16(uint16(tag))
	w.WriteU32(0)
	w.WriteU32(uint32(TPMRCSuccess))
	for _, h := range rspHandles {
		w.WriteU32(uint32(h))
	}
	if len(auths) == 0 {
		w.WriteBytes(out)
		w.PatchU32(2, uint32(w.Len()))
		return w.Bytes(), TPMRCSuccess
	}

	for _, a := range auths {
		if a.sess != nil {
			a.sess.nonceTPM = randomBytes(len(a.sess.nonceTPM))
		}
	}
	for _, a := range auths {
		if a.sess == nil || a.cmd.Attributes&TPMASessionEncrypt == 0 {
			continue
		}
		data := firstTPM2B(out)
		if data == nil || a.sess.cipher == nil {
			return nil, TPMRCAttributes
		}
		if err := a.sess.cipher.apply(f.paramKey(a), a.sess.nonceTPM, a.sess.nonceCaller, data, true); err != nil {
			return nil, TPMRCSymmetric
		}
	}
	w.WriteU32(uint32(len(out)))
	paramsAt := w.Len()
	w.WriteBytes(out)
	for _, a := range auths {
		rsp := TPMSAuthResponse{Attributes: TPMASessionContinueSession}
		if a.sess != nil {
			s := a.sess
			rsp = TPMSAuthResponse{Nonce: TPM2BNonce{Buffer: s.nonceTPM}, Attributes: a.cmd.Attributes}
			h := hashOf(s.hash)
			rpHash := h.New()
			var word [4]byte
			binary.BigEndian.PutUint32(word[:], uint32(TPMRCSuccess))
			rpHash.Write(word[:])
			binary.BigEndian.PutUint32(word[:], uint32(hdr.CommandCode))
			rpHash.Write(word[:])
			rpHash.Write(out)
			mac := hmac.New(h.New, f.hmacKey(a))
			mac.Write(rpHash.Sum(nil))
			mac.Write(s.nonceTPM)
			mac.Write(s.nonceCaller)
			mac.Write([]byte{byte(rsp.Attributes)})
			rsp.Authorization = TPM2BAuth{Buffer: mac.Sum(nil)}
			if f.tamper == tamperHMAC {
				rsp.Authorization.Buffer[0] ^= 0x01
				f.tamper = tamperNone
			}
			if a.cmd.Attributes&TPMASessionContinueSession == 0 {
				delete(f.sessions, s.handle)
			}
		}
		w.WriteBytes(mustMarshal(rsp))
	}
	if f.tamper == tamperParameters && len(out) > 0 {
		w.Bytes()[paramsAt+len(out)-1] ^= 0x01
		f.tamper = tamperNone
	}
	w.PatchU32(2, uint32(w.Len()))
	return w.Bytes(), TPMRCSuccess
}

// run executes a command whose authorizations have been checked and returns
// its response handles and parameters.
func (f *fakeTPM) run(cc TPMCC, handles []TPMHandle, params []byte) ([]TPMHandle, []byte, TPMRC) {
	decode := func(v interface{}) bool {
		n, err := Decode(params, v)
		return err == nil && n == len(params)
	}
	switch cc {
	case TPMCCStartAuthSession:
		var c StartAuthSession
		if !decode(&c) {
			return nil, nil, TPMRCValue
		}
		s, rc := f.startSession(handles[1], c)
		if rc != TPMRCSuccess {
			return nil, nil, rc
		}
		return []TPMHandle{s.handle}, mustMarshal(TPM2BNonce{Buffer: s.nonceTPM}), TPMRCSuccess

	case TPMCCGetRandom:
		var c GetRandom
		if !decode(&c) {
			return nil, nil, TPMRCValue
		}
		b := make([]byte, c.BytesRequested)
		for i := range b {
			b[i] = byte(i)
		}
		return nil, mustMarshal(TPM2BDigest{Buffer: b}), TPMRCSuccess

	case TPMCCPCRRead:
		var c PCRRead
		if !decode(&c) {
			return nil, nil, TPMRCValue
		}
		var values TPMLDigest
		for _, sel := range c.PCRSelectionIn.PCRSelections {
			for _, pcr := range sel.PCRs() {
				values.Digests = append(values.Digests, TPM2BDigest{Buffer: f.pcr(pcr)})
			}
		}
		return nil, mustMarshal(PCRReadResponse{
			PCRUpdateCounter: f.pcrUpdates,
			PCRSelectionOut:  c.PCRSelectionIn,
			PCRValues:        values,
		}), TPMRCSuccess

	case TPMCCPCRExtend:
		var c PCRExtend
		if !decode(&c) {
			return nil, nil, TPMRCValue
		}
		pcr := int(handles[0])
		if pcr > 23 {
			return nil, nil, TPMRCValue | TPMRC(1)<<8
		}
		for _, d := range c.Digests.Digests {
			if d.HashAlg != TPMAlgSHA256 {
				continue
			}
			h := sha256.New()
			h.Write(f.pcr(pcr))
			h.Write(d.Bytes())
			f.pcrs[pcr] = h.Sum(nil)
		}
		f.pcrUpdates++
		return nil, nil, TPMRCSuccess

	case TPMCCPolicyPCR:
		s, ok := f.sessions[handles[0]]
		if !ok || s.kind != TPMSEPolicy {
			return nil, nil, TPMRCHandle | TPMRC(1)<<8
		}
		var c PolicyPCR
		if !decode(&c) {
			return nil, nil, TPMRCValue
		}
		h := sha256.New()
		h.Write(s.policyDigest)
		var word [4]byte
		binary.BigEndian.PutUint32(word[:], uint32(TPMCCPolicyPCR))
		h.Write(word[:])
		h.Write(mustMarshal(c.Pcrs))
		h.Write(c.PcrDigest.Buffer)
		s.policyDigest = h.Sum(nil)
		return nil, nil, TPMRCSuccess

	case TPMCCPolicyGetDigest:
		s, ok := f.sessions[handles[0]]
		if !ok || s.kind != TPMSEPolicy {
			return nil, nil, TPMRCHandle | TPMRC(1)<<8
		}
		return nil, mustMarshal(TPM2BDigest{Buffer: s.policyDigest}), TPMRCSuccess

	case TPMCCFlushContext:
		var c FlushContext
		if !decode(&c) {
			return nil, nil, TPMRCValue
		}
		if _, ok := f.sessions[c.FlushHandle]; !ok {
			return nil, nil, TPMRCHandle | rcP | TPMRC(1)<<8
		}
		delete(f.sessions, c.FlushHandle)
		return nil, nil, TPMRCSuccess
	}
	return nil, nil, TPMRCCommandCode
}

func (f *fakeTPM) startSession(bind TPMHandle, c StartAuthSession) (*fakeSession, TPMRC) {
	if _, err := c.AuthHash.Hash(); err != nil {
		return nil, TPMRCHash | rcP | TPMRC(6)<<8
	}
	if len(c.NonceCaller.Buffer) < 16 {
		return nil, TPMRCSize | rcP | TPMRC(1)<<8
	}
	f.next++
	s := &fakeSession{
		kind:         c.SessionType,
		hash:         c.AuthHash,
		nonceCaller:  c.NonceCaller.Buffer,
		nonceTPM:     randomBytes(len(c.NonceCaller.Buffer)),
		policyDigest: make([]byte, sha256.Size),
	}
	s.handle = TPMHandle(uint32(TPMHTHMACSession)<<24 | f.next)
	if c.SessionType == TPMSEPolicy {
		s.handle = TPMHandle(uint32(TPMHTPolicySession)<<24 | f.next)
	}
	switch c.Symmetric.Algorithm {
	case TPMAlgNull:
	case TPMAlgXOR:
		s.cipher = &paramCipher{alg: TPMAlgXOR, hash: c.AuthHash}
	case TPMAlgAES:
		bits, ok := c.Symmetric.KeyBits.(SymKeyBitsAES)
		if !ok {
			return nil, TPMRCSymmetric
		}
		s.cipher = &paramCipher{alg: TPMAlgAES, keyBits: int(bits), hash: c.AuthHash}
	default:
		return nil, TPMRCSymmetric
	}
	if bind != TPMRHNull {
		s.bindName = HandleName(bind).Buffer
		key, err := KDFa(c.AuthHash, trimAuth(f.auth[bind]), labelSessionKey, s.nonceTPM, s.nonceCaller, hashOf(c.AuthHash).Size()*8)
		if err != nil {
			return nil, TPMRCHash
		}
		s.sessionKey = key
	}
	f.sessions[s.handle] = s
	return s, TPMRCSuccess
}

// recorder is an Observer that keeps everything it is told.
type recorder struct {
	mu        sync.Mutex
	states    []State
	completed []error
	retries   []TPMRC
}

func (r *recorder) Transition(_ TPMCC, _, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, to)
}

func (r *recorder) Completed(_ TPMCC, _ TPMRC, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, err)
}

func (r *recorder) Retrying(_ TPMCC, rc TPMRC, _ int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries = append(r.retries, rc)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states, r.completed, r.retries = nil, nil, nil
}
