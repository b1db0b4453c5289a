package tpm2

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/tpmwire/go-tpmwire/tpm2/transport"
	"github.com/tpmwire/go-tpmwire/tpmutil"
)

// maxSessions is the most authorization sessions one command may carry.
const maxSessions = 3

// Command is a placeholder interface for TPM command structures so that they
// can be easily distinguished from other types of structures.
type Command interface {
	// The TPM command code associated with this command.
	Command() TPMCC
}

// Response is a placeholder interface for TPM response structures so that they
// can be easily distinguished from other types of structures.
// All implementations of this interface are pointers to structures, for
// settability.
// See https://go.dev/blog/laws-of-reflection
type Response interface {
	// The TPM command code associated with this response.
	Response() TPMCC
}

// State is a step in the life of one command exchange.
type State int

// States of a command exchange. Complete and Faulted are terminal.
const (
	StateIdle State = iota
	StateBuilding
	StateSent
	StateAwaitingResponse
	StateDecoding
	StateComplete
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateBuilding:
		return "Building"
	case StateSent:
		return "Sent"
	case StateAwaitingResponse:
		return "AwaitingResponse"
	case StateDecoding:
		return "Decoding"
	case StateComplete:
		return "Complete"
	case StateFaulted:
		return "Faulted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Observer is told about the progress of every command a Dispatcher runs.
// Its methods are called synchronously from Execute.
type Observer interface {
	// Transition reports a state change of one attempt of a command.
	Transition(cc TPMCC, from, to State)
	// Completed reports the outcome of Execute. rc is the TPM's response
	// code, or TPMRCSuccess when the TPM did not answer with an error.
	Completed(cc TPMCC, rc TPMRC, elapsed time.Duration, err error)
	// Retrying reports that a warning will be retried after wait.
	Retrying(cc TPMCC, rc TPMRC, attempt int, wait time.Duration)
}

// RetryPolicy controls retrying of commands the TPM answered with a warning
// (for example TPM_RC_RETRY or TPM_RC_YIELDED). Errors are never retried.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt. Zero
	// surfaces every warning to the caller.
	MaxRetries uint64
	// InitialInterval is the first backoff interval.
	InitialInterval time.Duration
	// MaxInterval caps the backoff interval.
	MaxInterval time.Duration
}

// Dispatcher sends commands to one TPM connection, one at a time.
type Dispatcher struct {
	transport transport.TPM
	// sem holds a token while a command is on the transport, including
	// after its caller gave up waiting.
	sem      chan struct{}
	log      *zap.Logger
	retry    RetryPolicy
	observer Observer
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger. State transitions are logged at debug level.
func WithLogger(log *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = log }
}

// WithRetry sets the warning retry policy.
func WithRetry(p RetryPolicy) DispatcherOption {
	return func(d *Dispatcher) { d.retry = p }
}

// WithObserver sets the observer.
func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) { d.observer = o }
}

// NewDispatcher returns a Dispatcher sending commands over t.
func NewDispatcher(t transport.TPM, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		transport: t,
		sem:       make(chan struct{}, 1),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// handleInfo is one entry of a command's handle area.
type handleInfo struct {
	handle TPMHandle
	name   TPM2BName
	auth   Session
}

// exchange is everything an attempt needs that does not change between
// retries.
type exchange struct {
	cc      TPMCC
	cmd     reflect.Value
	cmdDesc *structDesc
	rspType reflect.Type
	handles []handleInfo
	names   []TPM2BName
	sess    []Session
	// authIndex[i] is the position in names of the handle session i
	// authorizes, or -1.
	authIndex []int
}

// Execute sends cmd with the given extra sessions and decodes the answer into
// rsp. The sessions of AuthHandle fields come first, in handle order.
//
// A TPM error comes back as a TPMRC. A failure to talk to the TPM comes back
// as a *TransportError; the sessions involved are then unusable.
func (d *Dispatcher) Execute(ctx context.Context, cmd Command, rsp Response, sess ...Session) (err error) {
	cc := cmd.Command()
	if rsp.Response() != cc {
		return fmt.Errorf("cmd and rsp must be for same command: %v != %v", cc, rsp.Response())
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ex, err := newExchange(cmd, rsp, sess)
	if err != nil {
		return err
	}

	start := time.Now()
	defer func() {
		if d.observer != nil {
			rc := TPMRCSuccess
			errors.As(err, &rc)
			d.observer.Completed(cc, rc, time.Since(start), err)
		}
	}()

	attempt := 0
	op := func() error {
		attempt++
		err := d.attempt(ctx, ex, rsp)
		var rc TPMRC
		if errors.As(err, &rc) && rc.IsWarning() {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	if d.retry.MaxRetries == 0 {
		return d.attempt(ctx, ex, rsp)
	}
	b := backoff.NewExponentialBackOff()
	if d.retry.InitialInterval > 0 {
		b.InitialInterval = d.retry.InitialInterval
	}
	if d.retry.MaxInterval > 0 {
		b.MaxInterval = d.retry.MaxInterval
	}
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, d.retry.MaxRetries), ctx)
	return backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		var rc TPMRC
		errors.As(err, &rc)
		d.log.Info("retrying command after warning",
			zap.Stringer("cc", cc), zap.Error(err), zap.Int("attempt", attempt), zap.Duration("wait", wait))
		if d.observer != nil {
			d.observer.Retrying(cc, rc, attempt, wait)
		}
	})
}

func newExchange(cmd Command, rsp Response, extra []Session) (*exchange, error) {
	rv := reflect.ValueOf(rsp)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("response must be a non-nil pointer to a struct, got %T", rsp)
	}
	ex := &exchange{
		cc:      cmd.Command(),
		cmd:     reflect.Indirect(reflect.ValueOf(cmd)),
		rspType: rv.Elem().Type(),
	}
	ex.cmdDesc = describe(ex.cmd.Type())
	for _, f := range ex.cmdDesc.handles() {
		var h handleInfo
		switch v := ex.cmd.Field(f.index).Interface().(type) {
		case AuthHandle:
			h = handleInfo{handle: v.Handle, name: v.effectiveName(), auth: v.effectiveAuth()}
		case NamedHandle:
			h = handleInfo{handle: v.Handle, name: v.Name}
			if len(v.Name.Buffer) == 0 {
				h.name = HandleName(v.Handle)
			}
		case TPMHandle:
			h = handleInfo{handle: v, name: HandleName(v)}
		default:
			return nil, fmt.Errorf("handle field %v of %v has unsupported type %T", f.name, ex.cmd.Type(), v)
		}
		if f.auth && h.auth == nil {
			return nil, fmt.Errorf("'auth' field %v of %v is not an AuthHandle", f.name, ex.cmd.Type())
		}
		if h.auth != nil {
			ex.sess = append(ex.sess, h.auth)
			ex.authIndex = append(ex.authIndex, len(ex.handles))
		}
		ex.handles = append(ex.handles, h)
		ex.names = append(ex.names, h.name)
	}
	for _, s := range extra {
		ex.sess = append(ex.sess, s)
		ex.authIndex = append(ex.authIndex, -1)
	}
	if len(ex.sess) > maxSessions {
		return nil, fmt.Errorf("too many sessions: %v", len(ex.sess))
	}
	var enc, dec int
	for _, s := range ex.sess {
		if s.IsEncryption() {
			enc++
		}
		if s.IsDecryption() {
			dec++
		}
	}
	if enc > 1 {
		return nil, fmt.Errorf("too many encrypt sessions: %v", enc)
	}
	if dec > 1 {
		return nil, fmt.Errorf("too many decrypt sessions: %v", dec)
	}
	return ex, nil
}

// tracker follows one attempt through the state machine.
type tracker struct {
	d     *Dispatcher
	cc    TPMCC
	state State
}

func (t *tracker) move(to State) {
	from := t.state
	t.state = to
	t.d.log.Debug("command state transition",
		zap.Stringer("cc", t.cc), zap.Stringer("from", from), zap.Stringer("to", to))
	if t.d.observer != nil {
		t.d.observer.Transition(t.cc, from, to)
	}
}

// attempt runs one exchange through the state machine.
func (d *Dispatcher) attempt(ctx context.Context, ex *exchange, rsp Response) error {
	t := &tracker{d: d, cc: ex.cc, state: StateIdle}

	t.move(StateBuilding)
	cmdBytes, err := d.build(ex)
	if err != nil {
		t.move(StateFaulted)
		return rerollAfter(err, ex.sess)
	}

	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		// Nothing was sent: the nonces are still in sync.
		t.move(StateFaulted)
		return rerollAfter(ctx.Err(), ex.sess)
	}
	type result struct {
		rsp []byte
		err error
	}
	done := make(chan result, 1)
	t.move(StateSent)
	go func() {
		rspBytes, err := d.transport.Send(cmdBytes)
		<-d.sem
		done <- result{rspBytes, err}
	}()
	t.move(StateAwaitingResponse)

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		t.move(StateFaulted)
		invalidate(ex.sess)
		return &TransportError{Op: "wait", Err: ctx.Err()}
	}
	if res.err != nil {
		t.move(StateFaulted)
		invalidate(ex.sess)
		return &TransportError{Op: "send", Err: res.err}
	}

	t.move(StateDecoding)
	fresh := reflect.New(ex.rspType).Elem()
	if err := d.decode(ex, res.rsp, fresh); err != nil {
		t.move(StateFaulted)
		var rc TPMRC
		if errors.As(err, &rc) {
			// The TPM rejected the command before rolling its nonces.
			return rerollAfter(err, ex.sess)
		}
		invalidate(ex.sess)
		return err
	}
	reflect.ValueOf(rsp).Elem().Set(fresh)
	if err := reroll(ex.sess); err != nil {
		t.move(StateFaulted)
		return err
	}
	t.move(StateComplete)
	return nil
}

func invalidate(sess []Session) {
	for _, s := range sess {
		s.Invalidate()
	}
}

// reroll gives every live session a fresh nonceCaller for its next use.
func reroll(sess []Session) error {
	var result *multierror.Error
	for i, s := range sess {
		if s.Terminated() {
			continue
		}
		if err := s.NewNonceCaller(); err != nil {
			result = multierror.Append(result, fmt.Errorf("session %d: %w", i, err))
		}
	}
	return result.ErrorOrNil()
}

// rerollAfter rerolls the sessions of a command that failed with err and
// returns err along with any cleanup failures.
func rerollAfter(err error, sess []Session) error {
	cleanup := reroll(sess)
	if cleanup == nil {
		return err
	}
	return multierror.Append(err, cleanup)
}

// build produces the command bytes: header, handles, authorization area and
// parameters, in that order.
// See Part 1, section 18.2.
func (d *Dispatcher) build(ex *exchange) ([]byte, error) {
	w := tpmutil.NewWriter(256)
	parms := tpmutil.NewWriter(128)
	if err := marshalStruct(parms, ex.cmd); err != nil {
		return nil, err
	}
	parmBytes := parms.Bytes()

	for i, s := range ex.sess {
		if !s.IsDecryption() {
			continue
		}
		first, err := firstParameter(ex.cmdDesc, parmBytes)
		if err != nil {
			return nil, fmt.Errorf("encrypting with session %d: %w", i, err)
		}
		if err := s.Encrypt(first); err != nil {
			return nil, fmt.Errorf("encrypting with session %d: %w", i, err)
		}
	}

	tag := TPMSTNoSessions
	if len(ex.sess) > 0 {
		tag = TPMSTSessions
	}
	if err := marshal(w, reflect.ValueOf(commandHeader{Tag: tag, CommandCode: ex.cc})); err != nil {
		return nil, err
	}
	for _, h := range ex.handles {
		w.WriteU32(uint32(h.handle))
	}
	if len(ex.sess) > 0 {
		sizeAt := w.Len()
		w.WriteU32(0)
		// The first session also covers the nonceTPM of a decrypt or
		// encrypt session other than itself.
		var decNonce, encNonce []byte
		for _, s := range ex.sess[1:] {
			if s.IsDecryption() {
				decNonce = s.NonceTPM().Buffer
			}
			if s.IsEncryption() && !s.IsDecryption() {
				encNonce = s.NonceTPM().Buffer
			}
		}
		for i, s := range ex.sess {
			var addNonces []byte
			if i == 0 {
				addNonces = append(append(addNonces, decNonce...), encNonce...)
			}
			auth, err := s.Authorize(ex.cc, parmBytes, addNonces, ex.names, ex.authIndex[i])
			if err != nil {
				return nil, fmt.Errorf("session %d: %w", i, err)
			}
			if err := marshal(w, reflect.ValueOf(auth)); err != nil {
				return nil, fmt.Errorf("session %d: %w", i, err)
			}
		}
		w.PatchU32(sizeAt, uint32(w.Len()-sizeAt-4))
	}
	w.WriteBytes(parmBytes)
	w.PatchU32(2, uint32(w.Len()))
	return w.Bytes(), nil
}

// firstParameter returns the contents of the first parameter of a parameter
// area laid out per desc, which must be a TPM2B.
func firstParameter(desc *structDesc, parms []byte) ([]byte, error) {
	for _, f := range desc.fields {
		if f.handle {
			continue
		}
		if !isTPM2B(desc.typ.Field(f.index).Type) {
			return nil, fmt.Errorf("first parameter %v of %v is not a TPM2B", f.name, desc.typ)
		}
		if len(parms) < 2 {
			return nil, fmt.Errorf("%w: first parameter size", ErrTruncatedBuffer)
		}
		size := int(binary.BigEndian.Uint16(parms))
		if 2+size > len(parms) {
			return nil, fmt.Errorf("%w: first parameter is %d bytes, %d present", ErrTruncatedBuffer, size, len(parms)-2)
		}
		return parms[2 : 2+size], nil
	}
	return nil, fmt.Errorf("%v has no parameters", desc.typ)
}

// decode parses a response into fresh, which is only handed to the caller
// once every check has passed.
// See Part 1, section 18.3.
func (d *Dispatcher) decode(ex *exchange, rspBytes []byte, fresh reflect.Value) error {
	r := tpmutil.NewReader(rspBytes)
	var hdr responseHeader
	if err := unmarshal(r, reflect.ValueOf(&hdr).Elem()); err != nil {
		return fmt.Errorf("unmarshalling TPM response header: %w", err)
	}
	if int(hdr.Size) != len(rspBytes) {
		return fmt.Errorf("%w: response header says %d bytes, got %d", ErrSizeMismatch, hdr.Size, len(rspBytes))
	}
	if hdr.ResponseCode != TPMRCSuccess {
		return hdr.ResponseCode
	}

	rspDesc := describe(ex.rspType)
	for i, f := range rspDesc.handles() {
		h, err := r.ReadU32()
		if err != nil {
			return fmt.Errorf("unmarshalling handle %d: %w", i, err)
		}
		fresh.Field(f.index).SetUint(uint64(h))
	}

	var parms []byte
	var err error
	if len(ex.sess) > 0 {
		if hdr.Tag != TPMSTSessions {
			return fmt.Errorf("response tag 0x%04x, want TPM_ST_SESSIONS", uint16(hdr.Tag))
		}
		size, err := r.ReadU32()
		if err != nil {
			return fmt.Errorf("reading length of parameter area: %w", err)
		}
		if parms, err = r.ReadBytes(int(size)); err != nil {
			return fmt.Errorf("reading parameter area: %w", err)
		}
		for i, s := range ex.sess {
			var auth TPMSAuthResponse
			if err := unmarshal(r, reflect.ValueOf(&auth).Elem()); err != nil {
				return fmt.Errorf("reading auth session %d: %w", i, err)
			}
			if err := s.Validate(hdr.ResponseCode, ex.cc, parms, ex.names, ex.authIndex[i], &auth); err != nil {
				return fmt.Errorf("validating auth session %d: %w", i, err)
			}
		}
		if r.Len() != 0 {
			return fmt.Errorf("%w: %d unaccounted-for bytes at the end of the TPM response", ErrSizeMismatch, r.Len())
		}
	} else if parms, err = r.ReadBytes(r.Len()); err != nil {
		return err
	}

	for i, s := range ex.sess {
		if !s.IsEncryption() {
			continue
		}
		first, err := firstParameter(rspDesc, parms)
		if err != nil {
			return fmt.Errorf("decrypting with session %d: %w", i, err)
		}
		if err := s.Decrypt(first); err != nil {
			return fmt.Errorf("decrypting with session %d: %w", i, err)
		}
	}

	pr := tpmutil.NewReader(parms)
	if err := unmarshalStruct(pr, fresh); err != nil {
		return err
	}
	if pr.Len() != 0 {
		return fmt.Errorf("%w: %d bytes left in parameter area", ErrSizeMismatch, pr.Len())
	}
	return nil
}
