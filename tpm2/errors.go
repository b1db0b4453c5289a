package tpm2

import (
	"errors"
	"fmt"

	"github.com/tpmwire/go-tpmwire/tpmutil"
)

// Local codec errors. They are detected before anything is sent to the TPM,
// or while decoding what it sent back.
var (
	// ErrTruncatedBuffer means a decode needed more bytes than the buffer held.
	ErrTruncatedBuffer = tpmutil.ErrTruncatedBuffer
	// ErrSizeMismatch means a size-prefixed structure did not consume exactly
	// its declared size, or a buffer had bytes left over after decoding.
	ErrSizeMismatch = errors.New("size mismatch")
	// ErrUnknownSelector means a union selector has no variant for that union.
	ErrUnknownSelector = errors.New("unknown union selector")
	// ErrSelectorMismatch means a union variant does not belong to the
	// selector stored next to it.
	ErrSelectorMismatch = errors.New("union variant does not match selector")
	// ErrArrayTooLong means a list or buffer exceeds its protocol maximum.
	ErrArrayTooLong = errors.New("array too long")
)

// Session errors.
var (
	// ErrHMACMismatch means a response session HMAC did not verify. The
	// response is either corrupted or not from the TPM the session was
	// established with.
	ErrHMACMismatch = errors.New("response HMAC mismatch")
	// ErrUnsupportedAlgorithm means a session asked for a hash or cipher this
	// package cannot compute.
	ErrUnsupportedAlgorithm = errors.New("unsupported hash or cipher")
	// ErrNonceNotRolled means a session was used again before a fresh
	// nonceCaller was generated for it.
	ErrNonceNotRolled = errors.New("session nonce was not rolled since its last use")
	// ErrSessionTerminated means the TPM closed the session (continueSession
	// was clear in its last response).
	ErrSessionTerminated = errors.New("session was terminated")
	// ErrSessionDesynchronized means the outcome of a command carrying the
	// session is unknown, so its nonces can no longer be trusted.
	ErrSessionDesynchronized = errors.New("session nonce state is unknown after an abandoned command")
)

// TransportError wraps a failure to exchange bytes with the TPM. Its presence
// means the TPM's answer, if any, is unknown.
type TransportError struct {
	// Op is the operation that failed: "send" or "wait".
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("cannot complete %s operation on TPM transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
