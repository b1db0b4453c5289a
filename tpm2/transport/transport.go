// Package transport implements types for physically talking to TPMs.
package transport

import (
	"io"

	"github.com/tpmwire/go-tpmwire/tpmutil"
)

// TPM represents a logical connection to a TPM. Send carries exactly one
// framed command and returns exactly one framed response.
type TPM interface {
	Send(input []byte) ([]byte, error)
}

// TPMCloser represents a logical connection to a TPM and you can close it.
type TPMCloser interface {
	TPM
	io.Closer
}

// wrappedRW represents a struct that wraps an io.ReadWriter
// to a transport.TPM for use by a dispatcher.
type wrappedRW struct {
	transport io.ReadWriter
}

// wrappedRWC represents a struct that wraps an io.ReadWriteCloser
// to a transport.TPM for use by a dispatcher.
type wrappedRWC struct {
	transport io.ReadWriteCloser
}

// FromReadWriter takes in a io.ReadWriter and returns a
// transport.TPM wrapping the io.ReadWriter.
func FromReadWriter(rw io.ReadWriter) TPM {
	return &wrappedRW{transport: rw}
}

// FromReadWriteCloser takes in a io.ReadWriteCloser and returns a
// transport.TPMCloser wrapping the io.ReadWriteCloser.
func FromReadWriteCloser(rwc io.ReadWriteCloser) TPMCloser {
	return &wrappedRWC{transport: rwc}
}

// Send implements the TPM interface.
func (t *wrappedRW) Send(input []byte) ([]byte, error) {
	return tpmutil.RunCommandRaw(t.transport, input)
}

// Send implements the TPM interface.
func (t *wrappedRWC) Send(input []byte) ([]byte, error) {
	return tpmutil.RunCommandRaw(t.transport, input)
}

// Close implements the TPMCloser interface.
func (t *wrappedRWC) Close() error {
	return t.transport.Close()
}
