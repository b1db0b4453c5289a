//go:build !windows

// Package linuxudstpm provides access to a TPM emulator (such as swtpm) via a
// Unix domain socket.
package linuxudstpm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/tpmwire/go-tpmwire/tpm2/transport"
)

var (
	// ErrFileIsNotSocket indicates that the TPM file is not a socket.
	ErrFileIsNotSocket = errors.New("TPM file is not a socket")
	// ErrBadResponseSize indicates that the response header gave a size the
	// transport cannot accept.
	ErrBadResponseSize = errors.New("bad TPM response size")
)

const (
	// responseHeaderSize is tag (2) + size (4) + response code (4).
	responseHeaderSize = 10
	maxTPMResponse     = 4096
)

// dialer abstracts the net.Dial call so test code can provide its own net.Conn
// implementation.
type dialer func(network, path string) (net.Conn, error)

// TPM talks to an emulator that serves one command per connection: each Send
// connects, writes the command, reads the response and disconnects.
type TPM struct {
	path      string
	dialer    dialer
	ioTimeout time.Duration
}

// Option configures a TPM.
type Option func(*TPM)

// WithIOTimeout bounds each command exchange.
func WithIOTimeout(d time.Duration) Option {
	return func(t *TPM) { t.ioTimeout = d }
}

// Open checks that path is a socket and returns a transport for it.
func Open(path string, opts ...Option) (transport.TPMCloser, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if fi.Mode()&os.ModeSocket == 0 {
		return nil, fmt.Errorf("%w: %s (%s)", ErrFileIsNotSocket, fi.Mode().String(), path)
	}
	t := &TPM{path: path, dialer: net.Dial}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Send implements the TPM interface.
func (t *TPM) Send(cmd []byte) ([]byte, error) {
	conn, err := t.dialer("unix", t.path)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if t.ioTimeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(t.ioTimeout)); err != nil {
			return nil, err
		}
	}
	if _, err := conn.Write(cmd); err != nil {
		return nil, fmt.Errorf("writing command: %w", err)
	}

	// The emulator may split the response across reads, so read the header
	// first and then exactly the size it announces.
	rsp := make([]byte, responseHeaderSize, maxTPMResponse)
	if _, err := io.ReadFull(conn, rsp); err != nil {
		return nil, fmt.Errorf("reading response header: %w", err)
	}
	size := binary.BigEndian.Uint32(rsp[2:])
	if size < responseHeaderSize || size > maxTPMResponse {
		return nil, fmt.Errorf("%w: %d", ErrBadResponseSize, size)
	}
	rsp = rsp[:size]
	if _, err := io.ReadFull(conn, rsp[responseHeaderSize:]); err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return rsp, nil
}

// Close implements the TPMCloser interface. Connections do not outlive Send,
// so there is nothing to release.
func (t *TPM) Close() error {
	return nil
}
