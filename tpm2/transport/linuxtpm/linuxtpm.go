//go:build !windows

// Package linuxtpm talks to a TPM through its character device, usually the
// in-kernel resource manager at /dev/tpmrm0.
package linuxtpm

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/tpmwire/go-tpmwire/tpmutil"
)

var (
	// ErrFileIsNotDevice indicates that the TPM file mode was not a device.
	ErrFileIsNotDevice = errors.New("TPM file is not a device")
)

// TPM is an open TPM device file. The kernel driver accepts one command at a
// time per open file; callers serialize through a tpm2.Dispatcher.
type TPM struct {
	f         *os.File
	ioTimeout time.Duration
	log       *zap.Logger
}

// Option configures a TPM.
type Option func(*TPM)

// WithIOTimeout bounds how long Send waits for the device to answer. Zero
// waits forever.
func WithIOTimeout(d time.Duration) Option {
	return func(t *TPM) { t.ioTimeout = d }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(t *TPM) { t.log = l }
}

// Open opens the TPM device file at the given path.
func Open(path string, opts ...Option) (*TPM, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.Mode()&os.ModeDevice == 0 {
		return nil, fmt.Errorf("%w: %s (%s)", ErrFileIsNotDevice, fi.Mode().String(), path)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		return nil, err
	}
	t := &TPM{f: f, log: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.With(zap.String("device", path))
	t.log.Debug("opened TPM device", zap.Duration("io_timeout", t.ioTimeout))
	return t, nil
}

// Send implements the transport.TPM interface.
func (t *TPM) Send(cmd []byte) ([]byte, error) {
	rsp, err := tpmutil.RunCommandRawTimeout(t.f, cmd, t.ioTimeout)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		t.log.Warn("TPM device did not answer in time", zap.Duration("io_timeout", t.ioTimeout))
	}
	return rsp, err
}

// Close implements the transport.TPMCloser interface.
func (t *TPM) Close() error {
	t.log.Debug("closing TPM device")
	return t.f.Close()
}
