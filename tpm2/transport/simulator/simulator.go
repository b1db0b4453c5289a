// Package simulator runs the Microsoft reference TPM in-process, for tests
// and for trying out commands without hardware.
package simulator

import (
	"go.uber.org/zap"

	"github.com/google/go-tpm-tools/simulator"

	"github.com/tpmwire/go-tpmwire/tpm2/transport"
	"github.com/tpmwire/go-tpmwire/tpmutil"
)

// TPM is a running simulator. Only one can exist per process; Close it before
// opening another.
type TPM struct {
	sim *simulator.Simulator
	log *zap.Logger
}

type options struct {
	seed *int64
	log  *zap.Logger
}

// Option configures Open.
type Option func(*options)

// WithFixedSeed manufactures the simulator from seed, so primary keys come out
// the same on every run. Never use it for anything that needs secrecy.
func WithFixedSeed(seed int64) Option {
	return func(o *options) { o.seed = &seed }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// Open starts a simulator. It is returned powered on and started up.
func Open(opts ...Option) (*TPM, error) {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	var (
		sim *simulator.Simulator
		err error
	)
	if o.seed != nil {
		sim, err = simulator.GetWithFixedSeedInsecure(*o.seed)
	} else {
		sim, err = simulator.Get()
	}
	if err != nil {
		return nil, err
	}
	o.log.Debug("started TPM simulator", zap.Bool("fixed_seed", o.seed != nil))
	return &TPM{sim: sim, log: o.log}, nil
}

// OpenSimulator starts a simulator with a random seed and no logging.
func OpenSimulator() (transport.TPMCloser, error) {
	tpm, err := Open()
	if err != nil {
		return nil, err
	}
	return tpm, nil
}

// Send implements the transport.TPM interface.
func (t *TPM) Send(cmd []byte) ([]byte, error) {
	return tpmutil.RunCommandRaw(t.sim, cmd)
}

// Reset power-cycles the simulator. Transient objects and sessions are lost;
// PCRs are reset and persistent state survives.
func (t *TPM) Reset() error {
	t.log.Debug("resetting TPM simulator")
	return t.sim.Reset()
}

// Close implements the transport.TPMCloser interface.
func (t *TPM) Close() error {
	t.log.Debug("stopping TPM simulator")
	return t.sim.Close()
}
