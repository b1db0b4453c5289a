package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tpmwire/go-tpmwire/internal/config"
	"github.com/tpmwire/go-tpmwire/tpm2/transport"
	"github.com/tpmwire/go-tpmwire/tpm2/transport/linuxtpm"
	"github.com/tpmwire/go-tpmwire/tpm2/transport/linuxudstpm"
	"github.com/tpmwire/go-tpmwire/tpm2/transport/simulator"
	"github.com/tpmwire/go-tpmwire/tpm2/transport/tcp"
)

// openTransport connects to the TPM the configuration names.
func openTransport(cfg config.TransportConfig, log *zap.Logger) (transport.TPMCloser, error) {
	switch cfg.Kind {
	case config.KindDevice:
		tpm, err := linuxtpm.Open(cfg.Device, linuxtpm.WithIOTimeout(cfg.IOTimeout), linuxtpm.WithLogger(log))
		if err != nil {
			return nil, err
		}
		return tpm, nil
	case config.KindSocket:
		return linuxudstpm.Open(cfg.Socket, linuxudstpm.WithIOTimeout(cfg.IOTimeout))
	case config.KindTCP:
		return tcp.Open(tcp.Config{
			CommandAddress:  cfg.CommandAddress,
			PlatformAddress: cfg.PlatformAddress,
			DialTimeout:     cfg.DialTimeout,
			IOTimeout:       cfg.IOTimeout,
		})
	case config.KindSimulator:
		opts := []simulator.Option{simulator.WithLogger(log)}
		if cfg.SimulatorSeed != 0 {
			opts = append(opts, simulator.WithFixedSeed(cfg.SimulatorSeed))
		}
		tpm, err := simulator.Open(opts...)
		if err != nil {
			return nil, err
		}
		return tpm, nil
	}
	return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
}
