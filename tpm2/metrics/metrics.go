// Package metrics exports dispatcher activity as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tpmwire/go-tpmwire/tpm2"
)

const namespace = "tpmwire"

// Outcomes recorded in the "outcome" label of tpmwire_dispatch_commands_total.
const (
	OutcomeOK        = "ok"
	OutcomeTPMError  = "tpm_error"
	OutcomeTransport = "transport_error"
	OutcomeHMAC      = "hmac_mismatch"
	OutcomeCanceled  = "canceled"
	OutcomeLocal     = "local_error"
)

// Collector implements tpm2.Observer and prometheus.Collector.
type Collector struct {
	commands    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	retries     *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

var _ tpm2.Observer = (*Collector)(nil)
var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a Collector. Register it with a prometheus.Registerer
// and pass it to tpm2.WithObserver.
func NewCollector() *Collector {
	return &Collector{
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "commands_total",
				Help:      "TPM commands executed, by command code, response code kind and outcome.",
			},
			[]string{"command", "rc_kind", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "command_duration_seconds",
				Help:      "Time spent in Execute, retries included.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "retries_total",
				Help:      "Commands retried after a TPM warning, by command code and warning.",
			},
			[]string{"command", "rc"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "state_transitions_total",
				Help:      "Command state machine transitions, by target state.",
			},
			[]string{"to"},
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.commands.Describe(ch)
	c.duration.Describe(ch)
	c.retries.Describe(ch)
	c.transitions.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.commands.Collect(ch)
	c.duration.Collect(ch)
	c.retries.Collect(ch)
	c.transitions.Collect(ch)
}

// Transition implements tpm2.Observer.
func (c *Collector) Transition(_ tpm2.TPMCC, _, to tpm2.State) {
	c.transitions.WithLabelValues(to.String()).Inc()
}

// Completed implements tpm2.Observer.
func (c *Collector) Completed(cc tpm2.TPMCC, rc tpm2.TPMRC, elapsed time.Duration, err error) {
	command := cc.String()
	c.commands.WithLabelValues(command, rc.Kind().String(), Outcome(err)).Inc()
	c.duration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// Retrying implements tpm2.Observer.
func (c *Collector) Retrying(cc tpm2.TPMCC, rc tpm2.TPMRC, _ int, _ time.Duration) {
	c.retries.WithLabelValues(cc.String(), "0x"+strconv.FormatUint(uint64(rc), 16)).Inc()
}

// Outcome classifies the error returned by tpm2.Dispatcher.Execute.
func Outcome(err error) string {
	var rc tpm2.TPMRC
	var te *tpm2.TransportError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &te):
		return OutcomeTransport
	case errors.As(err, &rc):
		return OutcomeTPMError
	case errors.Is(err, tpm2.ErrHMACMismatch):
		return OutcomeHMAC
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeLocal
	}
}
