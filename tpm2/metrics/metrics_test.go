package metrics

import (
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tpmwire/go-tpmwire/tpm2"
)

// scripted answers each Send with the next response, or err once the
// responses run out.
type scripted struct {
	responses [][]byte
	err       error
}

func (s *scripted) Send([]byte) ([]byte, error) {
	if len(s.responses) == 0 {
		return nil, s.err
	}
	rsp := s.responses[0]
	s.responses = s.responses[1:]
	return rsp, nil
}

func response(rc tpm2.TPMRC, parms []byte) []byte {
	rsp := make([]byte, 10, 10+len(parms))
	binary.BigEndian.PutUint16(rsp[0:], uint16(tpm2.TPMSTNoSessions))
	binary.BigEndian.PutUint32(rsp[2:], uint32(10+len(parms)))
	binary.BigEndian.PutUint32(rsp[6:], uint32(rc))
	return append(rsp, parms...)
}

func TestCollectorCountsOutcomes(t *testing.T) {
	c := NewCollector()
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register() = %v", err)
	}

	tpm := &scripted{
		responses: [][]byte{
			response(tpm2.TPMRCRetry, nil),
			response(tpm2.TPMRCSuccess, []byte{0x00, 0x02, 0xaa, 0xbb}),
			response(tpm2.TPMRC(0x1C4), nil),
		},
		err: errors.New("link down"),
	}
	d := tpm2.NewDispatcher(tpm,
		tpm2.WithObserver(c),
		tpm2.WithRetry(tpm2.RetryPolicy{MaxRetries: 2, InitialInterval: time.Millisecond}))
	ctx := context.Background()

	if _, err := (tpm2.GetRandom{BytesRequested: 2}).Execute(ctx, d); err != nil {
		t.Fatalf("GetRandom() = %v", err)
	}
	if _, err := (tpm2.GetRandom{BytesRequested: 2}).Execute(ctx, d); !errors.Is(err, tpm2.TPMRCValue) {
		t.Fatalf("GetRandom() = %v, want %v", err, tpm2.TPMRCValue)
	}
	if _, err := (tpm2.GetRandom{BytesRequested: 2}).Execute(ctx, d); err == nil {
		t.Fatalf("GetRandom() over a broken link succeeded")
	}

	cc := tpm2.TPMCCGetRandom.String()
	for _, tc := range []struct {
		kind, outcome string
		want          float64
	}{
		{"success", OutcomeOK, 1},
		{"format1", OutcomeTPMError, 1},
		{"success", OutcomeTransport, 1},
	} {
		if got := testutil.ToFloat64(c.commands.WithLabelValues(cc, tc.kind, tc.outcome)); got != tc.want {
			t.Errorf("commands_total{rc_kind=%q,outcome=%q} = %v, want %v", tc.kind, tc.outcome, got, tc.want)
		}
	}
	if got := testutil.ToFloat64(c.retries.WithLabelValues(cc, "0x922")); got != 1 {
		t.Errorf("retries_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.transitions.WithLabelValues(tpm2.StateComplete.String())); got != 1 {
		t.Errorf("state_transitions_total{to=Complete} = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(c, "tpmwire_dispatch_command_duration_seconds"); got != 1 {
		t.Errorf("duration series = %v, want 1", got)
	}

	const want = `
# HELP tpmwire_dispatch_retries_total Commands retried after a TPM warning, by command code and warning.
# TYPE tpmwire_dispatch_retries_total counter
tpmwire_dispatch_retries_total{command="TPM2_GetRandom",rc="0x922"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "tpmwire_dispatch_retries_total"); err != nil {
		t.Errorf("GatherAndCompare() = %v", err)
	}
}

func TestOutcome(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want string
	}{
		{nil, OutcomeOK},
		{tpm2.TPMRCHandle + 0x100, OutcomeTPMError},
		{&tpm2.TransportError{Op: "send", Err: errors.New("eof")}, OutcomeTransport},
		{&tpm2.TransportError{Op: "wait", Err: context.DeadlineExceeded}, OutcomeTransport},
		{context.Canceled, OutcomeCanceled},
		{tpm2.ErrHMACMismatch, OutcomeHMAC},
		{tpm2.ErrArrayTooLong, OutcomeLocal},
	} {
		if got := Outcome(tc.err); got != tc.want {
			t.Errorf("Outcome(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
