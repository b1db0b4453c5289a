package tcp

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tpmwire/go-tpmwire/tpm2"
)

var (
	cmdAddr  = flag.String("cmd_addr", "", "command port (e.g., 'localhost:2321')")
	platAddr = flag.String("plat_addr", "", "platform port (e.g., 'localhost:2322')")
)

// fakeService answers every SEND_COMMAND on the command socket with reply,
// and every platform command with platformResult.
type fakeService struct {
	cmd, plat      net.Listener
	reply          func(cmd []byte) (rsp []byte, code uint32)
	platformResult uint32
	got            chan []byte
}

func newFakeService(t *testing.T, reply func([]byte) ([]byte, uint32)) *fakeService {
	t.Helper()
	listen := func() net.Listener {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Skipf("cannot listen on loopback: %v", err)
		}
		t.Cleanup(func() { l.Close() })
		return l
	}
	s := &fakeService{cmd: listen(), plat: listen(), reply: reply, got: make(chan []byte, 8)}
	go s.serveCommands()
	go s.servePlatform()
	return s
}

func (s *fakeService) serveCommands() {
	conn, err := s.cmd.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		var hdr tpmCommandHeader
		if err := binary.Read(conn, binary.BigEndian, &hdr); err != nil {
			return
		}
		cmd := make([]byte, hdr.CmdLen)
		if _, err := io.ReadFull(conn, cmd); err != nil {
			return
		}
		s.got <- cmd
		rsp, code := s.reply(cmd)
		if rsp == nil && code == 0xffffffff {
			// Hang: let the client's deadline fire.
			time.Sleep(time.Second)
			return
		}
		binary.Write(conn, binary.BigEndian, uint32(len(rsp)))
		conn.Write(rsp)
		binary.Write(conn, binary.BigEndian, code)
	}
}

func (s *fakeService) servePlatform() {
	conn, err := s.plat.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		var cmd uint32
		if err := binary.Read(conn, binary.BigEndian, &cmd); err != nil {
			return
		}
		binary.Write(conn, binary.BigEndian, s.platformResult)
	}
}

func (s *fakeService) config() Config {
	return Config{
		CommandAddress:  s.cmd.Addr().String(),
		PlatformAddress: s.plat.Addr().String(),
		IOTimeout:       200 * time.Millisecond,
	}
}

func TestSendFraming(t *testing.T) {
	want := []byte{0x80, 0x01, 0x00, 0x00, 0x00, 0x0a, 0x00, 0x00, 0x00, 0x00}
	svc := newFakeService(t, func([]byte) ([]byte, uint32) { return want, 0 })
	tpm, err := Open(svc.config())
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	defer closeTPM(t, tpm)

	cmd := []byte{0x80, 0x01, 0x00, 0x00, 0x00, 0x0c, 0x00, 0x00, 0x01, 0x44, 0x00, 0x00}
	got, err := tpm.Send(cmd)
	if err != nil {
		t.Fatalf("Send() = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Send() response (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(cmd, <-svc.got); diff != "" {
		t.Errorf("command seen by service (-want +got):\n%s", diff)
	}
	if err := tpm.PowerOn(); err != nil {
		t.Errorf("PowerOn() = %v", err)
	}
}

func TestSendErrors(t *testing.T) {
	for _, tc := range []struct {
		name  string
		reply func([]byte) ([]byte, uint32)
		want  error
	}{
		{"empty", func([]byte) ([]byte, uint32) { return []byte{}, 0 }, ErrEmptyResponse},
		{"service error", func([]byte) ([]byte, uint32) { return []byte{1}, 3 }, ErrTPMFailed},
		{"timeout", func([]byte) ([]byte, uint32) { return nil, 0xffffffff }, ErrTransport},
	} {
		t.Run(tc.name, func(t *testing.T) {
			svc := newFakeService(t, tc.reply)
			tpm, err := Open(svc.config())
			if err != nil {
				t.Fatalf("Open() = %v", err)
			}
			defer tpm.Close()
			if _, err := tpm.Send([]byte{0x80, 0x01}); !errors.Is(err, tc.want) {
				t.Errorf("Send() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSendTimeoutIsDeadlineExceeded(t *testing.T) {
	svc := newFakeService(t, func([]byte) ([]byte, uint32) { return nil, 0xffffffff })
	tpm, err := Open(svc.config())
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	defer tpm.Close()

	d := tpm2.NewDispatcher(tpm)
	_, err = tpm2.GetRandom{BytesRequested: 8}.Execute(context.Background(), d)
	var te *tpm2.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("GetRandom() = %v, want a *TransportError", err)
	}
	if !errors.Is(err, os.ErrDeadlineExceeded) && !errors.Is(err, ErrTransport) {
		t.Errorf("GetRandom() = %v, want a deadline error", err)
	}
}

func TestPlatformFailure(t *testing.T) {
	svc := newFakeService(t, func([]byte) ([]byte, uint32) { return nil, 0 })
	svc.platformResult = 1
	tpm, err := Open(svc.config())
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	defer tpm.Close()
	if err := tpm.Reset(); !errors.Is(err, ErrPlatformFailed) {
		t.Errorf("Reset() = %v, want %v", err, ErrPlatformFailed)
	}
}

func TestOpenUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen on loopback: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	if _, err := Open(Config{CommandAddress: addr, PlatformAddress: addr, DialTimeout: time.Second}); err == nil {
		t.Errorf("Open(%q) succeeded, want an error", addr)
	}
}

// The tests below are skipped unless the flags above are provided.
// To run them:
// Fetch the TPM reference code at https://github.com/trustedcomputinggroup/tpm
// Build the simulator per the instructions for your platform
// In one shell, run the simulator, e.g., TPMCmd/Simulator/src/tpm2-simulator
// In the other, run the tests, e.g.:
//   go test --cmd_addr localhost:2321 --plat_addr localhost:2322

// Helper to open the TPM based on command-line flags passed to the test, or skip.
func getTPM(t *testing.T, powerOnStartUp bool) (*TPM, *tpm2.Dispatcher) {
	t.Helper()
	flag.Parse()

	if *cmdAddr == "" || *platAddr == "" {
		t.Skipf("TPM simulator not provided, skipping test")
	}

	tpm, err := Open(Config{
		CommandAddress:  *cmdAddr,
		PlatformAddress: *platAddr,
	})
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}

	if err := tpm.PowerOff(); err != nil {
		t.Fatalf("PowerOff() = %v", err)
	}
	d := tpm2.NewDispatcher(tpm)

	if powerOnStartUp {
		if err := tpm.PowerOn(); err != nil {
			t.Fatalf("PowerOn() = %v", err)
		}
		_, err := tpm2.Startup{
			StartupType: tpm2.TPMSUClear,
		}.Execute(context.Background(), d)
		if err != nil {
			t.Fatalf("Startup() = %v", err)
		}
	}

	return tpm, d
}

// Helper to let us easily test that closing the TPM doesn't return any errors.
func closeTPM(t *testing.T, tpm *TPM) {
	t.Helper()
	if err := tpm.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
}

func TestPowerOnOff(t *testing.T) {
	tpm, d := getTPM(t, false)
	defer closeTPM(t, tpm)
	ctx := context.Background()

	// Check that we return the expected error for a powered-off TPM.
	_, err := tpm2.Startup{
		StartupType: tpm2.TPMSUClear,
	}.Execute(ctx, d)
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("Startup() before PowerOn() = %v, want %v", err, ErrEmptyResponse)
	}

	if err := tpm.PowerOn(); err != nil {
		t.Fatalf("PowerOn() = %v", err)
	}

	// Check that the TPM now reports it needs to be started up.
	_, err = tpm2.GetRandom{
		BytesRequested: 16,
	}.Execute(ctx, d)
	if !errors.Is(err, tpm2.TPMRCInitialize) {
		t.Errorf("GetRandom() = %v, want %v", err, tpm2.TPMRCInitialize)
	}

	_, err = tpm2.Startup{
		StartupType: tpm2.TPMSUClear,
	}.Execute(ctx, d)
	if err != nil {
		t.Errorf("Startup() = %v", err)
	}

	rnd, err := tpm2.GetRandom{
		BytesRequested: 16,
	}.Execute(ctx, d)
	if err != nil {
		t.Fatalf("GetRandom() = %v", err)
	}
	if bytes.Equal(rnd.RandomBytes.Buffer, make([]byte, 16)) {
		t.Errorf("GetRandom() = %x, expected random bytes", rnd.RandomBytes.Buffer)
	}
}

func TestRestart(t *testing.T) {
	tpm, d := getTPM(t, true)
	defer closeTPM(t, tpm)
	ctx := context.Background()

	_, err := tpm2.Shutdown{
		ShutdownType: tpm2.TPMSUState,
	}.Execute(ctx, d)
	if err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}
	if err := tpm.Reset(); err != nil {
		t.Fatalf("Reset() = %v", err)
	}
	_, err = tpm2.Startup{
		StartupType: tpm2.TPMSUState,
	}.Execute(ctx, d)
	if err != nil {
		t.Fatalf("Startup() = %v", err)
	}
	if _, err := (tpm2.GetRandom{BytesRequested: 8}).Execute(ctx, d); err != nil {
		t.Errorf("GetRandom() after restart = %v", err)
	}
}
