//go:build !windows

package linuxudstpm

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tpmwire/go-tpmwire/tpm2"
	"github.com/tpmwire/go-tpmwire/tpm2/transport"
	testhelper "github.com/tpmwire/go-tpmwire/tpm2/transport/test"
)

func open(path string) func() (transport.TPMCloser, error) {
	return func() (transport.TPMCloser, error) {
		return Open(path)
	}
}

func TestLocalUDSTPM(t *testing.T) {
	testhelper.RunTest(t, []error{os.ErrNotExist, os.ErrPermission, ErrFileIsNotSocket}, open("/dev/tpm0"))
}

func TestLocalResourceManagedUDSTPM(t *testing.T) {
	testhelper.RunTest(t, []error{os.ErrNotExist, os.ErrPermission, ErrFileIsNotSocket}, open("/dev/tpmrm0"))
}

func TestOpenRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-socket")
	if err := os.WriteFile(path, nil, 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); !errors.Is(err, ErrFileIsNotSocket) {
		t.Errorf("Open(%q) = %v, want %v", path, err, ErrFileIsNotSocket)
	}
}

// serveOnce listens on a socket in a fresh directory and answers each
// connection by writing rsp in two pieces.
func serveOnce(t *testing.T, rsp []byte) (string, <-chan []byte) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tpm.sock")
	l, err := net.Listen("unix", path)
	if err != nil {
		t.Skipf("cannot listen on unix socket: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	got := make(chan []byte, 4)
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			buf := make([]byte, 10)
			if _, err := io.ReadFull(conn, buf); err != nil {
				conn.Close()
				return
			}
			got <- buf
			conn.Write(rsp[:4])
			conn.Write(rsp[4:])
			conn.Close()
		}
	}()
	return path, got
}

func TestSendSplitResponse(t *testing.T) {
	// TPM2_Shutdown, no sessions.
	cmd := []byte{0x80, 0x01, 0x00, 0x00, 0x00, 0x0a, 0x00, 0x00, 0x01, 0x45}
	rsp := []byte{0x80, 0x01, 0x00, 0x00, 0x00, 0x0a, 0x00, 0x00, 0x00, 0x00}
	path, got := serveOnce(t, rsp)

	tpm, err := Open(path)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	defer tpm.Close()
	out, err := tpm.Send(cmd)
	if err != nil {
		t.Fatalf("Send() = %v", err)
	}
	if diff := cmp.Diff(rsp, out); diff != "" {
		t.Errorf("Send() (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(cmd, <-got); diff != "" {
		t.Errorf("command seen by emulator (-want +got):\n%s", diff)
	}

	// Every Send uses a new connection.
	d := tpm2.NewDispatcher(tpm)
	if _, err := (tpm2.Shutdown{ShutdownType: tpm2.TPMSUClear}).Execute(context.Background(), d); err != nil {
		t.Errorf("Shutdown() = %v", err)
	}
}

func TestSendBadSize(t *testing.T) {
	rsp := []byte{0x80, 0x01, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00}
	path, _ := serveOnce(t, rsp)
	tpm, err := Open(path)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	if _, err := tpm.Send(make([]byte, 10)); !errors.Is(err, ErrBadResponseSize) {
		t.Errorf("Send() = %v, want %v", err, ErrBadResponseSize)
	}
}
