package systemd

import (
	"net"
	"path/filepath"
	"testing"
	"time"
)

func TestReadyWithoutSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	sent, err := Ready()
	if err != nil || sent {
		t.Fatalf("Ready() = %v, %v; want false, nil", sent, err)
	}
	if d := WatchdogInterval(); d != 0 {
		t.Fatalf("WatchdogInterval() = %v", d)
	}
}

func TestReadyAndStoppingReachSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		t.Skipf("unixgram not available: %v", err)
	}
	defer conn.Close()
	t.Setenv("NOTIFY_SOCKET", path)

	for _, tc := range []struct {
		name string
		fn   func() (bool, error)
		want string
	}{
		{"ready", Ready, "READY=1"},
		{"stopping", Stopping, "STOPPING=1"},
	} {
		sent, err := tc.fn()
		if err != nil || !sent {
			t.Fatalf("%s: sent=%v err=%v", tc.name, sent, err)
		}
		buf := make([]byte, 64)
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("%s: read: %v", tc.name, err)
		}
		if got := string(buf[:n]); got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}
