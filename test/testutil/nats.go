// Package testutil starts external services needed by integration tests.
package testutil

import (
	"net"
	"os/exec"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	natsReadyTimeout = 8 * time.Second
	natsStopTimeout  = 5 * time.Second
)

// FreePort reserves a local TCP port and returns it to the caller.
func FreePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// StartJetStream runs a throwaway nats-server with JetStream storage in a temp dir.
// The test is skipped when nats-server is not installed; the server stops on test cleanup.
// Params: test handle.
// Returns: client URL of the running server.
func StartJetStream(tb testing.TB) string {
	tb.Helper()

	port, err := FreePort()
	if err != nil {
		tb.Fatalf("free port: %v", err)
	}
	binary, err := exec.LookPath("nats-server")
	if err != nil {
		tb.Skipf("nats-server is required for this test: %v", err)
	}

	cmd := exec.Command(binary, "-js", "-a", "127.0.0.1", "-p", strconv.Itoa(port), "-sd", tb.TempDir())
	if err := cmd.Start(); err != nil {
		tb.Fatalf("start nats-server: %v", err)
	}
	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	tb.Cleanup(func() {
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-exited:
		case <-time.After(natsStopTimeout):
			_ = cmd.Process.Kill()
			<-exited
		}
	})

	url := "nats://127.0.0.1:" + strconv.Itoa(port)
	waitReachable(tb, url, exited)
	return url
}

// waitReachable polls until the server accepts a client or exits early.
func waitReachable(tb testing.TB, url string, exited <-chan struct{}) {
	tb.Helper()

	deadline := time.Now().Add(natsReadyTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-exited:
			tb.Fatalf("nats-server exited before accepting connections at %s", url)
		default:
		}
		nc, err := nats.Connect(url, nats.Timeout(250*time.Millisecond))
		if err == nil {
			nc.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	tb.Fatalf("nats-server did not become ready at %s", url)
}
