package remote

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	ncerr "remotecap/internal/errors"
	"remotecap/util"
)

// execHandler answers one exec request on the test server.
type execHandler func(cmd, stdin string) (stdout, stderr string, code uint32)

// startTestServer runs an SSH server on 127.0.0.1 that accepts any
// client and answers exec requests with h.
func startTestServer(t *testing.T, h execHandler) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &ssh.ServerConfig{NoClientAuth: true}
	cfg.AddHostKey(signer)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(conn, cfg, h)
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func serveConn(raw net.Conn, cfg *ssh.ServerConfig, h execHandler) {
	sc, chans, reqs, err := ssh.NewServerConn(raw, cfg)
	if err != nil {
		raw.Close()
		return
	}
	defer sc.Close()
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			nc.Reject(ssh.UnknownChannelType, "sessions only") //nolint:errcheck
			continue
		}
		ch, in, err := nc.Accept()
		if err != nil {
			continue
		}
		go serveSession(ch, in, h)
	}
}

func serveSession(ch ssh.Channel, in <-chan *ssh.Request, h execHandler) {
	defer ch.Close()
	for req := range in {
		if req.Type != "exec" {
			req.Reply(false, nil) //nolint:errcheck
			continue
		}
		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			req.Reply(false, nil) //nolint:errcheck
			return
		}
		req.Reply(true, nil) //nolint:errcheck

		stdin, _ := io.ReadAll(ch)
		stdout, stderr, code := h(payload.Command, string(stdin))
		io.WriteString(ch, stdout)          //nolint:errcheck
		io.WriteString(ch.Stderr(), stderr) //nolint:errcheck
		ch.SendRequest("exit-status", false, //nolint:errcheck
			ssh.Marshal(struct{ Status uint32 }{code}))
		return
	}
}

func connectTestClient(t *testing.T, port int) *SSHClient {
	t.Helper()
	keyPath := filepath.Join(t.TempDir(), "id_test")
	writeTestKey(t, keyPath)

	c := NewSSHClient(&SSHConfig{
		User:        "tester",
		Host:        "127.0.0.1",
		Port:        port,
		KeyPath:     keyPath,
		ConnTimeout: 5 * time.Second,
	}, util.NewLogger(0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// TestSSHClient_RunScript verifies the script travels over stdin to
// "<shell> -s" and stdout/stderr come back separately.
func TestSSHClient_RunScript(t *testing.T) {
	var gotCmd, gotStdin string
	port := startTestServer(t, func(cmd, stdin string) (string, string, uint32) {
		gotCmd, gotStdin = cmd, stdin
		return "out\n", "warn\n", 0
	})
	c := connectTestClient(t, port)

	res, err := c.Run(context.Background(), "echo hi\n")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotCmd != "bash -s" {
		t.Errorf("command = %q, want %q", gotCmd, "bash -s")
	}
	if gotStdin != "echo hi\n" {
		t.Errorf("stdin = %q", gotStdin)
	}
	if string(res.Stdout) != "out\n" || string(res.Stderr) != "warn\n" || res.ExitCode != 0 {
		t.Errorf("unexpected result %+v", res)
	}
}

// TestSSHClient_RunExitStatus verifies a non-zero exit becomes *ExitError.
func TestSSHClient_RunExitStatus(t *testing.T) {
	port := startTestServer(t, func(string, string) (string, string, uint32) {
		return "", "library Lib not found\n", 3
	})
	c := connectTestClient(t, port)

	res, err := c.Run(context.Background(), "exit 3")
	var ee *ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *ExitError, got %v", err)
	}
	if ee.Code != 3 || ee.Stderr != "library Lib not found" {
		t.Errorf("unexpected exit error %+v", ee)
	}
	if res == nil || res.ExitCode != 3 {
		t.Errorf("result should carry exit code, got %+v", res)
	}
}

// TestSSHClient_RunCancelled verifies ctx cancellation unblocks Run.
func TestSSHClient_RunCancelled(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	port := startTestServer(t, func(string, string) (string, string, uint32) {
		<-release
		return "", "", 0
	})
	c := connectTestClient(t, port)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.Run(ctx, "sleep 60")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

// TestSSHClient_CloseMarksDead verifies Close flips IsAlive and later
// runs fail with ErrConnectionClosed.
func TestSSHClient_CloseMarksDead(t *testing.T) {
	port := startTestServer(t, func(string, string) (string, string, uint32) { return "", "", 0 })
	c := connectTestClient(t, port)

	if !c.IsAlive() {
		t.Fatal("client should be alive after Connect")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if c.IsAlive() {
		t.Error("client should not be alive after Close")
	}
	_, err := c.Run(context.Background(), "true")
	if !errors.Is(err, ncerr.ErrNotConnected) || !errors.Is(err, ncerr.ErrConnectionClosed) {
		t.Errorf("expected ErrNotConnected and ErrConnectionClosed, got %v", err)
	}
}

// TestSSHClient_RunBeforeConnect verifies a never-connected client is
// not reported as closed.
func TestSSHClient_RunBeforeConnect(t *testing.T) {
	c := NewSSHClient(&SSHConfig{Host: "h1"}, util.NewLogger(0))
	_, err := c.Run(context.Background(), "true")
	if !errors.Is(err, ncerr.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if errors.Is(err, ncerr.ErrConnectionClosed) {
		t.Errorf("never-connected client reported closed: %v", err)
	}
}

// TestSSHClient_ConnectRefused verifies a dial failure is a NetworkError.
func TestSSHClient_ConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	keyPath := filepath.Join(t.TempDir(), "id_test")
	writeTestKey(t, keyPath)
	c := NewSSHClient(&SSHConfig{Host: "127.0.0.1", Port: port, KeyPath: keyPath, ConnTimeout: time.Second}, util.NewLogger(0))

	err = c.Connect(context.Background())
	var ne *ncerr.NetworkError
	if !errors.As(err, &ne) || ne.Op != "dial" {
		t.Fatalf("expected dial NetworkError, got %v", err)
	}
}

// TestNewSSHClient_Defaults verifies zero-value fields are filled.
func TestNewSSHClient_Defaults(t *testing.T) {
	cfg := &SSHConfig{Host: "h1"}
	c := NewSSHClient(cfg, util.NewLogger(0))
	if cfg.Port != 22 || cfg.Shell != "bash" || cfg.User == "" || cfg.ConnTimeout == 0 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if !strings.HasSuffix(c.Addr(), ":22") {
		t.Errorf("Addr = %q", c.Addr())
	}
}
