// Package builder produces and publishes component container images.
package builder

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// AgentRunner executes commands on a remote build agent over SSH. It
// implements tools.Runner so build and reconcile adapters share one
// execution contract.
type AgentRunner struct {
	Host           string
	Port           string
	User           string
	KeyPath        string
	KnownHostsPath string
	DialTimeout    time.Duration
}

func (r AgentRunner) Run(ctx context.Context, name string, args ...string) ([]byte, int, error) {
	client, err := r.dial(ctx)
	if err != nil {
		return nil, 1, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, 1, fmt.Errorf("builder: agent session: %w", err)
	}
	defer session.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			session.Close()
		case <-done:
		}
	}()

	out, err := session.CombinedOutput(joinCommand(name, args))
	if ctx.Err() != nil {
		return out, 1, ctx.Err()
	}
	if err == nil {
		return out, 0, nil
	}
	if exitErr, ok := err.(*ssh.ExitError); ok {
		return out, exitErr.ExitStatus(), err
	}
	return out, 1, err
}

func (r AgentRunner) dial(ctx context.Context) (*ssh.Client, error) {
	key, err := os.ReadFile(r.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("builder: read agent key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("builder: parse agent key: %w", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if r.KnownHostsPath != "" {
		cb, err := knownhosts.New(r.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("builder: load known_hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	timeout := r.DialTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	port := r.Port
	if port == "" {
		port = "22"
	}
	addr := net.JoinHostPort(r.Host, port)

	cfg := &ssh.ClientConfig{
		User:            r.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("builder: dial agent %s: %w", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("builder: agent handshake %s: %w", addr, err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

func joinCommand(cmd string, args []string) string {
	var b strings.Builder
	b.WriteString(shellEscape(cmd))
	for _, arg := range args {
		b.WriteByte(' ')
		b.WriteString(shellEscape(arg))
	}
	return b.String()
}

func shellEscape(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}
