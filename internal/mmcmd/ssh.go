package mmcmd

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSH runs commands on a remote cluster node, typically the cluster
// manager, from a host that is not part of the cluster.
type SSH struct {
	host    string
	user    string
	binDir  string
	timeout time.Duration
	signer  ssh.Signer // parsed once at startup
}

// SSHConfig holds the connection settings for a remote runner.
type SSHConfig struct {
	// Host is "name" or "name:port"; the port defaults to 22.
	Host    string
	User    string
	KeyPath string

	// BinDir is the mm* command directory on the remote node. Empty
	// means DefaultBinDir.
	BinDir string

	// Timeout bounds dialing and the handshake. Zero means 10 seconds.
	Timeout time.Duration
}

// NewSSH parses the private key and returns a remote runner. The key is
// read once here rather than on every command.
func NewSSH(cfg SSHConfig) (*SSH, error) {
	keyBytes, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading SSH key %s: %w", cfg.KeyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing SSH key %s: %w", cfg.KeyPath, err)
	}

	host := cfg.Host
	if !strings.Contains(host, ":") {
		host = net.JoinHostPort(host, "22")
	}
	binDir := cfg.BinDir
	if binDir == "" {
		binDir = DefaultBinDir
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &SSH{
		host:    host,
		user:    cfg.User,
		binDir:  binDir,
		timeout: timeout,
		signer:  signer,
	}, nil
}

// Run executes one command on the remote node and returns its standard
// output.
func (s *SSH) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	config := &ssh.ClientConfig{
		User:            s.user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(s.signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // cluster nodes on the admin network; known_hosts support planned
		Timeout:         s.timeout,
	}

	dialer := net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.host)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", s.host, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, s.host, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SSH handshake with %s: %w", s.host, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("creating SSH session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Run(s.commandLine(name, args)); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("running %s on %s: %w: %s", name, s.host, err, msg)
		}
		return nil, fmt.Errorf("running %s on %s: %w", name, s.host, err)
	}
	return stdout.Bytes(), nil
}

func (s *SSH) commandLine(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quoteArg(path.Join(s.binDir, name)))
	for _, a := range args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}
