package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// AgentKeyPath is the --ssh-key value that selects the running SSH agent.
const AgentKeyPath = "agent"

// LoadSigners resolves keyPath into the signers offered for public key auth.
// An empty keyPath yields no signers, AgentKeyPath asks the agent at
// SSH_AUTH_SOCK, and anything else is read as an OpenSSH private key file.
func LoadSigners(keyPath string) ([]ssh.Signer, error) {
	switch keyPath {
	case "":
		return nil, nil
	case AgentKeyPath:
		return agentSigners(os.Getenv("SSH_AUTH_SOCK"))
	}

	signer, err := loadPrivateKey(keyPath)
	if err != nil {
		return nil, err
	}
	return []ssh.Signer{signer}, nil
}

// agentSigners lists the agent's keys. The agent connection stays open for
// the life of the process because the returned signers use it.
func agentSigners(socket string) ([]ssh.Signer, error) {
	if socket == "" {
		return nil, errors.New("ssh agent: SSH_AUTH_SOCK not set")
	}

	var d net.Dialer
	conn, err := d.DialContext(context.Background(), "unix", socket)
	if err != nil {
		return nil, fmt.Errorf("ssh agent: %w", err)
	}

	signers, err := agent.NewClient(conn).Signers()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh agent signers: %w", err)
	}
	if len(signers) == 0 {
		_ = conn.Close()
		return nil, errors.New("ssh agent: no keys loaded")
	}
	return signers, nil
}

func loadPrivateKey(path string) (ssh.Signer, error) {
	pem, err := os.ReadFile(path) //nolint:gosec // Path is from user config.
	if err != nil {
		return nil, fmt.Errorf("ssh key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		return nil, fmt.Errorf("ssh key %s: %w", path, err)
	}
	return signer, nil
}
