package sshutil

import (
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"

	"github.com/rileyhilliard/sshp/internal/errors"
)

// ValidateIdentity checks that path names a readable private key before any
// host is contacted, so a typo in -i fails once instead of once per host.
// Passphrase-protected keys are accepted; ssh will prompt or use the agent.
func ValidateIdentity(path string) error {
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Can't read identity file %s", path),
			"Check the path passed to -i and its permissions.")
	}

	if _, err := ssh.ParseRawPrivateKey(data); err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil
		}
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("%s is not a private key", path),
			"Pass the private half of the key pair, not the .pub file.")
	}

	return nil
}
