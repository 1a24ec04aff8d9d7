// Package secretsource resolves the connector's ed25519 signing seed without
// requiring it sit in plaintext in the TOML config, mirroring how a validator
// node resolves its keystore passphrase.
package secretsource

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source resolves a secret once, from an environment variable if set, or
// else by prompting on the controlling terminal. The result is cached so a
// repeated Get during a single process lifetime never prompts twice.
type Source struct {
	envVar string

	once  sync.Once
	value string
	err   error
}

// NewSource returns a Source that checks envVar before falling back to an
// interactive prompt.
func NewSource(envVar string) *Source {
	return &Source{envVar: envVar}
}

// Get resolves the secret, prompting at most once per Source.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if v := strings.TrimSpace(os.Getenv(s.envVar)); v != "" {
		return v, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("secretsource: %s not set and stdin is not a terminal", s.envVar)
	}
	fmt.Fprint(os.Stderr, "Enter connector signing secret (family seed): ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("secretsource: read passphrase: %w", err)
	}
	secret := strings.TrimSpace(string(raw))
	if secret == "" {
		return "", fmt.Errorf("secretsource: empty secret entered")
	}
	return secret, nil
}
