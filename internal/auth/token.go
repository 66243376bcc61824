// ABOUTME: Bearer token sources for the chat API and socket handshake
// ABOUTME: Reads a static token, a token file, or the LAVORO_TOKEN env var then the user config dir

package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TokenEnvVar is the environment variable consulted first by DefaultSource.
const TokenEnvVar = "LAVORO_TOKEN"

// Token errors
var (
	ErrNoToken      = errors.New("no token available")
	ErrInvalidToken = errors.New("invalid token")
)

// Source supplies a bearer token.
type Source interface {
	Token() (string, error)
}

// StaticToken is a fixed token.
type StaticToken string

// Token returns the token, or ErrNoToken when it is blank.
func (s StaticToken) Token() (string, error) {
	tok := strings.TrimSpace(string(s))
	if tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}

// FileToken reads the token from a file on every call so a rotated token is
// picked up without a restart.
type FileToken struct {
	Path string
}

// Token returns the trimmed file contents.
func (f FileToken) Token() (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("reading token file: %w", err)
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}

// EnvToken reads the token from an environment variable.
type EnvToken string

// Token returns the variable's trimmed value.
func (e EnvToken) Token() (string, error) {
	return StaticToken(os.Getenv(string(e))).Token()
}

// Chain tries each source in order and returns the first token found.
type Chain []Source

// Token returns the first available token. Errors other than ErrNoToken stop
// the search.
func (c Chain) Token() (string, error) {
	for _, src := range c {
		tok, err := src.Token()
		if err == nil {
			return tok, nil
		}
		if !errors.Is(err, ErrNoToken) {
			return "", err
		}
	}
	return "", ErrNoToken
}

// DefaultTokenPath returns $XDG_CONFIG_HOME/lavoro/token, falling back to
// ~/.config when XDG_CONFIG_HOME is unset.
func DefaultTokenPath() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("locating home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "lavoro", "token"), nil
}

// DefaultSource builds the lookup chain used when no token is configured:
// explicit token, explicit token file, LAVORO_TOKEN, then the default token file.
func DefaultSource(token, tokenFile string) Source {
	chain := Chain{}
	if token != "" {
		chain = append(chain, StaticToken(token))
	}
	if tokenFile != "" {
		chain = append(chain, FileToken{Path: tokenFile})
	}
	chain = append(chain, EnvToken(TokenEnvVar))
	if path, err := DefaultTokenPath(); err == nil {
		chain = append(chain, FileToken{Path: path})
	}
	return chain
}
