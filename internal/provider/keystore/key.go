package keystore

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/term"
)

// KeyConfig says where the signing key comes from
type KeyConfig struct {
	PrivateKey    string // Hex private key (highest priority)
	PrivateKeyEnv string // Environment variable holding the key (fallback)
	Prompt        bool   // Ask on the terminal when neither is set
}

// ParseKey parses a hex private key with or without 0x
func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// LoadKey resolves the private key from config, environment or terminal
func LoadKey(cfg KeyConfig) (*ecdsa.PrivateKey, error) {
	if cfg.PrivateKey != "" {
		return ParseKey(cfg.PrivateKey)
	}
	if cfg.PrivateKeyEnv != "" {
		if hexKey := strings.TrimSpace(os.Getenv(cfg.PrivateKeyEnv)); hexKey != "" {
			return ParseKey(hexKey)
		}
		if !cfg.Prompt {
			return nil, fmt.Errorf("environment variable %s is not set and no privateKey in config", cfg.PrivateKeyEnv)
		}
	}
	if cfg.Prompt {
		return promptKey()
	}
	return nil, fmt.Errorf("neither privateKey nor privateKeyEnv is configured")
}

func promptKey() (*ecdsa.PrivateKey, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("cannot prompt for private key: stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "Private key: ")
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	return ParseKey(string(secret))
}
