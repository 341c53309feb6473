package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// PairingFile is the name of the pairing record inside the data dir.
const PairingFile = "pairing.toml"

// Pairing records the one peer relationship this install holds. The
// sync model is a single desktop/mobile pair, not a mesh; at most one
// pairing exists at a time.
type Pairing struct {
	// PeerAddress is the peer's base URL, e.g. http://192.168.1.20:54577.
	PeerAddress string `toml:"peer_address"`

	// Token is the shared secret presented to the peer.
	Token string `toml:"token"`

	// PairedAt is when the pairing was established (RFC 3339).
	PairedAt string `toml:"paired_at"`
}

// LoadPairing reads the pairing record from the data dir.
// Returns (nil, nil) when no pairing exists.
func LoadPairing(dataDir string) (*Pairing, error) {
	path := filepath.Join(dataDir, PairingFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read pairing file: %w", err)
	}

	var p Pairing
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse pairing file: %w", err)
	}
	if p.PeerAddress == "" {
		return nil, fmt.Errorf("pairing file missing peer_address")
	}

	return &p, nil
}

// SavePairing writes the pairing record, replacing any existing one.
func SavePairing(dataDir string, p *Pairing) error {
	if p == nil || p.PeerAddress == "" {
		return fmt.Errorf("pairing requires a peer address")
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	path := filepath.Join(dataDir, PairingFile)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create pairing file: %w", err)
	}

	if err := toml.NewEncoder(f).Encode(p); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write pairing file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close pairing file: %w", err)
	}
	return nil
}

// RemovePairing deletes the pairing record. Removing a pairing that
// doesn't exist is not an error.
func RemovePairing(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, PairingFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove pairing file: %w", err)
	}
	return nil
}
