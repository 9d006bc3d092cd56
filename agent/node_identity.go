package agent

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"gopkg.in/ini.v1"

	"github.com/sciagent/sci-agent/internal/system"
)

// nodeIdentitySection/-Key name the [sci] node_id record the spec's
// Component M persists in config.ini, analogous to how the teacher keeps
// its own agent UUID in a local config file across restarts.
const (
	nodeIdentitySection = "sci"
	nodeIdentityKey     = "node_id"
)

// LoadOrCreateNodeIdentity returns the node_id recorded at configPath,
// creating one from the host's machine id on first run. A file lock guards
// the read-modify-write against a concurrent second agent process started
// against the same config path.
func LoadOrCreateNodeIdentity(configPath string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return "", fmt.Errorf("agent: create config dir: %w", err)
	}

	lock := flock.New(configPath + ".lock")
	if err := lock.Lock(); err != nil {
		return "", fmt.Errorf("agent: lock %s: %w", configPath, err)
	}
	defer lock.Unlock() //nolint:errcheck

	cfg, err := ini.LoadSources(ini.LoadOptions{Loose: true}, configPath)
	if err != nil {
		return "", fmt.Errorf("agent: load %s: %w", configPath, err)
	}

	section := cfg.Section(nodeIdentitySection)
	if id := section.Key(nodeIdentityKey).String(); id != "" {
		return id, nil
	}

	machineID, err := system.MachineID()
	if err != nil {
		return "", fmt.Errorf("agent: derive node id: %w", err)
	}
	id := formatNodeID(machineID)

	section.Key(nodeIdentityKey).SetValue(id)
	if err := cfg.SaveTo(configPath); err != nil {
		return "", fmt.Errorf("agent: save %s: %w", configPath, err)
	}
	return id, nil
}

// formatNodeID derives the spec's "A<40 hex>" node id format (an 'A'
// prefix over a 40-hex-digit identifier, the same shape as a git SHA-1)
// from the host's machine id.
func formatNodeID(machineID string) string {
	sum := sha1.Sum([]byte(machineID))
	return "A" + hex.EncodeToString(sum[:])
}
