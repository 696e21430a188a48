// Package checkpoint persists trained parameter snapshots as
// <dir>/<name>.<epoch>-<loss>.json files and retrieves the best one
// per network by lowest recorded training loss.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Juary88/keras-ensemblng/internal/nn"
)

// ErrNotFound reports that no checkpoint exists for a network name.
var ErrNotFound = errors.New("checkpoint: not found")

// Snapshot is one persisted parameter set with its provenance.
type Snapshot struct {
	Network string      `json:"network"`
	Epoch   int         `json:"epoch"`
	Loss    float64     `json:"loss"`
	RunID   string      `json:"run_id"`
	SavedAt time.Time   `json:"saved_at"`
	Params  [][]float64 `json:"params"`
}

// Save writes the snapshot and returns its path.
func Save(dir string, s Snapshot) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("checkpoint: %w", err)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("checkpoint: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.%02d-%.4f.json", s.Network, s.Epoch, s.Loss))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("checkpoint: %w", err)
	}
	return path, nil
}

// Load reads one snapshot file.
func Load(path string) (Snapshot, error) {
	var s Snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return s, fmt.Errorf("checkpoint: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("checkpoint: decode %s: %w", filepath.Base(path), err)
	}
	return s, nil
}

// BestPath returns the checkpoint with the lowest recorded loss for
// name. Selection is a policy over the directory contents, never a
// literal filename.
func BestPath(dir, name string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: network %q in %s", ErrNotFound, name, dir)
		}
		return "", fmt.Errorf("checkpoint: %w", err)
	}
	best := ""
	bestLoss := 0.0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		loss, ok := parseName(e.Name(), name)
		if !ok {
			continue
		}
		if best == "" || loss < bestLoss {
			best = e.Name()
			bestLoss = loss
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w: network %q in %s", ErrNotFound, name, dir)
	}
	return filepath.Join(dir, best), nil
}

// LoadBest loads the lowest-loss snapshot for name.
func LoadBest(dir, name string) (Snapshot, error) {
	path, err := BestPath(dir, name)
	if err != nil {
		return Snapshot{}, err
	}
	return Load(path)
}

// Restore writes a snapshot's parameters into a rebuilt graph,
// validating network name and parameter shapes.
func Restore(net *nn.Network, s Snapshot) error {
	if s.Network != net.Name {
		return fmt.Errorf("checkpoint: snapshot is for %q, network is %q", s.Network, net.Name)
	}
	if err := net.RestoreParams(s.Params); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// parseName extracts the loss from "<name>.<epoch>-<loss>.json".
func parseName(file, name string) (float64, bool) {
	prefix := name + "."
	if !strings.HasPrefix(file, prefix) || !strings.HasSuffix(file, ".json") {
		return 0, false
	}
	rest := strings.TrimSuffix(file[len(prefix):], ".json")
	sep := strings.Index(rest, "-")
	if sep < 0 {
		return 0, false
	}
	if _, err := strconv.Atoi(rest[:sep]); err != nil {
		return 0, false
	}
	loss, err := strconv.ParseFloat(rest[sep+1:], 64)
	if err != nil {
		return 0, false
	}
	return loss, true
}
