package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cartpilot/cartpilot/internal/types"
)

// Store persists one automation script per retailer as a JSON file in
// a local directory. Re-recording a retailer replaces its script
// wholesale.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(r types.Retailer) string {
	return filepath.Join(s.dir, string(r)+".json")
}

func (s *Store) Save(as *types.AutomationScript) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create script directory: %w", err)
	}
	raw, err := json.MarshalIndent(as, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal script: %w", err)
	}
	if err := os.WriteFile(s.path(as.Retailer), raw, 0644); err != nil {
		return fmt.Errorf("failed to write script: %w", err)
	}
	return nil
}

func (s *Store) Load(r types.Retailer) (*types.AutomationScript, error) {
	raw, err := os.ReadFile(s.path(r))
	if err != nil {
		return nil, fmt.Errorf("no saved script for %s: %w", r, err)
	}
	var as types.AutomationScript
	if err := json.Unmarshal(raw, &as); err != nil {
		return nil, fmt.Errorf("failed to parse script for %s: %w", r, err)
	}
	return &as, nil
}

// List returns every saved script, ordered by file name.
func (s *Store) List() ([]types.AutomationScript, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read script directory: %w", err)
	}
	var scripts []types.AutomationScript
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		as, err := s.Load(types.Retailer(strings.TrimSuffix(entry.Name(), ".json")))
		if err != nil {
			continue
		}
		scripts = append(scripts, *as)
	}
	return scripts, nil
}

func (s *Store) Delete(r types.Retailer) error {
	if err := os.Remove(s.path(r)); err != nil {
		return fmt.Errorf("failed to delete script for %s: %w", r, err)
	}
	return nil
}
