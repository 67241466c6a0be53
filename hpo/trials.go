package hpo

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SaveTrials writes trials to path as YAML, creating parent directories.
func SaveTrials(path string, trials []Trial) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create trials dir: %w", err)
	}

	data, err := yaml.Marshal(trials)
	if err != nil {
		return fmt.Errorf("marshal trials: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write trials: %w", err)
	}

	return nil
}

// LoadTrials reads trials written by SaveTrials. The result can be passed to
// AddPreviousResults.
func LoadTrials(path string) ([]Trial, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trials: %w", err)
	}

	var trials []Trial
	if err := yaml.Unmarshal(data, &trials); err != nil {
		return nil, fmt.Errorf("parse trials %s: %w", path, err)
	}

	for i := range trials {
		if trials[i].Params == nil {
			trials[i].Params = Point{}
		}
	}

	return trials, nil
}
