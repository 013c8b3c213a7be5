package graph

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// SaveLoops writes the loop set to path as a JSON array of {path, pairs}
// records. The format round-trips losslessly through LoadLoops.
func SaveLoops(path string, loops []domain.Loop) error {
	data, err := json.MarshalIndent(loops, "", "  ")
	if err != nil {
		return fmt.Errorf("graph: marshal loops: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("graph: write loop file %s: %w", path, err)
	}
	return nil
}

// LoadLoops reads a loop definition file written by SaveLoops.
func LoadLoops(path string) ([]domain.Loop, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("graph: read loop file %s: %w", path, err)
	}
	var loops []domain.Loop
	if err := json.Unmarshal(data, &loops); err != nil {
		return nil, fmt.Errorf("graph: parse loop file %s: %w", path, err)
	}
	return loops, nil
}
