package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/amitpaz1/formbridge-sub001/internal/domain"
)

// LoadDir registers every *.json intake definition found in dir.
// Returns the number of definitions registered.
func (r *Registry) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read intake dir: %w", err)
	}

	n := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return n, fmt.Errorf("read intake file %s: %w", path, err)
		}
		var def domain.IntakeDefinition
		if err := json.Unmarshal(data, &def); err != nil {
			return n, fmt.Errorf("parse intake file %s: %w", path, err)
		}
		if err := r.Register(&def); err != nil {
			return n, fmt.Errorf("register intake from %s: %w", path, err)
		}
		n++
	}
	return n, nil
}
