package face

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/floats"

	"doorcam/internal/logger"
)

// Store holds the reference embedding for every enrolled identity. One
// JSON vector file per label, loaded once at startup. An empty or missing
// directory is not an error: recognition simply degrades to "unknown".
type Store struct {
	embeddings map[string][]float64
}

// LoadStore reads every *.json embedding file from dir. Files that fail
// to parse are skipped with a warning.
func LoadStore(dir string, log *logger.Logger) *Store {
	store := &Store{embeddings: make(map[string][]float64)}

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warning("Known faces directory not readable: %v", err)
		return store
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		label := strings.TrimSuffix(entry.Name(), ".json")
		path := filepath.Join(dir, entry.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			log.Warning("Error reading %s: %v", path, err)
			continue
		}

		var vec []float64
		if err := json.Unmarshal(data, &vec); err != nil || len(vec) == 0 {
			log.Warning("Error parsing embedding %s: %v", path, err)
			continue
		}

		store.embeddings[label] = vec
		log.Info("Loaded face: %s", label)
	}

	if len(store.embeddings) == 0 {
		log.Warning("No face embeddings found in %s", dir)
	}
	return store
}

// Len returns the number of enrolled identities.
func (s *Store) Len() int {
	return len(s.embeddings)
}

// Nearest returns the enrolled label closest to vec by Euclidean distance.
// When two labels sit at the same minimum distance the winner is whichever
// the map iteration reaches first.
func (s *Store) Nearest(vec []float64) (label string, distance float64, ok bool) {
	best := -1.0
	for name, known := range s.embeddings {
		if len(known) != len(vec) {
			continue
		}
		d := floats.Distance(vec, known, 2)
		if best < 0 || d < best {
			best = d
			label = name
		}
	}
	if best < 0 {
		return "", 0, false
	}
	return label, best, true
}

// Save persists an embedding for label under dir as <label>.json.
func Save(dir, label string, vec []float64) (string, error) {
	data, err := json.Marshal(vec)
	if err != nil {
		return "", fmt.Errorf("failed to encode embedding: %v", err)
	}
	path := filepath.Join(dir, label+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %v", path, err)
	}
	return path, nil
}
