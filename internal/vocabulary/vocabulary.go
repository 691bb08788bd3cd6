// Package vocabulary loads the set of valid reservation statuses.
package vocabulary

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/models"

	"gopkg.in/yaml.v3"
)

//go:embed statuses.yaml
var defaultStatuses []byte

type file struct {
	Statuses []models.StatusEntry `yaml:"statuses"`
}

// Load reads a vocabulary file. An empty path yields the built-in default.
func Load(path string) ([]models.StatusEntry, error) {
	if strings.TrimSpace(path) == "" {
		return Parse(defaultStatuses)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read status vocabulary %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and normalizes vocabulary entries. Keys are trimmed, duplicates
// rejected, a missing value defaults to the key and a missing type to Status.
// The initial status must be present.
func Parse(data []byte) ([]models.StatusEntry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode status vocabulary: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Statuses))
	entries := make([]models.StatusEntry, 0, len(f.Statuses))
	for i, entry := range f.Statuses {
		entry.Key = strings.TrimSpace(entry.Key)
		if entry.Key == "" {
			return nil, fmt.Errorf("status vocabulary entry %d has no key", i)
		}
		if _, dup := seen[entry.Key]; dup {
			return nil, fmt.Errorf("status vocabulary has duplicate key %q", entry.Key)
		}
		seen[entry.Key] = struct{}{}
		if strings.TrimSpace(entry.Value) == "" {
			entry.Value = entry.Key
		}
		if strings.TrimSpace(entry.Type) == "" {
			entry.Type = models.StatusCategory
		}
		entries = append(entries, entry)
	}
	if _, ok := seen[models.StatusWaiting]; !ok {
		return nil, fmt.Errorf("status vocabulary must include %q", models.StatusWaiting)
	}
	return entries, nil
}

// Vocabulary is the read-only status set loaded at startup.
type Vocabulary struct {
	entries []models.StatusEntry
	keys    map[string]struct{}
}

// New keeps only entries of the Status category.
func New(entries []models.StatusEntry) *Vocabulary {
	v := &Vocabulary{keys: make(map[string]struct{}, len(entries))}
	for _, entry := range entries {
		if entry.Type != models.StatusCategory {
			continue
		}
		v.entries = append(v.entries, entry)
		v.keys[entry.Key] = struct{}{}
	}
	return v
}

func (v *Vocabulary) Contains(status string) bool {
	_, ok := v.keys[status]
	return ok
}

func (v *Vocabulary) Entries() []models.StatusEntry {
	out := make([]models.StatusEntry, len(v.entries))
	copy(out, v.entries)
	return out
}

func (v *Vocabulary) Len() int {
	return len(v.entries)
}
