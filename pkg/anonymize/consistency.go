package anonymize

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/cuemby/caravan/pkg/errtag"
)

// MapFile is the consistency map's basename in the data directory
const MapFile = "consistency-map.json"

// ConsistencyMap guarantees that the same original value always maps
// to the same anonymized value, within a run and across runs. Keys are
// "rule_name:original". It is the only mutable state shared between
// anonymization workers; one mutex guards it.
type ConsistencyMap struct {
	mu       sync.Mutex
	path     string
	mappings map[string]string
	perRule  map[string]int
}

type mapDocument struct {
	Mappings map[string]string `json:"mappings"`
}

// OpenConsistencyMap loads the map at path when it exists, otherwise
// starts empty. Per-rule counts are rebuilt from the keys so token
// counters continue across runs.
func OpenConsistencyMap(path string) (*ConsistencyMap, error) {
	m := &ConsistencyMap{
		path:     path,
		mappings: make(map[string]string),
		perRule:  make(map[string]int),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, errtag.Configuration.New("reading consistency map %s: %v", path, err)
	}

	var doc mapDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errtag.Configuration.New("parsing consistency map %s: %v", path, err)
	}
	if doc.Mappings != nil {
		m.mappings = doc.Mappings
	}
	for key := range m.mappings {
		if rule, _, ok := strings.Cut(key, ":"); ok {
			m.perRule[rule]++
		}
	}
	return m, nil
}

// Resolve returns the stable mapping for (rule, original), generating
// and recording one on first sight
func (m *ConsistencyMap) Resolve(rule, original string, generate func() (string, error)) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rule + ":" + original
	if v, ok := m.mappings[key]; ok {
		return v, nil
	}
	v, err := generate()
	if err != nil {
		return "", err
	}
	m.mappings[key] = v
	m.perRule[rule]++
	return v, nil
}

// Token returns the stable token for (rule, original), drawing new
// tokens from the rule's counter
func (m *ConsistencyMap) Token(rule, original string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rule + ":" + original
	if v, ok := m.mappings[key]; ok {
		return v
	}
	v := fmt.Sprintf("TOKEN_%08d", m.perRule[rule]+1)
	m.mappings[key] = v
	m.perRule[rule]++
	return v
}

// Len returns the number of recorded mappings
func (m *ConsistencyMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mappings)
}

// Save persists the map atomically (temp + rename)
func (m *ConsistencyMap) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(mapDocument{Mappings: m.mappings}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	tmp := m.path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing consistency map: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing consistency map: %w", err)
	}
	return nil
}
