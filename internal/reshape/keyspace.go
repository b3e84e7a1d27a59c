package reshape

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Keyspace is the run manifest written alongside the wide table: the full
// set of draws, seeds, and scenarios the run was launched with. It is used
// only to check the table for completeness, never for decoding.
type Keyspace struct {
	InputDraws  []int    `yaml:"input_draw"`
	RandomSeeds []int    `yaml:"random_seed"`
	Scenarios   []string `yaml:"scenario"`
}

// LoadKeyspace reads and validates a keyspace.yaml manifest. Unknown keys
// in the manifest are an error.
func LoadKeyspace(path string) (*Keyspace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading keyspace manifest: %w", err)
	}
	return ParseKeyspace(data)
}

// ParseKeyspace decodes manifest bytes with strict field checking.
func ParseKeyspace(data []byte) (*Keyspace, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var k Keyspace
	if err := dec.Decode(&k); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing keyspace manifest: %w", err)
	}
	if err := k.Validate(); err != nil {
		return nil, err
	}
	return &k, nil
}

// Validate rejects a manifest with any empty dimension.
func (k *Keyspace) Validate() error {
	if len(k.InputDraws) == 0 {
		return fmt.Errorf("keyspace manifest declares no input draws")
	}
	if len(k.RandomSeeds) == 0 {
		return fmt.Errorf("keyspace manifest declares no random seeds")
	}
	if len(k.Scenarios) == 0 {
		return fmt.Errorf("keyspace manifest declares no scenarios")
	}
	return nil
}

// ReplicateID identifies one expected replicate of the run.
type ReplicateID struct {
	InputDraw  int
	RandomSeed int
	Scenario   string
}

func (r ReplicateID) String() string {
	return fmt.Sprintf("draw=%d seed=%d scenario=%s", r.InputDraw, r.RandomSeed, r.Scenario)
}

// Missing returns every replicate the manifest declares that the wide
// table does not contain, in manifest order.
func (k *Keyspace) Missing(t *WideTable) []ReplicateID {
	present := make(map[ReplicateID]bool, len(t.Rows))
	for _, row := range t.Rows {
		present[ReplicateID{row.InputDraw, row.RandomSeed, row.Scenario}] = true
	}

	var missing []ReplicateID
	for _, draw := range k.InputDraws {
		for _, seed := range k.RandomSeeds {
			for _, scenario := range k.Scenarios {
				id := ReplicateID{draw, seed, scenario}
				if !present[id] {
					missing = append(missing, id)
				}
			}
		}
	}
	return missing
}

// CheckComplete errors if the table is missing any declared replicate,
// naming what is absent.
func (k *Keyspace) CheckComplete(t *WideTable) error {
	missing := k.Missing(t)
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, len(missing))
	for i, id := range missing {
		names[i] = id.String()
	}
	return fmt.Errorf("wide table is missing %d of %d declared replicates: %v",
		len(missing), len(k.InputDraws)*len(k.RandomSeeds)*len(k.Scenarios), names)
}
