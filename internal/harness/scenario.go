package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/causetdb/internal/edn"
	"github.com/roach88/causetdb/internal/tx"
)

// Scenario is one transaction scenario.
type Scenario struct {
	// Name identifies the scenario and its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Schema lists CUE files or directories installed before setup.
	// Relative paths resolve against the scenario file.
	Schema []string `yaml:"schema,omitempty"`

	// LookupRefPolicy is "fail" (default) or "create".
	LookupRefPolicy string `yaml:"lookup_ref_policy,omitempty"`

	// Setup payloads must commit. They are not traced.
	Setup []any `yaml:"setup,omitempty"`

	// Steps are traced, each with an optional expectation.
	Steps []Step `yaml:"steps"`

	// Assertions run against the final store.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one traced transaction.
type Step struct {
	Name string `yaml:"name"`

	// Transact is the payload: YAML terms, or a string of JSON.
	Transact any `yaml:"transact"`

	// Expect defaults to a successful commit.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the outcome a step must have.
type Expect struct {
	// Error is the tx.Code the step must fail with.
	Error string `yaml:"error,omitempty"`

	// TempIDs must all be mapped by the report.
	TempIDs []string `yaml:"tempids,omitempty"`

	// Datoms is the number of net changes, not counting :db/txInstant.
	Datoms *int `yaml:"datoms,omitempty"`

	// SchemaChanged, when set, must match the report.
	SchemaChanged *bool `yaml:"schema_changed,omitempty"`
}

// Assertion checks the final store.
type Assertion struct {
	// Type is one of entity, absent, tx_count or attribute.
	Type string `yaml:"type"`

	// Entity is an entid, an ident or an [attribute value] lookup ref
	// (entity, absent).
	Entity any `yaml:"entity,omitempty"`

	// Ident names the attribute (attribute).
	Ident string `yaml:"ident,omitempty"`

	// Expect maps attribute idents to values (entity) or schema fields to
	// values (attribute). A null value means no value is stored; a list
	// gives every value of a cardinality-many attribute.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of transactions (tx_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertEntity    = "entity"
	AssertAbsent    = "absent"
	AssertTxCount   = "tx_count"
	AssertAttribute = "attribute"
)

// LoadScenario reads a scenario file. Schema paths resolve against the
// file's directory. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for i, p := range scenario.Schema {
		if !filepath.IsAbs(p) {
			scenario.Schema[i] = filepath.Join(base, p)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if _, err := tx.ParseLookupRefPolicy(s.LookupRefPolicy); err != nil {
		return err
	}

	for _, p := range s.Schema {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("schema path not found: %s", p)
		}
	}
	for i, payload := range s.Setup {
		if _, err := payloadValue(payload); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}

	seen := make(map[string]bool)
	for i, step := range s.Steps {
		if step.Name == "" {
			return fmt.Errorf("steps[%d]: name is required", i)
		}
		if seen[step.Name] {
			return fmt.Errorf("steps[%d]: duplicate step name %q", i, step.Name)
		}
		seen[step.Name] = true
		if step.Transact == nil {
			return fmt.Errorf("steps[%d]: transact is required", i)
		}
		if _, err := payloadValue(step.Transact); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if e := step.Expect; e != nil && e.Error != "" && (len(e.TempIDs) > 0 || e.Datoms != nil || e.SchemaChanged != nil) {
			return fmt.Errorf("steps[%d].expect: error cannot be combined with commit expectations", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertEntity:
		if a.Entity == nil {
			return fmt.Errorf("assertions[%d]: entity is required for entity", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for entity", index)
		}
	case AssertAbsent:
		if a.Entity == nil {
			return fmt.Errorf("assertions[%d]: entity is required for absent", index)
		}
	case AssertTxCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for tx_count", index)
		}
	case AssertAttribute:
		if a.Ident == "" {
			return fmt.Errorf("assertions[%d]: ident is required for attribute", index)
		}
		for k := range a.Expect {
			if !attributeFields[k] {
				return fmt.Errorf("assertions[%d]: unknown attribute field %q", index, k)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// payloadValue converts a YAML payload into a transaction value. Strings
// hold JSON.
func payloadValue(raw any) (edn.Value, error) {
	if s, ok := raw.(string); ok {
		return edn.Parse([]byte(s))
	}
	v, err := edn.FromGo(raw)
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	return v, nil
}
