package harness

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/lineage/internal/compiler"
	"github.com/roach88/lineage/internal/ir"
)

// Scenario is a world-building script interleaved with query runs.
// Each run step may carry the rows it expects.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Queries declares the queries run steps may reference, by name.
	// A query is compiled at its first run, against the world as built by
	// the steps before it.
	Queries map[string]QuerySpec `yaml:"queries"`

	// Steps are executed in order. A step is either a mutation (op) or a
	// query run (run).
	Steps []Step `yaml:"steps"`
}

// QuerySpec is the YAML form of a query descriptor.
type QuerySpec struct {
	Terms            []TermSpec `yaml:"terms"`
	Vars             []VarSpec  `yaml:"vars,omitempty"`
	Cache            string     `yaml:"cache,omitempty"`
	MatchEmptyTables bool       `yaml:"match_empty_tables,omitempty"`
}

// TermSpec is one term of a query. References use the CUE query syntax:
// "$x" is a variable, "*" the wildcard, anything else an entity name.
type TermSpec struct {
	ID   IDSpec `yaml:"id"`
	Src  string `yaml:"src,omitempty"`
	Rel  string `yaml:"rel,omitempty"`
	Trav string `yaml:"trav,omitempty"`
	Oper string `yaml:"oper,omitempty"`
}

// VarSpec declares a query variable.
type VarSpec struct {
	Name  string `yaml:"name"`
	Alias string `yaml:"alias,omitempty"`
}

// IDSpec is a plain id ("Foo") or a pair, written either as a two-element
// list ([ChildOf, parent]) or as "(ChildOf, parent)".
type IDSpec struct {
	First  string
	Second string
}

// UnmarshalYAML accepts a scalar or a two-element sequence.
func (s *IDSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		v := strings.TrimSpace(node.Value)
		if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") {
			parts := strings.Split(v[1:len(v)-1], ",")
			if len(parts) != 2 {
				return fmt.Errorf("line %d: pair %q must have 2 elements", node.Line, v)
			}
			s.First, s.Second = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
			return nil
		}
		if v == "" {
			return fmt.Errorf("line %d: empty id", node.Line)
		}
		s.First, s.Second = v, ""
		return nil
	case yaml.SequenceNode:
		var parts []string
		if err := node.Decode(&parts); err != nil {
			return err
		}
		if len(parts) != 2 {
			return fmt.Errorf("line %d: pair must have 2 elements, got %d", node.Line, len(parts))
		}
		s.First, s.Second = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		return nil
	}
	return fmt.Errorf("line %d: id must be a string or a pair list", node.Line)
}

// IsPair reports whether s names a pair.
func (s IDSpec) IsPair() bool { return s.Second != "" }

func (s IDSpec) String() string {
	if s.IsPair() {
		return "(" + s.First + "," + s.Second + ")"
	}
	return s.First
}

// Step operations.
const (
	OpNew         = "new"          // create an entity: name, ids
	OpRel         = "rel"          // create a traversable relationship: name
	OpAdd         = "add"          // add ids to entity
	OpRemove      = "remove"       // remove ids from entity
	OpDelete      = "delete"       // delete entity and its ChildOf descendants
	OpName        = "name"         // rename entity; empty name clears it
	OpDeleteEmpty = "delete_empty" // delete every empty table
)

// Step is one scenario step.
type Step struct {
	// Op is the mutation to apply. Exclusive with Run.
	Op string `yaml:"op,omitempty"`

	Name   string   `yaml:"name,omitempty"`
	Entity string   `yaml:"entity,omitempty"`
	Ids    []IDSpec `yaml:"ids,omitempty"`

	// Run names the query to run. Exclusive with Op.
	Run string `yaml:"run,omitempty"`

	// Expect lists the rows the run must produce, in order. Rows are
	// rendered with entity names and without table ids. An empty list
	// expects no rows; omitting it skips the comparison.
	Expect *[]string `yaml:"expect,omitempty"`

	// Count is the number of rows the run must produce.
	Count *int `yaml:"count,omitempty"`

	// Error, when set, is a substring of the error the step must fail with.
	Error string `yaml:"error,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// QueryNames returns the declared query names, sorted.
func (s *Scenario) QueryNames() []string {
	names := make([]string, 0, len(s.Queries))
	for name := range s.Queries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptor converts q to a query descriptor named name.
// Entity names stay unresolved until the descriptor is compiled.
func (q QuerySpec) Descriptor(name string) (ir.QueryDesc, error) {
	desc := ir.QueryDesc{Name: name, MatchEmptyTables: q.MatchEmptyTables}

	kind, err := ir.ParseCacheKind(q.Cache)
	if err != nil {
		return ir.QueryDesc{}, fmt.Errorf("query %s: %w", name, err)
	}
	desc.CacheKind = kind

	for i, ts := range q.Terms {
		term := ir.TermDesc{First: compiler.ParseRef(ts.ID.First)}
		if ts.ID.IsPair() {
			term.Second = compiler.ParseRef(ts.ID.Second)
		}
		if ts.Src != "" {
			term.Src = compiler.ParseRef(ts.Src)
		}
		if ts.Rel != "" {
			term.Rel = compiler.ParseRef(ts.Rel)
		}
		if term.Trav, err = ir.ParseTrav(ts.Trav); err != nil {
			return ir.QueryDesc{}, fmt.Errorf("query %s: terms[%d]: %w", name, i, err)
		}
		if term.Oper, err = ir.ParseOper(ts.Oper); err != nil {
			return ir.QueryDesc{}, fmt.Errorf("query %s: terms[%d]: %w", name, i, err)
		}
		desc.Terms = append(desc.Terms, term)
	}
	for _, v := range q.Vars {
		desc.Vars = append(desc.Vars, ir.VarDecl{
			Name:  strings.TrimPrefix(v.Name, "$"),
			Alias: strings.TrimPrefix(v.Alias, "$"),
		})
	}
	return desc, nil
}

// validateScenario checks that required fields are present and valid.
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

	for _, name := range s.QueryNames() {
		q := s.Queries[name]
		if len(q.Terms) == 0 {
			return fmt.Errorf("queries.%s: terms list is required and must be non-empty", name)
		}
		if _, err := q.Descriptor(name); err != nil {
			return err
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step, s.Queries); err != nil {
			return err
		}
	}
	return nil
}

// validateStep validates a single step based on its operation.
func validateStep(index int, st *Step, queries map[string]QuerySpec) error {
	switch {
	case st.Op == "" && st.Run == "":
		return fmt.Errorf("steps[%d]: one of op or run is required", index)
	case st.Op != "" && st.Run != "":
		return fmt.Errorf("steps[%d]: op and run are exclusive", index)
	}

	if st.Run != "" {
		if _, ok := queries[st.Run]; !ok {
			return fmt.Errorf("steps[%d]: unknown query %q", index, st.Run)
		}
		if st.Count != nil && *st.Count < 0 {
			return fmt.Errorf("steps[%d]: count must be non-negative", index)
		}
		return nil
	}

	if st.Expect != nil || st.Count != nil {
		return fmt.Errorf("steps[%d]: expect and count are only valid on run steps", index)
	}

	switch st.Op {
	case OpNew:
	case OpRel:
		if st.Name == "" {
			return fmt.Errorf("steps[%d]: name is required for rel", index)
		}
	case OpAdd, OpRemove:
		if st.Entity == "" {
			return fmt.Errorf("steps[%d]: entity is required for %s", index, st.Op)
		}
		if len(st.Ids) == 0 {
			return fmt.Errorf("steps[%d]: ids list is required for %s", index, st.Op)
		}
	case OpDelete, OpName:
		if st.Entity == "" {
			return fmt.Errorf("steps[%d]: entity is required for %s", index, st.Op)
		}
	case OpDeleteEmpty:
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}
	return nil
}
