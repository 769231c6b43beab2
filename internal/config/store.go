package config

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

var compiledSchema *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("config.schema.json", strings.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("config: invalid embedded schema: %s", err))
	}
	s, err := c.Compile("config.schema.json")
	if err != nil {
		panic(fmt.Sprintf("config: invalid embedded schema: %s", err))
	}
	compiledSchema = s
}

// Store holds the loaded, schema-validated configuration. Edge and
// Routing are fixed at load time; Faults is re-read from disk on every
// call so that `inject-fault`/`clear-faults` take effect without a
// restart, matching the original load_faults() behavior.
type Store struct {
	path    string
	edge    EdgeConfig
	routing RoutingConfig
	faults  atomic.Pointer[FaultConfig]
}

// Load reads, schema-validates, and parses path into a Store.
func Load(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("parse: %w", err)}
	}
	if err := compiledSchema.Validate(generic); err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("schema: %w", err)}
	}

	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("decode: %w", err)}
	}

	s := &Store{path: path, edge: doc.Edge, routing: doc.Forwarder}
	s.faults.Store(&doc.FaultInjection)
	return s, nil
}

// Path returns the config file path this Store was loaded from.
func (s *Store) Path() string { return s.path }

// Edge returns the process-identity/filesystem-layout config.
func (s *Store) Edge() EdgeConfig { return s.edge }

// Routing returns the forwarder dispatch policy.
func (s *Store) Routing() RoutingConfig { return s.routing }

// Faults re-reads fault_injection fresh from disk and returns it. On a
// read error or parse failure it returns the last snapshot it read
// successfully (initially the one from Load) rather than failing, since
// a stage mid-flight should not crash because config.yaml was being
// rewritten concurrently by the CLI.
func (s *Store) Faults() FaultConfig {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return s.cachedFaults()
	}
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return s.cachedFaults()
	}
	s.faults.Store(&doc.FaultInjection)
	return doc.FaultInjection
}

func (s *Store) cachedFaults() FaultConfig {
	if f := s.faults.Load(); f != nil {
		return *f
	}
	return FaultConfig{}
}
