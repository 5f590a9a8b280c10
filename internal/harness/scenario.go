package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// A scenario runs SDK operations against a fake Web API that serves canned
// responses, then asserts on the requests the client sent.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Definitions is the path to the EntityDefinitions response body.
	// Relative paths are resolved against the scenario file's directory.
	Definitions string `yaml:"definitions"`

	// Config sets the client options the scenario runs with.
	Config ScenarioConfig `yaml:"config,omitempty"`

	// Routes are the canned Web API responses. Paths are prefixes relative
	// to the service root and the first matching route wins, so list more
	// specific paths first.
	Routes []Route `yaml:"routes,omitempty"`

	// Steps are the operations to perform, in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the recorded request trace.
	// Supported types: request_contains, request_order, request_count
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ScenarioConfig mirrors the client settings a scenario may change.
type ScenarioConfig struct {
	Tag                         string `yaml:"tag,omitempty"`
	SuppressDuplicateDetection  bool   `yaml:"suppress_duplicate_detection,omitempty"`
	BypassCustomPluginExecution bool   `yaml:"bypass_custom_plugin_execution,omitempty"`
	FetchRelationships          bool   `yaml:"fetch_relationships,omitempty"`
	MaxPages                    int    `yaml:"max_pages,omitempty"`
}

// Route serves Responses in order for requests with Method whose path
// starts with Path. The last response repeats once the others are used.
type Route struct {
	Method    string     `yaml:"method"`
	Path      string     `yaml:"path"`
	Responses []Response `yaml:"responses"`
}

// Response is one canned reply. "{service_root}" in header values and
// string body values is replaced with the fake server's service root.
type Response struct {
	Status  int               `yaml:"status"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Body    any               `yaml:"body,omitempty"`
}

// Step is one SDK operation.
type Step struct {
	// Op is one of create, retrieve, retrieve_multiple, retrieve_all,
	// update, delete, associate, disassociate.
	Op string `yaml:"op"`

	// Entity is the logical name of the target record or query.
	Entity string `yaml:"entity,omitempty"`

	// ID is the target record ID.
	ID string `yaml:"id,omitempty"`

	// Attributes are set on the record for create and update. A map
	// {ref: <entity>, id: <guid>} is a lookup and {option: <n>} a choice.
	Attributes map[string]any `yaml:"attributes,omitempty"`

	// Columns projects retrieve. Empty retrieves all columns.
	Columns []string `yaml:"columns,omitempty"`

	// Query is a CUE query struct for retrieve_multiple and retrieve_all.
	Query string `yaml:"query,omitempty"`

	// Relationship is the relationship schema name for associate and
	// disassociate. Empty infers it.
	Relationship string `yaml:"relationship,omitempty"`

	// Related lists the records to associate or disassociate.
	Related *Related `yaml:"related,omitempty"`

	// Expect specifies the expected outcome.
	// If nil, the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Related references records of one entity.
type Related struct {
	Entity string   `yaml:"entity"`
	IDs    []string `yaml:"ids"`
}

// Expect specifies the expected step outcome.
type Expect struct {
	// Error is the expected client error code, e.g. API or INVALID_REQUEST.
	Error string `yaml:"error,omitempty"`

	// ID is the expected ID returned by create.
	ID string `yaml:"id,omitempty"`

	// Count is the expected number of records returned by a query.
	Count *int `yaml:"count,omitempty"`

	// Attributes is a subset of the record returned by retrieve.
	Attributes map[string]any `yaml:"attributes,omitempty"`
}

// Assertion validates the request trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "request_contains": a request matches method, path and subsets
	// - "request_order": requests appear in this relative order
	// - "request_count": method and path match exactly Count requests
	Type string `yaml:"type"`

	// Method and Path select requests (request_contains, request_count).
	// Path is relative to the service root; a trailing "*" matches a prefix.
	Method string `yaml:"method,omitempty"`
	Path   string `yaml:"path,omitempty"`

	// Query, Headers and Body are subset matches (request_contains).
	// Header names are lower case.
	Query   map[string]string `yaml:"query,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Body    map[string]any    `yaml:"body,omitempty"`

	// Count is the expected number of matching requests (request_count).
	Count int `yaml:"count,omitempty"`

	// Requests is the expected order as "METHOD path" (request_order).
	Requests []string `yaml:"requests,omitempty"`
}

// Assertion type constants.
const (
	AssertRequestContains = "request_contains"
	AssertRequestOrder    = "request_order"
	AssertRequestCount    = "request_count"
)

// Step operations.
const (
	OpCreate           = "create"
	OpRetrieve         = "retrieve"
	OpRetrieveMultiple = "retrieve_multiple"
	OpRetrieveAll      = "retrieve_all"
	OpUpdate           = "update"
	OpDelete           = "delete"
	OpAssociate        = "associate"
	OpDisassociate     = "disassociate"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// The definitions path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Definitions != "" && !filepath.IsAbs(scenario.Definitions) {
		scenario.Definitions = filepath.Join(filepath.Dir(path), scenario.Definitions)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Definitions == "" {
		return fmt.Errorf("definitions is required")
	}
	if _, err := os.Stat(s.Definitions); err != nil {
		return fmt.Errorf("definitions file not found: %s", s.Definitions)
	}
	if s.Config.MaxPages < 0 {
		return fmt.Errorf("config.max_pages must be >= 0, got %d", s.Config.MaxPages)
	}

	for i, r := range s.Routes {
		if r.Method == "" || r.Path == "" {
			return fmt.Errorf("routes[%d]: method and path are required", i)
		}
		if len(r.Responses) == 0 {
			return fmt.Errorf("routes[%d]: responses list is required and must be non-empty", i)
		}
		for j, resp := range r.Responses {
			if resp.Status < 100 || resp.Status > 599 {
				return fmt.Errorf("routes[%d].responses[%d]: invalid status %d", i, j, resp.Status)
			}
		}
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	switch st.Op {
	case OpCreate, OpRetrieveMultiple, OpRetrieveAll:
	case OpRetrieve, OpUpdate, OpDelete:
		if st.ID == "" {
			return fmt.Errorf("steps[%d]: %s requires id", index, st.Op)
		}
	case OpAssociate, OpDisassociate:
		if st.ID == "" {
			return fmt.Errorf("steps[%d]: %s requires id", index, st.Op)
		}
		if st.Related == nil || st.Related.Entity == "" || len(st.Related.IDs) == 0 {
			return fmt.Errorf("steps[%d]: %s requires related entity and ids", index, st.Op)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}

	if st.Op == OpRetrieveMultiple || st.Op == OpRetrieveAll {
		if st.Query == "" {
			return fmt.Errorf("steps[%d]: %s requires query", index, st.Op)
		}
	} else if st.Entity == "" {
		return fmt.Errorf("steps[%d]: %s requires entity", index, st.Op)
	}
	return nil
}

// validateAssertion checks that an assertion has required fields for its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertRequestContains:
		if a.Method == "" || a.Path == "" {
			return fmt.Errorf("assertions[%d]: request_contains requires method and path", index)
		}
	case AssertRequestOrder:
		if len(a.Requests) < 2 {
			return fmt.Errorf("assertions[%d]: request_order requires at least 2 requests", index)
		}
	case AssertRequestCount:
		if a.Method == "" || a.Path == "" {
			return fmt.Errorf("assertions[%d]: request_count requires method and path", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: request_count count must be >= 0, got %d", index, a.Count)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown type %q", index, a.Type)
	}
	return nil
}
