package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"cuelang.org/go/cue/cuecontext"
	"github.com/google/uuid"

	"github.com/roach88/dvsdk/internal/client"
	"github.com/roach88/dvsdk/internal/compiler"
	"github.com/roach88/dvsdk/internal/config"
	"github.com/roach88/dvsdk/internal/entity"
	"github.com/roach88/dvsdk/internal/query"
	"github.com/roach88/dvsdk/internal/testutil"
)

// ServiceRootPlaceholder stands for the fake server's service root in
// scenario responses and recorded traces.
const ServiceRootPlaceholder = "{service_root}"

// Harness is the scenario execution engine for one run.
type Harness struct {
	client      *client.Client
	fake        *testutil.FakeWebAPI
	root        string // service root path, e.g. /api/data/v9.2/
	serviceRoot string // absolute service root URL
	recorded    int
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh fake Web API for isolation.
//
// Execution flow:
// 1. Start the fake Web API with the scenario's definitions and routes
// 2. Create a client and load metadata (recorded as step 0)
// 3. Execute each step and check its expectation
// 4. Evaluate assertions against the trace
//
// An error is returned only when the scenario cannot run at all; failed
// expectations and assertions are reported in the result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	defs, err := os.ReadFile(scenario.Definitions)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions: %w", err)
	}

	fake := testutil.StartFakeWebAPI()
	defer fake.Close()

	cfg := &config.Config{
		TenantID:                    "harness",
		ClientID:                    "harness",
		ClientSecret:                "harness",
		ResourceURL:                 fake.URL,
		AuthorityURL:                fake.URL,
		FetchRelationships:          scenario.Config.FetchRelationships,
		Tag:                         scenario.Config.Tag,
		SuppressDuplicateDetection:  scenario.Config.SuppressDuplicateDetection,
		BypassCustomPluginExecution: scenario.Config.BypassCustomPluginExecution,
	}
	cfg.ApplyDefaults()

	h := &Harness{
		fake:        fake,
		root:        "/api/data/" + cfg.APIVersion + "/",
		serviceRoot: fake.URL + "/api/data/" + cfg.APIVersion,
	}

	fake.Handle(http.MethodGet, h.root+"EntityDefinitions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(defs)
	})
	for _, route := range scenario.Routes {
		fake.Handle(route.Method, h.root+route.Path, h.routeHandler(route))
	}

	opts := []client.Option{client.WithHTTPClient(fake.Client())}
	if scenario.Config.MaxPages > 0 {
		opts = append(opts, client.WithMaxPages(scenario.Config.MaxPages))
	}
	h.client, err = client.New(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	result := NewResult()
	if _, err := h.client.Metadata(ctx); err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	if err := h.collect(result, 0); err != nil {
		return nil, err
	}

	for i, step := range scenario.Steps {
		n := i + 1
		outcome, err := h.perform(ctx, step)
		for _, msg := range checkExpectation(step, outcome, err) {
			result.AddError(fmt.Sprintf("step %d (%s): %s", n, step.Op, msg))
		}
		if err := h.collect(result, n); err != nil {
			return nil, err
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// routeHandler serves route's responses in order, repeating the last.
func (h *Harness) routeHandler(route Route) http.HandlerFunc {
	var mu sync.Mutex
	next := 0
	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := route.Responses[min(next, len(route.Responses)-1)]
		next++
		mu.Unlock()

		for k, v := range resp.Headers {
			w.Header().Set(k, strings.ReplaceAll(v, ServiceRootPlaceholder, h.serviceRoot))
		}
		if resp.Body == nil {
			w.WriteHeader(resp.Status)
			return
		}
		testutil.WriteJSON(w, resp.Status, h.expand(resp.Body))
	}
}

// expand replaces the placeholder in string values of a YAML body.
func (h *Harness) expand(v any) any {
	switch val := v.(type) {
	case string:
		return strings.ReplaceAll(val, ServiceRootPlaceholder, h.serviceRoot)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, x := range val {
			out[k] = h.expand(x)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = h.expand(x)
		}
		return out
	default:
		return v
	}
}

// collect appends the requests received since the last call to the trace.
func (h *Harness) collect(result *Result, step int) error {
	reqs := h.fake.Requests()
	for _, r := range reqs[h.recorded:] {
		ev := TraceEvent{
			Step:   step,
			Method: r.Method,
			Path:   strings.TrimPrefix(r.Path, h.root),
		}

		if r.RawQuery != "" {
			params, err := url.ParseQuery(r.RawQuery)
			if err != nil {
				return fmt.Errorf("failed to parse query of %s %s: %w", r.Method, r.Path, err)
			}
			ev.Query = make(map[string]string, len(params))
			for k := range params {
				ev.Query[k] = params.Get(k)
			}
		}

		for k := range r.Header {
			name := strings.ToLower(k)
			if name == "if-match" || strings.HasPrefix(name, "mscrm.") {
				if ev.Headers == nil {
					ev.Headers = make(map[string]string)
				}
				ev.Headers[name] = r.Header.Get(k)
			}
		}

		if len(r.Body) > 0 {
			raw := bytes.ReplaceAll(r.Body, []byte(h.serviceRoot), []byte(ServiceRootPlaceholder))
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.UseNumber()
			var body any
			if err := dec.Decode(&body); err != nil {
				return fmt.Errorf("failed to decode body of %s %s: %w", r.Method, r.Path, err)
			}
			ev.Body = normalize(body)
		}

		result.AddTrace(ev)
	}
	h.recorded = len(reqs)
	return nil
}

// outcome is what a successful step returned.
type outcome struct {
	id     uuid.UUID
	count  int
	record *entity.Entity
}

func (h *Harness) perform(ctx context.Context, step Step) (outcome, error) {
	switch step.Op {
	case OpCreate:
		e, err := buildEntity(step.Entity, "", step.Attributes)
		if err != nil {
			return outcome{}, err
		}
		id, err := h.client.Create(ctx, e)
		return outcome{id: id}, err

	case OpRetrieve:
		ref, err := entity.ParseEntityReference(step.Entity, step.ID)
		if err != nil {
			return outcome{}, err
		}
		cols := query.AllColumns()
		if len(step.Columns) > 0 {
			if cols, err = query.NewColumnSet(step.Columns...); err != nil {
				return outcome{}, err
			}
		}
		rec, err := h.client.Retrieve(ctx, ref, cols)
		return outcome{record: rec}, err

	case OpRetrieveMultiple, OpRetrieveAll:
		q, err := compileQuery(step.Query)
		if err != nil {
			return outcome{}, err
		}
		var coll *entity.EntityCollection
		if step.Op == OpRetrieveAll {
			coll, err = h.client.RetrieveAll(ctx, *q)
		} else {
			coll, err = h.client.RetrieveMultiple(ctx, *q)
		}
		if err != nil {
			return outcome{}, err
		}
		return outcome{count: coll.Len()}, nil

	case OpUpdate:
		e, err := buildEntity(step.Entity, step.ID, step.Attributes)
		if err != nil {
			return outcome{}, err
		}
		return outcome{}, h.client.Update(ctx, e)

	case OpDelete:
		ref, err := entity.ParseEntityReference(step.Entity, step.ID)
		if err != nil {
			return outcome{}, err
		}
		return outcome{}, h.client.Delete(ctx, ref)

	case OpAssociate, OpDisassociate:
		primary, err := entity.ParseEntityReference(step.Entity, step.ID)
		if err != nil {
			return outcome{}, err
		}
		related, err := relatedRefs(step.Related)
		if err != nil {
			return outcome{}, err
		}
		if step.Op == OpAssociate {
			return outcome{}, h.client.Associate(ctx, primary, step.Relationship, related)
		}
		return outcome{}, h.client.Disassociate(ctx, primary, step.Relationship, related)

	default:
		return outcome{}, fmt.Errorf("unknown op %q", step.Op)
	}
}

// checkExpectation compares a step's outcome with its expect clause.
func checkExpectation(step Step, out outcome, err error) []string {
	want := step.Expect
	if want != nil && want.Error != "" {
		if err == nil {
			return []string{fmt.Sprintf("expected error %s, got success", want.Error)}
		}
		if got := string(client.Code(err)); got != want.Error {
			return []string{fmt.Sprintf("expected error %s, got %q: %v", want.Error, got, err)}
		}
		return nil
	}
	if err != nil {
		return []string{err.Error()}
	}
	if want == nil {
		return nil
	}

	var msgs []string
	if want.ID != "" && out.id.String() != strings.ToLower(want.ID) {
		msgs = append(msgs, fmt.Sprintf("expected id %s, got %s", want.ID, out.id))
	}
	if want.Count != nil && out.count != *want.Count {
		msgs = append(msgs, fmt.Sprintf("expected %d record(s), got %d", *want.Count, out.count))
	}
	if len(want.Attributes) > 0 {
		if out.record == nil {
			msgs = append(msgs, "expected attributes, but the step returned no record")
			return msgs
		}
		for name, raw := range want.Attributes {
			expected, err := attributeValue(raw)
			if err != nil {
				msgs = append(msgs, fmt.Sprintf("attribute %s: %v", name, err))
				continue
			}
			actual, ok := out.record.Get(name)
			if !ok {
				msgs = append(msgs, fmt.Sprintf("attribute %s missing", name))
				continue
			}
			if !valuesEqual(normalize(actual), normalize(expected)) {
				msgs = append(msgs, fmt.Sprintf("attribute %s: expected %v, got %v", name, expected, actual))
			}
		}
	}
	return msgs
}

func compileQuery(src string) (*query.QueryExpression, error) {
	v := cuecontext.New().CompileString(src)
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile query: %w", err)
	}
	return compiler.CompileQuery(v)
}

func buildEntity(logicalName, id string, attrs map[string]any) (*entity.Entity, error) {
	e := entity.New(logicalName)
	if id != "" {
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", id, err)
		}
		e.ID = parsed
	}
	for name, raw := range attrs {
		v, err := attributeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		e.Set(name, v)
	}
	return e, nil
}

// attributeValue converts a YAML value, turning {ref, id} maps into entity
// references and {option} maps into option sets.
func attributeValue(raw any) (any, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return raw, nil
	}
	if target, ok := m["ref"].(string); ok {
		id, _ := m["id"].(string)
		return entity.ParseEntityReference(target, id)
	}
	if opt, ok := m["option"].(int); ok {
		return entity.OptionSet{Value: opt}, nil
	}
	return nil, fmt.Errorf("unsupported value %v: expected {ref, id} or {option}", m)
}

func relatedRefs(r *Related) (*entity.EntityReferenceCollection, error) {
	refs := make([]entity.EntityReference, 0, len(r.IDs))
	for _, id := range r.IDs {
		ref, err := entity.ParseEntityReference(r.Entity, id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return entity.NewEntityReferenceCollection(r.Entity, refs...)
}
