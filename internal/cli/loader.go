package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/dvsdk/internal/compiler"
	"github.com/roach88/dvsdk/internal/query"
)

// LoadMode controls how errors are handled during query loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// NamedQuery is one compiled entry of a query: block.
type NamedQuery struct {
	Name  string
	Query query.QueryExpression
}

// LoadResult contains the queries loaded from a CUE file or package.
type LoadResult struct {
	Queries   []NamedQuery
	FileCount int // Number of CUE files found
}

// Find returns the query with the given name.
func (r *LoadResult) Find(name string) (NamedQuery, bool) {
	for _, q := range r.Queries {
		if q.Name == name {
			return q, true
		}
	}
	return NamedQuery{}, false
}

// LoadError represents an error that occurred during query loading.
type LoadError struct {
	Code    string
	Query   string // query name, when the error belongs to one
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Query != "" {
		msg = e.Query + ": " + msg
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// LoadQueries loads the queries declared under the top-level "query" field
// of path, which is either a .cue file or a directory holding one CUE
// package:
//
//	query: activeAccounts: {
//		entity:  "account"
//		columns: ["name"]
//		filter: conditions: [{attribute: "statecode", operator: "eq", values: [0]}]
//	}
//
// Queries are returned in declaration order.
func LoadQueries(path string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("path not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing path: %v", err)}}
	}

	var (
		cfg  = &load.Config{}
		args []string
		n    int
	)
	if info.IsDir() {
		files, err := FindCUEFiles(path)
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
		}
		if len(files) == 0 {
			return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}}
		}
		cfg.Dir = path
		args = []string{"."}
		n = len(files)
	} else {
		if filepath.Ext(path) != ".cue" {
			return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("not a CUE file: %s", path)}}
		}
		cfg.Dir = filepath.Dir(path)
		args = []string{filepath.Base(path)}
		n = 1
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{FileCount: n}
	var errs []error

	queriesVal := value.LookupPath(cue.ParsePath("query"))
	if !queriesVal.Exists() {
		return result, []error{&LoadError{Code: ErrCodeGeneric, Message: "no query field found"}}
	}
	iter, err := queriesVal.Fields()
	if err != nil {
		return result, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating queries: %v", err)}}
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		q, err := compiler.CompileQuery(iter.Value())
		if err != nil {
			errs = append(errs, convertCompileError(err, name))
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.Queries = append(result.Queries, NamedQuery{Name: name, Query: *q})
	}

	if len(result.Queries) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no queries found"})
	}
	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, name string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		msg := compileErr.Message
		if compileErr.Field != "" && compileErr.Field != "cue" {
			msg = compileErr.Field + ": " + msg
		}
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Query:   name,
			Message: msg,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeGeneric, Query: name, Message: err.Error()}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeConfig      = "E008" // Client config or metadata cache unusable

	// Query errors
	ErrCodeQueryEntity  = "E101" // Missing or unknown entity
	ErrCodeQueryColumns = "E102" // Invalid column set
	ErrCodeQueryFilter  = "E103" // Invalid filter or condition
	ErrCodeQueryLinks   = "E104" // Invalid link-entity
	ErrCodeQueryOrders  = "E105" // Invalid order
	ErrCodeQueryPaging  = "E106" // Invalid top count or page
	ErrCodeQueryName    = "E107" // Query name not found
	ErrCodeQueryUnknown = "E108" // Entity or attribute absent from metadata
)

// MapFieldToErrorCode maps a compiler error field, such as
// "filter.conditions[0].operator" or "link_entities[1].to", to an error code.
func MapFieldToErrorCode(field string) string {
	head, _, _ := strings.Cut(field, ".")
	head, _, _ = strings.Cut(head, "[")
	switch head {
	case "entity", "entity_name":
		return ErrCodeQueryEntity
	case "columns", "column_set":
		return ErrCodeQueryColumns
	case "filter", "criteria":
		return ErrCodeQueryFilter
	case "links", "link_entities":
		return ErrCodeQueryLinks
	case "orders":
		return ErrCodeQueryOrders
	case "top", "top_count", "page", "page_info":
		return ErrCodeQueryPaging
	case "cue":
		return ErrCodeBuildFailed
	default:
		return ErrCodeGeneric
	}
}
