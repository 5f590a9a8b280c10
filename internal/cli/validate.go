package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/dvsdk/internal/metadata"
	"github.com/roach88/dvsdk/internal/query"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Definitions string // EntityDefinitions JSON to check names against
}

// QueryIssue is one problem found in a query file.
type QueryIssue struct {
	Query   string `json:"query,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool         `json:"valid"`
	Queries int          `json:"queries"`
	Errors  []QueryIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <queries>",
		Short: "Validate queries without compiling them",
		Long: `Validate the queries declared in a CUE file or package.

Reports every invalid query instead of stopping at the first one. With
--definitions, entity and attribute names are also checked against an
EntityDefinitions response saved as JSON.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Definitions, "definitions", "", "entity definitions JSON file")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	var meta *metadata.OrgMetadata
	if opts.Definitions != "" {
		f, err := os.Open(opts.Definitions)
		if err != nil {
			return outputValidateError(formatter, ErrCodeNotFound, fmt.Sprintf("definitions file: %v", err))
		}
		meta, err = metadata.Decode(f)
		f.Close()
		if err != nil {
			return outputValidateError(formatter, ErrCodeGeneric, fmt.Sprintf("definitions file: %v", err))
		}
	}

	loadResult, loadErrors := LoadQueries(path, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputValidateError(formatter, ErrCodeGeneric, loadErrors[0].Error())
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, path)

	var issues []QueryIssue
	for _, err := range loadErrors {
		issues = append(issues, issueFromLoadError(err))
	}
	if meta != nil {
		for _, nq := range loadResult.Queries {
			formatter.VerboseLog("Checking names in query: %s", nq.Name)
			issues = append(issues, CheckNames(meta, nq)...)
		}
	}

	result := ValidationResult{
		Valid:   len(issues) == 0,
		Queries: len(loadResult.Queries) + len(loadErrors),
		Errors:  issues,
	}
	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

func issueFromLoadError(err error) QueryIssue {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		issue := QueryIssue{Query: loadErr.Query, Code: loadErr.Code, Message: loadErr.Message}
		if loadErr.Pos.IsValid() {
			issue.Line = loadErr.Pos.Line()
		}
		return issue
	}
	return QueryIssue{Code: ErrCodeGeneric, Message: err.Error()}
}

// CheckNames reports entity and attribute names in nq that the
// definitions in m do not contain.
func CheckNames(m *metadata.OrgMetadata, nq NamedQuery) []QueryIssue {
	c := &nameChecker{meta: m, query: nq.Name}
	q := nq.Query
	e := c.entity("entity", q.EntityName)
	if e == nil {
		return c.issues
	}
	c.columns("columns", e, q.ColumnSet)
	if q.Criteria != nil {
		c.filter("filter", e, *q.Criteria)
	}
	for i, o := range q.Orders {
		c.attribute(fmt.Sprintf("orders[%d]", i), e, o.AttributeName)
	}
	for i, l := range q.LinkEntities {
		c.link(fmt.Sprintf("links[%d]", i), e, l)
	}
	return c.issues
}

type nameChecker struct {
	meta   *metadata.OrgMetadata
	query  string
	issues []QueryIssue
}

func (c *nameChecker) add(path string, err error) {
	c.issues = append(c.issues, QueryIssue{
		Query:   c.query,
		Code:    ErrCodeQueryUnknown,
		Message: fmt.Sprintf("%s: %v", path, err),
	})
}

func (c *nameChecker) entity(path, name string) *metadata.EntityMetadata {
	e, err := c.meta.Entity(name)
	if err != nil {
		c.add(path, err)
		return nil
	}
	return e
}

func (c *nameChecker) attribute(path string, e *metadata.EntityMetadata, name string) {
	if _, err := e.Attribute(name); err != nil {
		c.add(path, err)
	}
}

func (c *nameChecker) columns(path string, e *metadata.EntityMetadata, cols query.ColumnSet) {
	if _, err := metadata.SelectColumns(e, cols); err != nil {
		c.add(path, err)
	}
}

func (c *nameChecker) filter(path string, e *metadata.EntityMetadata, f query.FilterExpression) {
	for i, cond := range f.Conditions {
		c.attribute(fmt.Sprintf("%s.conditions[%d]", path, i), e, cond.AttributeName)
	}
	for i, child := range f.Filters {
		c.filter(fmt.Sprintf("%s.filters[%d]", path, i), e, child)
	}
}

func (c *nameChecker) link(path string, parent *metadata.EntityMetadata, l query.LinkEntity) {
	c.attribute(path+".from.attribute", parent, l.LinkFromAttributeName)
	linked := c.entity(path+".to.entity", l.LinkToEntityName)
	if linked == nil {
		return
	}
	c.attribute(path+".to.attribute", linked, l.LinkToAttributeName)
	if l.Columns != nil {
		c.columns(path+".columns", linked, *l.Columns)
	}
	if l.LinkCriteria != nil {
		c.filter(path+".filter", linked, *l.LinkCriteria)
	}
	for i, child := range l.LinkEntities {
		c.link(fmt.Sprintf("%s.links[%d]", path, i), linked, child)
	}
}

func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ All %d query(s) valid\n", result.Queries)
	return nil
}

// outputValidateError outputs an error that prevented validation.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs every issue found.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	first := result.Errors[0]
	exit := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))

	if formatter.JSON() {
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: first.Code, Message: first.Message},
		}); err != nil {
			return err
		}
		return exit
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, issue := range result.Errors {
		if issue.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", issue.Line)
		}
		if issue.Query != "" {
			fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", issue.Code, issue.Query, issue.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
		}
	}
	return exit
}
