package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/dvsdk/internal/fetchxml"
	"github.com/roach88/dvsdk/internal/query"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Name   string // compile a single query
	Output string // output file path
}

// CompiledQuery is one query rendered as FetchXML.
type CompiledQuery struct {
	Name        string `json:"name"`
	Entity      string `json:"entity"`
	FetchXML    string `json:"fetch_xml"`
	Fingerprint string `json:"fingerprint"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <queries>",
		Short: "Compile CUE queries to FetchXML",
		Long: `Compile the queries declared in a CUE file or package to FetchXML.

Every query is validated before it is rendered. Each result carries a
fingerprint that is stable across runs for structurally equal queries.

Examples:
  dvsdk compile ./queries
  dvsdk compile ./queries/accounts.cue --name activeAccounts
  dvsdk compile ./queries --output compiled.json --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Name, "name", "n", "", "compile only the named query")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write compiled queries to a JSON file")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loadResult, loadErrors := LoadQueries(path, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputCompileError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputCompileError(formatter, ErrCodeGeneric, loadErrors[0].Error())
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, path)

	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	queries := loadResult.Queries
	if opts.Name != "" {
		q, ok := loadResult.Find(opts.Name)
		if !ok {
			return outputCompileError(formatter, ErrCodeQueryName, fmt.Sprintf("query %q not found in %s", opts.Name, path))
		}
		queries = []NamedQuery{q}
	}

	compiled := make([]CompiledQuery, 0, len(queries))
	for _, nq := range queries {
		formatter.VerboseLog("Compiling query: %s", nq.Name)
		c, err := compileNamed(nq)
		if err != nil {
			return outputCompileError(formatter, ErrCodeGeneric, fmt.Sprintf("%s: %v", nq.Name, err))
		}
		compiled = append(compiled, c)
	}

	if opts.Output != "" {
		if err := writeCompiledToFile(compiled, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	return outputCompileSuccess(formatter, compiled, opts.Output)
}

func compileNamed(nq NamedQuery) (CompiledQuery, error) {
	fp, err := query.Fingerprint(nq.Query)
	if err != nil {
		return CompiledQuery{}, err
	}
	return CompiledQuery{
		Name:        nq.Name,
		Entity:      nq.Query.EntityName,
		FetchXML:    fetchxml.Compile(nq.Query),
		Fingerprint: fp,
	}, nil
}

func outputCompileSuccess(formatter *OutputFormatter, compiled []CompiledQuery, outputFile string) error {
	if formatter.JSON() {
		return formatter.Success(compiled)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d query(s)\n\n", len(compiled))
	for _, c := range compiled {
		fmt.Fprintf(formatter.Writer, "%s (%s):\n", c.Name, c.Entity)
		fmt.Fprintf(formatter.Writer, "  %s\n\n", c.FetchXML)
	}
	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote compiled queries to %s\n", outputFile)
	}
	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputCompileErrors outputs every load error, the first one as the
// response error.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	cliErrors := make([]CLIError, len(errs))
	for i, err := range errs {
		cliErrors[i] = toCLIError(err)
	}

	if formatter.JSON() {
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors,
		}); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
		}
		c := toCLIError(err)
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", c.Code, c.Message)
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

func toCLIError(err error) CLIError {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		msg := loadErr.Message
		if loadErr.Query != "" {
			msg = loadErr.Query + ": " + msg
		}
		return CLIError{Code: loadErr.Code, Message: msg}
	}
	return CLIError{Code: ErrCodeGeneric, Message: err.Error()}
}

func writeCompiledToFile(compiled []CompiledQuery, filename string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(compiled); err != nil {
		return fmt.Errorf("marshaling compiled queries: %w", err)
	}
	if err := os.WriteFile(filename, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
