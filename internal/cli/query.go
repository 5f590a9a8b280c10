package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dvsdk/internal/entity"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Name string // query to run
	All  bool   // follow paging cookies to the last page
}

// QueryResult is the JSON payload of the query command.
type QueryResult struct {
	Query       string           `json:"query"`
	Entity      string           `json:"entity"`
	Count       int              `json:"count"`
	MoreRecords bool             `json:"more_records"`
	Records     []map[string]any `json:"records"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <queries>",
		Short: "Run a CUE query against the organization",
		Long: `Compile one query from a CUE file or package and run it as FetchXML.

Without --all only the page described by the query is returned. With --all
every page is fetched by following the paging cookie.

Examples:
  dvsdk query ./queries --name activeAccounts --config org.yaml
  dvsdk query ./queries/accounts.cue --all --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Name, "name", "n", "", "query to run (required when the file declares several)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "retrieve every page")

	return cmd
}

func runQuery(opts *QueryOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loadResult, loadErrors := LoadQueries(path, LoadModeFailFast)
	if len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputCommandError(formatter, loadErr.Code, toCLIError(loadErr).Message)
		}
		return outputCommandError(formatter, ErrCodeGeneric, loadErrors[0].Error())
	}

	nq, err := pickQuery(loadResult, opts.Name)
	if err != nil {
		return outputCommandError(formatter, ErrCodeQueryName, err.Error())
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer s.Close()

	formatter.VerboseLog("Running query %s against %s", nq.Name, s.client.Config().ResourceURL)

	var records *entity.EntityCollection
	if opts.All {
		records, err = s.client.RetrieveAll(ctx, nq.Query)
	} else {
		records, err = s.client.RetrieveMultiple(ctx, nq.Query)
	}
	if err != nil {
		return outputClientError(formatter, err)
	}

	if formatter.JSON() {
		return formatter.Success(QueryResult{
			Query:       nq.Name,
			Entity:      records.LogicalName,
			Count:       records.Len(),
			MoreRecords: records.MoreRecords,
			Records:     records.ToMaps(),
		})
	}

	writeRecords(formatter.Writer, records.Entities)
	fmt.Fprintf(formatter.Writer, "%d record(s)", records.Len())
	if records.MoreRecords {
		fmt.Fprint(formatter.Writer, ", more available (use --all)")
	}
	fmt.Fprintln(formatter.Writer)
	return nil
}

func pickQuery(r *LoadResult, name string) (NamedQuery, error) {
	if name == "" {
		if len(r.Queries) == 1 {
			return r.Queries[0], nil
		}
		return NamedQuery{}, fmt.Errorf("%d queries found, choose one with --name", len(r.Queries))
	}
	nq, ok := r.Find(name)
	if !ok {
		return NamedQuery{}, fmt.Errorf("query %q not found", name)
	}
	return nq, nil
}
