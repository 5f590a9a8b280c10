package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/dvsdk/internal/entity"
	"github.com/roach88/dvsdk/internal/query"
)

// RecordOptions holds flags shared by the record commands.
type RecordOptions struct {
	*RootOptions
	Columns []string // get: attributes to return
	Set     []string // name=value, value parsed as a YAML scalar
	Refs    []string // name=entity:id
	Options []string // name=int
}

// RecordResult is the JSON payload of the record commands.
type RecordResult struct {
	Entity string         `json:"entity"`
	ID     string         `json:"id"`
	Record map[string]any `json:"record,omitempty"`
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "get <entity> <id>",
		Short: "Retrieve one record",
		Long: `Retrieve one record by ID. Without --columns every attribute is returned.

Examples:
  dvsdk get account 6f1c2d3e-4a5b-4c6d-8e7f-9a0b1c2d3e4f --columns name,primarycontactid`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, args[0], args[1], cmd)
		},
	}
	cmd.Flags().StringSliceVar(&opts.Columns, "columns", nil, "attributes to return (comma separated)")
	return cmd
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "create <entity>",
		Short: "Create a record",
		Long: `Create a record and print its ID.

Examples:
  dvsdk create account --set name=Contoso --set numberofemployees=250 \
    --ref primarycontactid=contact:0a1b2c3d-4e5f-4a6b-9c7d-8e9fa0b1c2d3 --option industrycode=7`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(opts, args[0], cmd)
		},
	}
	addAttributeFlags(cmd, opts)
	return cmd
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "update <entity> <id>",
		Short: "Update attributes of an existing record",
		Long: `Update the given attributes of an existing record. Updating a record
that does not exist fails instead of creating it.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(opts, args[0], args[1], cmd)
		},
	}
	addAttributeFlags(cmd, opts)
	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}
	return &cobra.Command{
		Use:           "delete <entity> <id>",
		Short:         "Delete a record",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(opts, args[0], args[1], cmd)
		},
	}
}

func addAttributeFlags(cmd *cobra.Command, opts *RecordOptions) {
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "attribute value as name=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Refs, "ref", nil, "lookup value as name=entity:id (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Options, "option", nil, "choice value as name=int (repeatable)")
}

func runGet(opts *RecordOptions, logicalName, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	ref, err := entity.ParseEntityReference(logicalName, id)
	if err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, err.Error())
	}
	cols := query.AllColumns()
	if len(opts.Columns) > 0 {
		if cols, err = query.NewColumnSet(opts.Columns...); err != nil {
			return outputCommandError(formatter, ErrCodeQueryColumns, err.Error())
		}
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer s.Close()

	e, err := s.client.Retrieve(ctx, ref, cols)
	if err != nil {
		return outputClientError(formatter, err)
	}

	if formatter.JSON() {
		return formatter.Success(RecordResult{Entity: e.LogicalName, ID: e.ID.String(), Record: e.ToMap()})
	}
	writeRecords(formatter.Writer, []*entity.Entity{e})
	return nil
}

func runCreate(opts *RecordOptions, logicalName string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	e := entity.New(logicalName)
	if err := applyAttributes(e, opts); err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, err.Error())
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := s.client.Create(ctx, e)
	if err != nil {
		return outputClientError(formatter, err)
	}

	if formatter.JSON() {
		return formatter.Success(RecordResult{Entity: logicalName, ID: id.String()})
	}
	fmt.Fprintf(formatter.Writer, "✓ Created %s %s\n", logicalName, id)
	return nil
}

func runUpdate(opts *RecordOptions, logicalName, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	parsed, err := uuid.Parse(id)
	if err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, fmt.Sprintf("invalid record id %q: %v", id, err))
	}
	e := entity.New(logicalName)
	e.ID = parsed
	if err := applyAttributes(e, opts); err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, err.Error())
	}
	if len(e.Attributes) == 0 {
		return outputCommandError(formatter, ErrCodeGeneric, "nothing to update: pass --set, --ref or --option")
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.client.Update(ctx, e); err != nil {
		return outputClientError(formatter, err)
	}

	if formatter.JSON() {
		return formatter.Success(RecordResult{Entity: logicalName, ID: id})
	}
	fmt.Fprintf(formatter.Writer, "✓ Updated %s %s\n", logicalName, id)
	return nil
}

func runDelete(opts *RecordOptions, logicalName, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	ref, err := entity.ParseEntityReference(logicalName, id)
	if err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, err.Error())
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.client.Delete(ctx, ref); err != nil {
		return outputClientError(formatter, err)
	}

	if formatter.JSON() {
		return formatter.Success(RecordResult{Entity: logicalName, ID: ref.ID.String()})
	}
	fmt.Fprintf(formatter.Writer, "✓ Deleted %s %s\n", logicalName, ref.ID)
	return nil
}

// applyAttributes sets the --set, --ref and --option values on e.
func applyAttributes(e *entity.Entity, opts *RecordOptions) error {
	for _, kv := range opts.Set {
		name, raw, err := splitAssignment("--set", kv)
		if err != nil {
			return err
		}
		v, err := parseScalar(raw)
		if err != nil {
			return fmt.Errorf("--set %s: %w", name, err)
		}
		e.Set(name, v)
	}
	for _, kv := range opts.Refs {
		name, raw, err := splitAssignment("--ref", kv)
		if err != nil {
			return err
		}
		ref, err := ParseReference(raw)
		if err != nil {
			return fmt.Errorf("--ref %s: %w", name, err)
		}
		e.Set(name, ref)
	}
	for _, kv := range opts.Options {
		name, raw, err := splitAssignment("--option", kv)
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("--option %s: %q is not an integer", name, raw)
		}
		e.Set(name, entity.OptionSet{Value: n})
	}
	return nil
}

func splitAssignment(flag, kv string) (string, string, error) {
	name, value, ok := strings.Cut(kv, "=")
	if !ok || name == "" {
		return "", "", fmt.Errorf("%s %q: expected name=value", flag, kv)
	}
	return name, value, nil
}

// parseScalar reads one YAML scalar: numbers, booleans and null keep their
// type and everything else is a string. Integers become int64.
func parseScalar(raw string) (any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case string, bool, float64, nil:
		return v, nil
	default:
		// Flow collections and the like are sent as written.
		return raw, nil
	}
}

// ParseReference parses "entity:id".
func ParseReference(s string) (entity.EntityReference, error) {
	logicalName, id, ok := strings.Cut(s, ":")
	if !ok {
		return entity.EntityReference{}, fmt.Errorf("%q: expected entity:id", s)
	}
	return entity.ParseEntityReference(logicalName, id)
}
