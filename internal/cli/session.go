package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/roach88/dvsdk/internal/client"
	"github.com/roach88/dvsdk/internal/config"
	"github.com/roach88/dvsdk/internal/entity"
	"github.com/roach88/dvsdk/internal/store"
)

// session is an authenticated client plus the metadata cache it owns.
type session struct {
	client *client.Client
	store  *store.Store
}

// openSession loads the client config named by --config and opens the
// metadata cache when the config names one. Failures are reported through
// formatter.
func openSession(ctx context.Context, opts *RootOptions, formatter *OutputFormatter, clientOpts ...client.Option) (*session, error) {
	fail := func(message string, err error) error {
		exitErr := WrapExitError(ExitCommandError, message, err)
		_ = formatter.Error(ErrCodeConfig, exitErr.Error(), nil)
		return exitErr
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, fail("loading config", err)
	}

	s := &session{}
	if cfg.MetadataCache != "" {
		st, err := store.Open(cfg.MetadataCache)
		if err != nil {
			return nil, fail("opening metadata cache", err)
		}
		s.store = st
		clientOpts = append(clientOpts, client.WithStore(st))
	}

	c, err := client.New(ctx, cfg, clientOpts...)
	if err != nil {
		s.Close()
		return nil, fail("creating client", err)
	}
	s.client = c
	formatter.VerboseLog("Connected to %s (api %s)", cfg.ResourceURL, cfg.APIVersion)
	return s, nil
}

func (s *session) Close() {
	if s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		slog.Warn("closing metadata cache failed", "error", err)
	}
}

// outputClientError reports a failed client operation under its error code.
func outputClientError(formatter *OutputFormatter, err error) error {
	code := string(client.Code(err))
	_ = formatter.Error(code, err.Error(), nil)
	return WrapExitError(ExitFailure, code, err)
}

// outputCommandError reports bad command input.
func outputCommandError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// writeRecords renders records as a table, one column per attribute seen
// in any record after the ID.
func writeRecords(w io.Writer, records []*entity.Entity) {
	var names []string
	for _, e := range records {
		for _, name := range e.AttributeNames() {
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)

	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeader(append([]string{"id"}, names...))
	for _, e := range records {
		row := []string{e.ID.String()}
		for _, name := range names {
			v, ok := e.Get(name)
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, formatValue(v))
		}
		table.Append(row)
	}
	table.Render()
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case entity.EntityReference:
		s := v.LogicalName + ":" + v.ID.String()
		if v.Name != "" {
			s += " (" + v.Name + ")"
		}
		return s
	case entity.OptionSet:
		if v.Label != "" {
			return fmt.Sprintf("%d (%s)", v.Value, v.Label)
		}
		return fmt.Sprint(v.Value)
	case string:
		return strings.ReplaceAll(v, "\n", " ")
	default:
		return fmt.Sprint(v)
	}
}
