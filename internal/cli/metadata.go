package cli

import (
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/roach88/dvsdk/internal/config"
	"github.com/roach88/dvsdk/internal/metadata"
	"github.com/roach88/dvsdk/internal/store"
)

// MetadataSummary is the JSON payload of metadata refresh.
type MetadataSummary struct {
	ResourceURL   string `json:"resource_url"`
	Entities      int    `json:"entities"`
	Relationships bool   `json:"relationships"`
	Fingerprint   string `json:"fingerprint"`
}

// EntitySummary is one row of metadata entities.
type EntitySummary struct {
	LogicalName    string `json:"logical_name"`
	CollectionName string `json:"collection_name"`
	PrimaryID      string `json:"primary_id"`
	Attributes     int    `json:"attributes"`
}

// SnapshotInfo is one row of metadata list.
type SnapshotInfo struct {
	ResourceURL string    `json:"resource_url"`
	APIVersion  string    `json:"api_version"`
	Fingerprint string    `json:"fingerprint"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// NewMetadataCommand creates the metadata command group.
func NewMetadataCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Inspect and manage entity metadata",
		Long: `Inspect the entity definitions of the organization and manage the
metadata cache named by metadata_cache in the client config.`,
	}
	cmd.AddCommand(newMetadataRefreshCommand(rootOpts))
	cmd.AddCommand(newMetadataEntitiesCommand(rootOpts))
	cmd.AddCommand(newMetadataListCommand(rootOpts))
	cmd.AddCommand(newMetadataPurgeCommand(rootOpts))
	return cmd
}

func newMetadataRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "refresh",
		Short:         "Fetch entity definitions and replace the cached snapshot",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			ctx := cmd.Context()
			s, err := openSession(ctx, rootOpts, formatter)
			if err != nil {
				return err
			}
			defer s.Close()

			m, err := s.client.RefreshMetadata(ctx)
			if err != nil {
				return outputClientError(formatter, err)
			}
			fp, err := m.Fingerprint()
			if err != nil {
				return outputCommandError(formatter, ErrCodeGeneric, err.Error())
			}
			summary := MetadataSummary{
				ResourceURL:   s.client.Config().ResourceURL,
				Entities:      len(m.Entities),
				Relationships: m.ContainsRelationships,
				Fingerprint:   fp,
			}
			if formatter.JSON() {
				return formatter.Success(summary)
			}
			fmt.Fprintf(formatter.Writer, "✓ Loaded %d entity definition(s) from %s\n", summary.Entities, summary.ResourceURL)
			fmt.Fprintf(formatter.Writer, "  fingerprint: %s\n", summary.Fingerprint)
			if s.store == nil {
				fmt.Fprintln(formatter.Writer, "  metadata cache disabled; nothing was stored")
			}
			return nil
		},
	}
}

func newMetadataEntitiesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "entities",
		Short:         "List entity definitions, from the cache when it is fresh",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			ctx := cmd.Context()
			s, err := openSession(ctx, rootOpts, formatter)
			if err != nil {
				return err
			}
			defer s.Close()

			m, err := s.client.Metadata(ctx)
			if err != nil {
				return outputClientError(formatter, err)
			}
			rows := summarizeEntities(m)
			if formatter.JSON() {
				return formatter.Success(rows)
			}
			table := tablewriter.NewWriter(formatter.Writer)
			table.SetHeader([]string{"logical name", "collection", "primary id", "attributes"})
			for _, r := range rows {
				table.Append([]string{r.LogicalName, r.CollectionName, r.PrimaryID, fmt.Sprint(r.Attributes)})
			}
			table.Render()
			return nil
		},
	}
}

func summarizeEntities(m *metadata.OrgMetadata) []EntitySummary {
	rows := make([]EntitySummary, len(m.Entities))
	for i, e := range m.Entities {
		rows[i] = EntitySummary{
			LogicalName:    e.LogicalName,
			CollectionName: e.LogicalCollectionName,
			PrimaryID:      e.PrimaryIDAttribute,
			Attributes:     len(e.Attributes),
		}
	}
	return rows
}

func newMetadataListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List cached metadata snapshots",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			st, _, err := openCache(rootOpts, formatter)
			if err != nil {
				return err
			}
			defer st.Close()

			snaps, err := st.Snapshots(cmd.Context())
			if err != nil {
				return outputCommandError(formatter, ErrCodeGeneric, err.Error())
			}
			infos := make([]SnapshotInfo, len(snaps))
			for i, snap := range snaps {
				infos[i] = SnapshotInfo(snap)
			}
			if formatter.JSON() {
				return formatter.Success(infos)
			}
			if len(infos) == 0 {
				fmt.Fprintln(formatter.Writer, "No cached snapshots.")
				return nil
			}
			table := tablewriter.NewWriter(formatter.Writer)
			table.SetHeader([]string{"resource url", "api version", "fetched at", "fingerprint"})
			for _, info := range infos {
				table.Append([]string{info.ResourceURL, info.APIVersion, info.FetchedAt.Format(time.RFC3339), info.Fingerprint})
			}
			table.Render()
			return nil
		},
	}
}

func newMetadataPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "purge",
		Short:         "Remove the cached snapshot of the configured organization",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			st, cfg, err := openCache(rootOpts, formatter)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Purge(cmd.Context(), cfg.ResourceURL); err != nil {
				return outputCommandError(formatter, ErrCodeGeneric, err.Error())
			}
			if formatter.JSON() {
				return formatter.Success(map[string]string{"purged": cfg.ResourceURL})
			}
			fmt.Fprintf(formatter.Writer, "✓ Purged cached metadata for %s\n", cfg.ResourceURL)
			return nil
		},
	}
}

// openCache opens the metadata cache without creating a client.
func openCache(opts *RootOptions, formatter *OutputFormatter) (*store.Store, *config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, nil, outputCommandError(formatter, ErrCodeConfig, fmt.Sprintf("loading config: %v", err))
	}
	if cfg.MetadataCache == "" {
		return nil, nil, outputCommandError(formatter, ErrCodeConfig, "metadata_cache is not set in the client config")
	}
	st, err := store.Open(cfg.MetadataCache)
	if err != nil {
		return nil, nil, outputCommandError(formatter, ErrCodeConfig, fmt.Sprintf("opening metadata cache: %v", err))
	}
	return st, cfg, nil
}
