package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/dvsdk/internal/metadata"
)

// Snapshot describes a cached metadata snapshot.
type Snapshot struct {
	ResourceURL string
	APIVersion  string
	Fingerprint string
	FetchedAt   time.Time
}

// SaveMetadata replaces the snapshot for resourceURL with m.
// Entity definitions are stored as JSON payloads in their original order.
func (s *Store) SaveMetadata(ctx context.Context, resourceURL, apiVersion string, m *metadata.OrgMetadata) (Snapshot, error) {
	fp, err := m.Fingerprint()
	if err != nil {
		return Snapshot{}, fmt.Errorf("save metadata: %w", err)
	}
	snap := Snapshot{
		ResourceURL: resourceURL,
		APIVersion:  apiVersion,
		Fingerprint: fp,
		FetchedAt:   s.now().UTC().Truncate(time.Second),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("save metadata: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM org_snapshots WHERE resource_url = ?`, resourceURL); err != nil {
		return Snapshot{}, fmt.Errorf("save metadata: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO org_snapshots (resource_url, api_version, fingerprint, contains_relationships, fetched_at)
		VALUES (?, ?, ?, ?, ?)
	`, resourceURL, apiVersion, fp, m.ContainsRelationships, snap.FetchedAt.Unix())
	if err != nil {
		return Snapshot{}, fmt.Errorf("save metadata: %w", err)
	}
	snapshotID, err := res.LastInsertId()
	if err != nil {
		return Snapshot{}, fmt.Errorf("save metadata: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entity_metadata (snapshot_id, position, logical_name, collection_name, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(snapshot_id, logical_name) DO UPDATE SET
			position = excluded.position,
			collection_name = excluded.collection_name,
			payload = excluded.payload
	`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("save metadata: %w", err)
	}
	defer stmt.Close()

	for i, e := range m.Entities {
		payload, err := json.Marshal(e)
		if err != nil {
			return Snapshot{}, fmt.Errorf("save metadata: entity %s: %w", e.LogicalName, err)
		}
		if _, err := stmt.ExecContext(ctx, snapshotID, i, e.LogicalName, e.LogicalCollectionName, string(payload)); err != nil {
			return Snapshot{}, fmt.Errorf("save metadata: entity %s: %w", e.LogicalName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Snapshot{}, fmt.Errorf("save metadata: %w", err)
	}
	return snap, nil
}

// LoadMetadata returns the cached metadata for resourceURL.
//
// ErrCacheMiss is returned when there is no snapshot, when it was fetched
// for another API version, or when it is older than maxAge. A maxAge of
// zero or less accepts any age.
func (s *Store) LoadMetadata(ctx context.Context, resourceURL, apiVersion string, maxAge time.Duration) (*metadata.OrgMetadata, Snapshot, error) {
	var (
		id            int64
		snap          = Snapshot{ResourceURL: resourceURL}
		relationships bool
		fetchedAt     int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, api_version, fingerprint, contains_relationships, fetched_at
		FROM org_snapshots
		WHERE resource_url = ?
	`, resourceURL).Scan(&id, &snap.APIVersion, &snap.Fingerprint, &relationships, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Snapshot{}, fmt.Errorf("%w: no snapshot for %s", ErrCacheMiss, resourceURL)
	}
	if err != nil {
		return nil, Snapshot{}, fmt.Errorf("load metadata: %w", err)
	}
	snap.FetchedAt = time.Unix(fetchedAt, 0).UTC()

	if snap.APIVersion != apiVersion {
		return nil, snap, fmt.Errorf("%w: snapshot for %s is for API %q, want %q", ErrCacheMiss, resourceURL, snap.APIVersion, apiVersion)
	}
	if age := s.now().Sub(snap.FetchedAt); maxAge > 0 && age > maxAge {
		return nil, snap, fmt.Errorf("%w: snapshot for %s is %s old", ErrCacheMiss, resourceURL, age.Truncate(time.Second))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT payload
		FROM entity_metadata
		WHERE snapshot_id = ?
		ORDER BY position ASC, logical_name ASC COLLATE BINARY
	`, id)
	if err != nil {
		return nil, snap, fmt.Errorf("load metadata: %w", err)
	}
	defer rows.Close()

	var entities []metadata.EntityMetadata
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, snap, fmt.Errorf("load metadata: %w", err)
		}
		var e metadata.EntityMetadata
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, snap, fmt.Errorf("load metadata: decode entity: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, snap, fmt.Errorf("load metadata: %w", err)
	}
	if len(entities) == 0 {
		return nil, snap, fmt.Errorf("%w: snapshot for %s has no entities", ErrCacheMiss, resourceURL)
	}

	return metadata.New(entities, relationships), snap, nil
}

// Purge removes the snapshot for resourceURL. Purging an absent snapshot
// is not an error.
func (s *Store) Purge(ctx context.Context, resourceURL string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM org_snapshots WHERE resource_url = ?`, resourceURL); err != nil {
		return fmt.Errorf("purge metadata: %w", err)
	}
	return nil
}

// Snapshots lists every cached snapshot, ordered by resource URL.
func (s *Store) Snapshots(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT resource_url, api_version, fingerprint, fetched_at
		FROM org_snapshots
		ORDER BY resource_url ASC COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			snap      Snapshot
			fetchedAt int64
		)
		if err := rows.Scan(&snap.ResourceURL, &snap.APIVersion, &snap.Fingerprint, &fetchedAt); err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}
		snap.FetchedAt = time.Unix(fetchedAt, 0).UTC()
		out = append(out, snap)
	}
	return out, rows.Err()
}
