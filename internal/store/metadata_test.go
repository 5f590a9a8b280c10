package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dvsdk/internal/metadata"
	"github.com/roach88/dvsdk/internal/testutil"
)

const testResource = "https://contoso.crm.dynamics.com"

func sampleMetadata() *metadata.OrgMetadata {
	return metadata.New([]metadata.EntityMetadata{
		{
			LogicalName:           "contact",
			LogicalCollectionName: "contacts",
			PrimaryIDAttribute:    "contactid",
			Attributes: []metadata.AttributeMetadata{
				{LogicalName: "contactid", AttributeType: "Uniqueidentifier", SchemaName: "ContactId"},
				{LogicalName: "parentcustomerid", AttributeType: "Customer", SchemaName: "ParentCustomerId"},
			},
		},
		{
			LogicalName:           "account",
			LogicalCollectionName: "accounts",
			PrimaryIDAttribute:    "accountid",
			Attributes: []metadata.AttributeMetadata{
				{LogicalName: "name", AttributeType: "String", SchemaName: "Name"},
			},
			OneToManyRelationships: []metadata.OneToManyRelationship{
				{SchemaName: "contact_customer_accounts", ReferencedEntity: "account", ReferencingEntity: "contact"},
			},
		},
	}, true)
}

func TestSaveAndLoadMetadata(t *testing.T) {
	clock := testutil.NewFakeClock(time.Time{})
	s := createTestStore(t, WithClock(clock.Now))
	ctx := context.Background()

	want := sampleMetadata()
	snap, err := s.SaveMetadata(ctx, testResource, "v9.2", want)
	require.NoError(t, err)
	assert.Equal(t, testutil.Epoch, snap.FetchedAt)

	wantFP, err := want.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, wantFP, snap.Fingerprint)

	clock.Advance(10 * time.Minute)
	got, loaded, err := s.LoadMetadata(ctx, testResource, "v9.2", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)
	assert.Equal(t, want.Entities, got.Entities, "entities come back in saved order")
	assert.True(t, got.ContainsRelationships)

	name, err := got.CollectionName("account")
	require.NoError(t, err)
	assert.Equal(t, "accounts", name)
}

func TestLoadMetadata_Misses(t *testing.T) {
	clock := testutil.NewFakeClock(time.Time{})
	s := createTestStore(t, WithClock(clock.Now))
	ctx := context.Background()

	_, _, err := s.LoadMetadata(ctx, testResource, "v9.2", 0)
	assert.ErrorIs(t, err, ErrCacheMiss, "no snapshot")

	_, err = s.SaveMetadata(ctx, testResource, "v9.2", sampleMetadata())
	require.NoError(t, err)

	_, _, err = s.LoadMetadata(ctx, testResource, "v9.1", 0)
	assert.ErrorIs(t, err, ErrCacheMiss, "other API version")

	clock.Advance(2 * time.Hour)
	_, _, err = s.LoadMetadata(ctx, testResource, "v9.2", time.Hour)
	assert.ErrorIs(t, err, ErrCacheMiss, "stale")

	_, _, err = s.LoadMetadata(ctx, testResource, "v9.2", 0)
	assert.NoError(t, err, "zero max age accepts any age")
}

func TestSaveMetadata_ReplacesSnapshot(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.SaveMetadata(ctx, testResource, "v9.2", sampleMetadata())
	require.NoError(t, err)

	smaller := metadata.New([]metadata.EntityMetadata{
		{LogicalName: "lead", LogicalCollectionName: "leads"},
	}, false)
	_, err = s.SaveMetadata(ctx, testResource, "v9.2", smaller)
	require.NoError(t, err)

	got, _, err := s.LoadMetadata(ctx, testResource, "v9.2", 0)
	require.NoError(t, err)
	require.Len(t, got.Entities, 1)
	assert.Equal(t, "lead", got.Entities[0].LogicalName)
	assert.False(t, got.ContainsRelationships)

	var rows int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM entity_metadata`).Scan(&rows))
	assert.Equal(t, 1, rows, "old entity rows are cascaded away")
}

func TestPurgeAndSnapshots(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.SaveMetadata(ctx, testResource, "v9.2", sampleMetadata())
	require.NoError(t, err)
	_, err = s.SaveMetadata(ctx, "https://fabrikam.crm.dynamics.com", "v9.2", sampleMetadata())
	require.NoError(t, err)

	snaps, err := s.Snapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, testResource, snaps[0].ResourceURL)

	require.NoError(t, s.Purge(ctx, testResource))
	require.NoError(t, s.Purge(ctx, testResource), "purging twice is fine")

	_, _, err = s.LoadMetadata(ctx, testResource, "v9.2", 0)
	assert.ErrorIs(t, err, ErrCacheMiss)

	snaps, err = s.Snapshots(ctx)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}
