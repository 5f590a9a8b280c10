package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/roach88/dvsdk/internal/entity"
	"github.com/roach88/dvsdk/internal/messages"
	"github.com/roach88/dvsdk/internal/query"
)

// Create inserts e and returns the new record's ID, which is also set on e.
func (c *Client) Create(ctx context.Context, e *entity.Entity) (uuid.UUID, error) {
	const op = "create"
	if e == nil {
		return uuid.Nil, wrap(op, "", fmt.Errorf("%w: entity is required", messages.ErrInvalidRequest))
	}
	b, err := c.builder(ctx)
	if err != nil {
		return uuid.Nil, wrap(op, e.LogicalName, err)
	}
	req, err := b.Create(ctx, e)
	if err != nil {
		return uuid.Nil, wrap(op, e.LogicalName, err)
	}
	resp, err := c.do(req)
	if err != nil {
		return uuid.Nil, wrap(op, e.LogicalName, err)
	}
	defer resp.Body.Close()
	id, err := messages.ParseCreateResponse(resp)
	if err != nil {
		return uuid.Nil, wrap(op, e.LogicalName, err)
	}
	e.ID = id
	slog.Info("record created", "entity", e.LogicalName, "id", id)
	return id, nil
}

// Retrieve fetches one record with the given columns.
func (c *Client) Retrieve(ctx context.Context, ref entity.EntityReference, cols query.ColumnSet) (*entity.Entity, error) {
	const op = "retrieve"
	b, err := c.builder(ctx)
	if err != nil {
		return nil, wrap(op, ref.LogicalName, err)
	}
	req, err := b.Retrieve(ctx, ref, cols)
	if err != nil {
		return nil, wrap(op, ref.LogicalName, err)
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, wrap(op, ref.LogicalName, err)
	}
	defer resp.Body.Close()
	e, err := messages.ParseRetrieveResponse(resp, ref.LogicalName)
	if err != nil {
		return nil, wrap(op, ref.LogicalName, err)
	}
	return e, nil
}

// RetrieveMultiple runs q and returns one page of results. The collection's
// MoreRecords and PagingCookie describe how to request the next page.
func (c *Client) RetrieveMultiple(ctx context.Context, q query.QueryExpression) (*entity.EntityCollection, error) {
	const op = "retrieve_multiple"
	b, err := c.builder(ctx)
	if err != nil {
		return nil, wrap(op, q.EntityName, err)
	}
	req, err := b.RetrieveMultiple(ctx, q)
	if err != nil {
		return nil, wrap(op, q.EntityName, err)
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, wrap(op, q.EntityName, err)
	}
	defer resp.Body.Close()
	coll, err := messages.ParseRetrieveMultipleResponse(resp, q.EntityName)
	if err != nil {
		return nil, wrap(op, q.EntityName, err)
	}
	return coll, nil
}

// RetrieveAll runs q page by page until the server reports no more records
// and returns every record in one collection. A query with a top count is a
// single request.
//
// Paging stops with ErrCodePageLimitExceeded after the client's page limit.
func (c *Client) RetrieveAll(ctx context.Context, q query.QueryExpression) (*entity.EntityCollection, error) {
	const op = "retrieve_all"
	all, err := entity.NewEntityCollection(q.EntityName)
	if err != nil {
		return nil, wrap(op, q.EntityName, fmt.Errorf("%w: %w", messages.ErrInvalidRequest, err))
	}

	for pages := 1; ; pages++ {
		if err := ctx.Err(); err != nil {
			return nil, wrap(op, q.EntityName, err)
		}
		page, err := c.RetrieveMultiple(ctx, q)
		if err != nil {
			return nil, err
		}
		if err := all.Append(page); err != nil {
			return nil, wrap(op, q.EntityName, fmt.Errorf("%w: %w", messages.ErrInvalidResponse, err))
		}
		if q.TopCount != nil || !page.MoreRecords {
			slog.Debug("retrieve all complete", "entity", q.EntityName, "pages", pages, "records", all.Len())
			return all, nil
		}
		if pages >= c.maxPages {
			slog.Error("page limit exceeded",
				"entity", q.EntityName,
				"pages", pages,
				"records", all.Len(),
			)
			return nil, &Error{
				Op:     op,
				Code:   ErrCodePageLimitExceeded,
				Entity: q.EntityName,
				Err:    fmt.Errorf("more records remain after %d pages", pages),
			}
		}
		q = q.NextPage(page.PagingCookie)
	}
}

// Update writes the attributes set on e to the existing record e.ID.
func (c *Client) Update(ctx context.Context, e *entity.Entity) error {
	const op = "update"
	if e == nil {
		return wrap(op, "", fmt.Errorf("%w: entity is required", messages.ErrInvalidRequest))
	}
	b, err := c.builder(ctx)
	if err != nil {
		return wrap(op, e.LogicalName, err)
	}
	req, err := b.Update(ctx, e)
	if err != nil {
		return wrap(op, e.LogicalName, err)
	}
	if err := c.send(req); err != nil {
		return wrap(op, e.LogicalName, err)
	}
	slog.Info("record updated", "entity", e.LogicalName, "id", e.ID)
	return nil
}

// Delete removes the referenced record.
func (c *Client) Delete(ctx context.Context, ref entity.EntityReference) error {
	const op = "delete"
	b, err := c.builder(ctx)
	if err != nil {
		return wrap(op, ref.LogicalName, err)
	}
	req, err := b.Delete(ctx, ref)
	if err != nil {
		return wrap(op, ref.LogicalName, err)
	}
	if err := c.send(req); err != nil {
		return wrap(op, ref.LogicalName, err)
	}
	slog.Info("record deleted", "entity", ref.LogicalName, "id", ref.ID)
	return nil
}

// Associate links related records to primary. relationship is the schema
// name of the relationship; empty infers it from the two entity types,
// which requires metadata fetched with relationships.
//
// Requests are sent in order and the first failure stops the rest.
func (c *Client) Associate(ctx context.Context, primary entity.EntityReference, relationship string, related *entity.EntityReferenceCollection) error {
	return c.relate(ctx, "associate", primary, relationship, related)
}

// Disassociate unlinks related records from primary. See Associate.
func (c *Client) Disassociate(ctx context.Context, primary entity.EntityReference, relationship string, related *entity.EntityReferenceCollection) error {
	return c.relate(ctx, "disassociate", primary, relationship, related)
}

func (c *Client) relate(ctx context.Context, op string, primary entity.EntityReference, relationship string, related *entity.EntityReferenceCollection) error {
	if related == nil || related.Len() == 0 {
		return wrap(op, primary.LogicalName, fmt.Errorf("%w: related records are required", messages.ErrInvalidRequest))
	}
	b, err := c.builder(ctx)
	if err != nil {
		return wrap(op, primary.LogicalName, err)
	}
	rel, err := b.Metadata.FindRelationship(primary.LogicalName, related.LogicalName, relationship)
	if err != nil {
		return wrap(op, primary.LogicalName, err)
	}

	var reqs []*http.Request
	if op == "associate" {
		reqs, err = b.Associate(ctx, primary, rel, related)
	} else {
		reqs, err = b.Disassociate(ctx, primary, rel, related)
	}
	if err != nil {
		return wrap(op, primary.LogicalName, err)
	}
	for i, req := range reqs {
		if err := c.send(req); err != nil {
			slog.Error(op+" stopped",
				"relationship", rel.SchemaName,
				"sent", i,
				"total", len(reqs),
				"error", err,
			)
			return wrap(op, primary.LogicalName, err)
		}
	}
	slog.Info(op+" complete",
		"entity", primary.LogicalName,
		"id", primary.ID,
		"relationship", rel.SchemaName,
		"kind", rel.Kind.String(),
		"records", related.Len(),
	)
	return nil
}

// send performs a request whose success response has no body of interest.
func (c *Client) send(req *http.Request) error {
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return messages.CheckResponse(resp)
}
