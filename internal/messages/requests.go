package messages

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/dvsdk/internal/entity"
	"github.com/roach88/dvsdk/internal/fetchxml"
	"github.com/roach88/dvsdk/internal/metadata"
	"github.com/roach88/dvsdk/internal/query"
)

func (b *Builder) newRequest(ctx context.Context, method, target string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(body); err != nil {
			return nil, fmt.Errorf("%w: encode body: %v", ErrInvalidRequest, err)
		}
		r = bytes.NewReader(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req.Header = b.Headers()
	return req, nil
}

// Create builds a POST that inserts e. The new record's ID comes back in the
// OData-EntityId header; see ParseCreateResponse.
func (b *Builder) Create(ctx context.Context, e *entity.Entity) (*http.Request, error) {
	body, err := b.EntityBody(e)
	if err != nil {
		return nil, err
	}
	target, err := b.Endpoint(e.LogicalName, uuid.Nil, nil)
	if err != nil {
		return nil, err
	}
	return b.newRequest(ctx, http.MethodPost, target, body)
}

// Retrieve builds a GET for one record. Explicit columns become $select,
// with lookups mapped to their _<name>_value properties.
func (b *Builder) Retrieve(ctx context.Context, ref entity.EntityReference, cols query.ColumnSet) (*http.Request, error) {
	if ref.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: retrieve requires a record ID", ErrInvalidRequest)
	}
	if cols.IsZero() {
		return nil, fmt.Errorf("%w: retrieve requires a column set", ErrInvalidRequest)
	}
	meta, err := b.Metadata.Entity(ref.LogicalName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	selected, err := metadata.SelectColumns(meta, cols)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	var params url.Values
	if len(selected) > 0 {
		params = url.Values{"$select": {strings.Join(selected, ",")}}
	}
	target, err := b.Endpoint(ref.LogicalName, ref.ID, params)
	if err != nil {
		return nil, err
	}
	return b.newRequest(ctx, http.MethodGet, target, nil)
}

// RetrieveMultiple builds a GET that runs q as FetchXML against the query's
// entity collection. q is validated first.
func (b *Builder) RetrieveMultiple(ctx context.Context, q query.QueryExpression) (*http.Request, error) {
	if err := query.Validate(q); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	params := url.Values{"fetchXml": {fetchxml.Compile(q)}}
	target, err := b.Endpoint(q.EntityName, uuid.Nil, params)
	if err != nil {
		return nil, err
	}
	return b.newRequest(ctx, http.MethodGet, target, nil)
}

// Update builds a PATCH for e, which must carry an ID. The If-Match header
// keeps the PATCH from creating a record that does not exist.
func (b *Builder) Update(ctx context.Context, e *entity.Entity) (*http.Request, error) {
	if e == nil || e.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: update requires a record ID", ErrInvalidRequest)
	}
	body, err := b.EntityBody(e)
	if err != nil {
		return nil, err
	}
	target, err := b.Endpoint(e.LogicalName, e.ID, nil)
	if err != nil {
		return nil, err
	}
	req, err := b.newRequest(ctx, http.MethodPatch, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("If-Match", "*")
	return req, nil
}

// Delete builds a DELETE for ref.
func (b *Builder) Delete(ctx context.Context, ref entity.EntityReference) (*http.Request, error) {
	if ref.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: delete requires a record ID", ErrInvalidRequest)
	}
	target, err := b.Endpoint(ref.LogicalName, ref.ID, nil)
	if err != nil {
		return nil, err
	}
	return b.newRequest(ctx, http.MethodDelete, target, nil)
}

// Definitions builds the GET that lists every entity definition.
func (b *Builder) Definitions(ctx context.Context, relationships bool) (*http.Request, error) {
	version := b.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	target := strings.TrimRight(b.BaseURL, "/") + "/" + metadata.DefinitionsPath(version, relationships)
	return b.newRequest(ctx, http.MethodGet, target, nil)
}

// Associate builds the requests that link related records to primary
// through rel, one request per related record.
//
// Collection-valued relationships POST an @odata.id reference to
// <primary>/<navigation>/$ref. A many-to-one relationship points the
// single-valued navigation property of primary at one record with PUT.
func (b *Builder) Associate(ctx context.Context, primary entity.EntityReference, rel metadata.Relationship, related *entity.EntityReferenceCollection) ([]*http.Request, error) {
	base, err := b.relationshipBase(primary, rel, related)
	if err != nil {
		return nil, err
	}

	method := http.MethodPost
	if rel.Kind == metadata.ManyToOne {
		if related.Len() != 1 {
			return nil, fmt.Errorf("%w: many-to-one relationship %s takes exactly one related record, got %d", ErrInvalidRequest, rel.SchemaName, related.Len())
		}
		method = http.MethodPut
	}

	reqs := make([]*http.Request, 0, related.Len())
	for _, ref := range related.References {
		path, err := b.EntityPath(ref.LogicalName, ref.ID)
		if err != nil {
			return nil, err
		}
		body := map[string]string{"@odata.id": b.ServiceRoot() + "/" + path}
		req, err := b.newRequest(ctx, method, b.withQuery(base+"/$ref", nil), body)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// Disassociate builds the requests that unlink related records from primary.
// Collection-valued relationships delete <primary>/<navigation>(<id>)/$ref
// per record; a many-to-one relationship clears <primary>/<navigation>/$ref.
func (b *Builder) Disassociate(ctx context.Context, primary entity.EntityReference, rel metadata.Relationship, related *entity.EntityReferenceCollection) ([]*http.Request, error) {
	base, err := b.relationshipBase(primary, rel, related)
	if err != nil {
		return nil, err
	}

	if rel.Kind == metadata.ManyToOne {
		req, err := b.newRequest(ctx, http.MethodDelete, b.withQuery(base+"/$ref", nil), nil)
		if err != nil {
			return nil, err
		}
		return []*http.Request{req}, nil
	}

	reqs := make([]*http.Request, 0, related.Len())
	for _, ref := range related.References {
		target := b.withQuery(base+"("+ref.ID.String()+")/$ref", nil)
		req, err := b.newRequest(ctx, http.MethodDelete, target, nil)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func (b *Builder) relationshipBase(primary entity.EntityReference, rel metadata.Relationship, related *entity.EntityReferenceCollection) (string, error) {
	if primary.ID == uuid.Nil {
		return "", fmt.Errorf("%w: primary record ID is required", ErrInvalidRequest)
	}
	if related == nil || related.Len() == 0 {
		return "", fmt.Errorf("%w: related records are required", ErrInvalidRequest)
	}
	if rel.NavigationProperty == "" {
		return "", fmt.Errorf("%w: relationship navigation property is required", ErrInvalidRequest)
	}
	path, err := b.EntityPath(primary.LogicalName, primary.ID)
	if err != nil {
		return "", err
	}
	return b.ServiceRoot() + "/" + path + "/" + rel.NavigationProperty, nil
}
