// Package messages builds Web API requests for the CRUD and relationship
// messages and parses their responses into records.
//
// Builders only construct *http.Request values; sending them and
// authenticating is the client's job.
package messages

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/dvsdk/internal/metadata"
)

// DefaultAPIVersion is the Web API version used when none is configured.
const DefaultAPIVersion = "v9.2"

// ErrInvalidRequest is wrapped by every request construction error.
var ErrInvalidRequest = errors.New("invalid request")

// Builder prepares requests against one organization.
//
// The MSCRM flags are sent as headers on every request the builder makes.
type Builder struct {
	BaseURL    string
	APIVersion string
	Metadata   *metadata.OrgMetadata

	// Tag is passed to plug-ins as the shared variable "tag".
	Tag string

	SuppressDuplicateDetection              bool
	BypassCustomPluginExecution             bool
	SuppressCallbackRegistrationExpanderJob bool
}

// NewBuilder returns a builder for the organization at baseURL.
func NewBuilder(baseURL string, m *metadata.OrgMetadata) (*Builder, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrInvalidRequest)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("%w: base URL: %v", ErrInvalidRequest, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: organization metadata is required", ErrInvalidRequest)
	}
	return &Builder{BaseURL: baseURL, APIVersion: DefaultAPIVersion, Metadata: m}, nil
}

// ServiceRoot returns the Web API root, for example
// https://org.crm.dynamics.com/api/data/v9.2.
func (b *Builder) ServiceRoot() string {
	version := b.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	return strings.TrimRight(b.BaseURL, "/") + "/api/data/" + version
}

// Headers returns a fresh header set for one request.
func (b *Builder) Headers() http.Header {
	h := make(http.Header)
	h.Set("OData-MaxVersion", "4.0")
	h.Set("OData-Version", "4.0")
	h.Set("Accept", "application/json")
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Prefer", `odata.include-annotations="*"`)
	if b.SuppressDuplicateDetection {
		h.Set("MSCRM.SuppressDuplicateDetection", "true")
	}
	if b.BypassCustomPluginExecution {
		h.Set("MSCRM.BypassCustomPluginExecution", "true")
	}
	if b.SuppressCallbackRegistrationExpanderJob {
		h.Set("MSCRM.SuppressCallbackRegistrationExpanderJob", "true")
	}
	return h
}

// EntityPath returns <collection> or <collection>(<id>) for logicalName.
func (b *Builder) EntityPath(logicalName string, id uuid.UUID) (string, error) {
	if logicalName == "" {
		return "", fmt.Errorf("%w: entity logical name is required", ErrInvalidRequest)
	}
	collection, err := b.Metadata.CollectionName(logicalName)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if id == uuid.Nil {
		return collection, nil
	}
	return collection + "(" + id.String() + ")", nil
}

// Endpoint returns the absolute URL for logicalName (and id, when set)
// with params and the builder's tag in the query string.
func (b *Builder) Endpoint(logicalName string, id uuid.UUID, params url.Values) (string, error) {
	path, err := b.EntityPath(logicalName, id)
	if err != nil {
		return "", err
	}
	return b.withQuery(b.ServiceRoot()+"/"+path, params), nil
}

// withQuery appends params and the tag. Keys are written in sorted order,
// and $-prefixed OData options keep their literal "$".
func (b *Builder) withQuery(u string, params url.Values) string {
	if b.Tag != "" {
		params = maps.Clone(params)
		if params == nil {
			params = url.Values{}
		}
		params.Set("tag", b.Tag)
	}
	if len(params) == 0 {
		return u
	}
	var sb strings.Builder
	for _, k := range slices.Sorted(maps.Keys(params)) {
		key := url.QueryEscape(k)
		if strings.HasPrefix(k, "$") {
			key = "$" + url.QueryEscape(k[1:])
		}
		for _, v := range params[k] {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(key)
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(v))
		}
	}
	return u + "?" + sb.String()
}
