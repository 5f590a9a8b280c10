package messages

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/dvsdk/internal/entity"
)

// Collection annotations returned with FetchXML results.
const (
	PagingCookieAnnotation = "@Microsoft.Dynamics.CRM.fetchxmlpagingcookie"
	MoreRecordsAnnotation  = "@Microsoft.Dynamics.CRM.morerecords"
)

// ErrInvalidResponse is wrapped when a successful response cannot be parsed.
var ErrInvalidResponse = errors.New("invalid response")

// APIError is a non-2xx Web API response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("web api %d (%s): %s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("web api %d: %s", e.StatusCode, msg)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// CheckResponse returns nil for a 2xx response and an *APIError otherwise.
// The OData error body, when present, supplies Code and Message.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error.Message != "" {
		apiErr.Code = body.Error.Code
		apiErr.Message = body.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

// ParseCreateResponse returns the ID of the created record from the
// OData-EntityId header, which holds a URL ending in (<id>).
func ParseCreateResponse(resp *http.Response) (uuid.UUID, error) {
	if err := CheckResponse(resp); err != nil {
		return uuid.Nil, err
	}
	uri := resp.Header.Get("OData-EntityId")
	if uri == "" {
		return uuid.Nil, fmt.Errorf("%w: OData-EntityId header missing", ErrInvalidResponse)
	}
	open := strings.LastIndexByte(uri, '(')
	end := strings.LastIndexByte(uri, ')')
	if open < 0 || end < open {
		return uuid.Nil, fmt.Errorf("%w: no record ID in %q", ErrInvalidResponse, uri)
	}
	id, err := uuid.Parse(uri[open+1 : end])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: record ID in %q: %v", ErrInvalidResponse, uri, err)
	}
	return id, nil
}

// ParseRetrieveResponse parses a single annotated record.
func ParseRetrieveResponse(resp *http.Response, logicalName string) (*entity.Entity, error) {
	if err := CheckResponse(resp); err != nil {
		return nil, err
	}
	var row map[string]any
	if err := decodeJSON(resp.Body, &row); err != nil {
		return nil, err
	}
	if len(row) == 0 {
		return nil, fmt.Errorf("%w: empty record", ErrInvalidResponse)
	}
	e, err := entity.ParseEntity(logicalName, row)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return e, nil
}

// ParseRetrieveMultipleResponse parses a FetchXML result page. Rows are kept
// in order, including repeated IDs from one-to-many links. The collection
// carries the decoded paging cookie and the more-records flag.
func ParseRetrieveMultipleResponse(resp *http.Response, logicalName string) (*entity.EntityCollection, error) {
	if err := CheckResponse(resp); err != nil {
		return nil, err
	}
	var page struct {
		Value       []map[string]any `json:"value"`
		Cookie      string           `json:"@Microsoft.Dynamics.CRM.fetchxmlpagingcookie"`
		MoreRecords bool             `json:"@Microsoft.Dynamics.CRM.morerecords"`
	}
	if err := decodeJSON(resp.Body, &page); err != nil {
		return nil, err
	}

	coll, err := entity.NewEntityCollection(logicalName)
	if err != nil {
		return nil, err
	}
	for i, row := range page.Value {
		e, err := entity.ParseEntity(logicalName, row)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", ErrInvalidResponse, i, err)
		}
		if err := coll.AddRow(e); err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", ErrInvalidResponse, i, err)
		}
	}

	coll.MoreRecords = page.MoreRecords
	if page.Cookie != "" {
		cookie, _, err := ParsePagingCookie(page.Cookie)
		if err != nil {
			return nil, err
		}
		coll.PagingCookie = cookie
	}
	return coll, nil
}

// ParsePagingCookie extracts the cookie to send back in the next page's
// paging-cookie attribute from a fetchxmlpagingcookie annotation such as
//
//	<cookie pagenumber="2" pagingcookie="%253ccookie..." istracking="False" />
//
// The pagingcookie attribute is URL-encoded twice.
func ParsePagingCookie(annotation string) (cookie string, pageNumber int, err error) {
	var el struct {
		PageNumber   string `xml:"pagenumber,attr"`
		PagingCookie string `xml:"pagingcookie,attr"`
	}
	if err := xml.Unmarshal([]byte(annotation), &el); err != nil {
		return "", 0, fmt.Errorf("%w: paging cookie: %v", ErrInvalidResponse, err)
	}
	if el.PageNumber != "" {
		if pageNumber, err = strconv.Atoi(el.PageNumber); err != nil {
			return "", 0, fmt.Errorf("%w: paging cookie page number %q", ErrInvalidResponse, el.PageNumber)
		}
	}
	cookie = el.PagingCookie
	for range 2 {
		if cookie, err = url.PathUnescape(cookie); err != nil {
			return "", 0, fmt.Errorf("%w: paging cookie: %v", ErrInvalidResponse, err)
		}
	}
	return cookie, pageNumber, nil
}

func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", ErrInvalidResponse, err)
	}
	return nil
}
