// Package gridstore is a typed client for an Airtable-compatible tabular
// record store: point lookup by exact field match, create, partial update,
// merge-on-key upsert, and attachment upload.
package gridstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gridmirror/gridmirror/internal/pkg/env"
)

const (
	defaultAPIBaseURL     = "https://api.airtable.com/v0"
	defaultContentBaseURL = "https://content.airtable.com/v0"
)

type Client struct {
	APIBaseURL     string
	ContentBaseURL string
	BaseID         string
	Token          string

	HTTPClient *http.Client
}

// Record is a single stored record with its server-assigned identifier.
type Record struct {
	ID          string         `json:"id"`
	Fields      map[string]any `json:"fields"`
	CreatedTime string         `json:"createdTime,omitempty"`
}

type recordsResponse struct {
	Records []Record `json:"records"`
}

func NewClientFromEnv() *Client {
	return &Client{
		APIBaseURL:     strings.TrimRight(env.GetEnv("GRID_API_BASE_URL", defaultAPIBaseURL), "/"),
		ContentBaseURL: strings.TrimRight(env.GetEnv("GRID_CONTENT_BASE_URL", defaultContentBaseURL), "/"),
		BaseID:         env.FirstEnv("GRID_BASE_ID", "AIRTABLE_BASE_ID"),
		Token:          env.FirstEnv("GRID_API_TOKEN", "AIRTABLE_PAT", "AIRTABLE_API_KEY"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) tableURL(tableID string) string {
	return c.APIBaseURL + "/" + c.BaseID + "/" + tableID
}

func (c *Client) doJSON(ctx context.Context, method, rawURL string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func decodeAPIError(status int, body []byte) *APIError {
	var wrapped struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	if err := json.Unmarshal(body, &wrapped); err == nil && (wrapped.Error.Type != "" || wrapped.Error.Message != "") {
		apiErr.ErrorType = wrapped.Error.Type
		apiErr.Message = wrapped.Error.Message
	}
	return apiErr
}

// escapeFormulaValue escapes a value for interpolation into a filter formula
// string literal.
func escapeFormulaValue(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `"`, `\"`)
	return value
}

// FindRecord returns the first record whose field exactly matches value, or
// nil when no record matches.
func (c *Client) FindRecord(ctx context.Context, tableID, fieldName, value string) (*Record, error) {
	if value == "" {
		return nil, nil
	}
	formula := "{" + fieldName + "}=\"" + escapeFormulaValue(value) + "\""
	query := url.Values{}
	query.Set("maxRecords", "1")
	query.Set("filterByFormula", formula)

	var out recordsResponse
	if err := c.doJSON(ctx, http.MethodGet, c.tableURL(tableID)+"?"+query.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if len(out.Records) == 0 {
		return nil, nil
	}
	return &out.Records[0], nil
}

// CreateRecord creates a new record and returns it with its assigned id.
func (c *Client) CreateRecord(ctx context.Context, tableID string, fields map[string]any) (*Record, error) {
	payload := map[string]any{
		"records": []map[string]any{{"fields": fields}},
	}
	return c.postRecords(ctx, tableID, payload)
}

// UpsertRecord performs the store's native merge-on-key upsert. It fails with
// an unprocessable APIError when the store cannot merge on the given field.
func (c *Client) UpsertRecord(ctx context.Context, tableID string, fields map[string]any, mergeField string) (*Record, error) {
	payload := map[string]any{
		"records":       []map[string]any{{"fields": fields}},
		"performUpsert": map[string]any{"fieldsToMergeOn": []string{mergeField}},
	}
	return c.postRecords(ctx, tableID, payload)
}

func (c *Client) postRecords(ctx context.Context, tableID string, payload map[string]any) (*Record, error) {
	var out recordsResponse
	if err := c.doJSON(ctx, http.MethodPost, c.tableURL(tableID), payload, &out); err != nil {
		return nil, err
	}
	if len(out.Records) == 0 {
		return nil, fmt.Errorf("gridstore: empty records response from table %s", tableID)
	}
	return &out.Records[0], nil
}

// UpdateRecord applies a partial update, merging fields over the existing
// record.
func (c *Client) UpdateRecord(ctx context.Context, tableID, recordID string, fields map[string]any) (*Record, error) {
	payload := map[string]any{
		"records": []map[string]any{{"id": recordID, "fields": fields}},
	}
	var out recordsResponse
	if err := c.doJSON(ctx, http.MethodPatch, c.tableURL(tableID), payload, &out); err != nil {
		return nil, err
	}
	if len(out.Records) == 0 {
		return nil, fmt.Errorf("gridstore: empty records response from table %s", tableID)
	}
	return &out.Records[0], nil
}

// UploadAttachment uploads a file into an attachment field of an existing
// record via the content endpoint.
func (c *Client) UploadAttachment(ctx context.Context, recordID, fieldName, filename, contentType string, data []byte) error {
	rawURL := c.ContentBaseURL + "/" + c.BaseID + "/" + recordID + "/" + url.PathEscape(fieldName) + "/uploadAttachment"
	payload := map[string]any{
		"contentType": contentType,
		"filename":    filename,
		"file":        base64.StdEncoding.EncodeToString(data),
	}
	return c.doJSON(ctx, http.MethodPost, rawURL, payload, nil)
}
