// Package remote is the HTTP client for the inspection server: the batch
// sync endpoint and the media upload endpoints.
//
// Endpoints:
//
//	POST   {base}/sync/inspections   {"inspections":[...]} -> {"results":[...]}
//	POST   {base}/uploads            multipart file + folder -> media reference
//	DELETE {base}/uploads/{publicId}
//
// Every request carries the bearer token. A 401 answer, or a JWT whose exp
// claim is already past, yields ErrUnauthorized so callers can stop instead
// of recording a sync failure.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/sanorte/vistorias/internal/offline/schema"
)

// ErrUnauthorized is returned when the server rejects the credentials or
// the token is known to be expired.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError is a non-2xx answer other than 401.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: server returned %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: server returned %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Config configures a Client.
type Config struct {
	// BaseURL is the API root, e.g. https://api.example.com/v1
	BaseURL string
	// Token is the bearer token (may be empty)
	Token string
	// Timeout bounds every request (default: 30s)
	Timeout time.Duration
	// HTTPClient overrides the underlying client
	HTTPClient *http.Client
}

// DefaultTimeout bounds a request when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error body ends up in a StatusError.
const maxErrorBody = 512

// Client talks to the inspection server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid remote base URL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    hc,
	}, nil
}

// SyncInspections submits one batch and returns the per-inspection results.
func (c *Client) SyncInspections(ctx context.Context, payloads []*InspectionPayload) ([]SyncResult, error) {
	body, err := json.Marshal(syncRequest{Inspections: payloads})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sync request: %w", err)
	}

	var resp syncResponse
	if err := c.do(ctx, http.MethodPost, "/sync/inspections", "application/json", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// UploadMedia uploads one file to folder and returns its durable reference.
func (c *Client) UploadMedia(ctx context.Context, folder schema.MediaFolder, fileName, mimeType string, r io.Reader) (schema.MediaRef, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return schema.MediaRef{}, fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return schema.MediaRef{}, fmt.Errorf("failed to read media %s: %w", fileName, err)
	}
	if err := mw.WriteField("folder", string(folder)); err != nil {
		return schema.MediaRef{}, fmt.Errorf("failed to write folder field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return schema.MediaRef{}, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	var ref schema.MediaRef
	if err := c.do(ctx, http.MethodPost, "/uploads", mw.FormDataContentType(), &buf, &ref); err != nil {
		return schema.MediaRef{}, err
	}
	if !ref.IsDurable() {
		return schema.MediaRef{}, fmt.Errorf("upload of %s returned no public id or url", fileName)
	}
	return ref, nil
}

// DeleteMedia removes an uploaded asset.
func (c *Client) DeleteMedia(ctx context.Context, publicID string) error {
	if publicID == "" {
		return fmt.Errorf("public id is required")
	}
	return c.do(ctx, http.MethodDelete, "/uploads/"+url.PathEscape(publicID), "", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	if err := checkToken(c.token, time.Now()); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request %s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method: method,
			Path:   path,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(data)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}
