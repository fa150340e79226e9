// Package httpapi is the request plumbing shared by the REST-backed
// providers: one client per backend, bounded body reads, and a typed error
// for non-2xx answers.
package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// MaxResponseBytes bounds every response body read.
const MaxResponseBytes = 32 << 20

// ErrResponseTooLarge is returned when a body exceeds MaxResponseBytes.
var ErrResponseTooLarge = errors.New("httpapi: response too large")

// StatusError is a non-2xx answer. Body holds at most the first 512 bytes.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: server returned HTTP %d", e.Service, e.Code)
	}
	return fmt.Sprintf("%s: server returned HTTP %d: %s", e.Service, e.Code, e.Body)
}

// Temporary reports whether retrying later could succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Client sends requests on behalf of one backend. Service prefixes every
// error.
type Client struct {
	Service string
	HTTP    *http.Client
}

// New returns a Client with its own http.Client of the given timeout.
func New(service string, timeout time.Duration) *Client {
	return &Client{Service: service, HTTP: &http.Client{Timeout: timeout}}
}

// Do sends req and returns the body of a 2xx answer.
func (c *Client) Do(req *http.Request) ([]byte, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: http request: %w", c.Service, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", c.Service, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := bytes.TrimSpace(body)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return nil, &StatusError{Service: c.Service, Code: resp.StatusCode, Body: string(snippet)}
	}
	if len(body) > MaxResponseBytes {
		return nil, fmt.Errorf("%s: %w", c.Service, ErrResponseTooLarge)
	}
	return body, nil
}

// DoJSON sends req and decodes a 2xx JSON answer into out.
func (c *Client) DoJSON(req *http.Request, out any) error {
	body, err := c.Do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: parse response: %w", c.Service, err)
	}
	return nil
}

// File is one file part of a multipart form.
type File struct {
	Field, Name string
	Data        []byte
}

// Multipart encodes f and the non-empty fields as multipart/form-data and
// returns the body with its content type.
func Multipart(f File, fields map[string]string) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(f.Field, f.Name)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(f.Data); err != nil {
		return nil, "", err
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &body, mw.FormDataContentType(), nil
}
