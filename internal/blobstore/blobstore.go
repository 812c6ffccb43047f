// Package blobstore provides access to the remote content-addressed store
// and to the local per-tier blob caches of a release source tree.
package blobstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/relpack/relpack/internal/msg"
)

var (
	// ErrBlobNotFound is returned when the store has no object under the requested id.
	ErrBlobNotFound = errors.New(msg.BlobNotFound)
	// ErrAccessDenied is returned when the store rejects the credentials.
	ErrAccessDenied = errors.New(msg.BlobAccessDenied)
)

// Client fetches objects from a remote content-addressed store by their
// opaque id. Integrity verification is the caller's concern; the client
// only moves bytes.
type Client interface {
	Fetch(id string) (io.ReadCloser, int64, error)
}

// ServerError is a non-2xx blobstore response not covered by one of the
// sentinel errors.
type ServerError struct {
	Code  int
	Title string
	Msg   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("blobstore returned %d: %s: %s", e.Code, e.Title, e.Msg)
}

// errorResponse is a generic error response from the server.
type errorResponse struct {
	Code   int    `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// Store implements Client over the blobstore's HTTP API.
type Store struct {
	HTTPClient *retryablehttp.Client
	URL        string
	Username   string
	AccessKey  string
}

// New returns a Store talking to the blobstore at url. The timeout applies
// per request; nothing above this client imposes one.
func New(url, username, accessKey string, timeout time.Duration) *Store {
	return &Store{
		HTTPClient: newRetryableClient(timeout),
		URL:        url,
		Username:   username,
		AccessKey:  accessKey,
	}
}

// newRetryableClient returns a new pre-configured instance of retryablehttp.Client.
func newRetryableClient(timeout time.Duration) *retryablehttp.Client {
	return &retryablehttp.Client{
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
		},
		RetryWaitMin: 1 * time.Second,
		RetryWaitMax: 30 * time.Second,
		RetryMax:     3,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}
}

// Fetch downloads the object with the given id. It's the caller's
// responsibility to close the reader.
func (s *Store) Fetch(id string) (io.ReadCloser, int64, error) {
	req, err := retryablehttp.NewRequest(http.MethodGet, fmt.Sprintf("%s/blobs/%s", s.URL, id), nil)
	if err != nil {
		return nil, 0, err
	}

	req.SetBasicAuth(s.Username, s.AccessKey)

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}

	switch resp.StatusCode {
	case 200:
		return resp.Body, resp.ContentLength, nil
	case 401, 403:
		resp.Body.Close()
		return nil, 0, ErrAccessDenied
	case 404:
		resp.Body.Close()
		return nil, 0, ErrBlobNotFound
	default:
		return nil, 0, s.newServerError(resp)
	}
}

func (s *Store) newServerError(resp *http.Response) *ServerError {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return &ServerError{Code: resp.StatusCode, Title: resp.Status}
	}

	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Title == "" {
		return &ServerError{Code: resp.StatusCode, Title: resp.Status, Msg: string(body)}
	}
	return &ServerError{Code: resp.StatusCode, Title: er.Title, Msg: er.Detail}
}
