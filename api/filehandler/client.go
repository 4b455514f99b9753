package filehandler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/danielkbx/multi-storage/api"
	"github.com/danielkbx/multi-storage/interfaces"
)

// StatusError is returned by the client functions when the server answers
// with an unexpected status code.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Upload streams body to the storage server at baseURL and returns the URLs
// the content was stored under.
func Upload(ctx context.Context, baseURL string, body io.Reader, opts interfaces.WriteOptions) (*interfaces.WriteResult, error) {
	query := url.Values{}
	if opts.Name != "" {
		query.Set("name", opts.Name)
	}
	if opts.Path != "" {
		query.Set("path", opts.Path)
	}
	if opts.Encoding != "" {
		query.Set("encoding", opts.Encoding)
	}

	resp, err := do(ctx, http.MethodPost, baseURL+"/api/files?"+query.Encode(), body, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result interfaces.WriteResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("could not parse upload response: %w", err)
	}
	return &result, nil
}

// Download copies the content stored at contentURL into w. A non-empty
// encoding asks the server to convert the content first.
func Download(ctx context.Context, baseURL string, contentURL string, encoding string, w io.Writer) (int64, error) {
	query := url.Values{"url": {contentURL}}
	if encoding != "" {
		query.Set("encoding", encoding)
	}

	resp, err := do(ctx, http.MethodGet, baseURL+"/api/files?"+query.Encode(), nil, http.StatusOK)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("could not read content: %w", err)
	}
	return n, nil
}

// Remove deletes the content stored at contentURL.
func Remove(ctx context.Context, baseURL string, contentURL string) error {
	query := url.Values{"url": {contentURL}}
	resp, err := do(ctx, http.MethodDelete, baseURL+"/api/files?"+query.Encode(), nil, http.StatusNoContent)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// ListProviders returns the providers of the storage server by descending priority.
func ListProviders(ctx context.Context, baseURL string) ([]api.ProviderInfo, error) {
	resp, err := do(ctx, http.MethodGet, baseURL+"/api/providers", nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var providers []api.ProviderInfo
	if err := json.NewDecoder(resp.Body).Decode(&providers); err != nil {
		return nil, fmt.Errorf("could not parse providers response: %w", err)
	}
	return providers, nil
}

func do(ctx context.Context, method string, target string, body io.Reader, expected int) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}

	if resp.StatusCode != expected {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}
