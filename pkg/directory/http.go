package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/wrenlabs/go-wren/internal/httpc"
)

// HTTPDirectory implements Directory over the directory service's REST API.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

// NewHTTP creates a directory client for the given base URL.
func NewHTTP(baseURL string) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpc.Client,
	}
}

// ResolveUser validates a session token against the directory.
func (d *HTTPDirectory) ResolveUser(ctx context.Context, token string) (*UserRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/v1/session/resolve", nil)
	if err != nil {
		return nil, fmt.Errorf("directory: build resolve request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory: resolve request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return nil, ErrUnauthorized
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("directory: resolve returned %d: %s", resp.StatusCode, body)
	}

	var user UserRecord
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("directory: decode user record: %w", err)
	}
	return &user, nil
}

// PersistUsageSeconds records cumulative connected seconds for a user.
func (d *HTTPDirectory) PersistUsageSeconds(ctx context.Context, userID string, seconds int64) error {
	payload, err := json.Marshal(map[string]any{
		"user_id": userID,
		"seconds": seconds,
	})
	if err != nil {
		return fmt.Errorf("directory: marshal usage: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, d.baseURL+"/v1/usage", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("directory: build usage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("directory: usage request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("directory: usage returned %d: %s", resp.StatusCode, body)
	}
	return nil
}

// Ensure HTTPDirectory implements Directory at compile time.
var _ Directory = (*HTTPDirectory)(nil)
