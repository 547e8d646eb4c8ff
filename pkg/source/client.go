// Package source fetches candidate batches from the upstream candidate API,
// the system of record for profile data.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hireloop/talentsearch/pkg/candidate"
	"github.com/hireloop/talentsearch/pkg/httpclient"
)

// Client pages through GET /candidates/ with limit/offset. Transient upstream
// failures are retried with exponential backoff before surfacing.
type Client struct {
	baseURL    string
	httpClient *httpclient.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 20 * time.Second}),
			httpclient.WithMaxRetries(3),
			httpclient.WithBaseDelay(time.Second),
			httpclient.WithMaxDelay(10*time.Second),
		),
	}
}

// FetchBatch returns one page of candidates. An empty slice signals the end
// of the stream.
func (c *Client) FetchBatch(ctx context.Context, limit, offset int) ([]candidate.Candidate, error) {
	url := fmt.Sprintf("%s/candidates/?limit=%d&offset=%d", c.baseURL, limit, offset)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create candidates request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("failed to fetch candidates batch (offset=%d): %w", offset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("candidate API returned status %d: %s", resp.StatusCode, string(msg))
	}

	var batch []candidate.Candidate
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, fmt.Errorf("failed to decode candidates batch: %w", err)
	}
	return batch, nil
}
