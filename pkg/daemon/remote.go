package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/grovetools/superstate/errors"
	"github.com/grovetools/superstate/internal/daemon/collector"
	"github.com/grovetools/superstate/internal/daemon/engine"
	"github.com/grovetools/superstate/internal/daemon/store"
	"github.com/grovetools/superstate/internal/search"
	"github.com/grovetools/superstate/pkg/models"
	"github.com/grovetools/superstate/version"
)

// RemoteClient implements Client by calling the daemon's HTTP API over a Unix socket.
type RemoteClient struct {
	httpClient *http.Client
	socketPath string
	baseURL    string
}

// NewRemoteClient creates a new RemoteClient connected to the daemon socket.
func NewRemoteClient(socketPath string) (*RemoteClient, error) {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}

	return &RemoteClient{
		httpClient: &http.Client{Transport: transport, Timeout: 30 * time.Second},
		socketPath: socketPath,
		baseURL:    unixBaseURL,
	}, nil
}

// newHTTPClient points a RemoteClient at a plain HTTP base URL.
func newHTTPClient(baseURL string, c *http.Client) *RemoteClient {
	return &RemoteClient{httpClient: c, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// unixBaseURL is the dummy host used for Unix socket HTTP requests.
// The actual connection goes through the Unix socket, not this URL.
const unixBaseURL = "http://unix"

// do sends a request and decodes a JSON answer into out. Error documents
// come back as *errors.IndexError.
func (c *RemoteClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		var ie errors.IndexError
		if json.Unmarshal(data, &ie) == nil && ie.Code != "" {
			return &ie
		}
		return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Stats returns the daemon's engine counters.
func (c *RemoteClient) Stats(ctx context.Context) (*engine.Stats, error) {
	var s engine.Stats
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Path returns the cached state of one path.
func (c *RemoteClient) Path(ctx context.Context, p string) (*models.PathState, error) {
	var st models.PathState
	if err := c.do(ctx, http.MethodGet, "/api/path?path="+url.QueryEscape(p), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Spaces returns every known space.
func (c *RemoteClient) Spaces(ctx context.Context) ([]*models.SpaceState, error) {
	var spaces []*models.SpaceState
	if err := c.do(ctx, http.MethodGet, "/api/spaces", nil, &spaces); err != nil {
		return nil, err
	}
	return spaces, nil
}

// Query filters and sorts a space's table on the daemon.
func (c *RemoteClient) Query(ctx context.Context, space string, view models.View) ([]Row, error) {
	body := struct {
		Space string      `json:"space"`
		View  models.View `json:"view"`
	}{space, view}
	var rows []Row
	if err := c.do(ctx, http.MethodPost, "/api/query", body, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Search ranks paths against text.
func (c *RemoteClient) Search(ctx context.Context, text string, limit int) ([]search.Result, error) {
	q := url.Values{"q": {text}, "limit": {strconv.Itoa(limit)}}
	var hits []search.Result
	if err := c.do(ctx, http.MethodGet, "/api/search?"+q.Encode(), nil, &hits); err != nil {
		return nil, err
	}
	return hits, nil
}

// Focuses returns the focus lists.
func (c *RemoteClient) Focuses(ctx context.Context) ([]models.Focus, error) {
	var focuses []models.Focus
	if err := c.do(ctx, http.MethodGet, "/api/focus", nil, &focuses); err != nil {
		return nil, err
	}
	return focuses, nil
}

// SetFocuses replaces the focus lists.
func (c *RemoteClient) SetFocuses(ctx context.Context, focuses []models.Focus) error {
	return c.do(ctx, http.MethodPost, "/api/focus", focuses, nil)
}

// Apply sends a mutation and waits until the daemon settled it.
func (c *RemoteClient) Apply(ctx context.Context, m collector.Mutation) error {
	return c.do(ctx, http.MethodPost, "/api/mutations", m, nil)
}

// IsRunning returns true if the daemon is available and responding.
func (c *RemoteClient) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.do(ctx, http.MethodGet, "/health", nil, nil) == nil
}

// Version returns the build information the daemon reports on /health.
func (c *RemoteClient) Version(ctx context.Context) (version.Info, error) {
	var health struct {
		Version version.Info `json:"version"`
	}
	err := c.do(ctx, http.MethodGet, "/health", nil, &health)
	return health.Version, err
}

// StreamEvents subscribes to store events via Server-Sent Events (SSE).
// The channel is closed when the context is cancelled or the connection is lost.
func (c *RemoteClient) StreamEvents(ctx context.Context) (<-chan store.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/stream", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}

	// Use a separate client with no timeout for streaming
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	ch := make(chan store.Event, 10)
	go func() {
		defer resp.Body.Close()
		defer close(ch)

		scanner := bufio.NewScanner(resp.Body)
		// Context tables can be large.
		scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev store.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				continue // Skip malformed data
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Close cleans up any resources used by the client.
func (c *RemoteClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Ensure RemoteClient implements Client interface.
var _ Client = (*RemoteClient)(nil)
