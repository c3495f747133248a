package monitor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apihttp "github.com/fyrsmithlabs/docforge/internal/http"
	"github.com/fyrsmithlabs/docforge/internal/progress"
	"github.com/fyrsmithlabs/docforge/internal/store"
)

// APIError is a non-2xx response from docforged.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("docforged: %s (%d)", e.Message, e.StatusCode)
}

// IsNotFound reports whether err is a 404 from docforged.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to the docforged project API.
type Client struct {
	baseURL string
	client  *http.Client
	// stream has no timeout; event streams live as long as the project.
	stream *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		stream:  &http.Client{},
	}
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string { return c.baseURL }

// CreateProject starts a project and returns the server's answer.
func (c *Client) CreateProject(ctx context.Context, req apihttp.CreateProjectRequest) (*apihttp.CreateProjectResponse, error) {
	var out apihttp.CreateProjectResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/projects", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Project returns a project's status and quality assessments.
func (c *Client) Project(ctx context.Context, id string) (*apihttp.ProjectResponse, error) {
	var out apihttp.ProjectResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/projects/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Projects lists every known project.
func (c *Client) Projects(ctx context.Context) ([]store.ProjectStatus, error) {
	var out apihttp.ListProjectsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/projects", nil, &out); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

// Cancel asks the server to stop a running project.
func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/projects/"+url.PathEscape(id), nil, &apihttp.CancelResponse{})
}

// Document fetches one generated artifact.
func (c *Client) Document(ctx context.Context, id, doc string) (*apihttp.DocumentResponse, error) {
	var out apihttp.DocumentResponse
	path := fmt.Sprintf("/api/v1/projects/%s/documents/%s", url.PathEscape(id), url.PathEscape(doc))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats returns project counts and gate statistics.
func (c *Client) Stats(ctx context.Context) (*apihttp.StatsResponse, error) {
	var out apihttp.StatsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Catalog returns the server's profiles and documents.
func (c *Client) Catalog(ctx context.Context) (*apihttp.CatalogResponse, error) {
	var out apihttp.CatalogResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/catalog", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks the server.
func (c *Client) Health(ctx context.Context) (*apihttp.HealthResponse, error) {
	var out apihttp.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Subscribe follows a project's event stream. The channel closes after the
// complete event, when ctx ends, or when cancel is called. It satisfies
// progress.Subscriber so the dashboard can read SSE or NATS alike.
func (c *Client) Subscribe(ctx context.Context, id string) (<-chan progress.Event, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/projects/"+url.PathEscape(id)+"/events", nil)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer cancel()
		defer resp.Body.Close()
		return nil, nil, decodeError(resp)
	}

	out := make(chan progress.Event, 64)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		_ = readEvents(ctx, resp.Body, out)
	}()
	return out, cancel, nil
}

// readEvents decodes server-sent event frames from r until the terminal
// event or EOF. Only data lines carry the payload; the event name repeats
// Event.Type.
func readEvents(ctx context.Context, r io.Reader, out chan<- progress.Event) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var data bytes.Buffer
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var e progress.Event
			err := json.Unmarshal(data.Bytes(), &e)
			data.Reset()
			if err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return ctx.Err()
			}
			if e.Type.IsTerminal() {
				return nil
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return sc.Err()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError reads echo's {"message": ...} error body.
func decodeError(resp *http.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(raw, &body); err != nil || body.Message == "" {
		body.Message = strings.TrimSpace(string(raw))
		if body.Message == "" {
			body.Message = http.StatusText(resp.StatusCode)
		}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: body.Message}
}
