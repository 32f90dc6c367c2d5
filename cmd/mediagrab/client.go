package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openmusicplayer/mediagrab/internal/artifact"
	"github.com/openmusicplayer/mediagrab/internal/download"
	apperrors "github.com/openmusicplayer/mediagrab/internal/errors"
	"github.com/openmusicplayer/mediagrab/internal/logger"
	"github.com/openmusicplayer/mediagrab/internal/search"
)

// apiClient talks to a running mediagrab server.
type apiClient struct {
	base string
	http *http.Client
	log  *logger.Logger
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
		log:  logger.Default().WithComponent("client"),
	}
}

// remoteError is an error body returned by the server.
type remoteError struct {
	Status  int
	Code    string
	Message string
}

func (e *remoteError) Error() string {
	return fmt.Sprintf("%s: %s (HTTP %d)", e.Code, e.Message, e.Status)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.log.Debug(ctx, "request", map[string]interface{}{
		"method":      method,
		"path":        path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var body apperrors.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error.Code == "" {
		return &remoteError{Status: resp.StatusCode, Code: "HTTP_ERROR", Message: resp.Status}
	}
	return &remoteError{Status: resp.StatusCode, Code: body.Error.Code, Message: body.Error.Message}
}

func (c *apiClient) Submit(ctx context.Context, req download.SubmitRequest) (download.Task, error) {
	var task download.Task
	err := c.do(ctx, http.MethodPost, "/api/v1/tasks", req, &task)
	return task, err
}

func (c *apiClient) Task(ctx context.Context, id string) (download.Task, error) {
	var task download.Task
	err := c.do(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(id), nil, &task)
	return task, err
}

func (c *apiClient) Search(ctx context.Context, query string, f search.Filters, limit int) (*search.PaginatedResponse, error) {
	q := url.Values{}
	q.Set("q", query)
	if f.Platform != "" {
		q.Set("platform", f.Platform)
	}
	if f.Duration != "" {
		q.Set("duration", f.Duration)
	}
	if f.SortBy != "" {
		q.Set("sort", f.SortBy)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}

	var resp search.PaginatedResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/search?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) Trending(ctx context.Context, platform string) ([]search.Result, error) {
	path := "/api/v1/search/trending"
	if platform != "" {
		path += "?platform=" + url.QueryEscape(platform)
	}
	var resp struct {
		Data []search.Result `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *apiClient) Formats(ctx context.Context) ([]artifact.FormatOption, error) {
	var resp struct {
		Formats []artifact.FormatOption `json:"formats"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/formats", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Formats, nil
}

// SaveArtifact downloads the artifact of a completed task into dir and
// returns the written path and size.
func (c *apiClient) SaveArtifact(ctx context.Context, task download.Task, dir string) (string, int64, error) {
	if task.Artifact == nil {
		return "", 0, fmt.Errorf("task %s has no artifact", task.ID)
	}

	link := task.Artifact.DownloadURL
	if strings.HasPrefix(link, "/") {
		link = c.base + link
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, decodeError(resp)
	}

	path := filepath.Join(dir, filepath.Base(task.Artifact.Filename))
	f, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, err
	}
	return path, n, nil
}

// wsURL maps the server base URL onto the progress stream endpoint.
func (c *apiClient) wsURL(taskID string) (string, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1/ws"
	u.RawQuery = url.Values{"task_id": {taskID}}.Encode()
	return u.String(), nil
}
