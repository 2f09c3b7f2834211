package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ajibigad/codebot/internal/models"
)

// Client talks to the codebot HTTP API for the dashboard.
type Client struct {
	addr   string
	apiKey string
	http   *http.Client
}

// NewClient creates an API client.
func NewClient(addr, apiKey string) *Client {
	return &Client{
		addr:   addr,
		apiKey: apiKey,
		http:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *Client) get(path string, v any) error {
	req, err := http.NewRequest(http.MethodGet, c.addr+path, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, v)
}

// ListTasks fetches tasks, optionally filtered by status.
func (c *Client) ListTasks(status string) ([]models.Task, error) {
	path := "/api/tasks?limit=200"
	if status != "" {
		path += "&status=" + status
	}
	var tasks []models.Task
	if err := c.get(path, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask fetches one task.
func (c *Client) GetTask(id string) (*models.Task, error) {
	var task models.Task
	if err := c.get("/api/tasks/"+id+"/status", &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Health holds the server health payload.
type Health struct {
	Status           string `json:"status"`
	TaskQueueDepth   int    `json:"task_queue_depth"`
	ReviewQueueDepth int    `json:"review_queue_depth"`
}

// GetHealth fetches server health.
func (c *Client) GetHealth() (*Health, error) {
	var h Health
	if err := c.get("/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}
