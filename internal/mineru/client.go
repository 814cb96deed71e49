// Package mineru is a client for the MinerU document extraction API. It
// submits a PDF by URL, polls the task until it finishes, and downloads and
// unpacks the result archive holding full.md and images/.
package mineru

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	DefaultBaseURL      = "https://mineru.net/api/v4"
	DefaultLanguage     = "en"
	DefaultModelVersion = "vlm"
	DefaultPollInterval = 5 * time.Second
	DefaultMaxWait      = time.Hour
)

var (
	// ErrTaskFailed is returned when the service reports a failed task.
	ErrTaskFailed = errors.New("extraction task failed")

	// ErrTimeout is returned when a task does not finish within MaxWait.
	ErrTimeout = errors.New("extraction task timed out")

	// ErrAPI is returned when the service answers with a non-zero code.
	ErrAPI = errors.New("mineru api error")

	errPending = errors.New("task still running")
)

// Task states reported by the service.
const (
	StateDone       = "done"
	StateFailed     = "failed"
	StatePending    = "pending"
	StateRunning    = "running"
	StateConverting = "converting"
)

// Config holds client settings.
type Config struct {
	APIKey       string
	BaseURL      string
	Language     string
	ModelVersion string
	Timeout      time.Duration
	PollInterval time.Duration
	MaxWait      time.Duration
	Logger       *slog.Logger
}

// Client talks to the MinerU API.
type Client struct {
	apiKey       string
	baseURL      string
	language     string
	modelVersion string
	pollInterval time.Duration
	maxWait      time.Duration
	client       *http.Client
	logger       *slog.Logger
}

// NewClient creates a client, filling unset fields with defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.ModelVersion == "" {
		cfg.ModelVersion = DefaultModelVersion
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = DefaultMaxWait
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		language:     cfg.Language,
		modelVersion: cfg.ModelVersion,
		pollInterval: cfg.PollInterval,
		maxWait:      cfg.MaxWait,
		client:       &http.Client{Timeout: cfg.Timeout},
		logger:       cfg.Logger,
	}
}

// TaskRequest describes a document to extract. OCR, formula and table
// recognition are always enabled.
type TaskRequest struct {
	URL        string
	DataID     string
	PageRanges string
}

// Progress is reported while a task is pending or running.
type Progress struct {
	ExtractedPages int    `json:"extracted_pages"`
	TotalPages     int    `json:"total_pages"`
	StartTime      string `json:"start_time,omitempty"`
}

// Task is the status of one extraction task.
type Task struct {
	ID         string    `json:"task_id"`
	State      string    `json:"state"`
	DataID     string    `json:"data_id,omitempty"`
	FullZipURL string    `json:"full_zip_url,omitempty"`
	ErrMsg     string    `json:"err_msg,omitempty"`
	Progress   *Progress `json:"extract_progress,omitempty"`
}

// Finished reports whether the task reached a terminal state.
func (t *Task) Finished() bool {
	return t.State == StateDone || t.State == StateFailed
}

// Submit creates an extraction task and returns its ID.
func (c *Client) Submit(ctx context.Context, req TaskRequest) (string, error) {
	body := createTaskRequest{
		URL:           req.URL,
		IsOCR:         true,
		EnableFormula: true,
		EnableTable:   true,
		Language:      c.language,
		ModelVersion:  c.modelVersion,
		DataID:        req.DataID,
		PageRanges:    req.PageRanges,
	}

	var data struct {
		TaskID string `json:"task_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/extract/task", body, &data); err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}
	if data.TaskID == "" {
		return "", fmt.Errorf("%w: response has no task_id", ErrAPI)
	}

	c.logger.Info("mineru task created", "task_id", data.TaskID, "model", c.modelVersion)
	return data.TaskID, nil
}

// Status fetches the current state of a task.
func (c *Client) Status(ctx context.Context, taskID string) (*Task, error) {
	var task Task
	if err := c.do(ctx, http.MethodGet, "/extract/task/"+taskID, nil, &task); err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", taskID, err)
	}
	if task.ID == "" {
		task.ID = taskID
	}
	return &task, nil
}

// Wait polls a task every PollInterval until it finishes. onProgress, when
// set, is called after every poll. A failed task yields ErrTaskFailed; a task
// still running after MaxWait yields ErrTimeout.
func (c *Client) Wait(ctx context.Context, taskID string, onProgress func(*Task)) (*Task, error) {
	attempts := uint(c.maxWait/c.pollInterval) + 1

	task, err := retry.DoWithData(
		func() (*Task, error) {
			task, err := c.Status(ctx, taskID)
			if err != nil {
				if errors.Is(err, ErrAPI) {
					return nil, retry.Unrecoverable(err)
				}
				return nil, err
			}
			if onProgress != nil {
				onProgress(task)
			}

			switch task.State {
			case StateDone:
				return task, nil
			case StateFailed:
				msg := task.ErrMsg
				if msg == "" {
					msg = "unknown error"
				}
				return task, retry.Unrecoverable(fmt.Errorf("%w: %s", ErrTaskFailed, msg))
			default:
				if p := task.Progress; p != nil && p.TotalPages > 0 {
					c.logger.Debug("mineru task progress",
						"task_id", taskID,
						"state", task.State,
						"pages", p.ExtractedPages,
						"total", p.TotalPages)
				}
				return task, errPending
			}
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(c.pollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if errors.Is(err, errPending) {
		return task, fmt.Errorf("%w: task %s not finished after %s", ErrTimeout, taskID, c.maxWait)
	}
	if err != nil {
		return task, err
	}
	return task, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env apiResponse
	if err := json.Unmarshal(respBody, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w (status %d): %s", ErrAPI, resp.StatusCode, string(respBody))
		}
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("server error (status %d): %s", resp.StatusCode, env.Msg)
	}
	if resp.StatusCode != http.StatusOK || env.Code != 0 {
		msg := env.Msg
		if msg == "" {
			msg = "unknown error"
		}
		return fmt.Errorf("%w (status %d, code %d): %s", ErrAPI, resp.StatusCode, env.Code, msg)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to unmarshal data: %w", err)
		}
	}
	return nil
}

// MinerU API types

type createTaskRequest struct {
	URL           string `json:"url"`
	IsOCR         bool   `json:"is_ocr"`
	EnableFormula bool   `json:"enable_formula"`
	EnableTable   bool   `json:"enable_table"`
	Language      string `json:"language"`
	ModelVersion  string `json:"model_version"`
	DataID        string `json:"data_id,omitempty"`
	PageRanges    string `json:"page_ranges,omitempty"`
}

type apiResponse struct {
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	TraceID string          `json:"trace_id"`
	Data    json.RawMessage `json:"data"`
}
