package gcclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/lodthe/registry-gc/pkg/restapi"
)

var (
	// ErrBusy is returned when the service is already running a gc sequence.
	ErrBusy = errors.New("gc sequence is already running")

	// ErrFailed is returned when the service has run the sequence, but it failed.
	ErrFailed = errors.New("gc sequence failed")
)

type Config struct {
	// BaseURL of the trigger listener, e.g. http://registry-host:8000.
	BaseURL string

	// AdminURL of the admin listener, e.g. http://registry-host:2112. Required for ListRuns.
	AdminURL string
}

type Client struct {
	baseURL  string
	adminURL string
	client   *http.Client
}

func New(c *Config) *Client {
	return &Client{
		baseURL:  strings.TrimSuffix(c.BaseURL, "/"),
		adminURL: strings.TrimSuffix(c.AdminURL, "/"),
		client:   &http.Client{Timeout: 0},
	}
}

// Trigger asks the service to run the gc sequence and waits for the result.
// The request can take a while: the sequence includes several pauses and the collector run.
func (c *Client) Trigger(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	response, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("can't read response body: %w", err)
	}

	switch response.StatusCode {
	case http.StatusOK:
		if string(body) != restapi.SuccessBody {
			return fmt.Errorf("unexpected response body: %q", body)
		}

		return nil

	case http.StatusConflict:
		return ErrBusy

	default:
		return fmt.Errorf("%w: received status %s", ErrFailed, response.Status)
	}
}

type listRunsResponse struct {
	Result restapi.ListRunsOutput `json:"result"`
	Error  *restapi.ErrorResponse `json:"error"`
}

// ListRuns fetches the latest gc runs from the admin listener, newest first.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]restapi.RunOutput, error) {
	if c.adminURL == "" {
		return nil, errors.New("admin url is not set")
	}

	url := c.adminURL + "/runs"
	if limit > 0 {
		url += "?limit=" + strconv.Itoa(limit)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	response, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer response.Body.Close()

	var result listRunsResponse
	err = json.NewDecoder(response.Body).Decode(&result)
	if err != nil {
		return nil, fmt.Errorf("invalid body response: %w", err)
	}

	if result.Error != nil {
		return nil, fmt.Errorf("received unsuccessful status %d: %s", result.Error.Code, result.Error.Message)
	}

	return result.Result.Runs, nil
}
