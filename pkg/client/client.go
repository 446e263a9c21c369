// Package client is the Go client for the fused anomaly-scoring API.
package client

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"

	"github.com/gridwatch/fused/internal/jobstore"
	"github.com/gridwatch/fused/internal/registry"
	"github.com/gridwatch/fused/internal/server"
)

// ClientInterface is the API surface exposed to callers.
type ClientInterface interface {
	StartTrain(req server.TrainRequest) (string, error)
	TrainStatus(jobID string) (*jobstore.Status, error)
	ListModels() ([]registry.ModelCard, error)
	CurrentModel() (*registry.ModelCard, error)
	ActivateModel(version int) (*registry.ModelCard, error)
	ScoreCSV(csv []byte, topPercent float64) ([]byte, error)
}

// Client talks to one fused API server.
type Client struct {
	client *resty.Client
}

type envelope[T any] struct {
	Body  T       `json:"body"`
	Error *string `json:"error"`
}

func New(baseURL string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetTimeout(5 * time.Minute)
	return &Client{client: c}
}

func checkResp(resp *resty.Response, err error, op string, apiErr *string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s status %d: %s", op, resp.StatusCode(), resp.String())
	}
	if apiErr != nil {
		return fmt.Errorf("%s: %s", op, *apiErr)
	}
	return nil
}

// StartTrain submits an asynchronous training job and returns its id.
func (c *Client) StartTrain(req server.TrainRequest) (string, error) {
	var out envelope[server.TrainAccepted]
	resp, err := c.client.R().
		SetBody(req).
		SetResult(&out).
		Post("/api/train")
	if err := checkResp(resp, err, "start train", out.Error); err != nil {
		return "", err
	}
	return out.Body.JobID, nil
}

func (c *Client) TrainStatus(jobID string) (*jobstore.Status, error) {
	var out envelope[jobstore.Status]
	resp, err := c.client.R().
		SetResult(&out).
		Get("/api/train/" + jobID)
	if err := checkResp(resp, err, "train status", out.Error); err != nil {
		return nil, err
	}
	return &out.Body, nil
}

func (c *Client) ListModels() ([]registry.ModelCard, error) {
	var out envelope[[]registry.ModelCard]
	resp, err := c.client.R().
		SetResult(&out).
		Get("/api/models")
	if err := checkResp(resp, err, "list models", out.Error); err != nil {
		return nil, err
	}
	return out.Body, nil
}

func (c *Client) CurrentModel() (*registry.ModelCard, error) {
	var out envelope[registry.ModelCard]
	resp, err := c.client.R().
		SetResult(&out).
		Get("/api/models/current")
	if err := checkResp(resp, err, "current model", out.Error); err != nil {
		return nil, err
	}
	return &out.Body, nil
}

func (c *Client) ActivateModel(version int) (*registry.ModelCard, error) {
	var out envelope[registry.ModelCard]
	resp, err := c.client.R().
		SetResult(&out).
		Post(fmt.Sprintf("/api/models/%d/activate", version))
	if err := checkResp(resp, err, "activate model", out.Error); err != nil {
		return nil, err
	}
	return &out.Body, nil
}

// ScoreCSV scores a raw CSV batch against the active model and returns the
// ranked CSV.
func (c *Client) ScoreCSV(csv []byte, topPercent float64) ([]byte, error) {
	req := c.client.R().
		SetHeader("Content-Type", "text/csv").
		SetBody(csv)
	if topPercent > 0 {
		req.SetQueryParam("top_percent", fmt.Sprintf("%g", topPercent))
	}
	resp, err := req.Post("/api/score")
	if err != nil {
		return nil, fmt.Errorf("score batch: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("score batch status %d: %s", resp.StatusCode(), resp.String())
	}
	return resp.Body(), nil
}
