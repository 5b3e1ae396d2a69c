// Package serving talks to the ML platform that hosts the deployed
// hypotension classifier: endpoint lifecycle, online prediction, and
// prediction logging.
package serving

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/renalytics-ai/platform/pkg/common/config"
	"github.com/renalytics-ai/platform/pkg/common/logger"
	"github.com/renalytics-ai/platform/pkg/features/payload"
)

// Client is a thin REST client for the ML platform endpoints API.
type Client struct {
	http    *resty.Client
	baseURL string
}

func NewClient(cfg *config.Config) *Client {
	client := resty.New().SetTimeout(cfg.ServingTimeout)
	if cfg.WarehouseTokenURL != "" {
		creds := clientcredentials.Config{
			ClientID:     cfg.WarehouseClientID,
			ClientSecret: cfg.WarehouseClientSecret,
			TokenURL:     cfg.WarehouseTokenURL,
		}
		client.SetTransport(creds.Client(context.Background()).Transport)
	}
	return &Client{http: client, baseURL: cfg.ServingBaseURL}
}

type predictionResult struct {
	Predictions []map[string]interface{} `json:"predictions"`
	ModelID     string                   `json:"model_id"`
	Error       string                   `json:"error,omitempty"`
}

// Predict sends a prepared payload to the endpoint and returns the raw
// prediction records. Transport and service errors are fatal; there is no
// retry at this layer.
func (c *Client) Predict(ctx context.Context, endpointID string, body *payload.Body) ([]map[string]interface{}, error) {
	if endpointID == "" {
		return nil, fmt.Errorf("endpoint id is empty")
	}
	var result predictionResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post(fmt.Sprintf("%s/v1/endpoints/%s:predict", c.baseURL, endpointID))
	if err != nil {
		return nil, fmt.Errorf("prediction request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("prediction request failed: status %s: %s", resp.Status(), result.Error)
	}
	logger.Log.WithFields(map[string]interface{}{
		"endpoint":    endpointID,
		"instances":   len(body.Instances),
		"predictions": len(result.Predictions),
	}).Info("prediction completed")
	return result.Predictions, nil
}
