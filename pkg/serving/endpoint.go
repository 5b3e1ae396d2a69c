package serving

import (
	"context"
	"fmt"

	"github.com/renalytics-ai/platform/pkg/common/config"
	"github.com/renalytics-ai/platform/pkg/common/logger"
)

// Endpoint is one serving endpoint on the ML platform.
type Endpoint struct {
	ID             string `json:"id"`
	DisplayName    string `json:"display_name"`
	DeployedModels int    `json:"deployed_models"`
}

type endpointList struct {
	Endpoints []Endpoint `json:"endpoints"`
}

// ListEndpoints returns all endpoints visible to the client.
func (c *Client) ListEndpoints(ctx context.Context) ([]Endpoint, error) {
	var result endpointList
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get(c.baseURL + "/v1/endpoints")
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("list endpoints: status %s", resp.Status())
	}
	return result.Endpoints, nil
}

// FindEndpoint resolves an endpoint id by display name. Returns an empty id
// when no endpoint matches.
func (c *Client) FindEndpoint(ctx context.Context, displayName string) (string, error) {
	endpoints, err := c.ListEndpoints(ctx)
	if err != nil {
		return "", err
	}
	for _, ep := range endpoints {
		if ep.DisplayName == displayName {
			logger.Log.WithFields(map[string]interface{}{
				"display_name": displayName,
				"endpoint_id":  ep.ID,
			}).Info("found endpoint")
			return ep.ID, nil
		}
	}
	return "", nil
}

// CreateEndpoint creates a new endpoint with the given display name.
func (c *Client) CreateEndpoint(ctx context.Context, displayName string) (string, error) {
	var created Endpoint
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"display_name": displayName}).
		SetResult(&created).
		Post(c.baseURL + "/v1/endpoints")
	if err != nil {
		return "", fmt.Errorf("create endpoint: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("create endpoint: status %s", resp.Status())
	}
	logger.Log.WithFields(map[string]interface{}{
		"display_name": displayName,
		"endpoint_id":  created.ID,
	}).Info("endpoint created")
	return created.ID, nil
}

// DeployModel deploys a registered model to an endpoint with the configured
// machine shape, directing all traffic to it.
func (c *Client) DeployModel(ctx context.Context, endpointID, modelName string, cfg *config.Config) error {
	body := map[string]interface{}{
		"model":         modelName,
		"display_name":  modelName + "-deployed",
		"machine_type":  cfg.MachineType,
		"min_replicas":  cfg.MinReplicas,
		"max_replicas":  cfg.MaxReplicas,
		"traffic_split": map[string]int{"0": 100},
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(fmt.Sprintf("%s/v1/endpoints/%s:deploy", c.baseURL, endpointID))
	if err != nil {
		return fmt.Errorf("deploy model: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("deploy model: status %s", resp.Status())
	}
	logger.Log.WithFields(map[string]interface{}{
		"endpoint_id": endpointID,
		"model":       modelName,
	}).Info("model deployed")
	return nil
}

// ResolveEndpointID returns the endpoint to use for predictions: an explicit
// id from configuration wins, otherwise the configured display name is looked
// up on the platform.
func (c *Client) ResolveEndpointID(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg.EndpointID != "" {
		return cfg.EndpointID, nil
	}
	id, err := c.FindEndpoint(ctx, cfg.EndpointName)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("endpoint %q not found", cfg.EndpointName)
	}
	return id, nil
}
