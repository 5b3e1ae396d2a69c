package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/renalytics-ai/platform/pkg/common/config"
	"github.com/renalytics-ai/platform/pkg/common/logger"
)

// QueryRunner executes one SQL statement against the remote columnar store
// and blocks until the job finishes. Remote failures are fatal: there is no
// partial-result recovery in the pipeline.
type QueryRunner interface {
	RunQuery(ctx context.Context, sql string) error
	TableExists(ctx context.Context, tableID string) (bool, error)
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HTTPRunner submits queries to the warehouse's SQL endpoint, authenticating
// with OAuth2 client credentials when configured.
type HTTPRunner struct {
	client  *resty.Client
	baseURL string
}

func NewHTTPRunner(cfg *config.Config) *HTTPRunner {
	client := resty.New().SetTimeout(cfg.WarehouseRequestTimeout)
	if cfg.WarehouseTokenURL != "" {
		creds := clientcredentials.Config{
			ClientID:     cfg.WarehouseClientID,
			ClientSecret: cfg.WarehouseClientSecret,
			TokenURL:     cfg.WarehouseTokenURL,
		}
		client.SetTransport(creds.Client(context.Background()).Transport)
	}
	return &HTTPRunner{client: client, baseURL: cfg.WarehouseEndpoint}
}

func (r *HTTPRunner) RunQuery(ctx context.Context, sql string) error {
	var result queryResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(queryRequest{Query: sql}).
		SetResult(&result).
		Post(r.baseURL + "/v1/queries")
	if err != nil {
		return fmt.Errorf("warehouse query failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("warehouse query failed: status %s: %s", resp.Status(), result.Error)
	}
	return nil
}

func (r *HTTPRunner) TableExists(ctx context.Context, tableID string) (bool, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		Get(r.baseURL + "/v1/tables/" + tableID)
	if err != nil {
		return false, fmt.Errorf("table lookup failed: %w", err)
	}
	if resp.StatusCode() == 404 {
		return false, nil
	}
	if resp.IsError() {
		return false, fmt.Errorf("table lookup failed: status %s", resp.Status())
	}
	return true, nil
}

// WaitForTable polls until tableID is accessible, with capped exponential
// backoff and a fixed attempt ceiling. Freshly created tables can lag behind
// the job that created them.
func WaitForTable(ctx context.Context, runner QueryRunner, tableID string, maxAttempts int) error {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	delay := 4 * time.Second
	const maxDelay = 64 * time.Second

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ok, err := runner.TableExists(ctx, tableID)
		if err != nil {
			return err
		}
		if ok {
			logger.Log.WithFields(map[string]interface{}{
				"table":    tableID,
				"attempts": attempt,
			}).Info("table is accessible")
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		logger.Log.WithFields(map[string]interface{}{
			"table":   tableID,
			"attempt": attempt,
			"wait":    delay.String(),
		}).Warn("table not ready, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay < maxDelay {
			delay *= 2
		}
	}
	return fmt.Errorf("table %s not accessible after %d attempts", tableID, maxAttempts)
}
