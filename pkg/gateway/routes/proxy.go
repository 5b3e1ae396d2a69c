// Package routes exposes the platform's public API surface by forwarding
// requests to the internal services.
package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/renalytics-ai/platform/pkg/common/config"
	"github.com/renalytics-ai/platform/pkg/common/logger"
	"github.com/renalytics-ai/platform/pkg/gateway/httpclient"
)

// Proxy forwards API requests to one downstream service.
type Proxy struct {
	client  *http.Client
	baseURL string
	name    string
}

func NewProxy(cfg *config.Config, name, baseURL string) *Proxy {
	return &Proxy{
		client:  httpclient.New(cfg.GatewayTimeout),
		baseURL: strings.TrimRight(baseURL, "/"),
		name:    name,
	}
}

// RegisterPlatformRoutes wires the public surface: telemetry ingestion,
// feature building, training jobs, and prediction.
func RegisterPlatformRoutes(router *mux.Router, cfg *config.Config) {
	ingestion := NewProxy(cfg, "ingestion", cfg.IngestionBaseURL)
	featurizer := NewProxy(cfg, "featurizer", cfg.FeaturizerBaseURL)
	training := NewProxy(cfg, "training", cfg.TrainingBaseURL)
	serving := NewProxy(cfg, "serving", cfg.PredictionBaseURL)

	router.HandleFunc("/measurements", ingestion.forward).Methods(http.MethodPost)
	router.HandleFunc("/measurements/status/{id}", ingestion.forward).Methods(http.MethodGet)
	router.HandleFunc("/registrations", ingestion.forward).Methods(http.MethodPost)
	router.HandleFunc("/demographics", ingestion.forward).Methods(http.MethodPost)
	router.HandleFunc("/patients/{pid}/measurements", ingestion.forward).Methods(http.MethodGet)

	router.HandleFunc("/sessions/featurize", featurizer.forward).Methods(http.MethodPost)
	router.HandleFunc("/patients/{pid}/features", featurizer.forward).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{id}/features", featurizer.forward).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{id}/payload", featurizer.forward).Methods(http.MethodGet)

	router.HandleFunc("/jobs", training.forward).Methods(http.MethodPost, http.MethodGet)
	router.HandleFunc("/jobs/{id}", training.forward).Methods(http.MethodGet)

	router.HandleFunc("/predict", serving.forward).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{id}/predict", serving.forward).Methods(http.MethodPost)
	router.HandleFunc("/predictions", serving.forward).Methods(http.MethodGet)
	router.HandleFunc("/endpoints", serving.forward).Methods(http.MethodGet)
	router.HandleFunc("/endpoints/deploy", serving.forward).Methods(http.MethodPost)
}

// forward relays the request to the downstream service, preserving path,
// query, and correlation id. GET requests are retried; mutations are not.
func (p *Proxy) forward(w http.ResponseWriter, r *http.Request) {
	corrID := r.Header.Get("X-Request-ID")
	if corrID == "" {
		corrID = uuid.New().String()
	}

	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
	}

	url := p.baseURL + r.URL.Path
	if r.URL.RawQuery != "" {
		url += "?" + r.URL.RawQuery
	}

	do := func() error {
		req, err := http.NewRequestWithContext(r.Context(), r.Method, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Request-ID", corrID)

		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%s service returned %s", p.name, resp.Status)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Request-ID", corrID)
		w.WriteHeader(resp.StatusCode)
		w.Write(payload)
		return nil
	}

	var err error
	if r.Method == http.MethodGet {
		err = httpclient.Retry(r.Context(), 3, 100*time.Millisecond, do)
	} else {
		err = do()
	}
	if err != nil {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"backend":    p.name,
			"path":       r.URL.Path,
			"request_id": corrID,
		}).Error("failed to forward request")
		writeError(w, http.StatusBadGateway, fmt.Sprintf("%s service unavailable", p.name))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
