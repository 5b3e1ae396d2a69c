package serving

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/renalytics-ai/platform/pkg/common/logger"
	"github.com/renalytics-ai/platform/pkg/common/models"
	"github.com/renalytics-ai/platform/pkg/features/payload"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/sessions/{id}/predict", h.handlePredictSession).Methods(http.MethodPost)
	router.HandleFunc("/predict", h.handlePredict).Methods(http.MethodPost)
	router.HandleFunc("/predictions", h.handleHistory).Methods(http.MethodGet)
	router.HandleFunc("/endpoints", h.handleListEndpoints).Methods(http.MethodGet)
	router.HandleFunc("/endpoints/deploy", h.handleDeploy).Methods(http.MethodPost)
}

func (h *HTTPHandler) handlePredictSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	resp, err := h.service.PredictSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, ErrNoFeatures) {
			http.Error(w, "no feature rows for session", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("session prediction failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *HTTPHandler) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req models.PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.service.PredictPayload(r.Context(), req.SessionID, &payload.Body{Instances: req.Instances})
	if err != nil {
		if errors.Is(err, ErrNoFeatures) {
			http.Error(w, "no instances in request", http.StatusBadRequest)
			return
		}
		logger.Log.WithError(err).Error("prediction failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *HTTPHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	logs, err := h.service.History(r.Context(), sessionID, limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to fetch prediction history")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(logs)
}

func (h *HTTPHandler) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.service.client.ListEndpoints(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to list endpoints")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(endpoints)
}

func (h *HTTPHandler) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ModelName string `json:"model_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ModelName == "" {
		http.Error(w, "model_name is required", http.StatusBadRequest)
		return
	}

	id, err := h.service.EnsureEndpoint(r.Context(), req.ModelName)
	if err != nil {
		logger.Log.WithError(err).Error("failed to deploy model")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"endpoint_id": id})
}
