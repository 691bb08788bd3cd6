package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/models"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/reservation"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/store"

	"github.com/google/uuid"
)

const PathPrefix = "/reservation-mgr"

type ReservationService interface {
	Create(ctx context.Context, input reservation.CreateInput) (models.Reservation, error)
	Get(ctx context.Context, id string) (models.Reservation, error)
	SetStatus(ctx context.Context, id, status string) (models.Reservation, error)
	ListByStatus(ctx context.Context, scope models.Scope, statuses []string) ([]models.Reservation, error)
	EstimateWait(ctx context.Context, scope models.Scope) (float64, error)
	History(ctx context.Context, id string) ([]store.ReservationEvent, error)
	Statuses() []models.StatusEntry
}

type Handler struct {
	service ReservationService
	logger  *log.Logger
}

type joinReservationRequest struct {
	StoreID  string `json:"store_id"`
	QueueID  string `json:"queue_id"`
	Name     string `json:"name"`
	MobileNo string `json:"mobile_no"`
	Pax      int    `json:"pax"`
}

type joinVirtualQueueRequest struct {
	StoreID  string `json:"store_id"`
	Name     string `json:"name"`
	MobileNo string `json:"mobile_no"`
	Pax      int    `json:"pax"`
}

type joinResponse struct {
	ID      string `json:"id"`
	QueueNo int    `json:"queue_no"`
	StoreID string `json:"store_id"`
}

type editStatusRequest struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type editStatusResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
	QueueID string `json:"queueId"`
	Status  string `json:"status"`
}

type historyResponse struct {
	ID          string                   `json:"id"`
	ChainValid  bool                     `json:"chain_valid"`
	Reservation models.Reservation       `json:"reservation"`
	Events      []store.ReservationEvent `json:"events"`
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(service ReservationService, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(PathPrefix+"/health", h.handleHealth)
	mux.Handle(PathPrefix+"/metrics", expvar.Handler())
	mux.HandleFunc(PathPrefix+"/config/status", h.handleStatuses)
	mux.HandleFunc(PathPrefix+"/reservation/join", h.handleJoinReservation)
	mux.HandleFunc(PathPrefix+"/virtual-queue/join", h.handleJoinVirtualQueue)
	mux.HandleFunc(PathPrefix+"/reservation/status/edit", h.handleEditStatus)
	mux.HandleFunc(PathPrefix+"/reservation/status/", h.handleGetReservation)
	mux.HandleFunc(PathPrefix+"/reservation/waiting-time/", h.handleWaitingTime)
	mux.HandleFunc(PathPrefix+"/reservation/wait-list/", h.handleWaitList)
	mux.HandleFunc(PathPrefix+"/reservation/history/", h.handleHistory)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) handleStatuses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	entries := h.service.Statuses()
	if len(entries) == 0 {
		writeError(w, requestIDFrom(r), http.StatusNotFound, "status_config_not_found", "status configuration not found")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleJoinReservation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req joinReservationRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.StoreID = strings.TrimSpace(req.StoreID)
	req.QueueID = strings.TrimSpace(req.QueueID)
	if req.StoreID == "" || req.QueueID == "" {
		writeError(w, requestIDFrom(r), http.StatusBadRequest, "invalid_request", "store_id and queue_id are required")
		return
	}
	h.join(w, r, reservation.CreateInput{
		StoreID:  req.StoreID,
		QueueID:  req.QueueID,
		Name:     req.Name,
		MobileNo: req.MobileNo,
		Pax:      req.Pax,
	})
}

func (h *Handler) handleJoinVirtualQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req joinVirtualQueueRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.StoreID = strings.TrimSpace(req.StoreID)
	if req.StoreID == "" {
		writeError(w, requestIDFrom(r), http.StatusBadRequest, "invalid_request", "store_id is required")
		return
	}
	h.join(w, r, reservation.CreateInput{
		StoreID:  req.StoreID,
		Name:     req.Name,
		MobileNo: req.MobileNo,
		Pax:      req.Pax,
	})
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request, input reservation.CreateInput) {
	created, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, joinResponse{ID: created.ID, QueueNo: created.QueueNo, StoreID: created.StoreID})
}

func (h *Handler) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, ok := pathParam(w, r, "/reservation/status/")
	if !ok {
		return
	}
	found, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (h *Handler) handleWaitingTime(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	scope, ok := scopeParam(w, r, "/reservation/waiting-time/")
	if !ok {
		return
	}
	seconds, err := h.service.EstimateWait(r.Context(), scope)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, seconds)
}

func (h *Handler) handleEditStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req editStatusRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	req.Status = strings.TrimSpace(req.Status)
	if req.ID == "" || req.Status == "" {
		writeError(w, requestIDFrom(r), http.StatusBadRequest, "invalid_request", "id and status are required")
		return
	}

	updated, err := h.service.SetStatus(r.Context(), req.ID, req.Status)
	if err != nil {
		if errors.Is(err, store.ErrValidation) {
			writeError(w, requestIDFrom(r), http.StatusBadRequest, "invalid_status", err.Error())
			return
		}
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, editStatusResponse{
		Message: "Reservation status updated successfully",
		ID:      updated.ID,
		QueueID: updated.QueueID,
		Status:  updated.Status,
	})
}

func (h *Handler) handleWaitList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	scope, ok := scopeParam(w, r, "/reservation/wait-list/")
	if !ok {
		return
	}
	statuses := reservation.ParseStatusFilter(r.URL.Query().Get("status"))
	list, err := h.service.ListByStatus(r.Context(), scope, statuses)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []models.Reservation{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, ok := pathParam(w, r, "/reservation/history/")
	if !ok {
		return
	}
	events, err := h.service.History(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	rebuilt, err := store.RehydrateReservation(events)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{
		ID:          id,
		ChainValid:  store.VerifyChain(events) == nil,
		Reservation: rebuilt,
		Events:      events,
	})
}

// pathParam returns the single path segment following route.
func pathParam(w http.ResponseWriter, r *http.Request, route string) (string, bool) {
	value := strings.TrimPrefix(r.URL.Path, PathPrefix+route)
	value = strings.Trim(value, "/")
	if value == "" || strings.Contains(value, "/") {
		w.WriteHeader(http.StatusNotFound)
		return "", false
	}
	return value, true
}

// scopeParam reads {storeId} for a walk-in queue or {storeId}/{queueId} for a
// table queue from the path following route.
func scopeParam(w http.ResponseWriter, r *http.Request, route string) (models.Scope, bool) {
	scope, ok := parseScopePath(strings.TrimPrefix(r.URL.Path, PathPrefix+route))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
	}
	return scope, ok
}

func parseScopePath(value string) (models.Scope, bool) {
	parts := strings.Split(strings.Trim(value, "/"), "/")
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return models.Scope{}, false
		}
	}
	switch len(parts) {
	case 1:
		return models.StoreScope(parts[0]), true
	case 2:
		return models.QueueScope(parts[0], parts[1]), true
	default:
		return models.Scope{}, false
	}
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, requestIDFrom(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := mapError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Printf("request failed method=%s path=%s code=%s error=%v", r.Method, r.URL.Path, code, err)
	}
	writeError(w, requestIDFrom(r), status, code, message)
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, store.ErrReservationNotFound):
		return http.StatusNotFound, "reservation_not_found", "reservation not found"
	case errors.Is(err, store.ErrConflictRetryExhausted):
		return http.StatusServiceUnavailable, "allocation_conflict", "could not allocate a queue number, retry the request"
	case errors.Is(err, store.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable", "storage temporarily unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout", "request timed out"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

// requestIDFrom echoes the caller's X-Request-ID or mints one for the response.
func requestIDFrom(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Request-ID")); id != "" {
		return id
	}
	return uuid.NewString()
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
