package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"verification-service/internal/sender"
	"verification-service/internal/service"
	"verification-service/internal/util"
)

// AlertSearcher is the operator-facing alert query capability;
// *client.ESClient implements it. Nil when Elasticsearch is not configured.
type AlertSearcher interface {
	Search(ctx context.Context, index string, query map[string]interface{}, target interface{}) error
}

// VerificationHandler handles HTTP requests for OTP and monitoring operations
type VerificationHandler struct {
	verificationService *service.VerificationService
	alertSearcher       AlertSearcher
	alertIndex          string
	logger              *zap.Logger
}

func NewVerificationHandler(verificationService *service.VerificationService, logger *zap.Logger) *VerificationHandler {
	return &VerificationHandler{
		verificationService: verificationService,
		logger:              logger,
	}
}

// WithAlertSearch enables the Elasticsearch-backed alert view.
func (h *VerificationHandler) WithAlertSearch(searcher AlertSearcher, index string) *VerificationHandler {
	h.alertSearcher = searcher
	h.alertIndex = index
	return h
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

type issueRequest struct {
	Channel    string `json:"channel"`
	Identifier string `json:"identifier"`
}

type verifyRequest struct {
	Channel    string `json:"channel"`
	Identifier string `json:"identifier"`
	Code       string `json:"code"`
}

type messageRequest struct {
	Identifier string `json:"identifier"`
	Body       string `json:"body"`
}

type transactionRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
}

// RegisterRoutes registers all verification routes
func (h *VerificationHandler) RegisterRoutes(router chi.Router) {
	router.Route("/verification", func(r chi.Router) {
		r.Post("/otp/issue", h.IssueOTP)
		r.Post("/otp/verify", h.VerifyOTP)
		r.Post("/messages/whatsapp", h.SendWhatsAppMessage)
		r.Post("/transactions", h.RecordTransaction)
		r.Get("/stats", h.GetVerificationStats)
		r.Get("/alerts", h.GetAlerts)
		r.Get("/audit", h.GetAuditTrail)
	})
}

// IssueOTP handles OTP issuance requests
func (h *VerificationHandler) IssueOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !h.validIdentifier(req.Channel, req.Identifier) {
		h.verificationService.RecordSuspiciousActivity(ctx, "malformed_identifier", r.RemoteAddr)
		h.respondWithError(w, http.StatusBadRequest, "Invalid channel or identifier")
		return
	}

	result := h.verificationService.IssueOTP(ctx, req.Channel, req.Identifier)
	h.respondWithResult(w, result)

	h.logger.Info("OTP issue requested via HTTP",
		util.String("channel", req.Channel),
		util.String("kind", string(result.Kind)),
		util.Duration("duration", time.Since(startTime)),
	)
}

// VerifyOTP handles OTP verification requests
func (h *VerificationHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !h.validIdentifier(req.Channel, req.Identifier) {
		h.verificationService.RecordSuspiciousActivity(ctx, "malformed_identifier", r.RemoteAddr)
		h.respondWithError(w, http.StatusBadRequest, "Invalid channel or identifier")
		return
	}
	if !util.IsValidOTPCode(req.Code) {
		h.verificationService.RecordSuspiciousActivity(ctx, "malformed_code", r.RemoteAddr)
		h.respondWithError(w, http.StatusBadRequest, "Code must be exactly six digits")
		return
	}

	result := h.verificationService.VerifyOTP(ctx, req.Channel, req.Identifier, req.Code)
	h.respondWithResult(w, result)

	h.logger.Info("OTP verify requested via HTTP",
		util.String("channel", req.Channel),
		util.String("kind", string(result.Kind)),
		util.Duration("duration", time.Since(startTime)),
	)
}

// SendWhatsAppMessage handles free-text WhatsApp notifications
func (h *VerificationHandler) SendWhatsAppMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !util.IsValidPhone(req.Identifier) {
		h.verificationService.RecordSuspiciousActivity(ctx, "malformed_identifier", r.RemoteAddr)
		h.respondWithError(w, http.StatusBadRequest, "Invalid phone number")
		return
	}
	if req.Body == "" {
		h.respondWithError(w, http.StatusBadRequest, "Message body is required")
		return
	}

	result := h.verificationService.SendFreeTextMessage(ctx, req.Identifier, req.Body)
	h.respondWithResult(w, result)
}

// RecordTransaction runs the large-transaction monitoring check
func (h *VerificationHandler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" || req.Amount < 0 {
		h.respondWithError(w, http.StatusBadRequest, "user_id and a non-negative amount are required")
		return
	}

	result := h.verificationService.RecordTransaction(r.Context(), req.UserID, req.Amount)
	h.respondWithResult(w, result)
}

// GetVerificationStats returns the aggregate monitoring view
func (h *VerificationHandler) GetVerificationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.verificationService.VerificationStats(r.Context())
	if err != nil {
		h.logger.Error("Failed to gather verification stats", util.ErrorField(err))
		h.respondWithError(w, http.StatusInternalServerError, "Failed to gather stats")
		return
	}

	h.respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    stats,
	})
}

// GetAlerts is the operator view over raised alerts, served from the
// Elasticsearch index when configured.
func (h *VerificationHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	if h.alertSearcher == nil {
		h.respondWithError(w, http.StatusServiceUnavailable, "Alert search is not configured")
		return
	}

	size := 50
	if raw := r.URL.Query().Get("size"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			size = parsed
		}
	}
	query := map[string]interface{}{
		"size": size,
		"sort": []map[string]interface{}{
			{"timestamp": map[string]interface{}{"order": "desc"}},
		},
	}
	if alertType := r.URL.Query().Get("type"); alertType != "" {
		query["query"] = map[string]interface{}{
			"term": map[string]interface{}{"type": alertType},
		}
	}

	var searchResult struct {
		Hits struct {
			Hits []struct {
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := h.alertSearcher.Search(r.Context(), h.alertIndex, query, &searchResult); err != nil {
		h.logger.Error("Alert search failed", util.ErrorField(err))
		h.respondWithError(w, http.StatusBadGateway, "Alert search failed")
		return
	}

	alerts := make([]json.RawMessage, 0, len(searchResult.Hits.Hits))
	for _, hit := range searchResult.Hits.Hits {
		alerts = append(alerts, hit.Source)
	}

	h.respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    alerts,
	})
}

// GetAuditTrail returns the durable verification history for an identifier
func (h *VerificationHandler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	if !h.verificationService.AuditEnabled() {
		h.respondWithError(w, http.StatusServiceUnavailable, "Audit trail is not configured")
		return
	}

	identifier := r.URL.Query().Get("identifier")
	if identifier == "" {
		h.respondWithError(w, http.StatusBadRequest, "identifier query parameter is required")
		return
	}

	entries, err := h.verificationService.RecentAuditEvents(r.Context(), identifier, 20)
	if err != nil {
		h.logger.Error("Failed to read audit trail", util.ErrorField(err))
		h.respondWithError(w, http.StatusInternalServerError, "Failed to read audit trail")
		return
	}

	h.respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    entries,
	})
}

func (h *VerificationHandler) validIdentifier(channel, identifier string) bool {
	switch channel {
	case sender.ChannelEmail:
		return util.IsValidEmail(identifier)
	case sender.ChannelPhone:
		return util.IsValidPhone(identifier)
	default:
		return false
	}
}

// statusForKind maps result kinds to HTTP status codes.
func statusForKind(kind service.Kind) int {
	switch kind {
	case service.KindOK:
		return http.StatusOK
	case service.KindRateLimited, service.KindTooManyAttempts:
		return http.StatusTooManyRequests
	case service.KindExpired, service.KindInvalidCode, service.KindInvalidInput:
		return http.StatusBadRequest
	case service.KindSendFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *VerificationHandler) respondWithResult(w http.ResponseWriter, result service.Result) {
	resp := Response{
		Success: result.Success,
		Message: result.Message,
	}
	if !result.Success {
		resp.Error = string(result.Kind)
	}
	h.respondWithJSON(w, statusForKind(result.Kind), resp)
}

func (h *VerificationHandler) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.respondWithJSON(w, statusCode, Response{
		Success: false,
		Error:   message,
	})
}

func (h *VerificationHandler) respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", util.ErrorField(err))
	}
}
