package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"leadflow/internal/pricing"
	"leadflow/internal/store"
	"leadflow/internal/util"
)

const maxUploadOverhead = 1 << 20

type HTTPServer struct {
	service        *Service
	corsOrigin     string
	logger         *zap.Logger
	maxUploadBytes int64
}

func NewHTTPServer(service *Service, corsOrigin string, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger, maxUploadBytes: 10 << 20}
}

// WithMaxUploadBytes caps multipart attachment bodies.
func (s *HTTPServer) WithMaxUploadBytes(limit int64) *HTTPServer {
	if limit > 0 {
		s.maxUploadBytes = limit
	}
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, CodeNotFound, "Route not found", nil)
		return
	}

	switch parts[1] {
	case "estimate":
		if len(parts) == 3 && r.Method == http.MethodPost {
			s.handleEstimate(w, r, parts[2])
			return
		}
	case "submissions":
		if len(parts) == 3 && r.Method == http.MethodPost {
			s.handleSubmission(w, r, parts[2])
			return
		}
	case "intake":
		if len(parts) == 3 && r.Method == http.MethodPost {
			switch parts[2] {
			case "turn":
				s.handleIntakeTurn(w, r)
				return
			case "complete":
				s.handleIntakeComplete(w, r)
				return
			}
		}
	case "leads":
		s.handleLeads(w, r, parts)
		return
	case "intakes":
		s.handleIntakes(w, r, parts)
		return
	case "clients":
		s.handleClients(w, r, parts)
		return
	case "requests":
		s.handleRequests(w, r, parts)
		return
	case "board":
		if len(parts) == 2 && r.Method == http.MethodGet {
			board, err := s.service.Board(r.Context())
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, board)
			return
		}
	case "search":
		if len(parts) == 2 && r.Method == http.MethodGet {
			query := r.URL.Query()
			limit, _ := strconv.Atoi(query.Get("limit"))
			writeJSON(w, http.StatusOK, s.service.Search(r.Context(), query.Get("q"), query.Get("type"), limit))
			return
		}
	}

	writeError(w, http.StatusNotFound, CodeNotFound, "Route not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleEstimate(w http.ResponseWriter, r *http.Request, table string) {
	var inputs pricing.Inputs
	if err := decodeBody(r, &inputs); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	estimate, err := s.service.Estimate(table, inputs)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, estimate)
}

func (s *HTTPServer) handleSubmission(w http.ResponseWriter, r *http.Request, source string) {
	switch source {
	case "quote", "checkup", "contact":
	default:
		writeError(w, http.StatusNotFound, CodeNotFound, "Unknown submission channel", nil)
		return
	}
	var raw map[string]any
	if err := decodeBody(r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	submission, err := s.service.SubmitLead(r.Context(), source, raw)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, submission)
}

func (s *HTTPServer) handleIntakeTurn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Transcript []store.ChatTurn `json:"transcript"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	turn, err := s.service.IntakeTurn(r.Context(), body.Transcript)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, intakeStatus(turn), turn)
}

func (s *HTTPServer) handleIntakeComplete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message    string           `json:"message"`
		Transcript []store.ChatTurn `json:"transcript"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	turn, err := s.service.CompleteIntake(r.Context(), body.Message, body.Transcript)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, intakeStatus(turn), turn)
}

func intakeStatus(turn TurnResult) int {
	if turn.Complete {
		return http.StatusCreated
	}
	return http.StatusOK
}

func (s *HTTPServer) handleLeads(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 2 && r.Method == http.MethodGet {
		query := r.URL.Query()
		limit, _ := strconv.Atoi(query.Get("limit"))
		leads, err := s.service.ListLeads(r.Context(), query.Get("status"), query.Get("source"), limit)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": leads})
		return
	}

	if len(parts) == 3 && r.Method == http.MethodGet {
		lead, err := s.service.GetLead(r.Context(), parts[2])
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, lead)
		return
	}

	if len(parts) == 4 && parts[3] == "status" && r.Method == http.MethodPut {
		var body struct {
			Status string `json:"status"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		lead, err := s.service.SetLeadStatus(r.Context(), parts[2], body.Status)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, lead)
		return
	}

	if len(parts) == 4 && parts[3] == "convert" && r.Method == http.MethodPost {
		conversion, err := s.service.ConvertLead(r.Context(), parts[2])
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, conversionStatus(conversion), conversion)
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleIntakes(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 2 && r.Method == http.MethodGet {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		intakes, err := s.service.ListIntakes(r.Context(), limit)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": intakes})
		return
	}

	if len(parts) == 3 && r.Method == http.MethodGet {
		projectIntake, err := s.service.GetIntake(r.Context(), parts[2])
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, projectIntake)
		return
	}

	if len(parts) == 4 && parts[3] == "stage" && r.Method == http.MethodPut {
		var body struct {
			Stage string `json:"stage"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		transition, err := s.service.MoveIntakeStage(r.Context(), parts[2], body.Stage)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, transition)
		return
	}

	if len(parts) == 4 && parts[3] == "convert" && r.Method == http.MethodPost {
		conversion, err := s.service.ConvertIntake(r.Context(), parts[2])
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, conversionStatus(conversion), conversion)
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func conversionStatus(conversion Conversion) int {
	if conversion.Created {
		return http.StatusCreated
	}
	return http.StatusOK
}

func (s *HTTPServer) handleClients(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 2 && r.Method == http.MethodGet {
		clients, err := s.service.ListClients(r.Context())
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": clients})
		return
	}
	if len(parts) < 3 {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	clientID := parts[2]

	if len(parts) == 3 && r.Method == http.MethodGet {
		client, err := s.service.GetClient(r.Context(), clientID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, client)
		return
	}

	if len(parts) == 3 && r.Method == http.MethodPut {
		var patch store.ClientPatch
		if err := decodeBody(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		client, err := s.service.UpdateClient(r.Context(), clientID, patch)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, client)
		return
	}

	if len(parts) != 4 {
		writeError(w, http.StatusNotFound, CodeNotFound, "Route not found", nil)
		return
	}

	switch {
	case parts[3] == "stage" && r.Method == http.MethodPut:
		var body struct {
			Stage string `json:"stage"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		transition, err := s.service.MoveClientStage(r.Context(), clientID, body.Stage)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, transition)
		return

	case parts[3] == "requests" && r.Method == http.MethodGet:
		requests, err := s.service.ListRequests(r.Context(), clientID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": requests})
		return

	case parts[3] == "requests" && r.Method == http.MethodPost:
		var input RequestInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		submission, err := s.service.SubmitRequest(r.Context(), clientID, input)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, submission)
		return

	case parts[3] == "attachments" && r.Method == http.MethodPost:
		s.handleAttachmentUpload(w, r, clientID)
		return

	case parts[3] == "allowance" && r.Method == http.MethodGet:
		month := s.service.now()
		if raw := r.URL.Query().Get("month"); raw != "" {
			parsed, ok := util.ParseMonth(raw)
			if !ok {
				writeError(w, http.StatusUnprocessableEntity, CodeValidation, "Invalid month", map[string]any{"fields": map[string]string{"month": "must be YYYY-MM"}})
				return
			}
			month = parsed
		}
		allowance, err := s.service.Allowance(r.Context(), clientID, month)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"allowance":       allowance,
			"remaining":       allowance.Remaining(),
			"withinAllowance": allowance.WithinAllowance(),
		})
		return

	case parts[3] == "quota" && r.Method == http.MethodGet:
		allowed, open, err := s.service.CanSubmit(r.Context(), clientID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"canSubmit": allowed, "openRequests": open})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleAttachmentUpload(w http.ResponseWriter, r *http.Request, clientID string) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+maxUploadOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart field \"file\" is required", nil)
		return
	}
	defer file.Close()

	attachment, err := s.service.UploadAttachment(r.Context(), clientID, header.Filename, header.Size, file)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, attachment)
}

func (s *HTTPServer) handleRequests(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 3 && parts[2] == "quote" && r.Method == http.MethodGet {
		quote, err := s.service.QuoteFor(r.URL.Query().Get("tier"))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"quote": quote, "pending": quote.Pending()})
		return
	}

	if len(parts) == 4 && parts[3] == "status" && r.Method == http.MethodPut {
		var body struct {
			Status string `json:"status"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		request, err := s.service.SetRequestStatus(r.Context(), parts[2], body.Status)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, request)
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.String("code", code),
			zap.Error(err),
		)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("http request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, CodeNotFound, "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
