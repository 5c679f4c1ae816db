package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spacesedan/reviewradar/internal/models"
)

const DEFAULT_HISTORY_LIMIT = 10

type signInRequest struct {
	Email string `json:"email"`
}

type signInResponse struct {
	Token        string `json:"token"`
	SearchesUsed int    `json:"searches_used"`
	IsPremium    bool   `json:"is_premium"`
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	account, err := s.gate.SignIn(r.Context(), email)
	if err != nil {
		slog.Error("[Server] Sign-in failed",
			slog.String("email", email),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "sign-in failed")
		return
	}

	token, err := newSessionToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "sign-in failed")
		return
	}

	session := newSession(token, account)
	if err := s.sessions.StoreSession(r.Context(), session); err != nil {
		slog.Error("[Server] Failed to store session",
			slog.String("email", email),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "sign-in failed")
		return
	}

	writeJSON(w, http.StatusOK, signInResponse{
		Token:        token,
		SearchesUsed: account.SearchesUsed,
		IsPremium:    account.IsPremium,
	})
}

type searchRequest struct {
	Product string `json:"product"`
}

type searchResponse struct {
	Summary      models.ReviewSummary `json:"summary"`
	Warnings     []string             `json:"warnings,omitempty"`
	SearchesUsed int                  `json:"searches_used"`
	IsPremium    bool                 `json:"is_premium"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, session models.Session) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	product := strings.TrimSpace(req.Product)
	if product == "" {
		writeError(w, http.StatusBadRequest, "a product name is required")
		return
	}

	if !s.locks.AcquireSearchLock(r.Context(), session.Email) {
		writeError(w, http.StatusConflict, "another search is already running")
		return
	}
	defer s.locks.ReleaseSearchLock(r.Context(), session.Email)

	if err := s.gate.AuthorizeSearch(r.Context(), &session); err != nil {
		if errors.Is(err, models.ErrTrialExhausted) {
			s.storeSession(r.Context(), session)
			writeError(w, http.StatusPaymentRequired,
				"free searches used up - verify your subscription to continue")
			return
		}
		slog.Error("[Server] Search authorization failed",
			slog.String("email", session.Email),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	s.storeSession(r.Context(), session)

	summary, warnings := s.runSearch(r, product)

	record := models.HistoryRecord{
		ID:           uuid.NewString(),
		Email:        session.Email,
		Product:      product,
		AvgScore:     summary.AvgScore,
		Overall:      summary.Overall,
		SearchesUsed: session.SearchesUsed,
		CreatedAt:    time.Now().UnixNano(),
	}
	if details, err := json.Marshal(summary.Details); err == nil {
		record.DetailsJSON = string(details)
	}

	if err := s.history.SaveReview(r.Context(), record); err != nil {
		// The verdict still goes back to the user; the miss is surfaced.
		slog.Error("[Server] Failed to save history record",
			slog.String("email", session.Email),
			slog.String("product", product),
			slog.String("error", err.Error()))
		warnings = append(warnings, "history save failed")
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Summary:      summary,
		Warnings:     warnings,
		SearchesUsed: session.SearchesUsed,
		IsPremium:    session.IsPremium,
	})
}

func (s *Server) runSearch(r *http.Request, product string) (models.ReviewSummary, []string) {
	if cached, ok := s.cache.GetCachedSummary(r.Context(), product); ok {
		slog.Info("[Server] Summary cache hit", slog.String("product", product))
		return cached, nil
	}

	snippets, warnings := s.fetcher.FetchAll(r.Context(), product)
	summary := s.aggregator.Summarize(r.Context(), snippets)

	if summary.Overall != models.LabelNoData {
		if err := s.cache.CacheSummary(r.Context(), product, summary); err != nil {
			slog.Warn("[Server] Failed to cache summary",
				slog.String("product", product),
				slog.String("error", err.Error()))
		}
	}

	return summary, warnings
}

type verifyRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request, session models.Session) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	verified, err := s.verifier.Upgrade(r.Context(), &session, strings.TrimSpace(req.Code))
	if err != nil {
		slog.Error("[Server] Upgrade failed after verification",
			slog.String("email", session.Email),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "upgrade failed")
		return
	}
	if !verified {
		writeError(w, http.StatusForbidden, "invalid subscription - check email or contact support")
		return
	}

	s.storeSession(r.Context(), session)
	writeJSON(w, http.StatusOK, map[string]bool{"premium": true})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, session models.Session) {
	limit := DEFAULT_HISTORY_LIMIT
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := s.history.ListRecentReviews(r.Context(), session.Email, limit)
	if err != nil {
		slog.Error("[Server] Failed to list history",
			slog.String("email", session.Email),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}
