package server

import (
	"context"
	"crypto/rand"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spacesedan/reviewradar/internal/access"
	"github.com/spacesedan/reviewradar/internal/models"
	"github.com/spacesedan/reviewradar/internal/review"
)

//go:embed static
var staticFS embed.FS

// HistoryStore records completed searches and lists them back.
type HistoryStore interface {
	SaveReview(ctx context.Context, record models.HistoryRecord) error
	ListRecentReviews(ctx context.Context, email string, limit int) ([]models.HistoryRecord, error)
}

// SessionStore resolves bearer tokens to sessions.
type SessionStore interface {
	StoreSession(ctx context.Context, session models.Session) error
	GetSession(ctx context.Context, token string) (models.Session, error)
}

// SearchLocker serializes search actions per identity.
type SearchLocker interface {
	AcquireSearchLock(ctx context.Context, email string) bool
	ReleaseSearchLock(ctx context.Context, email string)
}

// SummaryCache short-circuits repeat searches for the same product.
type SummaryCache interface {
	CacheSummary(ctx context.Context, product string, summary models.ReviewSummary) error
	GetCachedSummary(ctx context.Context, product string) (models.ReviewSummary, bool)
}

// Server wires the page actions to the gate, fetcher, aggregator and
// stores. Every dependency is injected; nothing is looked up ambiently.
type Server struct {
	gate       *access.Gate
	verifier   *access.Verifier
	fetcher    *review.Fetcher
	aggregator *review.Aggregator
	history    HistoryStore
	sessions   SessionStore
	locks      SearchLocker
	cache      SummaryCache

	mux *http.ServeMux
}

type Deps struct {
	Gate       *access.Gate
	Verifier   *access.Verifier
	Fetcher    *review.Fetcher
	Aggregator *review.Aggregator
	History    HistoryStore
	Sessions   SessionStore
	Locks      SearchLocker
	Cache      SummaryCache
}

func New(deps Deps) *Server {
	s := &Server{
		gate:       deps.Gate,
		verifier:   deps.Verifier,
		fetcher:    deps.Fetcher,
		aggregator: deps.Aggregator,
		history:    deps.History,
		sessions:   deps.Sessions,
		locks:      deps.Locks,
		cache:      deps.Cache,
		mux:        http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("POST /api/signin", s.handleSignIn)
	s.mux.HandleFunc("POST /api/search", s.withSession(s.handleSearch))
	s.mux.HandleFunc("POST /api/verify", s.withSession(s.handleVerify))
	s.mux.HandleFunc("GET /api/history", s.withSession(s.handleHistory))
	s.mux.HandleFunc("GET /", s.handleIndex)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// sessionHandler receives the resolved session after bearer-token auth.
type sessionHandler func(w http.ResponseWriter, r *http.Request, session models.Session)

func (s *Server) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		session, err := s.sessions.GetSession(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}

		next(w, r, session)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	page, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "page unavailable")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func newSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("[Server] Failed to mint session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *Server) storeSession(ctx context.Context, session models.Session) {
	if err := s.sessions.StoreSession(ctx, session); err != nil {
		slog.Warn("[Server] Failed to persist session",
			slog.String("email", session.Email),
			slog.String("error", err.Error()))
	}
}

func newSession(token string, account models.UserAccount) models.Session {
	return models.Session{
		Token:        token,
		Email:        account.Email,
		SearchesUsed: account.SearchesUsed,
		IsPremium:    account.IsPremium,
		CreatedAt:    time.Now(),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("[Server] Failed to encode response",
			slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
