package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spacesedan/reviewradar/internal/access"
	"github.com/spacesedan/reviewradar/internal/models"
	"github.com/spacesedan/reviewradar/internal/review"
)

type memAccounts struct {
	accounts map[string]*models.UserAccount
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: make(map[string]*models.UserAccount)}
}

func (m *memAccounts) GetOrCreateUser(_ context.Context, email string) (models.UserAccount, error) {
	if account, ok := m.accounts[email]; ok {
		return *account, nil
	}
	account := &models.UserAccount{Email: email}
	m.accounts[email] = account
	return *account, nil
}

func (m *memAccounts) IncrementSearches(_ context.Context, email string) (int, error) {
	account, ok := m.accounts[email]
	if !ok {
		return 0, errors.New("no such account")
	}
	if account.SearchesUsed >= 2 {
		return 2, models.ErrTrialExhausted
	}
	account.SearchesUsed++
	return account.SearchesUsed, nil
}

func (m *memAccounts) MarkPremium(_ context.Context, email string) error {
	account, ok := m.accounts[email]
	if !ok {
		return errors.New("no such account")
	}
	account.IsPremium = true
	return nil
}

type memSessions struct {
	sessions map[string]models.Session
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]models.Session)}
}

func (m *memSessions) StoreSession(_ context.Context, session models.Session) error {
	m.sessions[session.Token] = session
	return nil
}

func (m *memSessions) GetSession(_ context.Context, token string) (models.Session, error) {
	session, ok := m.sessions[token]
	if !ok {
		return session, errors.New("no such session")
	}
	return session, nil
}

// memHistory mirrors the review table's keyed-put semantics: a second
// record with the same (email, created_at) key is a conflict, not an
// overwrite.
type memHistory struct {
	records []models.HistoryRecord
	keys    map[string]bool
	saveErr error
}

func (m *memHistory) SaveReview(_ context.Context, record models.HistoryRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	key := fmt.Sprintf("%s#%d", record.Email, record.CreatedAt)
	if m.keys[key] {
		return fmt.Errorf("history record key collision: %s", key)
	}
	m.keys[key] = true
	m.records = append(m.records, record)
	return nil
}

func (m *memHistory) ListRecentReviews(_ context.Context, email string, limit int) ([]models.HistoryRecord, error) {
	var out []models.HistoryRecord
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		if m.records[i].Email == email {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

type noopLocks struct{}

func (noopLocks) AcquireSearchLock(_ context.Context, _ string) bool { return true }
func (noopLocks) ReleaseSearchLock(_ context.Context, _ string)      {}

type memCache struct {
	summaries map[string]models.ReviewSummary
}

func newMemCache() *memCache {
	return &memCache{summaries: make(map[string]models.ReviewSummary)}
}

func (m *memCache) CacheSummary(_ context.Context, product string, summary models.ReviewSummary) error {
	m.summaries[product] = summary
	return nil
}

func (m *memCache) GetCachedSummary(_ context.Context, product string) (models.ReviewSummary, bool) {
	summary, ok := m.summaries[product]
	return summary, ok
}

type fakeSales struct {
	code string
}

func (f *fakeSales) ListAliveSales(_ context.Context, email string) ([]models.GumroadSale, error) {
	if f.code == "" {
		return nil, nil
	}
	return []models.GumroadSale{
		{Email: email, CustomFields: map[string]string{"code": f.code}},
	}, nil
}

type fixedSource struct {
	name  string
	texts []string
}

func (s *fixedSource) Name() string { return s.name }

func (s *fixedSource) Fetch(_ context.Context, _ string) ([]models.Snippet, error) {
	snippets := make([]models.Snippet, 0, len(s.texts))
	for _, text := range s.texts {
		snippets = append(snippets, models.Snippet{Source: s.name, Text: text})
	}
	return snippets, nil
}

// keywordClassifier labels texts containing "great" POSITIVE, the rest
// NEGATIVE, keeping handler tests deterministic.
type keywordClassifier struct{}

func (keywordClassifier) Classify(_ context.Context, texts []string) []models.SentimentResult {
	results := make([]models.SentimentResult, 0, len(texts))
	for _, text := range texts {
		label := models.LabelNegative
		if bytes.Contains([]byte(text), []byte("great")) {
			label = models.LabelPositive
		}
		results = append(results, models.SentimentResult{Label: label, Confidence: 0.9})
	}
	return results
}

type testEnv struct {
	server   *Server
	accounts *memAccounts
	history  *memHistory
}

func newTestEnv(texts []string, code string) *testEnv {
	accounts := newMemAccounts()
	history := &memHistory{}

	srv := New(Deps{
		Gate:       access.NewGate(accounts),
		Verifier:   access.NewVerifier(&fakeSales{code: code}, accounts),
		Fetcher:    review.NewFetcher(&fixedSource{name: "test", texts: texts}),
		Aggregator: review.NewAggregator(keywordClassifier{}),
		History:    history,
		Sessions:   newMemSessions(),
		Locks:      noopLocks{},
		Cache:      newMemCache(),
	})

	return &testEnv{server: srv, accounts: accounts, history: history}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)

	decoded := make(map[string]json.RawMessage)
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, decoded
}

func (e *testEnv) signIn(t *testing.T, email string) string {
	t.Helper()

	rec, body := e.do(t, http.MethodPost, "/api/signin", "", map[string]string{"email": email})
	if rec.Code != http.StatusOK {
		t.Fatalf("signin status = %d, body %s", rec.Code, rec.Body.String())
	}

	var token string
	if err := json.Unmarshal(body["token"], &token); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	return token
}

func TestSignInRejectsBadEmail(t *testing.T) {
	env := newTestEnv(nil, "")

	for _, email := range []string{"", "   ", "no-at-sign"} {
		rec, _ := env.do(t, http.MethodPost, "/api/signin", "", map[string]string{"email": email})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("email %q: status = %d, want 400", email, rec.Code)
		}
	}
}

func TestSearchRequiresSession(t *testing.T) {
	env := newTestEnv(nil, "")

	rec, _ := env.do(t, http.MethodPost, "/api/search", "", map[string]string{"product": "Widget X"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}

	rec, _ = env.do(t, http.MethodPost, "/api/search", "bogus-token", map[string]string{"product": "Widget X"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bogus token: status = %d, want 401", rec.Code)
	}
}

func TestSearchHappyPath(t *testing.T) {
	env := newTestEnv([]string{"great phone", "great battery", "bad screen"}, "")
	token := env.signIn(t, "user@example.com")

	rec, body := env.do(t, http.MethodPost, "/api/search", token, map[string]string{"product": "Widget X"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var summary models.ReviewSummary
	if err := json.Unmarshal(body["summary"], &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Overall != models.LabelPositive {
		t.Errorf("Overall = %q, want POSITIVE", summary.Overall)
	}
	if len(summary.Details) != 3 {
		t.Errorf("got %d details, want 3", len(summary.Details))
	}

	var used int
	if err := json.Unmarshal(body["searches_used"], &used); err != nil {
		t.Fatalf("decode searches_used: %v", err)
	}
	if used != 1 {
		t.Errorf("searches_used = %d, want 1", used)
	}

	if len(env.history.records) != 1 {
		t.Fatalf("got %d history records, want 1", len(env.history.records))
	}
	if env.history.records[0].Product != "Widget X" {
		t.Errorf("record product = %q, want Widget X", env.history.records[0].Product)
	}
}

func TestSearchTrialExhaustion(t *testing.T) {
	env := newTestEnv([]string{"great product with a long body"}, "")
	token := env.signIn(t, "trial@example.com")

	for i := 1; i <= 2; i++ {
		rec, _ := env.do(t, http.MethodPost, "/api/search", token,
			map[string]string{"product": fmt.Sprintf("Product %d", i)})
		if rec.Code != http.StatusOK {
			t.Fatalf("search %d: status = %d, want 200", i, rec.Code)
		}
	}

	rec, _ := env.do(t, http.MethodPost, "/api/search", token, map[string]string{"product": "Product 3"})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("third search: status = %d, want 402", rec.Code)
	}

	if got := env.accounts.accounts["trial@example.com"].SearchesUsed; got != 2 {
		t.Errorf("stored counter = %d, want 2", got)
	}
	if len(env.history.records) != 2 {
		t.Errorf("got %d history records, want 2 (denied search must not record)", len(env.history.records))
	}
}

func TestVerifyUnlocksUnlimitedSearches(t *testing.T) {
	env := newTestEnv([]string{"great product with a long body"}, "abc123")
	token := env.signIn(t, "buyer@example.com")

	rec, _ := env.do(t, http.MethodPost, "/api/verify", token, map[string]string{"code": "wrong"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("wrong code: status = %d, want 403", rec.Code)
	}

	rec, _ = env.do(t, http.MethodPost, "/api/verify", token, map[string]string{"code": "abc123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d, body %s", rec.Code, rec.Body.String())
	}

	for i := 0; i < 5; i++ {
		rec, _ := env.do(t, http.MethodPost, "/api/search", token,
			map[string]string{"product": fmt.Sprintf("Premium product %d", i)})
		if rec.Code != http.StatusOK {
			t.Fatalf("premium search %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	if got := env.accounts.accounts["buyer@example.com"].SearchesUsed; got != 0 {
		t.Errorf("premium counter = %d, want untouched at 0", got)
	}
}

func TestSearchSurvivesHistoryWriteFailure(t *testing.T) {
	env := newTestEnv([]string{"great product with a long body"}, "")
	env.history.saveErr = errors.New("table unavailable")
	token := env.signIn(t, "user@example.com")

	rec, body := env.do(t, http.MethodPost, "/api/search", token, map[string]string{"product": "Widget X"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want verdict despite failed write", rec.Code)
	}

	var warnings []string
	if err := json.Unmarshal(body["warnings"], &warnings); err != nil {
		t.Fatalf("decode warnings: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("got %d warnings, want 1", len(warnings))
	}
}

func TestHistoryEndpoint(t *testing.T) {
	env := newTestEnv([]string{"great product with a long body"}, "")
	token := env.signIn(t, "user@example.com")

	env.do(t, http.MethodPost, "/api/search", token, map[string]string{"product": "Widget X"})
	env.do(t, http.MethodPost, "/api/search", token, map[string]string{"product": "Widget Y"})

	rec, body := env.do(t, http.MethodGet, "/api/history?limit=1", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var records []models.HistoryRecord
	if err := json.Unmarshal(body["records"], &records); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Product != "Widget Y" {
		t.Errorf("newest record = %q, want Widget Y", records[0].Product)
	}
}

func TestHistoryRejectsBadLimit(t *testing.T) {
	env := newTestEnv(nil, "")
	token := env.signIn(t, "user@example.com")

	for _, limit := range []string{"0", "-1", "abc"} {
		rec, _ := env.do(t, http.MethodGet, "/api/history?limit="+limit, token, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit %q: status = %d, want 400", limit, rec.Code)
		}
	}
}

func TestRepeatSearchHitsSummaryCache(t *testing.T) {
	env := newTestEnv([]string{"great product with a long body"}, "abc123")
	token := env.signIn(t, "user@example.com")

	env.do(t, http.MethodPost, "/api/verify", token, map[string]string{"code": "abc123"})

	rec, first := env.do(t, http.MethodPost, "/api/search", token, map[string]string{"product": "Widget X"})
	if rec.Code != http.StatusOK {
		t.Fatalf("first search: status = %d", rec.Code)
	}
	rec, second := env.do(t, http.MethodPost, "/api/search", token, map[string]string{"product": "Widget X"})
	if rec.Code != http.StatusOK {
		t.Fatalf("second search: status = %d", rec.Code)
	}

	if !bytes.Equal(first["summary"], second["summary"]) {
		t.Error("cached summary differs from the first computation")
	}
	// Both searches still land in history.
	if len(env.history.records) != 2 {
		t.Errorf("got %d history records, want 2", len(env.history.records))
	}
}

func TestRapidRepeatSearchesEachRecorded(t *testing.T) {
	env := newTestEnv([]string{"great product with a long body"}, "abc123")
	token := env.signIn(t, "user@example.com")

	env.do(t, http.MethodPost, "/api/verify", token, map[string]string{"code": "abc123"})

	// Back-to-back searches on the same product hit the summary cache and
	// complete well inside a second. Each one must still produce its own
	// history record under a distinct sort key.
	for i := 0; i < 3; i++ {
		rec, _ := env.do(t, http.MethodPost, "/api/search", token, map[string]string{"product": "Widget X"})
		if rec.Code != http.StatusOK {
			t.Fatalf("search %d: status = %d", i+1, rec.Code)
		}
	}

	if len(env.history.records) != 3 {
		t.Fatalf("got %d history records, want 3", len(env.history.records))
	}
	seen := make(map[int64]bool)
	for _, r := range env.history.records {
		if seen[r.CreatedAt] {
			t.Errorf("duplicate created_at %d across records", r.CreatedAt)
		}
		seen[r.CreatedAt] = true
	}
}
