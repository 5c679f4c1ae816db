package clients

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/spacesedan/reviewradar/internal/models"
)

var (
	valkeyInstance *ValkeyClient
	valkeyOnce     sync.Once
)

type ValkeyClient struct {
	Client valkey.Client
	mu     sync.Mutex
}

const (
	VALKEY_SESSION_PREFIX = "session:"
	VALKEY_LOCK_PREFIX    = "lock:search:"
	VALKEY_SUMMARY_PREFIX = "summary:"

	SESSION_TTL_SECONDS = 86400
	LOCK_TTL_SECONDS    = 30
	SUMMARY_TTL_SECONDS = 600
)

func InitValkey() *ValkeyClient {
	valkeyOnce.Do(func() {
		client, err := valkey.NewClient(valkeyOptions())
		if err != nil {
			panic(fmt.Errorf("[ValkeyClient] failed to create Valkey: %w", err))
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*3)
		defer cancel()

		c := client.Do(ctx, client.B().Ping().Build())
		if c.Error() != nil {
			panic(fmt.Errorf("[ValkeyClient] failed to ping Valkey: %w", c.Error()))
		}

		slog.Info("[ValkeyClient] Successfully connected to valkey")

		valkeyInstance = &ValkeyClient{Client: client}
	})
	return valkeyInstance
}

func valkeyOptions() valkey.ClientOption {
	valkeyAddr := os.Getenv("VALKEY_INIT_ADDRESS")
	valkeyPassword := os.Getenv("VALKEY_PASSWORD")
	useTLS := os.Getenv("VALKEY_TLS") == "true"

	opts := valkey.ClientOption{
		InitAddress: []string{
			valkeyAddr,
		},
		Password:         valkeyPassword,
		ConnWriteTimeout: 5 * time.Second,
		SelectDB:         0,
	}

	if useTLS {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: false}
	}

	return opts
}

func (vc *ValkeyClient) recreateClient() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[ValkeyClient] Recreate failed and was recovered from panic",
				slog.Any("panic", r))
		}
	}()

	vc.mu.Lock()
	defer vc.mu.Unlock()
	slog.Warn("[ValkeyClient] Attempting to recreate Valkey client...")
	vc.Client.Close()

	client, err := valkey.NewClient(valkeyOptions())
	if err != nil {
		panic(fmt.Errorf("[ValkeyClient] failed to create Valkey: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*3)
	defer cancel()

	c := client.Do(ctx, client.B().Ping().Build())
	if c.Error() != nil {
		panic(fmt.Errorf("[ValkeyClient] failed to ping Valkey: %w", c.Error()))
	}

	slog.Info("[ValkeyClient] Successfully connected to valkey")
	vc.Client = client
}

func CloseValkey() {
	if valkeyInstance != nil {
		valkeyInstance.Client.Close()
	}
}

func GetValkeyClient() *ValkeyClient {
	if valkeyInstance == nil {
		panic("[ValkeyClient] Error: Valkey client is not initialized")
	}
	return valkeyInstance
}

// StoreSession persists a session for its token with a 24h TTL.
func (vc *ValkeyClient) StoreSession(ctx context.Context, session models.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("[ValkeyClient] Failed to marshal session: %w", err)
	}

	key := VALKEY_SESSION_PREFIX + session.Token
	res := vc.DoWithRetry(ctx, func() valkey.Completed {
		return vc.Client.B().Set().Key(key).Value(string(payload)).ExSeconds(SESSION_TTL_SECONDS).Build()
	}, 3)
	if err := res.Error(); err != nil {
		if isConnectionError(err) {
			vc.recreateClient()
		}
		return err
	}
	return nil
}

// GetSession resolves a token back to its session; a miss returns an error.
func (vc *ValkeyClient) GetSession(ctx context.Context, token string) (models.Session, error) {
	var session models.Session

	key := VALKEY_SESSION_PREFIX + token
	res := vc.DoWithRetry(ctx, func() valkey.Completed {
		return vc.Client.B().Get().Key(key).Build()
	}, 3)
	if err := res.Error(); err != nil {
		if isConnectionError(err) {
			vc.recreateClient()
		}
		return session, err
	}

	payload, err := res.AsBytes()
	if err != nil {
		return session, err
	}
	if err := json.Unmarshal(payload, &session); err != nil {
		return session, fmt.Errorf("[ValkeyClient] Failed to unmarshal session: %w", err)
	}
	return session, nil
}

// AcquireSearchLock serializes searches per identity. Returns false when
// another search for the same email is still in flight.
func (vc *ValkeyClient) AcquireSearchLock(ctx context.Context, email string) bool {
	key := VALKEY_LOCK_PREFIX + email
	res := vc.DoWithRetry(ctx, func() valkey.Completed {
		return vc.Client.B().Set().Key(key).Value("1").Nx().ExSeconds(LOCK_TTL_SECONDS).Build()
	}, 3)
	if err := res.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return false
		}
		if isConnectionError(err) {
			vc.recreateClient()
		}
		// Locking is advisory; storage enforces the trial ceiling.
		slog.Warn("[ValkeyClient] Lock acquisition errored, admitting request",
			slog.String("error", err.Error()))
		return true
	}
	return true
}

func (vc *ValkeyClient) ReleaseSearchLock(ctx context.Context, email string) {
	key := VALKEY_LOCK_PREFIX + email
	res := vc.DoWithRetry(ctx, func() valkey.Completed {
		return vc.Client.B().Del().Key(key).Build()
	}, 3)
	if err := res.Error(); err != nil {
		slog.Warn("[ValkeyClient] Failed to release search lock",
			slog.String("email", email),
			slog.String("error", err.Error()))
	}
}

// CacheSummary stores a computed summary for a product with a short TTL.
func (vc *ValkeyClient) CacheSummary(ctx context.Context, product string, summary models.ReviewSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("[ValkeyClient] Failed to marshal summary: %w", err)
	}

	key := VALKEY_SUMMARY_PREFIX + strings.ToLower(product)
	res := vc.DoWithRetry(ctx, func() valkey.Completed {
		return vc.Client.B().Set().Key(key).Value(string(payload)).ExSeconds(SUMMARY_TTL_SECONDS).Build()
	}, 3)
	return res.Error()
}

func (vc *ValkeyClient) GetCachedSummary(ctx context.Context, product string) (models.ReviewSummary, bool) {
	var summary models.ReviewSummary

	key := VALKEY_SUMMARY_PREFIX + strings.ToLower(product)
	res := vc.DoWithRetry(ctx, func() valkey.Completed {
		return vc.Client.B().Get().Key(key).Build()
	}, 3)
	if err := res.Error(); err != nil {
		if !valkey.IsValkeyNil(err) && isConnectionError(err) {
			vc.recreateClient()
		}
		return summary, false
	}

	payload, err := res.AsBytes()
	if err != nil {
		return summary, false
	}
	if err := json.Unmarshal(payload, &summary); err != nil {
		return summary, false
	}
	return summary, true
}

// DoWithRetry issues the command built by build, retrying transient
// failures. Completed commands are recycled by the client after Do, so
// each attempt has to build a fresh one.
func (vc *ValkeyClient) DoWithRetry(ctx context.Context, build func() valkey.Completed, retries int) valkey.ValkeyResult {
	var result valkey.ValkeyResult
	for i := 0; i < retries; i++ {
		result = vc.Client.Do(ctx, build())
		if result.Error() == nil || valkey.IsValkeyNil(result.Error()) {
			break
		}

		slog.Warn("[ValkeyClient] Do failed",
			slog.Int("attempt", i+1),
			slog.String("error", result.Error().Error()))

		time.Sleep(250 * time.Millisecond)
	}

	return result
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "i/o timeout")
}
