package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spacesedan/reviewradar/internal/models"
)

// AccountStore is the persistence surface the gate drives. The DynamoDB
// store satisfies it; tests use in-memory fakes.
type AccountStore interface {
	GetOrCreateUser(ctx context.Context, email string) (models.UserAccount, error)
	IncrementSearches(ctx context.Context, email string) (int, error)
	MarkPremium(ctx context.Context, email string) error
}

// Gate decides whether a search may proceed. Trial accounts are charged
// through the store's conditional increment, so the decision and the
// counter update are one atomic storage operation.
type Gate struct {
	store AccountStore
}

func NewGate(store AccountStore) *Gate {
	return &Gate{store: store}
}

// SignIn resolves an email to its account, creating Trial(0) on first use.
func (g *Gate) SignIn(ctx context.Context, email string) (models.UserAccount, error) {
	account, err := g.store.GetOrCreateUser(ctx, email)
	if err != nil {
		return account, fmt.Errorf("[Gate] Sign-in failed: %w", err)
	}

	slog.Info("[Gate] User signed in",
		slog.String("email", email),
		slog.Int("searches_used", account.SearchesUsed),
		slog.Bool("is_premium", account.IsPremium))

	return account, nil
}

// AuthorizeSearch admits or denies one search attempt and updates the
// session's counter in place. Premium accounts pass untouched; trial
// accounts pay one search or get models.ErrTrialExhausted.
func (g *Gate) AuthorizeSearch(ctx context.Context, session *models.Session) error {
	if session.IsPremium {
		return nil
	}

	count, err := g.store.IncrementSearches(ctx, session.Email)
	if err != nil {
		if errors.Is(err, models.ErrTrialExhausted) {
			session.SearchesUsed = count
			slog.Info("[Gate] Trial search denied",
				slog.String("email", session.Email))
			return models.ErrTrialExhausted
		}
		return fmt.Errorf("[Gate] Failed to charge trial search: %w", err)
	}

	session.SearchesUsed = count
	slog.Info("[Gate] Trial search admitted",
		slog.String("email", session.Email),
		slog.Int("searches_used", count))

	return nil
}
