package access

import (
	"context"
	"log/slog"

	"github.com/spacesedan/reviewradar/internal/models"
)

// SalesLister is the slice of the Gumroad client the verifier needs.
type SalesLister interface {
	ListAliveSales(ctx context.Context, email string) ([]models.GumroadSale, error)
}

// Verifier checks a subscription code against the payment provider and
// upgrades the account on a match. The code is a weak shared secret
// compared against provider metadata, not an auth token.
type Verifier struct {
	sales SalesLister
	store AccountStore
}

func NewVerifier(sales SalesLister, store AccountStore) *Verifier {
	return &Verifier{sales: sales, store: store}
}

// VerifySubscription returns true only when an alive sale for the email
// carries a custom "code" field equal to the supplied code. Every other
// outcome, provider errors included, is "not verified".
func (v *Verifier) VerifySubscription(ctx context.Context, email, code string) bool {
	if email == "" || code == "" {
		return false
	}

	sales, err := v.sales.ListAliveSales(ctx, email)
	if err != nil {
		slog.Warn("[Verifier] Provider check failed, treating as not verified",
			slog.String("email", email),
			slog.String("error", err.Error()))
		return false
	}

	for _, sale := range sales {
		if sale.CustomFields["code"] == code {
			return true
		}
	}

	return false
}

// Upgrade verifies the code and, on success, flips the account and the
// session to premium. Irreversible within this system.
func (v *Verifier) Upgrade(ctx context.Context, session *models.Session, code string) (bool, error) {
	if !v.VerifySubscription(ctx, session.Email, code) {
		return false, nil
	}

	if err := v.store.MarkPremium(ctx, session.Email); err != nil {
		return false, err
	}

	session.IsPremium = true
	slog.Info("[Verifier] Subscription verified, account upgraded",
		slog.String("email", session.Email))

	return true, nil
}
