package access

import (
	"context"
	"errors"
	"testing"

	"github.com/spacesedan/reviewradar/internal/models"
)

type fakeSales struct {
	sales []models.GumroadSale
	err   error
}

func (f *fakeSales) ListAliveSales(_ context.Context, _ string) ([]models.GumroadSale, error) {
	return f.sales, f.err
}

func TestVerifySubscription(t *testing.T) {
	tests := []struct {
		name  string
		sales []models.GumroadSale
		err   error
		code  string
		want  bool
	}{
		{
			name: "matching code",
			sales: []models.GumroadSale{
				{Email: "buyer@example.com", CustomFields: map[string]string{"code": "abc123"}},
			},
			code: "abc123",
			want: true,
		},
		{
			name: "non-matching code",
			sales: []models.GumroadSale{
				{Email: "buyer@example.com", CustomFields: map[string]string{"code": "abc123"}},
			},
			code: "wrong",
			want: false,
		},
		{
			name:  "no alive sales",
			sales: nil,
			code:  "abc123",
			want:  false,
		},
		{
			name: "sale without custom fields",
			sales: []models.GumroadSale{
				{Email: "buyer@example.com"},
			},
			code: "abc123",
			want: false,
		},
		{
			name: "provider error fails closed",
			err:  errors.New("connection refused"),
			code: "abc123",
			want: false,
		},
		{
			name: "empty code never verifies",
			sales: []models.GumroadSale{
				{Email: "buyer@example.com", CustomFields: map[string]string{"code": ""}},
			},
			code: "",
			want: false,
		},
		{
			name: "second sale matches",
			sales: []models.GumroadSale{
				{Email: "buyer@example.com", CustomFields: map[string]string{"code": "old"}},
				{Email: "buyer@example.com", CustomFields: map[string]string{"code": "abc123"}},
			},
			code: "abc123",
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := NewVerifier(&fakeSales{sales: tt.sales, err: tt.err}, newMemStore())

			got := verifier.VerifySubscription(context.Background(), "buyer@example.com", tt.code)
			if got != tt.want {
				t.Errorf("VerifySubscription = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUpgradeMarksAccountPremium(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	if _, err := store.GetOrCreateUser(ctx, "buyer@example.com"); err != nil {
		t.Fatalf("GetOrCreateUser failed: %v", err)
	}

	verifier := NewVerifier(&fakeSales{sales: []models.GumroadSale{
		{Email: "buyer@example.com", CustomFields: map[string]string{"code": "abc123"}},
	}}, store)

	session := models.Session{Email: "buyer@example.com"}
	verified, err := verifier.Upgrade(ctx, &session, "abc123")
	if err != nil {
		t.Fatalf("Upgrade failed: %v", err)
	}
	if !verified {
		t.Fatal("Upgrade = false, want true")
	}
	if !session.IsPremium {
		t.Error("session not flipped to premium")
	}
	if !store.accounts["buyer@example.com"].IsPremium {
		t.Error("stored account not marked premium")
	}
}

func TestUpgradeWithBadCodeLeavesTrialState(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	if _, err := store.GetOrCreateUser(ctx, "buyer@example.com"); err != nil {
		t.Fatalf("GetOrCreateUser failed: %v", err)
	}

	verifier := NewVerifier(&fakeSales{}, store)

	session := models.Session{Email: "buyer@example.com"}
	verified, err := verifier.Upgrade(ctx, &session, "nope")
	if err != nil {
		t.Fatalf("Upgrade errored: %v", err)
	}
	if verified {
		t.Fatal("Upgrade = true, want false")
	}
	if session.IsPremium || store.accounts["buyer@example.com"].IsPremium {
		t.Error("trial account was upgraded on a bad code")
	}
}
