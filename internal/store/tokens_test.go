package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/oneone404/One-Shield-sub000/internal/models"
	"github.com/oneone404/One-Shield-sub000/internal/tenancy"
)

func seedToken(t *testing.T, s *Store, orgID string, mutate func(*models.OrganizationToken)) *models.OrganizationToken {
	t.Helper()
	tok := &models.OrganizationToken{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Token:     "ORG_" + uuid.NewString()[:8] + "_" + uuid.NewString()[:8],
		Name:      "deploy",
		IsActive:  true,
		CreatedBy: "admin",
	}
	if mutate != nil {
		mutate(tok)
	}
	if err := s.CreateOrgToken(context.Background(), tok); err != nil {
		t.Fatalf("CreateOrgToken: %v", err)
	}
	return tok
}

func TestOrgTokenCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	org := seedOrg(t, s, tenancy.TierOrganization, 10)

	maxUses := 5
	tok := seedToken(t, s, org.ID, func(o *models.OrganizationToken) { o.MaxUses = &maxUses })

	got, err := s.GetOrgToken(ctx, tok.ID)
	if err != nil {
		t.Fatalf("GetOrgToken: %v", err)
	}
	if got == nil {
		t.Fatal("GetOrgToken returned nil")
	}
	if got.UsesCount != 0 {
		t.Errorf("UsesCount = %d, want 0", got.UsesCount)
	}
	if got.MaxUses == nil || *got.MaxUses != 5 {
		t.Errorf("MaxUses = %v, want 5", got.MaxUses)
	}
	if !got.IsActive {
		t.Error("token should be active")
	}

	seedToken(t, s, org.ID, nil)
	list, err := s.ListOrgTokens(ctx, org.ID)
	if err != nil {
		t.Fatalf("ListOrgTokens: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 tokens, got %d", len(list))
	}
}

func TestTryUseToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	org := seedOrg(t, s, tenancy.TierOrganization, 10)
	now := time.Now().UTC()

	tok := seedToken(t, s, org.ID, nil)

	used, err := s.TryUseToken(ctx, tok.Token, now)
	if err != nil {
		t.Fatalf("TryUseToken: %v", err)
	}
	if used == nil {
		t.Fatal("expected a granted use")
	}
	if used.UsesCount != 1 {
		t.Errorf("UsesCount = %d, want 1", used.UsesCount)
	}

	// Unknown value
	used, err = s.TryUseToken(ctx, "ORG_00000000_00000000", now)
	if err != nil {
		t.Fatal(err)
	}
	if used != nil {
		t.Error("unknown token should be refused")
	}

	// Expired
	past := now.Add(-time.Hour)
	expired := seedToken(t, s, org.ID, func(o *models.OrganizationToken) { o.ExpiresAt = &past })
	used, err = s.TryUseToken(ctx, expired.Token, now)
	if err != nil {
		t.Fatal(err)
	}
	if used != nil {
		t.Error("expired token should be refused")
	}

	// Exhausted
	one := 1
	capped := seedToken(t, s, org.ID, func(o *models.OrganizationToken) { o.MaxUses = &one })
	if used, err = s.TryUseToken(ctx, capped.Token, now); err != nil || used == nil {
		t.Fatalf("first use: used=%v err=%v", used, err)
	}
	used, err = s.TryUseToken(ctx, capped.Token, now)
	if err != nil {
		t.Fatal(err)
	}
	if used != nil {
		t.Error("exhausted token should be refused")
	}
}

func TestRevokeOrgToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	org := seedOrg(t, s, tenancy.TierOrganization, 10)
	tok := seedToken(t, s, org.ID, nil)

	// Wrong org is a no-op.
	revoked, err := s.RevokeOrgToken(ctx, tok.ID, uuid.NewString())
	if err != nil {
		t.Fatal(err)
	}
	if revoked {
		t.Error("cross-tenant revoke should not match")
	}

	revoked, err = s.RevokeOrgToken(ctx, tok.ID, org.ID)
	if err != nil {
		t.Fatalf("RevokeOrgToken: %v", err)
	}
	if !revoked {
		t.Fatal("expected revoke to match the row")
	}

	got, err := s.GetOrgToken(ctx, tok.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsActive {
		t.Error("token should be inactive after revoke")
	}
	if got.RevokedAt == nil {
		t.Error("RevokedAt should be set")
	}

	// Revocation is terminal: the second call matches nothing.
	revoked, err = s.RevokeOrgToken(ctx, tok.ID, org.ID)
	if err != nil {
		t.Fatal(err)
	}
	if revoked {
		t.Error("second revoke should not match")
	}

	used, err := s.TryUseToken(ctx, tok.Token, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if used != nil {
		t.Error("revoked token should be refused")
	}
}

func TestTryUseTokenConcurrent(t *testing.T) {
	s := newTestStore(t)
	org := seedOrg(t, s, tenancy.TierOrganization, 10)

	maxUses := 2
	tok := seedToken(t, s, org.ID, func(o *models.OrganizationToken) { o.MaxUses = &maxUses })

	const workers = 8
	granted := make(chan bool, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			used, err := s.TryUseToken(context.Background(), tok.Token, time.Now())
			if err != nil {
				t.Errorf("TryUseToken: %v", err)
				return
			}
			granted <- used != nil
		}()
	}
	wg.Wait()
	close(granted)

	wins := 0
	for ok := range granted {
		if ok {
			wins++
		}
	}
	if wins != maxUses {
		t.Errorf("granted %d uses, want exactly %d", wins, maxUses)
	}

	after, err := s.GetOrgToken(context.Background(), tok.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.UsesCount != maxUses {
		t.Errorf("UsesCount = %d, want %d", after.UsesCount, maxUses)
	}
}
