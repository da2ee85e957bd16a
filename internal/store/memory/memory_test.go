package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"taskflow.dev/internal/auth"
	"taskflow.dev/internal/task"
	"taskflow.dev/internal/team"
)

func seed(t *testing.T, s *Store, id, email string) {
	t.Helper()
	if err := s.Create(context.Background(), &auth.Principal{ID: id, Email: email, Nickname: id, Role: auth.RoleUser}); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestPrincipalsUniqueEmail(t *testing.T) {
	s := New()
	seed(t, s, "p1", "a@example.com")
	err := s.Create(context.Background(), &auth.Principal{ID: "p2", Email: "a@example.com"})
	if !errors.Is(err, auth.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	if _, err := s.FindByEmail(context.Background(), "missing@example.com"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertConcurrentOneRow(t *testing.T) {
	s := New()
	seed(t, s, "p1", "a@example.com")
	now := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Upsert(context.Background(), "p1", string(rune('A'+i)), "h", now.Add(time.Hour), now); err != nil {
				t.Errorf("Upsert: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if n := s.RefreshCount("p1"); n != 1 {
		t.Fatalf("expected one slot, got %d", n)
	}
	if _, err := s.Upsert(context.Background(), "ghost", "x", "h", now, now); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown principal, got %v", err)
	}
}

func TestRevokeIsHashConditioned(t *testing.T) {
	s := New()
	seed(t, s, "p1", "a@example.com")
	now := time.Now().UTC()
	row, _ := s.Upsert(context.Background(), "p1", "slot", "old", now.Add(time.Hour), now)
	_, _ = s.Upsert(context.Background(), "p1", "ignored", "new", now.Add(time.Hour), now)

	ok, err := s.Revoke(context.Background(), row.ID, "old")
	if err != nil || ok {
		t.Fatalf("stale hash must not revoke: ok=%v err=%v", ok, err)
	}
	ok, _ = s.Revoke(context.Background(), row.ID, "new")
	if !ok {
		t.Fatalf("expected revoke with current hash")
	}
	got, _ := s.Get(context.Background(), "slot")
	if !got.Revoked {
		t.Fatalf("row not revoked")
	}
}

func TestDeletePrincipalCascades(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, "p1", "a@example.com")
	seed(t, s, "p2", "b@example.com")
	now := time.Now().UTC()
	_, _ = s.Upsert(ctx, "p1", "slot", "h", now.Add(time.Hour), now)
	_ = s.CreateTeam(ctx, &team.Team{ID: "t1", Name: "core", CreatedBy: "p2"})
	_ = s.AddMember(ctx, team.Member{TeamID: "t1", UserID: "p1", JoinedAt: now})
	_ = s.CreateTask(ctx, &task.Task{ID: "k1", Title: "x", CreatedBy: "p2", AssignedTo: "p1"})

	if err := s.Delete(ctx, "p1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.GetByPrincipal(ctx, "p1"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("refresh slot survived: %v", err)
	}
	tm, _ := s.GetTeam(ctx, "t1")
	if tm.MemberCount != 0 {
		t.Fatalf("membership survived")
	}
	k, _ := s.GetTask(ctx, "k1")
	if k.AssignedTo != "" {
		t.Fatalf("assignee not cleared")
	}
}

func TestMembershipRules(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.CreateTeam(ctx, &team.Team{ID: "t1", Name: "core"})
	m := team.Member{TeamID: "t1", UserID: "p1"}
	if err := s.AddMember(ctx, m); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if err := s.AddMember(ctx, m); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := s.RemoveMember(ctx, "t1", "p2"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteTeam(ctx, "t1"); err != nil {
		t.Fatalf("DeleteTeam: %v", err)
	}
	if ok, _ := s.TeamExists(ctx, "t1"); ok {
		t.Fatalf("team still exists")
	}
}
