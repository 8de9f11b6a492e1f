package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "duet.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_ReopenTolerant(t *testing.T) {
	// Reopening the same file must tolerate already-applied migrations.
	path := filepath.Join(t.TempDir(), "duet.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	s.Close()
}

func TestCoupleLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.SaveCouple(ctx, Couple{
		UserName: "Ana Silva", UserPhone: "5511911111111",
		PartnerName: "Bruno Costa", PartnerPhone: "5511922222222",
	})
	if err != nil {
		t.Fatal(err)
	}

	// Pending couples are invisible to lookup.
	got, err := s.LookupCouple(ctx, "123@g.us")
	if err != nil || got != nil {
		t.Fatalf("pending couple leaked into lookup: %+v, %v", got, err)
	}

	if err := s.ActivateCouple(ctx, id, "123@g.us"); err != nil {
		t.Fatal(err)
	}

	got, err = s.LookupCouple(ctx, "123@g.us")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("active couple not found")
	}
	if got.UserName != "Ana Silva" || got.PartnerPhone != "5511922222222" || got.Status != "active" {
		t.Errorf("wrong couple: %+v", got)
	}
}

func TestLookupCouple_UnknownGroup(t *testing.T) {
	s := openTestStore(t)

	got, err := s.LookupCouple(context.Background(), "nope@g.us")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("unknown group returned %+v", got)
	}
}

func TestMediationState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	last, count, err := s.MediationState(ctx, "123@g.us")
	if err != nil {
		t.Fatal(err)
	}
	if !last.IsZero() || count != 0 {
		t.Errorf("fresh conversation state = (%v, %d), want (zero, 0)", last, count)
	}

	first := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := s.RecordMediation(ctx, "123@g.us", first); err != nil {
		t.Fatal(err)
	}

	last, count, err = s.MediationState(ctx, "123@g.us")
	if err != nil {
		t.Fatal(err)
	}
	if !last.Equal(first) || count != 1 {
		t.Errorf("state = (%v, %d), want (%v, 1)", last, count, first)
	}

	second := first.Add(10 * time.Minute)
	if err := s.RecordMediation(ctx, "123@g.us", second); err != nil {
		t.Fatal(err)
	}

	last, count, err = s.MediationState(ctx, "123@g.us")
	if err != nil {
		t.Fatal(err)
	}
	if !last.Equal(second) || count != 2 {
		t.Errorf("state after upsert = (%v, %d), want (%v, 2)", last, count, second)
	}
}

func TestMediationState_PerConversation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := s.RecordMediation(ctx, "a@g.us", at); err != nil {
		t.Fatal(err)
	}

	last, count, err := s.MediationState(ctx, "b@g.us")
	if err != nil {
		t.Fatal(err)
	}
	if !last.IsZero() || count != 0 {
		t.Errorf("mediation state leaked across conversations: (%v, %d)", last, count)
	}
}
