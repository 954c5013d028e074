package store

import (
	"errors"
	"testing"
	"time"
)

func TestSessionRepository_SaveAndGet(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	started := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)
	stopped := started.Add(30 * time.Second)
	sess := &Session{
		ID:        "session-1",
		StartedAt: started,
		StoppedAt: &stopped,
		Counts:    map[string]int{"happy": 3, "sad": 1},
		Total:     4,
	}

	if err := repo.Save(sess); err != nil {
		t.Fatalf("failed to save session: %v", err)
	}

	got, err := repo.GetByID("session-1")
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}

	if got.Total != 4 {
		t.Errorf("expected total 4, got %d", got.Total)
	}
	if got.Counts["happy"] != 3 || got.Counts["sad"] != 1 {
		t.Errorf("expected counts {happy:3 sad:1}, got %v", got.Counts)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("expected started_at %v, got %v", started, got.StartedAt)
	}
	if got.StoppedAt == nil || !got.StoppedAt.Equal(stopped) {
		t.Errorf("expected stopped_at %v, got %v", stopped, got.StoppedAt)
	}
}

func TestSessionRepository_SaveUpserts(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	sess := &Session{ID: "session-1", StartedAt: time.Now(), Counts: map[string]int{"happy": 1}, Total: 1}
	if err := repo.Save(sess); err != nil {
		t.Fatalf("failed to save session: %v", err)
	}

	sess.Counts = map[string]int{"happy": 2, "fear": 1}
	sess.Total = 3
	if err := repo.Save(sess); err != nil {
		t.Fatalf("failed to resave session: %v", err)
	}

	list, err := repo.List(0)
	if err != nil {
		t.Fatalf("failed to list sessions: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 session, got %d", len(list))
	}
	if list[0].Total != 3 {
		t.Errorf("expected total 3, got %d", list[0].Total)
	}
}

func TestSessionRepository_EmptyCounts(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	if err := repo.Save(&Session{ID: "empty", StartedAt: time.Now()}); err != nil {
		t.Fatalf("failed to save session: %v", err)
	}

	got, err := repo.GetByID("empty")
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if got.Counts == nil || len(got.Counts) != 0 {
		t.Errorf("expected empty non-nil counts, got %v", got.Counts)
	}
	if got.StoppedAt != nil {
		t.Errorf("expected nil stopped_at, got %v", got.StoppedAt)
	}
}

func TestSessionRepository_GetByID_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Sessions().GetByID("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionRepository_ListOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"a", "b", "c"} {
		sess := &Session{ID: id, StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := repo.Save(sess); err != nil {
			t.Fatalf("failed to save session %s: %v", id, err)
		}
	}

	list, err := repo.List(2)
	if err != nil {
		t.Fatalf("failed to list sessions: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}
	if list[0].ID != "c" || list[1].ID != "b" {
		t.Errorf("expected [c b], got [%s %s]", list[0].ID, list[1].ID)
	}
}

func TestSessionRepository_Delete(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	if err := repo.Save(&Session{ID: "gone", StartedAt: time.Now()}); err != nil {
		t.Fatalf("failed to save session: %v", err)
	}
	if err := repo.Delete("gone"); err != nil {
		t.Fatalf("failed to delete session: %v", err)
	}
	if err := repo.Delete("gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}
