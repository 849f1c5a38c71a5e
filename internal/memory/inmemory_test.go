package memory

import (
	"context"
	"fmt"
	"testing"
)

func TestInMemoryStorePutGet(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.Put(ctx, Snippet{Key: "k1", Intent: "DEBUG", Text: "check goroutine dumps"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := s.Get(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.Text != "check goroutine dumps" {
		t.Fatalf("text = %q", got.Text)
	}

	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Fatalf("Get should miss for an unknown key")
	}
}

func TestInMemoryStoreRecentNewestFirst(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		if err := s.Put(ctx, Snippet{
			Key:    fmt.Sprintf("k%d", i),
			Intent: "CREATE",
			Text:   fmt.Sprintf("note %d", i),
		}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	got, err := s.Recent(ctx, "CREATE", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0] != "note 3" || got[1] != "note 2" {
		t.Fatalf("Recent = %v, want newest first capped at 2", got)
	}

	if other, _ := s.Recent(ctx, "DEBUG", 5); len(other) != 0 {
		t.Fatalf("intents must not leak into each other, got %v", other)
	}
}

func TestInMemoryStoreTrimsPerIntentList(t *testing.T) {
	s := NewInMemoryStore()
	s.maxper = 3
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_ = s.Put(ctx, Snippet{Key: fmt.Sprintf("k%d", i), Intent: "DEBUG", Text: fmt.Sprintf("n%d", i)})
	}
	got, err := s.Recent(ctx, "DEBUG", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 || got[0] != "n9" {
		t.Fatalf("Recent = %v, want the 3 newest", got)
	}
}
