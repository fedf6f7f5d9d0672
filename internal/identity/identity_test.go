package identity

import (
	"testing"
	"time"
)

func TestDocIDStable(t *testing.T) {
	first, err := DocID("paperless:4211")
	if err != nil {
		t.Fatalf("DocID returned error: %v", err)
	}
	second, err := DocID("paperless:4211")
	if err != nil {
		t.Fatalf("DocID returned error: %v", err)
	}
	if first != second {
		t.Fatalf("expected stable id, got %s and %s", first, second)
	}
	other, err := DocID("paperless:4212")
	if err != nil {
		t.Fatalf("DocID returned error: %v", err)
	}
	if other == first {
		t.Fatalf("distinct sources produced the same id %s", first)
	}
}

func TestDocIDRequiresSource(t *testing.T) {
	if _, err := DocID("  "); err == nil {
		t.Fatal("expected error for blank source file id")
	}
}

func TestResolvePrefersUnexpiredKey(t *testing.T) {
	now := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	stored := Key{Value: "existing", ExpiresAt: now.Add(time.Hour)}
	key, rotated, err := Resolve(stored, "paperless:77", 24*time.Hour, now)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if rotated {
		t.Fatal("expected stored key to be kept")
	}
	if key.Value != "existing" {
		t.Fatalf("expected stored key, got %q", key.Value)
	}
}

func TestResolveRotatesExpiredKey(t *testing.T) {
	now := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	stored := Key{Value: "stale", ExpiresAt: now.Add(-time.Minute)}
	key, rotated, err := Resolve(stored, "paperless:77", 24*time.Hour, now)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !rotated {
		t.Fatal("expected expired key to rotate")
	}
	if key.Value == "stale" || key.Value == "" {
		t.Fatalf("expected fresh key, got %q", key.Value)
	}
	if got, want := key.ExpiresAt, now.Add(24*time.Hour); !got.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, got)
	}
}
