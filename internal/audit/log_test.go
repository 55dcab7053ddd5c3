package audit

import (
	"context"
	"fmt"
	"testing"

	"github.com/chainbid/relay/internal/models"
)

func TestAppendAndListNewestFirst(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog(10)

	for i := 0; i < 3; i++ {
		err := log.Append(ctx, models.AuditEntry{
			Type:   models.AuditActionContribution,
			Author: "0xabc",
			Meta:   map[string]any{"seq": i},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	entries, err := log.List(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	// Newest first.
	if entries[0].Meta.(map[string]any)["seq"] != 2 {
		t.Fatalf("first entry seq = %v, want 2", entries[0].Meta.(map[string]any)["seq"])
	}
	if entries[0].ID == entries[1].ID {
		t.Fatal("entries should get distinct IDs")
	}
}

func TestListLimit(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog(10)
	for i := 0; i < 5; i++ {
		_ = log.Append(ctx, models.AuditEntry{Type: models.AuditActionCheckin, Author: "0xabc"})
	}

	entries, _ := log.List(ctx, 2)
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
}

func TestBoundedTrimsOldest(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog(3)

	for i := 0; i < 5; i++ {
		_ = log.Append(ctx, models.AuditEntry{
			Type:   models.AuditActionDeploy,
			Author: fmt.Sprintf("0x%d", i),
		})
	}

	entries, _ := log.List(ctx, 100)
	if len(entries) != 3 {
		t.Fatalf("len = %d, want bound of 3", len(entries))
	}
	// The oldest two authors (0x0, 0x1) were dropped.
	if entries[0].Author != "0x4" || entries[2].Author != "0x2" {
		t.Fatalf("unexpected retained window: %s..%s", entries[0].Author, entries[2].Author)
	}
}
