package audit

import (
	"context"
	"testing"
	"time"

	"groupwarden/internal/platform"
	"groupwarden/internal/storage"

	"go.uber.org/zap"
)

func TestLogPersistsAndNotifies(t *testing.T) {
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	l := NewLogger(store, zap.NewNop())
	var notified []storage.AuditLog
	l.SetNotifier(func(ctx context.Context, entry storage.AuditLog) {
		notified = append(notified, entry)
	})

	ctx := context.Background()
	group := platform.Normalize("1@g.us")
	user := platform.Normalize("5511@s.whatsapp.net")
	l.Log(ctx, LevelCrit, group, user, "antilink_remove", "warnings exceeded")

	if len(notified) != 1 {
		t.Fatalf("expected one notification, got %d", len(notified))
	}
	if notified[0].Level != LevelCrit || notified[0].Event != "antilink_remove" {
		t.Fatalf("unexpected notification: %+v", notified[0])
	}

	rows, err := store.ListAuditLogs(ctx, group.String(), notified[0].CreatedAt.Add(-time.Minute))
	if err != nil {
		t.Fatalf("ListAuditLogs: %v", err)
	}
	if len(rows) != 1 || rows[0].Event != "antilink_remove" {
		t.Fatalf("expected persisted entry, got %+v", rows)
	}
}
