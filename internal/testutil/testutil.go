// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/finitixhub/finitix_be/internal/db"
	"github.com/finitixhub/finitix_be/internal/realtime"
)

// NewDB opens a private in-memory sqlite database with every table migrated.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := db.Connect("sqlite", dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

// Recorder is a realtime.Publisher that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []realtime.ChangeEvent
}

func (r *Recorder) Publish(_ context.Context, ev realtime.ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns the recorded events for table, or all of them when table is empty.
func (r *Recorder) Events(table string) []realtime.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []realtime.ChangeEvent
	for _, ev := range r.events {
		if table == "" || ev.Table == table {
			out = append(out, ev)
		}
	}
	return out
}
