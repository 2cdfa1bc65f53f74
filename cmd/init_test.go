package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/marcus/lists/internal/db"
	"github.com/marcus/lists/internal/models"
	"github.com/marcus/lists/internal/remote/memstore"
)

func TestInitWorkspace(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("node_modules/"), 0644); err != nil {
		t.Fatal(err)
	}

	created, err := initWorkspace(dir)
	if err != nil {
		t.Fatalf("initWorkspace: %v", err)
	}
	if !created {
		t.Fatal("first init should create the database")
	}
	if !db.Exists(dir) {
		t.Fatal("database file missing")
	}

	created, err = initWorkspace(dir)
	if err != nil {
		t.Fatalf("second initWorkspace: %v", err)
	}
	if created {
		t.Error("second init should be a no-op")
	}

	data, _ := os.ReadFile(filepath.Join(dir, ".gitignore"))
	if got := string(data); got != "node_modules/\n.lists/\n" {
		t.Errorf(".gitignore = %q", got)
	}
}

func TestAddToGitignoreSkipsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".gitignore")
	addToGitignore(path)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("should not create .gitignore, stat err = %v", err)
	}
}

func TestUpdateProfileCreatesAndKeepsWatermark(t *testing.T) {
	database := setupWorkspace(t)
	ctx := context.Background()

	if err := database.SaveProfile(ctx, "alice", &models.Profile{UserID: "alice", LastSyncTime: 42}); err != nil {
		t.Fatal(err)
	}
	err := updateProfile(ctx, database, "alice", func(p *models.Profile) {
		p.Name = "Alice"
		p.SyncOnStartup = true
	})
	if err != nil {
		t.Fatalf("updateProfile: %v", err)
	}
	p, err := database.GetProfile(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "Alice" || !p.SyncOnStartup || p.LastSyncTime != 42 {
		t.Errorf("profile = %+v", p)
	}

	if err := updateProfile(ctx, database, "bob", func(p *models.Profile) { p.Email = "b@x" }); err != nil {
		t.Fatal(err)
	}
	p, _ = database.GetProfile(ctx, "bob")
	if p == nil || p.UserID != "bob" || p.Email != "b@x" {
		t.Errorf("bob profile = %+v", p)
	}
}

type provisioningStore struct {
	*memstore.Store
	calls int
	err   error
}

func (p *provisioningStore) EnsureTable(context.Context) error {
	p.calls++
	return p.err
}

func TestProvision(t *testing.T) {
	ctx := context.Background()

	if err := provision(ctx, memstore.New()); err != nil {
		t.Errorf("store without tables: %v", err)
	}

	ps := &provisioningStore{Store: memstore.New()}
	if err := provision(ctx, ps); err != nil || ps.calls != 1 {
		t.Errorf("provision = %v, calls = %d", err, ps.calls)
	}

	boom := errors.New("access denied")
	ps = &provisioningStore{Store: memstore.New(), err: boom}
	if err := provision(ctx, ps); !errors.Is(err, boom) {
		t.Errorf("provision error = %v, want %v", err, boom)
	}
}
