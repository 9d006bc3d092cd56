package session

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestCreateLoadSave(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)

	sess, err := store.Create("s-0001")
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}
	if sess.State != StateCreated {
		t.Fatalf("State = %v, want %v", sess.State, StateCreated)
	}
	wantWorkspace := filepath.Join(root, "sessions", "s-0001", "workspace")
	if sess.Workspace != wantWorkspace {
		t.Fatalf("Workspace = %q, want %q", sess.Workspace, wantWorkspace)
	}

	sess.State = StateRunning
	if err := sess.Save(); err != nil {
		t.Fatalf("Save() = %v", err)
	}

	reloaded, err := store.Load("s-0001")
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if reloaded.State != StateRunning {
		t.Fatalf("reloaded.State = %v, want %v", reloaded.State, StateRunning)
	}

	reloaded.Finish(0, "ok")
	if err := reloaded.Save(); err != nil {
		t.Fatalf("Save() after Finish = %v", err)
	}

	final, err := store.Load("s-0001")
	if err != nil {
		t.Fatalf("Load() after Finish = %v", err)
	}
	if final.State != StateFinished || final.ReturnValue != "ok" {
		t.Fatalf("final = %+v, want finished/ok", final)
	}
}

func TestLoadMissing(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Load("does-not-exist")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() = %v, want ErrNotFound", err)
	}
}
