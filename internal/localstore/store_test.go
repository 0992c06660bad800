package localstore

import (
	"context"
	"path/filepath"
	"testing"
)

func TestMemoryStoreRoundtrip(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, KeySession); err != nil || ok {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, KeySession, `{"token":"abc"}`); err != nil {
		t.Fatalf("Set: %v", err)
	}

	v, ok, err := s.Get(ctx, KeySession)
	if err != nil || !ok {
		t.Fatalf("Get after Set: ok=%v err=%v", ok, err)
	}
	if v != `{"token":"abc"}` {
		t.Errorf("unexpected value %q", v)
	}

	if err := s.Delete(ctx, KeySession); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, KeySession); ok {
		t.Error("expected key gone after Delete")
	}
}

func TestSQLiteStoreRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer s.Close()

	ctx := context.Background()

	if err := s.Set(ctx, KeyPreferences, `{"sidebar_open":true}`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	// Overwrite.
	if err := s.Set(ctx, KeyPreferences, `{"sidebar_open":false}`); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}

	v, ok, err := s.Get(ctx, KeyPreferences)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if v != `{"sidebar_open":false}` {
		t.Errorf("expected overwritten value, got %q", v)
	}

	if err := s.Delete(ctx, KeyPreferences); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, KeyPreferences); ok {
		t.Error("expected key gone after Delete")
	}

	// Deleting a missing key is fine.
	if err := s.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete missing key: %v", err)
	}
}

func TestReadWriteJSON(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	type prefs struct {
		SidebarOpen bool   `json:"sidebar_open"`
		CurrentPage string `json:"current_page"`
	}

	var out prefs
	ok, err := ReadJSON(ctx, s, KeyPreferences, &out)
	if err != nil {
		t.Fatalf("ReadJSON empty: %v", err)
	}
	if ok {
		t.Fatal("expected missing key")
	}

	in := prefs{SidebarOpen: true, CurrentPage: "billing"}
	if err := WriteJSON(ctx, s, KeyPreferences, in); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	ok, err = ReadJSON(ctx, s, KeyPreferences, &out)
	if err != nil || !ok {
		t.Fatalf("ReadJSON: ok=%v err=%v", ok, err)
	}
	if out != in {
		t.Errorf("roundtrip mismatch: got %+v want %+v", out, in)
	}

	// Corrupt value surfaces a decode error.
	if err := s.Set(ctx, KeyPreferences, "{not json"); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadJSON(ctx, s, KeyPreferences, &out); err == nil {
		t.Error("expected decode error for corrupt value")
	}
}
