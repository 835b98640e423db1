package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"onboardbot/internal/model"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s := NewFileStore(t.TempDir())
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return s
}

func TestInitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec := model.NewUserRecord("+1555", time.Now())
	if err := s.SaveAll(ctx, []model.UserRecord{rec}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("second init: %v", err)
	}
	records, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("init clobbered existing collection: %d records", len(records))
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec := model.NewUserRecord("+1555", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	rec.Name = "Asha"
	rec.District = "Pune"
	rec.City = "Pune"
	rec.State = "MH"
	rec.DocumentRef = "documents/document_x.jpeg"
	rec.Conversation = model.StateCompleted

	if err := s.SaveAll(ctx, []model.UserRecord{rec}); err != nil {
		t.Fatalf("save: %v", err)
	}
	records, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0] != rec {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", records[0], rec)
	}
}

func TestGetAllPreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var want []string
	var records []model.UserRecord
	for _, addr := range []string{"+1", "+2", "+3", "+4"} {
		rec := model.NewUserRecord(addr, time.Now())
		records = append(records, rec)
		want = append(want, addr)
	}
	if err := s.SaveAll(ctx, records); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for i, rec := range got {
		if rec.Address != want[i] {
			t.Fatalf("position %d: address %s, want %s", i, rec.Address, want[i])
		}
	}
}

func TestCorruptCollectionSurfacesErrCorruptState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := os.WriteFile(filepath.Join(s.dir, usersFileName), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := s.GetAll(ctx)
	if !errors.Is(err, ErrCorruptState) {
		t.Fatalf("err = %v, want ErrCorruptState", err)
	}
}

func TestSaveAllLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 10; i++ {
		rec := model.NewUserRecord("+1555", time.Now())
		if err := s.SaveAll(ctx, []model.UserRecord{rec}); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != usersFileName && e.Name() != documentsDir {
			t.Fatalf("leftover file %s after atomic saves", e.Name())
		}
	}
}

func TestSaveDocumentReturnsFetchableReference(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	blob := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	ref, err := s.SaveDocument(ctx, "document_abc_123.jpeg", blob)
	if err != nil {
		t.Fatalf("save document: %v", err)
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		t.Fatalf("re-fetch via reference: %v", err)
	}
	if string(data) != string(blob) {
		t.Fatal("document bytes differ after round trip")
	}
}

func TestSaveDocumentUnavailableDir(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "missing"))
	_, err := s.SaveDocument(context.Background(), "doc.jpeg", []byte("x"))
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("err = %v, want ErrStorageUnavailable", err)
	}
}
