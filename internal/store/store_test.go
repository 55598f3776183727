package store

import (
	"context"
	"errors"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProjectCRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, "plant-a")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if p.Status != StatusNew {
		t.Fatalf("status = %q, want New", p.Status)
	}

	got, err := s.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Name != "plant-a" {
		t.Fatalf("name = %q", got.Name)
	}

	if err := s.UpdateProject(ctx, p.ID, map[string]interface{}{
		"raw_source":   "meter.csv",
		"datetime_col": "timestamp",
		"value_col":    "load",
	}); err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}
	got, _ = s.GetProject(ctx, p.ID)
	if got.RawSource != "meter.csv" || got.ValueCol != "load" {
		t.Fatalf("fields not persisted: %+v", got)
	}

	list, err := s.ListProjects(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListProjects: %v (n=%d)", err, len(list))
	}

	if err := s.DeleteProject(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if _, err := s.GetProject(ctx, p.ID); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("err = %v, want ErrProjectNotFound", err)
	}
}

func TestUpdateRejectsUnknownColumn(t *testing.T) {
	s := openTestStore(t)
	p, _ := s.CreateProject(context.Background(), "p")
	err := s.UpdateProject(context.Background(), p.ID, map[string]interface{}{"id": "evil"})
	if err == nil {
		t.Fatal("expected error for non-whitelisted column")
	}
}

func TestCompareAndSetStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p, _ := s.CreateProject(ctx, "p")

	ok, err := s.CompareAndSetStatus(ctx, p.ID, []Status{StatusNew}, StatusDataUploaded)
	if err != nil || !ok {
		t.Fatalf("CAS from New: ok=%v err=%v", ok, err)
	}

	// Same guard again must lose: status already moved on.
	ok, err = s.CompareAndSetStatus(ctx, p.ID, []Status{StatusNew}, StatusDataUploaded)
	if err != nil {
		t.Fatalf("CAS: %v", err)
	}
	if ok {
		t.Fatal("CAS should lose when the source state no longer matches")
	}

	ok, err = s.CompareAndSetStatus(ctx, p.ID, []Status{StatusDataUploaded, StatusReady, StatusError}, StatusProcessing)
	if err != nil || !ok {
		t.Fatalf("CAS to Processing: ok=%v err=%v", ok, err)
	}

	// A second concurrent start must be rejected while Processing.
	ok, err = s.CompareAndSetStatus(ctx, p.ID, []Status{StatusDataUploaded, StatusReady, StatusError}, StatusProcessing)
	if err != nil {
		t.Fatalf("CAS: %v", err)
	}
	if ok {
		t.Fatal("second run start should lose the CAS")
	}

	if _, err := s.CompareAndSetStatus(ctx, "missing", []Status{StatusNew}, StatusProcessing); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("err = %v, want ErrProjectNotFound", err)
	}
}
