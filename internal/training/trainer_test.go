package training

import (
	"context"
	"errors"
	"os"
	"testing"

	"loadcast/internal/dataset"
	"loadcast/internal/registry"
	"loadcast/pkg/logger"
)

type fakeRegistrar struct {
	records []registry.Record
}

func (f *fakeRegistrar) NextVersion(_ context.Context, name string) (int, error) {
	n := 0
	for _, r := range f.records {
		if r.Name == name && r.Version > n {
			n = r.Version
		}
	}
	return n + 1, nil
}

func (f *fakeRegistrar) Register(_ context.Context, rec registry.Record) error {
	f.records = append(f.records, rec)
	return nil
}

func TestTrainerSelectsAndRegisters(t *testing.T) {
	f := hourlyFrame(t, 24*14, dailyPattern)
	reg := &fakeRegistrar{}
	tr := NewTrainer(reg, t.TempDir(), Config{SearchTrials: 2, Seed: 7}, logger.Nop())

	res, err := tr.Run(context.Background(), f, "plant-a-load", "load")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Version != 1 {
		t.Fatalf("version = %d, want 1", res.Version)
	}
	if res.Family == "" {
		t.Fatal("no family selected")
	}

	if len(reg.records) != 1 {
		t.Fatalf("registered %d records, want 1", len(reg.records))
	}
	rec := reg.records[0]
	if rec.Name != "plant-a-load" || rec.URI != res.URI {
		t.Fatalf("record mismatch: %+v vs %+v", rec, res)
	}

	if _, err := os.Stat(res.URI); err != nil {
		t.Fatalf("artifact not persisted: %v", err)
	}
	m, _, err := LoadArtifact(res.URI)
	if err != nil {
		t.Fatalf("LoadArtifact: %v", err)
	}
	if m.Family() != res.Family {
		t.Fatalf("artifact family %q, result family %q", m.Family(), res.Family)
	}
}

func TestTrainerSurvivesFamilyFailures(t *testing.T) {
	// Too short for ARIMA's long autoregression but enough for the rest;
	// the run must still produce some winner.
	f := hourlyFrame(t, 30, dailyPattern)
	reg := &fakeRegistrar{}
	tr := NewTrainer(reg, t.TempDir(), Config{SearchTrials: 1, Seed: 1}, logger.Nop())

	res, err := tr.Run(context.Background(), f, "short", "load")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Family == FamilyARIMA {
		t.Fatal("arima cannot have fit on 30 rows")
	}
}

func TestTrainerNoViableModel(t *testing.T) {
	// A frame whose target column is absent fails every family.
	f := dataset.New("timestamp")
	frame := hourlyFrame(t, 60, dailyPattern)
	f.Times = frame.Times
	other, _ := frame.Column("load")
	f.AddColumn("other", other)

	reg := &fakeRegistrar{}
	tr := NewTrainer(reg, t.TempDir(), Config{SearchTrials: 1}, logger.Nop())

	_, err := tr.Run(context.Background(), f, "m", "load")
	if !errors.Is(err, ErrNoViableModel) {
		t.Fatalf("err = %v, want ErrNoViableModel", err)
	}
	if len(reg.records) != 0 {
		t.Fatal("nothing should be registered when every family fails")
	}
}
