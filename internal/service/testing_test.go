package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kitade/kita-jobs/internal/domain"
	"github.com/kitade/kita-jobs/internal/source"
)

type fakeKitaSource struct {
	mu         sync.Mutex
	listings   map[string][]domain.KitaRef
	listErr    map[string]error
	partialErr map[string]error
	extractErr map[string]error
	gate       chan struct{}
	onExtract  func(ref domain.KitaRef)
	panicOn    string
	extracted  []string
}

func (f *fakeKitaSource) GetSourceID() string { return "fake-directory" }

func (f *fakeKitaSource) ListBezirke(_ context.Context, stateURL string) ([]domain.Bezirk, error) {
	return []domain.Bezirk{{Name: "Mitte", URL: stateURL + "/mitte"}}, nil
}

func (f *fakeKitaSource) ListKitas(ctx context.Context, b domain.Bezirk, limit int) ([]domain.KitaRef, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.listErr[b.URL]; err != nil {
		return nil, err
	}
	refs := make([]domain.KitaRef, 0, len(f.listings[b.URL]))
	for _, r := range f.listings[b.URL] {
		r.Bezirk = b.Name
		refs = append(refs, r)
	}
	if err := f.partialErr[b.URL]; err != nil {
		return refs, &source.PartialListError{URL: b.URL + "?page=2", Err: err}
	}
	return refs, nil
}

func (f *fakeKitaSource) ExtractKita(_ context.Context, ref domain.KitaRef) (*domain.Kita, error) {
	if f.onExtract != nil {
		f.onExtract(ref)
	}
	if ref.URL == f.panicOn && ref.URL != "" {
		panic("unexpected markup")
	}
	if err := f.extractErr[ref.URL]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.extracted = append(f.extracted, ref.URL)
	f.mu.Unlock()
	return &domain.Kita{
		SourceURL:  ref.URL,
		Name:       ref.Name,
		Street:     "Hauptstraße 1",
		PostalCode: "10115",
		City:       "Berlin",
		Bezirk:     ref.Bezirk,
	}, nil
}

// refs builds n facility references below prefix.
func refs(prefix string, n int) []domain.KitaRef {
	out := make([]domain.KitaRef, n)
	for i := range out {
		out[i] = domain.KitaRef{
			Name: fmt.Sprintf("Kita %s %d", prefix, i+1),
			URL:  fmt.Sprintf("http://dir.test/%s/kita/%d", prefix, i+1),
		}
	}
	return out
}

type fakeKitaStore struct {
	mu      sync.Mutex
	saved   []domain.Kita
	failFor map[string]bool
}

func (s *fakeKitaStore) UpsertKita(_ context.Context, k *domain.Kita) error {
	if s.failFor[k.SourceURL] {
		return errors.New("database is locked")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, *k)
	return nil
}

func (s *fakeKitaStore) all() []domain.Kita {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Kita(nil), s.saved...)
}

type recordedRuns struct {
	runs chan domain.ImportRun
}

func (r *recordedRuns) RecordRun(_ context.Context, run *domain.ImportRun) error {
	r.runs <- *run
	return nil
}

func waitTerminal(t *testing.T, status func(string) (domain.ImportJob, error), id string) domain.ImportJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := status(id)
		if err != nil {
			t.Fatalf("Status(%s): %v", id, err)
		}
		if snap.Status.IsTerminal() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish in time", id)
	return domain.ImportJob{}
}

func countLevel(logs []domain.LogEntry, level domain.LogLevel) int {
	n := 0
	for _, l := range logs {
		if l.Level == level {
			n++
		}
	}
	return n
}

func extractedNames(logs []domain.LogEntry) []string {
	var names []string
	for _, l := range logs {
		if l.Extracted != nil {
			names = append(names, l.Extracted.Name)
		}
	}
	return names
}
