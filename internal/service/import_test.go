package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kitade/kita-jobs/internal/domain"
)

func newImportService(src *fakeKitaSource, store KitaStore, runs RunRecorder) *ImportService {
	return NewImportService(ImportConfig{
		Registry: NewJobRegistry(0),
		Source:   src,
		Store:    store,
		Runs:     runs,
	})
}

func TestStartImportValidation(t *testing.T) {
	mitte := domain.Bezirk{Name: "Mitte", URL: "http://dir.test/mitte"}
	tests := []struct {
		name    string
		bezirke []domain.Bezirk
		limit   int
		dryRun  bool
		store   KitaStore
	}{
		{"no bezirke", nil, 5, true, nil},
		{"zero limit", []domain.Bezirk{mitte}, 0, true, nil},
		{"negative limit", []domain.Bezirk{mitte}, -1, true, nil},
		{"bezirk without url", []domain.Bezirk{{Name: "Pankow"}}, 5, true, nil},
		{"live run without store", []domain.Bezirk{mitte}, 5, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newImportService(&fakeKitaSource{}, tt.store, nil)
			id, err := svc.StartImport(context.Background(), tt.bezirke, tt.limit, tt.dryRun)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
			if id != "" {
				t.Errorf("id = %q, want empty", id)
			}
			if jobs := svc.registry.List(); len(jobs) != 0 {
				t.Errorf("%d jobs created, want none", len(jobs))
			}
		})
	}
}

func TestStatusUnknownJob(t *testing.T) {
	svc := newImportService(&fakeKitaSource{}, nil, nil)
	if _, err := svc.Status("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Status err = %v, want ErrJobNotFound", err)
	}
	if _, err := svc.Results("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Results err = %v, want ErrJobNotFound", err)
	}
}

func TestDryRunSingleBezirk(t *testing.T) {
	src := &fakeKitaSource{listings: map[string][]domain.KitaRef{
		"http://dir.test/mitte": refs("mitte", 3),
	}}
	svc := newImportService(src, nil, nil)

	id, err := svc.StartImport(context.Background(), []domain.Bezirk{{Name: "Mitte", URL: "http://dir.test/mitte"}}, 10, true)
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}

	snap := waitTerminal(t, svc.Status, id)
	if snap.Status != domain.JobStatusCompleted || snap.Progress != 100 {
		t.Fatalf("status = %s progress = %d", snap.Status, snap.Progress)
	}
	if snap.Error != "" || snap.FinishedAt == nil || !snap.DryRun || snap.Kind != domain.JobKindKitas {
		t.Errorf("snapshot = %+v", snap)
	}

	results, err := svc.Results(id)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, k := range results {
		if want := refs("mitte", 3)[i].Name; k.Name != want {
			t.Errorf("results[%d] = %q, want %q", i, k.Name, want)
		}
	}

	var messages []string
	for _, l := range snap.Logs {
		if l.Extracted != nil {
			messages = append(messages, l.Message)
		}
	}
	if len(messages) != 3 || messages[0] != "-> Extracted: Kita mitte 1 (Hauptstraße 1, 10115 Berlin)" {
		t.Errorf("extracted messages = %q", messages)
	}
	if snap.Stats.Extracted != 3 || snap.Stats.Persisted != 0 {
		t.Errorf("stats = %+v", snap.Stats)
	}
}

func TestLiveRunFailsWhenBezirkListingFails(t *testing.T) {
	src := &fakeKitaSource{
		listings: map[string][]domain.KitaRef{"http://dir.test/mitte": refs("mitte", 3)},
		listErr:  map[string]error{"http://dir.test/pankow": errors.New("connection refused")},
	}
	store := &fakeKitaStore{}
	svc := newImportService(src, store, nil)

	bezirke := []domain.Bezirk{
		{Name: "Mitte", URL: "http://dir.test/mitte"},
		{Name: "Pankow", URL: "http://dir.test/pankow"},
	}
	id, err := svc.StartImport(context.Background(), bezirke, 2, false)
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}

	snap := waitTerminal(t, svc.Status, id)
	if snap.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", snap.Status)
	}
	if !strings.Contains(snap.Error, "Pankow") || !strings.Contains(snap.Error, "connection refused") {
		t.Errorf("error = %q", snap.Error)
	}

	names := extractedNames(snap.Logs)
	if strings.Join(names, ",") != "Kita mitte 1,Kita mitte 2" {
		t.Errorf("extracted = %v", names)
	}

	saved := store.all()
	if len(saved) != len(names) {
		t.Fatalf("saved %d records, logged %d extractions", len(saved), len(names))
	}
	for i, k := range saved {
		if k.Name != names[i] {
			t.Errorf("saved[%d] = %q, logged %q", i, k.Name, names[i])
		}
	}

	if _, err := svc.Results(id); !errors.Is(err, ErrResultsUnavailable) {
		t.Errorf("Results err = %v, want ErrResultsUnavailable", err)
	}
}

func TestSingleFacilityFailureIsIsolated(t *testing.T) {
	list := refs("mitte", 3)
	src := &fakeKitaSource{
		listings:   map[string][]domain.KitaRef{"http://dir.test/mitte": list},
		extractErr: map[string]error{list[1].URL: errors.New("status 500")},
	}
	svc := newImportService(src, nil, nil)

	id, err := svc.StartImport(context.Background(), []domain.Bezirk{{Name: "Mitte", URL: "http://dir.test/mitte"}}, 5, true)
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}

	snap := waitTerminal(t, svc.Status, id)
	if snap.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", snap.Status)
	}
	if n := countLevel(snap.Logs, domain.LogLevelError); n != 1 {
		t.Errorf("%d error entries, want 1", n)
	}
	results, _ := svc.Results(id)
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
	if snap.Stats.Failed != 1 || snap.Stats.Processed != 3 {
		t.Errorf("stats = %+v", snap.Stats)
	}
}

func TestPersistFailureIsLoggedAndSkipped(t *testing.T) {
	list := refs("mitte", 2)
	src := &fakeKitaSource{listings: map[string][]domain.KitaRef{"http://dir.test/mitte": list}}
	store := &fakeKitaStore{failFor: map[string]bool{list[0].URL: true}}
	svc := newImportService(src, store, nil)

	id, _ := svc.StartImport(context.Background(), []domain.Bezirk{{Name: "Mitte", URL: "http://dir.test/mitte"}}, 5, false)
	snap := waitTerminal(t, svc.Status, id)

	if snap.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s", snap.Status)
	}
	if len(store.all()) != 1 || snap.Stats.Persisted != 1 || snap.Stats.Failed != 1 {
		t.Errorf("saved = %d stats = %+v", len(store.all()), snap.Stats)
	}
}

func TestResultsAreBoundedByLimit(t *testing.T) {
	src := &fakeKitaSource{listings: map[string][]domain.KitaRef{
		"http://dir.test/mitte":  refs("mitte", 5),
		"http://dir.test/pankow": refs("pankow", 1),
	}}
	svc := newImportService(src, nil, nil)

	bezirke := []domain.Bezirk{
		{Name: "Mitte", URL: "http://dir.test/mitte"},
		{Name: "Pankow", URL: "http://dir.test/pankow"},
	}
	id, _ := svc.StartImport(context.Background(), bezirke, 2, true)
	waitTerminal(t, svc.Status, id)

	results, err := svc.Results(id)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want 3", len(results))
	}
	if len(results) > len(bezirke)*2 {
		t.Errorf("results exceed bezirke x limit")
	}
}

func TestStatusBeforeWorkStartsAndProgressIsMonotonic(t *testing.T) {
	gate := make(chan struct{})
	src := &fakeKitaSource{
		gate: gate,
		listings: map[string][]domain.KitaRef{
			"http://dir.test/mitte":  refs("mitte", 2),
			"http://dir.test/pankow": refs("pankow", 4),
		},
	}
	svc := newImportService(src, nil, nil)

	var (
		mu       sync.Mutex
		jobID    string
		observed []int
	)
	src.onExtract = func(domain.KitaRef) {
		mu.Lock()
		defer mu.Unlock()
		snap, err := svc.Status(jobID)
		if err == nil {
			observed = append(observed, snap.Progress)
		}
	}

	bezirke := []domain.Bezirk{
		{Name: "Mitte", URL: "http://dir.test/mitte"},
		{Name: "Pankow", URL: "http://dir.test/pankow"},
	}
	id, err := svc.StartImport(context.Background(), bezirke, 10, true)
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}
	mu.Lock()
	jobID = id
	mu.Unlock()

	snap, err := svc.Status(id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if snap.Status != domain.JobStatusRunning || snap.Progress != 0 {
		t.Errorf("initial status = %s progress = %d", snap.Status, snap.Progress)
	}

	close(gate)
	final := waitTerminal(t, svc.Status, id)

	mu.Lock()
	defer mu.Unlock()
	if len(observed) != 6 {
		t.Fatalf("observed %d progress values, want 6", len(observed))
	}
	observed = append(observed, final.Progress)
	for i := 1; i < len(observed); i++ {
		if observed[i] < observed[i-1] {
			t.Errorf("progress decreased: %v", observed)
			break
		}
	}
	if final.Progress != 100 {
		t.Errorf("final progress = %d", final.Progress)
	}
}

func TestTerminalSnapshotsAreStable(t *testing.T) {
	src := &fakeKitaSource{listings: map[string][]domain.KitaRef{"http://dir.test/mitte": refs("mitte", 2)}}
	svc := newImportService(src, nil, nil)

	id, _ := svc.StartImport(context.Background(), []domain.Bezirk{{Name: "Mitte", URL: "http://dir.test/mitte"}}, 5, true)
	first := waitTerminal(t, svc.Status, id)

	j, _ := svc.registry.get(id)
	j.appendLog(domain.LogLevelInfo, "late entry", nil)
	j.setProgress(10)
	j.fail(errors.New("too late"))

	second, _ := svc.Status(id)
	if second.Status != first.Status || len(second.Logs) != len(first.Logs) || second.Error != "" {
		t.Errorf("terminal job changed: %+v -> %+v", first, second)
	}

	// snapshots must not alias the job's log slice
	second.Logs[0].Message = "mutated"
	third, _ := svc.Status(id)
	if third.Logs[0].Message == "mutated" {
		t.Error("snapshot logs alias job state")
	}
}

func TestJobIDsAreUnique(t *testing.T) {
	src := &fakeKitaSource{listings: map[string][]domain.KitaRef{}}
	svc := newImportService(src, nil, nil)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		id, err := svc.StartImport(context.Background(), []domain.Bezirk{{Name: "Mitte", URL: "http://dir.test/mitte"}}, 1, true)
		if err != nil {
			t.Fatalf("StartImport: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate job id %s", id)
		}
		seen[id] = true
	}
}

func TestPanicFailsJob(t *testing.T) {
	list := refs("mitte", 2)
	src := &fakeKitaSource{
		listings: map[string][]domain.KitaRef{"http://dir.test/mitte": list},
		panicOn:  list[1].URL,
	}
	runs := &recordedRuns{runs: make(chan domain.ImportRun, 1)}
	svc := newImportService(src, nil, runs)

	id, _ := svc.StartImport(context.Background(), []domain.Bezirk{{Name: "Mitte", URL: "http://dir.test/mitte"}}, 5, true)
	snap := waitTerminal(t, svc.Status, id)

	if snap.Status != domain.JobStatusFailed || !strings.Contains(snap.Error, "unexpected markup") {
		t.Errorf("status = %s error = %q", snap.Status, snap.Error)
	}

	run := <-runs.runs
	if run.ID != id || run.Status != domain.JobStatusFailed || run.Extracted != 1 {
		t.Errorf("recorded run = %+v", run)
	}
	if run.Source != "fake-directory" {
		t.Errorf("run source = %q", run.Source)
	}
}

func TestIncompleteListingIsWarnedAndImported(t *testing.T) {
	src := &fakeKitaSource{
		listings:   map[string][]domain.KitaRef{"http://dir.test/mitte": refs("mitte", 2)},
		partialErr: map[string]error{"http://dir.test/mitte": errors.New("unexpected status 502")},
	}
	svc := newImportService(src, nil, nil)

	id, _ := svc.StartImport(context.Background(), []domain.Bezirk{{Name: "Mitte", URL: "http://dir.test/mitte"}}, 5, true)
	snap := waitTerminal(t, svc.Status, id)

	if snap.Status != domain.JobStatusCompleted || snap.Stats.Extracted != 2 {
		t.Fatalf("status = %s stats = %+v", snap.Status, snap.Stats)
	}
	warned := false
	for _, l := range snap.Logs {
		if l.Level == domain.LogLevelWarn && strings.Contains(l.Message, "Listing of Mitte is incomplete") && strings.Contains(l.Message, "502") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("no warn entry for the truncated listing: %+v", snap.Logs)
	}
}

func TestWaitLetsInterruptedJobsRecordRuns(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := NewJobRegistry(0)
	runs := &recordedRuns{runs: make(chan domain.ImportRun, 1)}
	svc := NewImportService(ImportConfig{
		BaseContext: base,
		Registry:    registry,
		Source:      &fakeKitaSource{gate: make(chan struct{})},
		Runs:        runs,
	})

	id, err := svc.StartImport(context.Background(), []domain.Bezirk{{Name: "Mitte", URL: "http://dir.test/mitte"}}, 5, true)
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}
	cancel()

	waitCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := registry.Wait(waitCtx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	select {
	case run := <-runs.runs:
		if run.ID != id || run.Status != domain.JobStatusFailed {
			t.Errorf("recorded run = %+v", run)
		}
	default:
		t.Fatal("run was not recorded before Wait returned")
	}
}

func TestWaitGivesUpAtDeadline(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)

	registry := NewJobRegistry(0)
	svc := NewImportService(ImportConfig{Registry: registry, Source: &fakeKitaSource{gate: gate}})
	if _, err := svc.StartImport(context.Background(), []domain.Bezirk{{Name: "Mitte", URL: "http://dir.test/mitte"}}, 1, true); err != nil {
		t.Fatalf("StartImport: %v", err)
	}

	waitCtx, stop := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer stop()
	if err := registry.Wait(waitCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait err = %v, want deadline exceeded", err)
	}
}

func TestResultsUnavailableWhileRunningOrLive(t *testing.T) {
	gate := make(chan struct{})
	src := &fakeKitaSource{gate: gate, listings: map[string][]domain.KitaRef{}}
	store := &fakeKitaStore{}
	svc := newImportService(src, store, nil)
	bezirke := []domain.Bezirk{{Name: "Mitte", URL: "http://dir.test/mitte"}}

	running, _ := svc.StartImport(context.Background(), bezirke, 1, true)
	if _, err := svc.Results(running); !errors.Is(err, ErrResultsUnavailable) {
		t.Errorf("running: err = %v", err)
	}

	live, _ := svc.StartImport(context.Background(), bezirke, 1, false)
	close(gate)
	waitTerminal(t, svc.Status, live)
	if _, err := svc.Results(live); !errors.Is(err, ErrResultsUnavailable) {
		t.Errorf("live: err = %v", err)
	}

	waitTerminal(t, svc.Status, running)
	results, err := svc.Results(running)
	if err != nil || results == nil || len(results) != 0 {
		t.Errorf("empty dry run: results = %v err = %v", results, err)
	}
}

func TestListBezirkeRequiresURL(t *testing.T) {
	svc := newImportService(&fakeKitaSource{}, nil, nil)
	if _, err := svc.ListBezirke(context.Background(), " "); !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
	bezirke, err := svc.ListBezirke(context.Background(), "http://dir.test/berlin")
	if err != nil || len(bezirke) != 1 {
		t.Errorf("bezirke = %v err = %v", bezirke, err)
	}
}
