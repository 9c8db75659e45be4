package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/thermocert/thermocert/internal/compute"
	"github.com/thermocert/thermocert/internal/config"
	"github.com/thermocert/thermocert/internal/normalize"
	"github.com/thermocert/thermocert/pkg/types"
)

const chamberCSV = "# Cliente: Lab Norte\n" +
	"Index,Time,CH01,CH02\n" +
	"1,2024-03-05 10:00:00,4.5,4.9\n" +
	"2,2024-03-05 10:05:00,4.6,bad\n" +
	"3,,4.7,5.0\n"

const autoclaveJSON = `{
  "serial_number": "AC-9",
  "configurations": [
    {"material": "Load A", "cycles": [{"measures": [
      {"timestamp": 0, "values": {"sensor0": 121.1, "sensor1": 121.1}},
      {"timestamp": 600, "values": {"sensor0": 121.1, "sensor1": 121.1}},
      {"timestamp": 1200, "values": {"sensor0": 121.1, "sensor1": 121.1}}
    ]}]},
    {"material": "Load B", "cycles": [{"measures": [
      {"timestamp": 0, "values": {"sensor0": 121.1, "sensor1": 121.1}},
      {"timestamp": 300, "values": {"sensor0": 121.1, "sensor1": 110}}
    ]}]}
  ]
}`

type recordingObserver struct {
	mu      sync.Mutex
	files   map[types.SourceKind]int
	errs    int
	results int
}

func (o *recordingObserver) ObserveFile(kind types.SourceKind, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.files == nil {
		o.files = make(map[types.SourceKind]int)
	}
	o.files[kind]++
	if err != nil {
		o.errs++
	}
}

func (o *recordingObserver) ObserveResult(*types.TestResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results++
}

func newPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	cfg := config.Default()
	norm, err := normalize.New(cfg.Engine)
	if err != nil {
		t.Fatalf("normalize.New: %v", err)
	}
	var n atomic.Int64
	opts = append([]Option{WithIDFunc(func() string { return fmt.Sprintf("id-%d", n.Add(1)) })}, opts...)
	return New(norm, compute.NewEngine(cfg.Limits), types.CategoryUniformity, opts...)
}

func TestProcess_Delimited(t *testing.T) {
	p := newPipeline(t)
	results, err := p.Process(File{Name: "chamber.csv", Data: []byte(chamberCSV)})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results: got %d, want 1", len(results))
	}
	r := results[0]
	if r.ID != "id-1" || r.Category != types.CategoryUniformity {
		t.Errorf("id=%q category=%q", r.ID, r.Category)
	}
	if len(r.Readings) != 2 {
		t.Errorf("readings: got %d, want 2", len(r.Readings))
	}
	if r.SkippedRows() != 1 || r.CoercedValues() != 1 {
		t.Errorf("caveats: skipped=%d coerced=%d", r.SkippedRows(), r.CoercedValues())
	}
	if r.StartTimestamp != r.Readings[0].Timestamp {
		t.Errorf("start timestamp: got %d", r.StartTimestamp)
	}
	if r.Metadata["client"] != "Lab Norte" {
		t.Errorf("metadata: got %v", r.Metadata)
	}
	// The coerced zero drags uniformity to 4.6 on the second reading.
	if r.Summary.Status != types.StatusNonCompliant {
		t.Errorf("status: got %q", r.Summary.Status)
	}
}

func TestProcess_HierarchicalWithCategoryOverride(t *testing.T) {
	p := newPipeline(t)
	results, err := p.Process(File{Name: "ark.json", Data: []byte(autoclaveJSON), Category: types.CategorySterilization})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results: got %d, want 2", len(results))
	}
	if results[0].Name != "Load A" || results[1].Name != "Load B" {
		t.Errorf("names: %q, %q", results[0].Name, results[1].Name)
	}
	if got := *results[0].Summary.MinLethality; got != 20 {
		t.Errorf("Load A F0: got %v, want 20", got)
	}
	if results[0].Summary.Status != types.StatusCompliant {
		t.Errorf("Load A: got %q", results[0].Summary.Status)
	}
	if results[1].Summary.Status != types.StatusNonCompliant {
		t.Errorf("Load B: got %q", results[1].Summary.Status)
	}
}

func TestBatch_IsolatesFailures(t *testing.T) {
	obs := &recordingObserver{}
	p := newPipeline(t, WithWorkers(3), WithObserver(obs))

	files := []File{
		{Name: "a.csv", Data: []byte(chamberCSV)},
		{Name: "broken.csv", Data: []byte("no,header,here\n1,2,3\n")},
		{Name: "ark.json", Data: []byte(autoclaveJSON)},
		{Name: "empty.json", Data: []byte(`{"serial_number":"x","configurations":[]}`)},
	}
	out := p.Batch(context.Background(), files)

	if len(out) != len(files) {
		t.Fatalf("outcomes: got %d, want %d", len(out), len(files))
	}
	for i, o := range out {
		if o.File != files[i].Name {
			t.Errorf("outcome %d: file %q, want %q", i, o.File, files[i].Name)
		}
	}
	if out[0].Err != nil || len(out[0].Results) != 1 {
		t.Errorf("a.csv: err=%v results=%d", out[0].Err, len(out[0].Results))
	}
	if !errors.Is(out[1].Err, normalize.ErrHeaderNotFound) {
		t.Errorf("broken.csv: got %v, want header not found", out[1].Err)
	}
	if out[2].Err != nil || len(out[2].Results) != 2 {
		t.Errorf("ark.json: err=%v results=%d", out[2].Err, len(out[2].Results))
	}
	if !errors.Is(out[3].Err, normalize.ErrNoConfigurations) {
		t.Errorf("empty.json: got %v", out[3].Err)
	}

	if got := len(Results(out)); got != 3 {
		t.Errorf("flattened results: got %d, want 3", got)
	}
	if obs.errs != 2 || obs.results != 3 {
		t.Errorf("observer: errs=%d results=%d", obs.errs, obs.results)
	}
	if obs.files[types.KindDelimited] != 2 || obs.files[types.KindHierarchical] != 2 {
		t.Errorf("observer kinds: %v", obs.files)
	}
}

func TestBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := newPipeline(t).Batch(ctx, []File{{Name: "a.csv", Data: []byte(chamberCSV)}})
	if !errors.Is(out[0].Err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", out[0].Err)
	}
}
