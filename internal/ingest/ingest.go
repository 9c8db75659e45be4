package ingest

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/thermocert/thermocert/internal/compute"
	"github.com/thermocert/thermocert/internal/normalize"
	"github.com/thermocert/thermocert/internal/series"
	"github.com/thermocert/thermocert/pkg/types"
)

// File is one uploaded input. An empty Category uses the pipeline default.
type File struct {
	Name     string
	Data     []byte
	Kind     types.SourceKind
	Category types.Category
}

// Outcome is the result of processing one File of a batch.
type Outcome struct {
	File    string
	Results []*types.TestResult
	Err     error
}

// Observer is notified of every processed file. metrics.Registry satisfies it.
type Observer interface {
	ObserveFile(kind types.SourceKind, err error)
	ObserveResult(r *types.TestResult)
}

// Pipeline turns raw files into computed results. It is safe for concurrent use.
type Pipeline struct {
	norm     *normalize.Normalizer
	eng      *compute.Engine
	category types.Category
	workers  int
	observer Observer
	newID    func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObserver registers o to receive per-file and per-result notifications.
func WithObserver(o Observer) Option { return func(p *Pipeline) { p.observer = o } }

// WithWorkers bounds Batch parallelism. Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithIDFunc replaces the TestResult ID generator (random UUIDs by default).
func WithIDFunc(f func() string) Option { return func(p *Pipeline) { p.newID = f } }

// New returns a Pipeline that labels results with category unless a File
// overrides it.
func New(norm *normalize.Normalizer, eng *compute.Engine, category types.Category, opts ...Option) *Pipeline {
	p := &Pipeline{
		norm:     norm,
		eng:      eng,
		category: category,
		workers:  1,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process normalizes f and computes one TestResult per measurement set.
func (p *Pipeline) Process(f File) ([]*types.TestResult, error) {
	sets, err := p.norm.Normalize(normalize.Input{Name: f.Name, Data: f.Data, Kind: f.Kind})
	if p.observer != nil {
		kind := f.Kind
		if kind == types.KindUnknown {
			kind = normalize.Sniff(f.Data)
		}
		p.observer.ObserveFile(kind, err)
	}
	if err != nil {
		slog.Warn("ingest: file rejected", "file", f.Name, "err", err)
		return nil, err
	}

	cat := f.Category
	if cat == "" {
		cat = p.category
	}

	results := make([]*types.TestResult, 0, len(sets))
	for _, set := range sets {
		res := p.Build(set, cat)
		results = append(results, res)
		if p.observer != nil {
			p.observer.ObserveResult(res)
		}

		attrs := []any{
			"file", f.Name,
			"test", res.Name,
			"readings", len(res.Readings),
			"status", res.Summary.Status,
		}
		if n := res.SkippedRows(); n > 0 {
			attrs = append(attrs, "skipped_rows", n)
		}
		if n := res.CoercedValues(); n > 0 {
			attrs = append(attrs, "coerced_values", n)
		}
		slog.Info("ingest: test computed", attrs...)
	}
	return results, nil
}

// Build derives a computed TestResult from set. The result owns copies of
// everything it holds.
func (p *Pipeline) Build(set *types.MeasurementSet, cat types.Category) *types.TestResult {
	res := &types.TestResult{
		ID:           p.newID(),
		Name:         set.Name,
		Category:     cat,
		SetPoint:     set.SetPoint,
		Source:       set.Source,
		Sensors:      append([]string(nil), set.Sensors...),
		SensorLabels: append([]string(nil), set.SensorLabels...),
		Readings:     series.Build(set),
		Caveats:      append([]types.Caveat(nil), set.Caveats...),
	}
	if len(set.Records) > 0 {
		res.StartTimestamp = set.Records[0].Timestamp
	}
	if len(set.Metadata) > 0 {
		res.Metadata = make(map[string]string, len(set.Metadata))
		for k, v := range set.Metadata {
			res.Metadata[k] = v
		}
	}
	p.eng.Evaluate(res)
	return res
}

// Batch processes files concurrently and returns one Outcome per file, in
// input order. Files not yet started when ctx is cancelled report ctx.Err().
func (p *Pipeline) Batch(ctx context.Context, files []File) []Outcome {
	out := make([]Outcome, len(files))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			out[i].File = f.Name
			if err := gCtx.Err(); err != nil {
				out[i].Err = err
				return nil
			}
			out[i].Results, out[i].Err = p.Process(f)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// Results flattens the successful results of outcomes, in order.
func Results(outcomes []Outcome) []*types.TestResult {
	var all []*types.TestResult
	for _, o := range outcomes {
		all = append(all, o.Results...)
	}
	return all
}
