package metrics

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/thermocert/thermocert/pkg/types"
)

// Metric family names.
const (
	FilesTotal         = "thermocert_files_total"
	TestsTotal         = "thermocert_tests_total"
	SkippedRowsTotal   = "thermocert_skipped_rows_total"
	CoercedValuesTotal = "thermocert_coerced_values_total"
	EditsTotal         = "thermocert_edits_total"
	AlertsFiredTotal   = "thermocert_alerts_fired_total"
	ResultsStored      = "thermocert_results_stored"
)

const labelSep = "\xff"

type family struct {
	help   string
	typ    dto.MetricType
	labels []string
}

var families = map[string]family{
	FilesTotal:         {"Input files processed, by sniffed kind and outcome.", dto.MetricType_COUNTER, []string{"kind", "outcome"}},
	TestsTotal:         {"Tests computed, by category and status.", dto.MetricType_COUNTER, []string{"category", "status"}},
	SkippedRowsTotal:   {"Source rows dropped during normalization.", dto.MetricType_COUNTER, nil},
	CoercedValuesTotal: {"Sensor cells that failed numeric parsing.", dto.MetricType_COUNTER, nil},
	EditsTotal:         {"Manual corrections applied, by resulting status.", dto.MetricType_COUNTER, []string{"status"}},
	AlertsFiredTotal:   {"Operator alerts fired, by severity.", dto.MetricType_COUNTER, []string{"severity"}},
	ResultsStored:      {"Results currently held by the store.", dto.MetricType_GAUGE, nil},
}

// Registry accumulates metric values. All methods are safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	values map[string]map[string]float64 // family -> joined label values -> value
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{values: make(map[string]map[string]float64)}
}

// ObserveFile counts one processed input file.
func (r *Registry) ObserveFile(kind types.SourceKind, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
	}
	k := string(kind)
	if k == "" {
		k = "unknown"
	}
	r.add(FilesTotal, 1, k, outcome)
}

// ObserveResult counts one computed test and its soft issues.
func (r *Registry) ObserveResult(res *types.TestResult) {
	r.add(TestsTotal, 1, string(res.Category), string(res.Summary.Status))
	r.add(SkippedRowsTotal, float64(res.SkippedRows()))
	r.add(CoercedValuesTotal, float64(res.CoercedValues()))
}

// ObserveEdit counts one applied correction.
func (r *Registry) ObserveEdit(status types.Status) {
	r.add(EditsTotal, 1, string(status))
}

// ObserveAlert counts one fired alert.
func (r *Registry) ObserveAlert(severity string) {
	r.add(AlertsFiredTotal, 1, severity)
}

// SetStored sets the stored-results gauge.
func (r *Registry) SetStored(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.series(ResultsStored)[""] = float64(n)
}

func (r *Registry) add(name string, v float64, labelValues ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.series(name)[strings.Join(labelValues, labelSep)] += v
}

// series returns the value map of name. r.mu must be held.
func (r *Registry) series(name string) map[string]float64 {
	m, ok := r.values[name]
	if !ok {
		m = make(map[string]float64)
		r.values[name] = m
	}
	return m
}

// Families returns a snapshot of all families that have been observed,
// sorted by name.
func (r *Registry) Families() []*dto.MetricFamily {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.values))
	for n := range r.values {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]*dto.MetricFamily, 0, len(names))
	for _, name := range names {
		def := families[name]
		mf := &dto.MetricFamily{
			Name: proto.String(name),
			Help: proto.String(def.help),
			Type: def.typ.Enum(),
		}
		keys := make([]string, 0, len(r.values[name]))
		for k := range r.values[name] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			mf.Metric = append(mf.Metric, newMetric(def, k, r.values[name][k]))
		}
		out = append(out, mf)
	}
	return out
}

func newMetric(def family, key string, v float64) *dto.Metric {
	m := &dto.Metric{}
	if len(def.labels) > 0 {
		vals := strings.Split(key, labelSep)
		for i, l := range def.labels {
			var val string
			if i < len(vals) {
				val = vals[i]
			}
			m.Label = append(m.Label, &dto.LabelPair{Name: proto.String(l), Value: proto.String(val)})
		}
	}
	if def.typ == dto.MetricType_GAUGE {
		m.Gauge = &dto.Gauge{Value: proto.Float64(v)}
	} else {
		m.Counter = &dto.Counter{Value: proto.Float64(v)}
	}
	return m
}

// WriteText writes every family in the Prometheus text format.
func (r *Registry) WriteText(w io.Writer) error {
	for _, mf := range r.Families() {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the text exposition.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var buf bytes.Buffer
		if err := r.WriteText(&buf); err != nil {
			slog.Error("metrics: render failed", "err", err)
			http.Error(w, "metrics unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		_, _ = w.Write(buf.Bytes())
	})
}
