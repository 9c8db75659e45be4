package types

import (
	"fmt"
	"strings"
)

// Category selects which compliance statistics decide a test's verdict.
type Category string

const (
	// CategoryUniformity covers cold chambers and other temperature-mapping
	// tests, judged on stability and uniformity.
	CategoryUniformity Category = "uniformity"

	// CategorySterilization covers autoclave cycles, judged on lethality (F0).
	CategorySterilization Category = "sterilization"
)

// ParseCategory accepts the canonical names plus the equipment aliases used by
// operators ("chamber", "autoclave").
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "uniformity", "chamber", "":
		return CategoryUniformity, nil
	case "sterilization", "autoclave":
		return CategorySterilization, nil
	default:
		return "", fmt.Errorf("unknown test category %q: want uniformity|sterilization", s)
	}
}

// Status is the verdict printed on a certificate.
type Status string

const (
	StatusCompliant    Status = "Compliant"
	StatusNonCompliant Status = "Non-Compliant"
	// StatusNA means there was not enough valid data to decide. It is not a pass.
	StatusNA Status = "N/A"
)

// Passed reports whether s is an affirmative verdict.
func (s Status) Passed() bool { return s == StatusCompliant }

// SourceKind names the wire shape an input was delivered in.
type SourceKind string

const (
	KindUnknown      SourceKind = ""
	KindHierarchical SourceKind = "hierarchical"
	KindDelimited    SourceKind = "delimited"
	KindSpreadsheet  SourceKind = "spreadsheet"
)

// Provenance records where a measurement set came from.
type Provenance struct {
	File string     `json:"file"`
	Kind SourceKind `json:"kind"`
}

// CaveatKind classifies a soft, non-fatal issue found while normalizing.
type CaveatKind string

const (
	// CaveatRowSkipped: a source row was omitted (blank, bad or out-of-order time).
	CaveatRowSkipped CaveatKind = "row_skipped"
	// CaveatValueCoerced: a sensor cell failed numeric parsing and was replaced.
	CaveatValueCoerced CaveatKind = "value_coerced"
	// CaveatValueEdited: an operator corrected a value after ingestion.
	CaveatValueEdited CaveatKind = "value_edited"
)

// Caveat is an operator-visible note attached to a result. Row is 1-based: the
// row number in the source grid, the measure number for hierarchical input, or
// the reading number for edits.
type Caveat struct {
	Kind   CaveatKind `json:"kind"`
	Row    int        `json:"row"`
	Sensor string     `json:"sensor,omitempty"`
	Reason string     `json:"reason"`
}

// Record is one normalized measurement row. A sensor absent from Values is
// missing at that instant.
type Record struct {
	Timestamp int64              `json:"timestamp"`
	Values    map[string]float64 `json:"values"`
}

// MeasurementSet is the canonical, format-independent form of one acquisition
// run. Records are in non-decreasing timestamp order and only reference
// sensors listed in Sensors.
type MeasurementSet struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	SetPoint string     `json:"set_point,omitempty"`
	Source   Provenance `json:"source"`

	// Sensors are the canonical identifiers sensor1..sensorN in declared order.
	Sensors []string `json:"sensors"`
	// SensorLabels holds the original column or channel labels, index-aligned
	// with Sensors when known.
	SensorLabels []string `json:"sensor_labels,omitempty"`

	Records  []Record          `json:"records"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Caveats  []Caveat          `json:"caveats,omitempty"`
}

// CountCaveats returns how many caveats of kind k the set carries.
func (m *MeasurementSet) CountCaveats(k CaveatKind) int {
	return countCaveats(m.Caveats, k)
}

// Reading is one timestamped row of a test: per-sensor temperatures plus the
// row aggregates, which are computed once and cached.
type Reading struct {
	Timestamp         int64               `json:"timestamp"`
	TimeOffsetMinutes float64             `json:"time_offset_minutes"`
	Temperatures      map[string]*float64 `json:"temperatures"`

	// Present is the number of sensors with a value in this row.
	Present int `json:"present"`
	// Min, Max and Mean are nil when Present is zero.
	Min  *float64 `json:"min"`
	Max  *float64 `json:"max"`
	Mean *float64 `json:"mean"`
}

// Value returns the temperature of sensor and whether it is present.
func (r *Reading) Value(sensor string) (float64, bool) {
	v, ok := r.Temperatures[sensor]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// Clone returns a deep copy of r.
func (r Reading) Clone() Reading {
	out := r
	out.Temperatures = make(map[string]*float64, len(r.Temperatures))
	for k, v := range r.Temperatures {
		out.Temperatures[k] = clonePtr(v)
	}
	out.Min = clonePtr(r.Min)
	out.Max = clonePtr(r.Max)
	out.Mean = clonePtr(r.Mean)
	return out
}

// Summary holds the compliance statistics of one test.
type Summary struct {
	Min  *float64 `json:"min"`
	Max  *float64 `json:"max"`
	Mean *float64 `json:"mean"`

	// Stability is max-min per sensor over time. Sensors with no values are absent.
	Stability map[string]float64 `json:"stability"`

	// UniformityByReading is max-min across sensors at each reading, index-aligned
	// with the test's Readings. Uniformity is its maximum.
	UniformityByReading []float64 `json:"uniformity_by_reading"`
	Uniformity          *float64  `json:"uniformity"`

	// Lethality is the accumulated F0 per sensor, sterilization tests only.
	Lethality    map[string]float64 `json:"lethality,omitempty"`
	MinLethality *float64           `json:"min_lethality,omitempty"`

	Status Status `json:"status"`
}

// MaxStability returns the largest per-sensor stability and false when no
// sensor has one.
func (s *Summary) MaxStability() (float64, bool) {
	var (
		max float64
		ok  bool
	)
	for _, v := range s.Stability {
		if !ok || v > max {
			max, ok = v, true
		}
	}
	return max, ok
}

// TestResult is one qualification test derived from a MeasurementSet.
type TestResult struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Category       Category          `json:"category"`
	SetPoint       string            `json:"set_point,omitempty"`
	Source         Provenance        `json:"source"`
	Sensors        []string          `json:"sensors"`
	SensorLabels   []string          `json:"sensor_labels,omitempty"`
	StartTimestamp int64             `json:"start_timestamp"`
	Readings       []Reading         `json:"readings"`
	Summary        Summary           `json:"summary"`
	Caveats        []Caveat          `json:"caveats,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// SkippedRows returns the number of source rows dropped during normalization.
func (t *TestResult) SkippedRows() int { return countCaveats(t.Caveats, CaveatRowSkipped) }

// CoercedValues returns the number of sensor cells replaced during normalization.
func (t *TestResult) CoercedValues() int { return countCaveats(t.Caveats, CaveatValueCoerced) }

// EditedValues returns the number of manual corrections applied to t.
func (t *TestResult) EditedValues() int { return countCaveats(t.Caveats, CaveatValueEdited) }

// Clone returns a deep copy of t that shares no maps or slices with it.
func (t *TestResult) Clone() *TestResult {
	out := *t
	out.Sensors = append([]string(nil), t.Sensors...)
	out.SensorLabels = append([]string(nil), t.SensorLabels...)
	out.Readings = make([]Reading, len(t.Readings))
	for i, r := range t.Readings {
		out.Readings[i] = r.Clone()
	}
	out.Summary = t.Summary.clone()
	out.Caveats = append([]Caveat(nil), t.Caveats...)
	if t.Metadata != nil {
		out.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

func (s Summary) clone() Summary {
	out := s
	out.Min, out.Max, out.Mean = clonePtr(s.Min), clonePtr(s.Max), clonePtr(s.Mean)
	out.Uniformity = clonePtr(s.Uniformity)
	out.MinLethality = clonePtr(s.MinLethality)
	out.UniformityByReading = append([]float64(nil), s.UniformityByReading...)
	out.Stability = cloneMap(s.Stability)
	out.Lethality = cloneMap(s.Lethality)
	return out
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

func clonePtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func countCaveats(cs []Caveat, k CaveatKind) int {
	n := 0
	for _, c := range cs {
		if c.Kind == k {
			n++
		}
	}
	return n
}
