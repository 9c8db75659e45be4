package normalize

import (
	"bytes"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/thermocert/thermocert/internal/config"
	"github.com/thermocert/thermocert/pkg/types"
)

var (
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
	zipMagic = []byte("PK\x03\x04")
)

// Input is one raw file to normalize. Kind may be left empty to have it
// sniffed from Data.
type Input struct {
	Name string
	Data []byte
	Kind types.SourceKind
}

// Normalizer converts raw inputs into canonical measurement sets.
// It holds no mutable state and is safe for concurrent use.
type Normalizer struct {
	markers  markers
	times    timeParser
	zeroFill bool
}

type markers struct {
	index, time, date map[string]bool
	channelPrefixes   []string
}

// New returns a Normalizer configured from the engine section of the config.
func New(cfg config.EngineConfig) (*Normalizer, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	m := markers{
		index: lowerSet(cfg.Markers.Index),
		time:  lowerSet(cfg.Markers.Time),
		date:  lowerSet(cfg.Markers.Date),
	}
	for _, p := range cfg.Markers.ChannelPrefixes {
		if p = normCell(p); p != "" {
			m.channelPrefixes = append(m.channelPrefixes, p)
		}
	}
	return &Normalizer{
		markers:  m,
		times:    timeParser{loc: loc},
		zeroFill: cfg.LegacyZeroFill,
	}, nil
}

// Normalize converts in into one measurement set per acquisition run. Grid
// inputs always yield exactly one set; hierarchical documents yield one per
// configuration.
func (n *Normalizer) Normalize(in Input) ([]*types.MeasurementSet, error) {
	data := bytes.TrimPrefix(in.Data, utf8BOM)
	kind := in.Kind
	if kind == types.KindUnknown {
		kind = Sniff(data)
	}

	var (
		sets []*types.MeasurementSet
		err  error
	)
	switch kind {
	case types.KindHierarchical:
		sets, err = n.fromHierarchical(in.Name, data)
	case types.KindDelimited:
		sets, err = n.fromDelimited(in.Name, data)
	case types.KindSpreadsheet:
		sets, err = n.fromSpreadsheet(in.Name, data)
	default:
		return nil, formatErr(in.Name, "", ErrUnrecognized)
	}
	if err != nil {
		return nil, err
	}
	for _, s := range sets {
		s.Source = types.Provenance{File: in.Name, Kind: kind}
	}
	return sets, nil
}

// Sniff picks the wire shape of data from its content alone: a JSON object
// is hierarchical, a JSON array or a zip container is a spreadsheet grid, and
// any other text is delimited.
func Sniff(data []byte) types.SourceKind {
	data = bytes.TrimPrefix(data, utf8BOM)
	if bytes.HasPrefix(data, zipMagic) {
		return types.KindSpreadsheet
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return types.KindUnknown
	}
	switch trimmed[0] {
	case '{':
		return types.KindHierarchical
	case '[':
		return types.KindSpreadsheet
	}
	if !utf8.Valid(trimmed) || bytes.IndexByte(trimmed, 0) >= 0 {
		return types.KindUnknown
	}
	return types.KindDelimited
}

// parseValue reads one sensor cell. coerced is true when the cell is blank or
// holds text that is not a number; the value is then 0 under legacy zero-fill
// (ok is true) and absent otherwise (ok is false). Grid rows shorter than the
// header read their missing channel cells as blank.
func (n *Normalizer) parseValue(cell string) (v float64, ok, coerced bool) {
	s := strings.Replace(strings.TrimSpace(cell), ",", ".", 1)
	f, err := strconv.ParseFloat(s, 64)
	if s != "" && err == nil && !isNaNOrInf(f) {
		return f, true, false
	}
	if n.zeroFill {
		return 0, true, true
	}
	return 0, false, true
}

// coercionCaveat describes a cell that failed numeric parsing.
func (n *Normalizer) coercionCaveat(row int, sensor, cell string) types.Caveat {
	action := "treated as missing"
	if n.zeroFill {
		action = "recorded as 0"
	}
	what := fmt.Sprintf("non-numeric value %q", strings.TrimSpace(cell))
	if strings.TrimSpace(cell) == "" {
		what = "blank cell"
	}
	return types.Caveat{
		Kind:   types.CaveatValueCoerced,
		Row:    row,
		Sensor: sensor,
		Reason: what + " " + action,
	}
}

func skipCaveat(row int, reason string) types.Caveat {
	return types.Caveat{Kind: types.CaveatRowSkipped, Row: row, Reason: reason}
}

// appendRecord enforces non-decreasing timestamps. It reports false, with a
// caveat, when ts goes back in time.
func appendRecord(set *types.MeasurementSet, row int, rec types.Record) bool {
	if k := len(set.Records); k > 0 && rec.Timestamp < set.Records[k-1].Timestamp {
		prev := time.Unix(set.Records[k-1].Timestamp, 0).UTC().Format(time.RFC3339)
		set.Caveats = append(set.Caveats, skipCaveat(row,
			fmt.Sprintf("timestamp %s is earlier than previous row (%s)",
				time.Unix(rec.Timestamp, 0).UTC().Format(time.RFC3339), prev)))
		return false
	}
	set.Records = append(set.Records, rec)
	return true
}

func sensorIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = "sensor" + strconv.Itoa(i+1)
	}
	return ids
}

func isNaNOrInf(f float64) bool { return math.IsNaN(f) || math.IsInf(f, 0) }

func baseName(file string) string {
	if file == "" {
		return ""
	}
	b := filepath.Base(file)
	return strings.TrimSuffix(b, filepath.Ext(b))
}

func normCell(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func lowerSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		if s = normCell(s); s != "" {
			m[s] = true
		}
	}
	return m
}
