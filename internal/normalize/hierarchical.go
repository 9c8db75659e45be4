package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/thermocert/thermocert/pkg/types"
)

type document struct {
	SerialNumber   *string          `json:"serial_number"`
	Client         map[string]any   `json:"client"`
	Equipment      map[string]any   `json:"equipment"`
	Metadata       map[string]any   `json:"metadata"`
	Configurations []*configuration `json:"configurations"`
}

type configuration struct {
	Material    string  `json:"material"`
	Temperature any     `json:"temperature"`
	Cycles      []cycle `json:"cycles"`
}

type cycle struct {
	Begin    *int64    `json:"begin"`
	End      *int64    `json:"end"`
	Sensors  []string  `json:"sensors"`
	Measures []measure `json:"measures"`
}

type measure struct {
	Timestamp *float64                   `json:"timestamp"`
	Values    map[string]json.RawMessage `json:"values"`
}

// fromHierarchical normalizes a structured export. Each configuration yields
// one set built from its first cycle. Validation is all-or-nothing.
func (n *Normalizer) fromHierarchical(file string, data []byte) ([]*types.MeasurementSet, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, formatErr(file, "hierarchical document", err)
	}
	if doc.SerialNumber == nil || strings.TrimSpace(*doc.SerialNumber) == "" {
		return nil, formatErr(file, "serial_number", ErrMissingIdentifier)
	}
	if len(doc.Configurations) == 0 {
		return nil, formatErr(file, "configurations", ErrNoConfigurations)
	}
	for i, c := range doc.Configurations {
		if c == nil || len(c.Cycles) == 0 || len(c.Cycles[0].Measures) == 0 {
			return nil, formatErr(file, fmt.Sprintf("configurations[%d].cycles[0].measures", i), ErrEmptyCycle)
		}
	}

	serial := strings.TrimSpace(*doc.SerialNumber)
	shared := map[string]string{"serial_number": serial}
	flattenObject(shared, "client", doc.Client)
	flattenObject(shared, "equipment", doc.Equipment)
	flattenObject(shared, "metadata", doc.Metadata)

	sets := make([]*types.MeasurementSet, 0, len(doc.Configurations))
	for i, c := range doc.Configurations {
		set, err := n.fromCycle(file, serial, i, c, shared)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return sets, nil
}

func (n *Normalizer) fromCycle(file, serial string, idx int, c *configuration, shared map[string]string) (*types.MeasurementSet, error) {
	cy := c.Cycles[0]
	keys := n.channelKeys(cy.Measures)
	if len(keys) == 0 {
		return nil, formatErr(file, fmt.Sprintf("configurations[%d].cycles[0].measures[].values", idx), ErrNoChannels)
	}

	name := strings.TrimSpace(c.Material)
	if name == "" {
		name = fmt.Sprintf("Test %d", idx+1)
	}
	set := &types.MeasurementSet{
		ID:       fmt.Sprintf("%s-%d", serial, idx),
		Name:     name,
		SetPoint: setPoint(c.Temperature),
		Sensors:  sensorIDs(len(keys)),
		Metadata: make(map[string]string, len(shared)+2),
	}
	for k, v := range shared {
		set.Metadata[k] = v
	}
	if cy.Begin != nil {
		set.Metadata["cycle_begin"] = strconv.FormatInt(*cy.Begin, 10)
	}
	if cy.End != nil {
		set.Metadata["cycle_end"] = strconv.FormatInt(*cy.End, 10)
	}
	if len(cy.Sensors) == len(keys) {
		set.SensorLabels = append([]string(nil), cy.Sensors...)
	} else {
		set.SensorLabels = keys
	}

	for i, m := range cy.Measures {
		row := i + 1
		if m.Timestamp == nil || isNaNOrInf(*m.Timestamp) {
			set.Caveats = append(set.Caveats, skipCaveat(row, "measure has no timestamp"))
			continue
		}
		rec := types.Record{Timestamp: int64(*m.Timestamp), Values: make(map[string]float64, len(keys))}
		var coerced []types.Caveat
		for k, key := range keys {
			raw, present := m.Values[key]
			if !present {
				continue
			}
			v, ok, bad := n.parseRawValue(raw)
			if bad {
				coerced = append(coerced, n.coercionCaveat(row, set.Sensors[k], string(raw)))
			}
			if ok {
				rec.Values[set.Sensors[k]] = v
			}
		}
		if appendRecord(set, row, rec) {
			set.Caveats = append(set.Caveats, coerced...)
		}
	}

	if len(set.Records) == 0 {
		return nil, formatErr(file, fmt.Sprintf("configurations[%d]: no measure has a timestamp", idx), ErrNoRows)
	}
	return set, nil
}

// channelKeys returns the sensor keys used by any measure, in natural order
// (sensor2 before sensor10). Keys not starting with a channel prefix, such as
// pressure readings, are ignored.
func (n *Normalizer) channelKeys(measures []measure) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, m := range measures {
		for k := range m.Values {
			if seen[k] || !n.isChannel(normCell(k)) {
				continue
			}
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return naturalLess(keys[i], keys[j]) })
	return keys
}

// parseRawValue reads a JSON sensor value: a number, a numeric string or null.
func (n *Normalizer) parseRawValue(raw json.RawMessage) (v float64, ok, coerced bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return n.parseValue(s)
	}
	return n.parseValue(string(raw))
}

// naturalLess compares keys sharing a prefix by their trailing number, and
// everything else lexically.
func naturalLess(a, b string) bool {
	ap, an, aok := splitTrailingNumber(a)
	bp, bn, bok := splitTrailingNumber(b)
	if aok && bok && ap == bp && an != bn {
		return an < bn
	}
	return a < b
}

func splitTrailingNumber(s string) (prefix string, num int, ok bool) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	if i == len(s) {
		return s, 0, false
	}
	v, err := strconv.Atoi(s[i:])
	if err != nil {
		return s, 0, false
	}
	return s[:i], v, true
}

func setPoint(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
