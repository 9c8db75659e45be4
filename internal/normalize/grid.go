package normalize

import (
	"strings"
	"unicode/utf8"

	"github.com/thermocert/thermocert/pkg/types"
)

// header locates the columns of interest in a grid.
type header struct {
	row      int
	index    int
	time     int
	date     int // -1 when the export has no separate date column
	channels []int
	labels   []string
}

// findHeader returns the first row holding an index marker, a time marker and
// at least one channel column.
func (n *Normalizer) findHeader(rows [][]string) (header, bool) {
	for i, row := range rows {
		h := header{row: i, index: -1, time: -1, date: -1}
		for j, cell := range row {
			c := normCell(cell)
			if c == "" {
				continue
			}
			switch {
			case h.index < 0 && n.markers.index[c]:
				h.index = j
			case h.time < 0 && n.markers.time[c]:
				h.time = j
			case h.date < 0 && n.markers.date[c]:
				h.date = j
			case n.isChannel(c):
				h.channels = append(h.channels, j)
				h.labels = append(h.labels, strings.TrimSpace(cell))
			}
		}
		if h.index >= 0 && h.time >= 0 && len(h.channels) > 0 {
			return h, true
		}
	}
	return header{}, false
}

// isChannel reports whether c names a sensor column. A single-letter prefix
// such as "s" or "t" only matches a numbered code like "S1" or "t_12", so it
// cannot claim ordinary words.
func (n *Normalizer) isChannel(c string) bool {
	for _, p := range n.markers.channelPrefixes {
		if !strings.HasPrefix(c, p) {
			continue
		}
		if utf8.RuneCountInString(p) > 1 || isChannelNumber(c[len(p):]) {
			return true
		}
	}
	return false
}

func isChannelNumber(s string) bool {
	s = strings.TrimLeft(s, " _-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// fromGrid normalizes a grid of cells, whatever its wire shape.
func (n *Normalizer) fromGrid(file string, rows [][]string) (*types.MeasurementSet, error) {
	h, ok := n.findHeader(rows)
	if !ok {
		return nil, formatErr(file, "no row holds index, time and channel columns", ErrHeaderNotFound)
	}

	set := &types.MeasurementSet{
		ID:           baseName(file),
		Name:         baseName(file),
		Sensors:      sensorIDs(len(h.channels)),
		SensorLabels: h.labels,
		Metadata:     extractMetadata(rows[:h.row]),
	}

	for i := h.row + 1; i < len(rows); i++ {
		row := rows[i]
		line := i + 1
		if isBlank(row) {
			continue
		}

		ts, err := n.times.parse(n.timeCell(h, row))
		if err != nil {
			set.Caveats = append(set.Caveats, skipCaveat(line, err.Error()))
			continue
		}

		rec := types.Record{Timestamp: ts, Values: make(map[string]float64, len(h.channels))}
		var coerced []types.Caveat
		for k, col := range h.channels {
			cell := cellAt(row, col)
			v, ok, bad := n.parseValue(cell)
			if bad {
				coerced = append(coerced, n.coercionCaveat(line, set.Sensors[k], cell))
			}
			if ok {
				rec.Values[set.Sensors[k]] = v
			}
		}
		if appendRecord(set, line, rec) {
			set.Caveats = append(set.Caveats, coerced...)
		}
	}

	if len(set.Records) == 0 {
		return nil, formatErr(file, "every row after the header was blank or had no usable time", ErrNoRows)
	}
	return set, nil
}

// timeCell returns the text to parse as the row's timestamp, joining a
// separate date column when the export has one.
func (n *Normalizer) timeCell(h header, row []string) string {
	t := strings.TrimSpace(cellAt(row, h.time))
	if h.date < 0 || t == "" {
		return t
	}
	d := strings.TrimSpace(cellAt(row, h.date))
	if d == "" {
		return t
	}
	joined := d + " " + t
	if _, err := n.times.parse(joined); err == nil {
		return joined
	}
	return t
}

func cellAt(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
