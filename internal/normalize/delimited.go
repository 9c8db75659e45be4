package normalize

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/thermocert/thermocert/pkg/types"
)

// sniffLines bounds how many lines are inspected to pick the delimiter.
const sniffLines = 50

var delimiters = []rune{',', ';', '\t'}

// fromDelimited reads delimited text into a grid and normalizes it. The
// separators are tried in sniffed order and the first one whose grid has a
// recognizable header wins, so a metadata line full of commas cannot hide a
// semicolon-separated table below it.
func (n *Normalizer) fromDelimited(file string, data []byte) ([]*types.MeasurementSet, error) {
	var (
		fallback [][]string
		readErr  error
	)
	for _, comma := range rankDelimiters(data) {
		rows, err := readGrid(data, comma)
		if err != nil {
			if readErr == nil {
				readErr = err
			}
			continue
		}
		if _, ok := n.findHeader(rows); ok {
			return n.gridSets(file, rows)
		}
		if fallback == nil {
			fallback = rows
		}
	}
	if fallback == nil {
		return nil, formatErr(file, "delimited text", readErr)
	}
	return n.gridSets(file, fallback)
}

func (n *Normalizer) gridSets(file string, rows [][]string) ([]*types.MeasurementSet, error) {
	set, err := n.fromGrid(file, rows)
	if err != nil {
		return nil, err
	}
	return []*types.MeasurementSet{set}, nil
}

func readGrid(data []byte, comma rune) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
}

// rankDelimiters orders the candidate separators by the most occurrences on
// any single non-comment line. Ties keep the order of delimiters, so comma
// comes first.
func rankDelimiters(data []byte) []rune {
	counts := make(map[rune]int, len(delimiters))

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for i := 0; i < sniffLines && sc.Scan(); i++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		for _, d := range delimiters {
			if c := strings.Count(line, string(d)); c > counts[d] {
				counts[d] = c
			}
		}
	}
	ranked := append([]rune(nil), delimiters...)
	sort.SliceStable(ranked, func(i, j int) bool { return counts[ranked[i]] > counts[ranked[j]] })
	return ranked
}
