package normalize

import (
	"fmt"
	"strings"
)

// metaAliases maps the report fields loggers write above the header, in
// Portuguese or English, onto stable keys.
var metaAliases = []struct {
	key     string
	exact   []string
	partial []string
}{
	{key: "client", exact: []string{"cliente", "client"}},
	{key: "cnpj", exact: []string{"cnpj"}},
	{key: "address", exact: []string{"endereço", "endereco", "address"}},
	{key: "equipment", exact: []string{"equipamento", "equipment", "equipment name"}},
	{key: "manufacturer", exact: []string{"fabricante", "manufacturer"}},
	{key: "model", exact: []string{"modelo", "model"}},
	{key: "serial_number", partial: []string{"serie", "série", "serial"}},
	{key: "identification", partial: []string{"identificação", "identificacao", "identification"}},
	{key: "temperature_range", partial: []string{"faixa temp", "range"}},
	{key: "responsible", partial: []string{"responsável", "responsavel", "responsible"}},
	{key: "executor", exact: []string{"executor"}},
	{key: "reviewer", exact: []string{"revisor", "reviewer"}},
}

func canonicalMetaKey(raw string) string {
	k := normCell(raw)
	for _, a := range metaAliases {
		for _, e := range a.exact {
			if k == e {
				return a.key
			}
		}
		for _, p := range a.partial {
			if strings.Contains(k, p) {
				return a.key
			}
		}
	}
	return k
}

// extractMetadata reads key/value pairs from the rows above a grid header.
// A row is either a comment ("# key: value" or "// key: value", possibly split
// across cells by the delimiter) or a two-cell "key, value" row.
func extractMetadata(rows [][]string) map[string]string {
	meta := make(map[string]string)
	for _, row := range rows {
		key, value, ok := metaPair(row)
		if !ok {
			continue
		}
		meta[canonicalMetaKey(key)] = value
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

func metaPair(row []string) (key, value string, ok bool) {
	cells := trimTrailingBlank(row)
	if len(cells) == 0 {
		return "", "", false
	}
	first := strings.TrimSpace(cells[0])
	if strings.HasPrefix(first, "#") || strings.HasPrefix(first, "//") {
		line := strings.Join(cells, ",")
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "//")
		line = strings.TrimPrefix(line, "#")
		k, v, found := strings.Cut(line, ":")
		if !found || strings.TrimSpace(k) == "" {
			return "", "", false
		}
		return strings.TrimSpace(k), strings.TrimSpace(v), true
	}
	if len(cells) == 2 && first != "" {
		return strings.TrimSuffix(first, ":"), strings.TrimSpace(cells[1]), true
	}
	if len(cells) == 1 {
		if k, v, found := strings.Cut(first, ":"); found && strings.TrimSpace(k) != "" {
			return strings.TrimSpace(k), strings.TrimSpace(v), true
		}
	}
	return "", "", false
}

func trimTrailingBlank(row []string) []string {
	end := len(row)
	for end > 0 && strings.TrimSpace(row[end-1]) == "" {
		end--
	}
	return row[:end]
}

// flattenObject copies a decoded JSON object into meta as "prefix.key" entries.
// Nested objects are flattened recursively.
func flattenObject(meta map[string]string, prefix string, obj map[string]any) {
	for k, raw := range obj {
		name := prefix + "." + k
		switch v := raw.(type) {
		case nil:
		case map[string]any:
			flattenObject(meta, name, v)
		case string:
			meta[name] = v
		default:
			meta[name] = fmt.Sprint(v)
		}
	}
}
