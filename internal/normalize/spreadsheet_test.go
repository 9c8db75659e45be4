package normalize

import (
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/thermocert/thermocert/pkg/types"
)

func TestNormalize_JSONGrid(t *testing.T) {
	data := `[
	  ["Cliente", "Clinica Sul"],
	  [],
	  ["Index", "Time", "CH01", "CH02", null],
	  [1, 45292.5, 121.05, "121,10", null],
	  [2, 45292.500694444, 121.2, null, null]
	]`

	set := normalizeOne(t, newNormalizer(t), "grid.json", data)

	if set.Source.Kind != types.KindSpreadsheet {
		t.Errorf("kind: got %q", set.Source.Kind)
	}
	if len(set.Records) != 2 {
		t.Fatalf("records: got %d, want 2", len(set.Records))
	}
	if got, want := set.Records[0].Timestamp, unix(2024, 1, 1, 12, 0, 0); got != want {
		t.Errorf("ts[0]: got %d, want %d", got, want)
	}
	if got, want := set.Records[1].Timestamp, unix(2024, 1, 1, 12, 1, 0); got != want {
		t.Errorf("ts[1]: got %d, want %d", got, want)
	}
	if got := set.Records[0].Values["sensor2"]; got != 121.1 {
		t.Errorf("sensor2[0]: got %v, want 121.1", got)
	}
	if v, ok := set.Records[1].Values["sensor2"]; !ok || v != 0 {
		t.Errorf("null cell: got %v (present=%v), want 0 under zero fill", v, ok)
	}
	if got := set.CountCaveats(types.CaveatValueCoerced); got != 1 {
		t.Errorf("coerced: got %d, want 1", got)
	}
	if set.Metadata["client"] != "Clinica Sul" {
		t.Errorf("metadata: got %v", set.Metadata)
	}
}

func TestNormalize_JSONGridMalformed(t *testing.T) {
	_, err := newNormalizer(t).Normalize(Input{Name: "bad.json", Data: []byte(`[["Index", {"x": 1}`)})
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("error: got %v, want *FormatError", err)
	}
}

func TestNormalize_Workbook(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	// The first sheet is a cover page; the data lives on the second.
	if err := f.SetSheetRow("Sheet1", "A1", &[]any{"Relatorio de qualificacao"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.NewSheet("Dados"); err != nil {
		t.Fatal(err)
	}
	rows := [][]any{
		{"Modelo", "FR-400"},
		{"Index", "Time", "Channel 1", "Channel 2"},
		{1, 45292.25, 5.5, 5.75},
		{2, 45292.25 + 1.0/1440, 5.25, "n/a"},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		r := r
		if err := f.SetSheetRow("Dados", cell, &r); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	sets, err := newNormalizer(t).Normalize(Input{Name: "logger.xlsx", Data: buf.Bytes()})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	set := sets[0]
	if set.Source.Kind != types.KindSpreadsheet {
		t.Errorf("kind: got %q", set.Source.Kind)
	}
	if len(set.Records) != 2 {
		t.Fatalf("records: got %d, want 2", len(set.Records))
	}
	if got, want := set.Records[0].Timestamp, unix(2024, 1, 1, 6, 0, 0); got != want {
		t.Errorf("ts[0]: got %d, want %d", got, want)
	}
	if got := set.Records[1].Timestamp - set.Records[0].Timestamp; got != 60 {
		t.Errorf("step: got %d, want 60", got)
	}
	if got := set.Records[0].Values["sensor2"]; got != 5.75 {
		t.Errorf("sensor2[0]: got %v", got)
	}
	if got := set.CountCaveats(types.CaveatValueCoerced); got != 1 {
		t.Errorf("coerced: got %d, want 1", got)
	}
	if set.Metadata["sheet"] != "Dados" || set.Metadata["model"] != "FR-400" {
		t.Errorf("metadata: got %v", set.Metadata)
	}
}

func TestNormalize_WorkbookWithoutHeader(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetRow("Sheet1", "A1", &[]any{"Index", "Value"}); err != nil {
		t.Fatal(err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	_, err = newNormalizer(t).Normalize(Input{Name: "empty.xlsx", Data: buf.Bytes()})
	if !errors.Is(err, ErrHeaderNotFound) {
		t.Fatalf("error: got %v, want ErrHeaderNotFound", err)
	}
}
