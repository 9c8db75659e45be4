package normalize

import (
	"testing"
	"time"
)

func TestTimeParser(t *testing.T) {
	p := timeParser{loc: time.UTC}
	tests := []struct {
		name    string
		in      string
		want    int64
		wantErr bool
	}{
		{"rfc3339", "2024-03-05T10:00:00Z", unix(2024, 3, 5, 10, 0, 0), false},
		{"rfc3339 offset", "2024-03-05T10:00:00-03:00", unix(2024, 3, 5, 13, 0, 0), false},
		{"naive T", "2024-03-05T10:00:00", unix(2024, 3, 5, 10, 0, 0), false},
		{"day first slashes", "05/03/2024 10:00:00", unix(2024, 3, 5, 10, 0, 0), false},
		{"two digit year 20xx", "05-03-24 10:00:00", unix(2024, 3, 5, 10, 0, 0), false},
		{"two digit year pivot", "05-03-69 10:00:00", unix(2069, 3, 5, 10, 0, 0), false},
		{"two digit year 19xx", "05-03-70 10:00:00", unix(1970, 3, 5, 10, 0, 0), false},
		{"two digit year impossible date", "31-02-24 10:00:00", 0, true},
		{"iso spaced", "2024-03-05 10:00:00", unix(2024, 3, 5, 10, 0, 0), false},
		{"serial", "45292", unix(2024, 1, 1, 0, 0, 0), false},
		{"serial fraction", "45292.75", unix(2024, 1, 1, 18, 0, 0), false},
		{"serial out of range", "0.5", 0, true},
		{"padded", "  2024-03-05 10:00:00 ", unix(2024, 3, 5, 10, 0, 0), false},
		{"blank", "", 0, true},
		{"text", "yesterday", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := p.parse(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Errorf("parse(%q): expected error, got %d", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("parse(%q): got %s, want %s", tc.in,
					time.Unix(got, 0).UTC(), time.Unix(tc.want, 0).UTC())
			}
		})
	}
}
