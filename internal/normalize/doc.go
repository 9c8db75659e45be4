// Package normalize converts raw data-logger exports into canonical
// measurement sets.
//
// Three wire shapes are accepted and selected by content sniffing:
//   - hierarchical JSON documents (serial_number, configurations, cycles, measures)
//   - delimited text grids (comma, semicolon or tab separated)
//   - spreadsheet grids, either an .xlsx workbook or a JSON array of rows
//
// Tabular grids do not start at row 0. The header is the first row holding an
// index marker, a time marker and at least one channel column; rows above it
// are read as key/value metadata. Timestamps go through an ordered fallback
// chain (calendar layouts, DD-MM-YY, YYYY-MM-DD, spreadsheet serial).
//
// Rows that cannot be placed in time are dropped and sensor cells that fail
// to parse are coerced. Both are reported as caveats on the result rather than
// errors. A *FormatError is returned only when the input as a whole is unusable.
package normalize
