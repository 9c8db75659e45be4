// Package series expands a canonical measurement set into the ordered
// Readings of a test and caches each row's min, max and mean.
package series
