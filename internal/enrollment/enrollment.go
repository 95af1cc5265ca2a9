// Package enrollment reads the on-disk enrollment format described in
// spec §6 and exposes it as the enrollment cache entry data model from
// spec §3: {vectors, meta, source_mtime}.
//
// Enrollment files themselves are produced by the external enrollment
// tool (out of scope for this module, spec §1); this package only reads
// them.
package enrollment

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Entry is one on-disk enrollment list element: a labeled batch of
// descriptors captured at a point in time.
type Entry struct {
	Label string      `json:"label"`
	Time  int64       `json:"time"` // unix seconds
	Data  [][]float64 `json:"data"`
}

// Meta is the human label and timestamp for one row of the concatenated
// enrollment matrix (spec §3, "model entry").
type Meta struct {
	Label string
	Time  int64
}

// CacheEntry is the in-memory enrollment cache entry (spec §3).
// Invariant: Vectors.RawRowView count equals len(Meta).
type CacheEntry struct {
	Vectors     *mat.Dense
	Meta        []Meta
	SourceMtime time.Time
}

// Rows returns the number of descriptor rows in the matrix.
func (c *CacheEntry) Rows() int {
	if c.Vectors == nil {
		return 0
	}
	r, _ := c.Vectors.Dims()
	return r
}

// RowView returns a copy of the i-th descriptor row.
func (c *CacheEntry) RowView(i int) []float64 {
	return mat.Row(nil, i, c.Vectors)
}

// LoadFile reads path, concatenating the Data arrays of every Entry into
// one [N, D] matrix with a parallel Meta slice (one Meta per row, inherited
// from the entry it came from).
//
// Returns (nil, os.ErrNotExist-wrapping error) if the user has no
// enrollment file, which the Model Service maps to a get_encodings null
// response (spec §4.1) and the Verifier maps to NO_ENROLLMENT (spec §4.6).
func LoadFile(path string) (*CacheEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("enrollment: parsing %s: %w", path, err)
	}

	var rows [][]float64
	var meta []Meta
	dim := -1
	for _, e := range entries {
		for _, vec := range e.Data {
			if dim == -1 {
				dim = len(vec)
			} else if len(vec) != dim {
				return nil, fmt.Errorf("enrollment: %s: inconsistent descriptor dimension %d != %d", path, len(vec), dim)
			}
			rows = append(rows, vec)
			meta = append(meta, Meta{Label: e.Label, Time: e.Time})
		}
	}

	if len(rows) == 0 {
		return &CacheEntry{
			Vectors:     mat.NewDense(0, 0, nil),
			Meta:        nil,
			SourceMtime: info.ModTime(),
		}, nil
	}

	flat := make([]float64, 0, len(rows)*dim)
	for _, r := range rows {
		flat = append(flat, r...)
	}

	return &CacheEntry{
		Vectors:     mat.NewDense(len(rows), dim, flat),
		Meta:        meta,
		SourceMtime: info.ModTime(),
	}, nil
}

// Mtime stats path and returns its modification time without reading the
// file body, used to cheaply detect staleness (spec §4.1: "reloads
// atomically ... on miss or stale (file mtime != cached mtime)").
func Mtime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
