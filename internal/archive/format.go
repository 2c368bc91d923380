// Package archive exports a database to a set of JSON documents and reads
// them back as a row source for import.
//
// An archive holds one schema document (schema.json), per-table data chunks
// (data/<schema>.<table>.<nnnn>.json, or .json.sz when snappy compressed)
// and a manifest (manifest.json) written last, listing every chunk and its
// row count. An archive without a manifest is incomplete.
package archive

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang/snappy"

	"dbclone/internal/schema"
)

// Object keys.
const (
	SchemaKey   = "schema.json"
	ManifestKey = "manifest.json"
	DataPrefix  = "data/"
)

// FormatVersion is written into every schema document.
const FormatVersion = 1

// TimeLayout is how temporal values are stored.
const TimeLayout = "2006-01-02 15:04:05.999999999Z07:00"

// SchemaDocument describes every exported table and routine.
type SchemaDocument struct {
	Version    int                        `json:"version"`
	SourceKind string                     `json:"source_kind"`
	ExportedAt time.Time                  `json:"exported_at"`
	Tables     []schema.TableSchema       `json:"tables"`
	Functions  []schema.RoutineDefinition `json:"functions,omitempty"`
	Views      []schema.RoutineDefinition `json:"views,omitempty"`
}

// Chunk is one data document.
type Chunk struct {
	Table   schema.TableIdentity `json:"table"`
	Columns []string             `json:"columns"`
	Rows    [][]any              `json:"rows"`
}

// ChunkRef locates a chunk and its row count.
type ChunkRef struct {
	Key  string `json:"key"`
	Rows int64  `json:"rows"`
}

// TableEntry is a table's line in the manifest.
type TableEntry struct {
	Table  schema.TableIdentity `json:"table"`
	Rows   int64                `json:"rows"`
	Chunks []ChunkRef           `json:"chunks"`
	Error  string               `json:"error,omitempty"`
}

// Manifest summarizes an export.
type Manifest struct {
	RunID       string       `json:"run_id"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Compression string       `json:"compression,omitempty"`
	Tables      []TableEntry `json:"tables"`
}

// Table returns the manifest entry for t.
func (m Manifest) Table(t schema.TableIdentity) (TableEntry, bool) {
	for _, e := range m.Tables {
		if strings.EqualFold(e.Table.String(), t.String()) {
			return e, true
		}
	}
	return TableEntry{}, false
}

// ChunkKey names the n-th (0-based) chunk of t.
func ChunkKey(t schema.TableIdentity, n int, compressed bool) string {
	k := fmt.Sprintf("%s%s.%04d.json", DataPrefix, t.String(), n+1)
	if compressed {
		k += ".sz"
	}
	return k
}

func encodeChunk(c Chunk, compress bool) ([]byte, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode chunk %s: %w", c.Table, err)
	}
	if compress {
		return snappy.Encode(nil, b), nil
	}
	return b, nil
}

func decodeChunk(key string, b []byte) (Chunk, error) {
	if strings.HasSuffix(key, ".sz") {
		raw, err := snappy.Decode(nil, b)
		if err != nil {
			return Chunk{}, fmt.Errorf("decompress %s: %w", key, err)
		}
		b = raw
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var c Chunk
	if err := dec.Decode(&c); err != nil {
		return Chunk{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return c, nil
}

// EncodeValue converts a driver value into its JSON form for column c:
// base64 for binary, TimeLayout for time values, strings for non-finite
// floats. Other values pass through.
func EncodeValue(v any, c schema.ColumnDescriptor) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		if schema.IsBinary(c.DataType) || schema.IsRowVersionType(c.DataType) {
			return base64.StdEncoding.EncodeToString(x)
		}
		return string(x)
	case time.Time:
		return x.Format(TimeLayout)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return strconv.FormatFloat(x, 'g', -1, 64)
		}
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return strconv.FormatFloat(float64(x), 'g', -1, 32)
		}
	}
	return v
}

// DecodeValue converts a JSON value read with UseNumber back into a value
// the target driver accepts for column c.
func DecodeValue(v any, c schema.ColumnDescriptor) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		switch {
		case schema.IsBinary(c.DataType) || schema.IsRowVersionType(c.DataType):
			b, err := base64.StdEncoding.DecodeString(x)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", c.Name, err)
			}
			return b, nil
		case schema.IsTemporal(c.DataType):
			if t, err := time.Parse(TimeLayout, x); err == nil {
				return t, nil
			}
			return x, nil
		case schema.IsApproximate(c.DataType):
			if f, err := strconv.ParseFloat(x, 64); err == nil {
				return f, nil
			}
		}
		return x, nil
	case json.Number:
		if schema.IsApproximate(c.DataType) {
			return x.Float64()
		}
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		// Exact decimals stay textual so no precision is lost.
		return x.String(), nil
	}
	return v, nil
}
