package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"dbclone/internal/metrics"
	"dbclone/internal/schema"
	"dbclone/internal/storage"
)

// Export defaults.
const (
	DefaultChunkSize = 50000
	DefaultBatchSize = 10000
)

// ExportOptions configures an Exporter.
type ExportOptions struct {
	Job   string
	RunID string
	// ChunkSize is the number of rows per data document.
	ChunkSize int
	// BatchSize is the window size of each source read.
	BatchSize int
	Compress  bool
	Now       func() time.Time
}

// Exporter writes one endpoint's tables into a Store.
type Exporter struct {
	src   storage.Endpoint
	store Store
	opt   ExportOptions
}

// NewExporter returns an Exporter.
func NewExporter(src storage.Endpoint, store Store, opt ExportOptions) *Exporter {
	if opt.ChunkSize <= 0 {
		opt.ChunkSize = DefaultChunkSize
	}
	if opt.BatchSize <= 0 {
		opt.BatchSize = DefaultBatchSize
	}
	if opt.BatchSize > opt.ChunkSize {
		opt.BatchSize = opt.ChunkSize
	}
	if opt.RunID == "" {
		opt.RunID = uuid.NewString()
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Exporter{src: src, store: store, opt: opt}
}

// Run exports tables. A table that fails is recorded in the manifest with
// its error and the export continues. The schema document and the manifest
// are written even when some tables failed; a failure to write either is
// returned.
func (e *Exporter) Run(ctx context.Context, tables []schema.TableIdentity) (Manifest, error) {
	start := time.Now()
	m := Manifest{RunID: e.opt.RunID, StartedAt: e.opt.Now()}
	if e.opt.Compress {
		m.Compression = "snappy"
	}
	doc := SchemaDocument{Version: FormatVersion, SourceKind: e.src.Kind(), ExportedAt: m.StartedAt}

	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return m, err
		}
		s, err := e.src.TableSchema(ctx, t)
		if err != nil {
			log.Printf("export: table=%s schema failed: %v", t, err)
			m.Tables = append(m.Tables, TableEntry{Table: t, Error: err.Error()})
			continue
		}
		doc.Tables = append(doc.Tables, s)

		entry, err := e.table(ctx, s)
		if err != nil {
			log.Printf("export: table=%s failed: %v", t, err)
			entry.Error = err.Error()
		}
		m.Tables = append(m.Tables, entry)
	}

	var err error
	if doc.Functions, err = e.src.ListFunctions(ctx); err != nil {
		log.Printf("export: list functions: %v", err)
	}
	if doc.Views, err = e.src.ListViews(ctx); err != nil {
		log.Printf("export: list views: %v", err)
	}
	if err := e.putJSON(ctx, SchemaKey, doc); err != nil {
		return m, err
	}

	m.FinishedAt = e.opt.Now()
	if err := e.putJSON(ctx, ManifestKey, m); err != nil {
		return m, err
	}
	metrics.RecordStep(e.opt.Job, "export", nil, time.Since(start))
	log.Printf("export: run=%s tables=%d", m.RunID, len(m.Tables))
	return m, nil
}

func (e *Exporter) table(ctx context.Context, s schema.TableSchema) (TableEntry, error) {
	entry := TableEntry{Table: s.Table}
	cols := s.InsertableColumns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}

	chunk := Chunk{Table: s.Table, Columns: names}
	flush := func() error {
		if len(chunk.Rows) == 0 {
			return nil
		}
		key := ChunkKey(s.Table, len(entry.Chunks), e.opt.Compress)
		b, err := encodeChunk(chunk, e.opt.Compress)
		if err != nil {
			return err
		}
		if err := e.store.Put(ctx, key, b); err != nil {
			return err
		}
		entry.Chunks = append(entry.Chunks, ChunkRef{Key: key, Rows: int64(len(chunk.Rows))})
		entry.Rows += int64(len(chunk.Rows))
		metrics.RecordRows(e.opt.Job, metrics.RowsExported, int64(len(chunk.Rows)))
		chunk.Rows = chunk.Rows[:0]
		return nil
	}

	batch := int64(e.opt.BatchSize)
	for offset := int64(0); ; offset += batch {
		if err := ctx.Err(); err != nil {
			return entry, err
		}
		rows, err := e.src.FetchWindow(ctx, s, names, offset, batch)
		if err != nil {
			return entry, fmt.Errorf("fetch offset=%d: %w", offset, err)
		}
		for _, row := range rows {
			enc := make([]any, len(row))
			for i, v := range row {
				enc[i] = EncodeValue(v, cols[i])
			}
			chunk.Rows = append(chunk.Rows, enc)
			if len(chunk.Rows) >= e.opt.ChunkSize {
				if err := flush(); err != nil {
					return entry, err
				}
			}
		}
		if int64(len(rows)) < batch {
			break
		}
	}
	if err := flush(); err != nil {
		return entry, err
	}
	log.Printf("export: table=%s rows=%s chunks=%d", s.Table, humanize.Comma(entry.Rows), len(entry.Chunks))
	return entry, nil
}

func (e *Exporter) putJSON(ctx context.Context, key string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return e.store.Put(ctx, key, b)
}
