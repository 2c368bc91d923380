package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"dbclone/internal/schema"
)

// Archive reads a finished export. It serves rows to the transfer engine
// the way a live endpoint would, so an import is a migration whose source
// is an Archive.
type Archive struct {
	store    Store
	doc      SchemaDocument
	manifest Manifest

	// last decoded chunk; windows usually read a chunk front to back.
	cachedKey string
	cached    Chunk
}

// Open reads the manifest and schema document from store. A missing
// manifest means the export never finished and is reported as ErrNotFound.
func Open(ctx context.Context, store Store) (*Archive, error) {
	a := &Archive{store: store}
	if err := a.getJSON(ctx, ManifestKey, &a.manifest); err != nil {
		return nil, err
	}
	if err := a.getJSON(ctx, SchemaKey, &a.doc); err != nil {
		return nil, err
	}
	if a.doc.Version != FormatVersion {
		return nil, fmt.Errorf("archive: unsupported format version %d", a.doc.Version)
	}
	return a, nil
}

func (a *Archive) getJSON(ctx context.Context, key string, v any) error {
	b, err := a.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("archive: decode %s: %w", key, err)
	}
	return nil
}

// Manifest returns the export manifest.
func (a *Archive) Manifest() Manifest { return a.manifest }

// Document returns the schema document.
func (a *Archive) Document() SchemaDocument { return a.doc }

// Kind reports the engine the archive was exported from, so that source
// defaults and routines are only replayed onto the same engine.
func (a *Archive) Kind() string { return a.doc.SourceKind }

// ListTables returns the tables that exported without error.
func (a *Archive) ListTables(context.Context) ([]schema.TableIdentity, error) {
	var out []schema.TableIdentity
	for _, s := range a.doc.Tables {
		if e, ok := a.manifest.Table(s.Table); ok && e.Error == "" {
			out = append(out, s.Table)
		}
	}
	return out, nil
}

// TableSchema returns the exported schema of t.
func (a *Archive) TableSchema(_ context.Context, t schema.TableIdentity) (schema.TableSchema, error) {
	for _, s := range a.doc.Tables {
		if strings.EqualFold(s.Table.String(), t.String()) {
			return s, nil
		}
	}
	return schema.TableSchema{}, fmt.Errorf("%w: table %s", ErrNotFound, t)
}

func (a *Archive) ListFunctions(context.Context) ([]schema.RoutineDefinition, error) {
	return a.doc.Functions, nil
}

func (a *Archive) ListViews(context.Context) ([]schema.RoutineDefinition, error) {
	return a.doc.Views, nil
}

// CountRows returns the row count recorded in the manifest.
func (a *Archive) CountRows(_ context.Context, t schema.TableIdentity) (int64, error) {
	e, ok := a.manifest.Table(t)
	if !ok {
		return 0, fmt.Errorf("%w: table %s", ErrNotFound, t)
	}
	return e.Rows, nil
}

// FetchWindow returns rows [offset, offset+limit) of t in export order,
// decoded for s's column types and projected onto columns.
func (a *Archive) FetchWindow(ctx context.Context, s schema.TableSchema, columns []string, offset, limit int64) ([][]any, error) {
	e, ok := a.manifest.Table(s.Table)
	if !ok {
		return nil, fmt.Errorf("%w: table %s", ErrNotFound, s.Table)
	}

	var (
		out   [][]any
		start int64
	)
	for _, ref := range e.Chunks {
		end := start + ref.Rows
		if end <= offset {
			start = end
			continue
		}
		if int64(len(out)) >= limit {
			break
		}
		c, err := a.chunk(ctx, ref.Key)
		if err != nil {
			return nil, err
		}
		idx, descs, err := project(c.Columns, columns, s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ref.Key, err)
		}
		from := int64(0)
		if offset > start {
			from = offset - start
		}
		for i := from; i < int64(len(c.Rows)) && int64(len(out)) < limit; i++ {
			row := make([]any, len(columns))
			for j, k := range idx {
				v, err := DecodeValue(c.Rows[i][k], descs[j])
				if err != nil {
					return nil, fmt.Errorf("%s row %d: %w", ref.Key, i, err)
				}
				row[j] = v
			}
			out = append(out, row)
		}
		start = end
	}
	return out, nil
}

func (a *Archive) chunk(ctx context.Context, key string) (Chunk, error) {
	if key == a.cachedKey {
		return a.cached, nil
	}
	b, err := a.store.Get(ctx, key)
	if err != nil {
		return Chunk{}, err
	}
	c, err := decodeChunk(key, b)
	if err != nil {
		return Chunk{}, fmt.Errorf("archive: %w", err)
	}
	a.cachedKey, a.cached = key, c
	return c, nil
}

var errColumnMissing = errors.New("column not in archive")

// project maps requested columns onto chunk column positions.
func project(have, want []string, s schema.TableSchema) ([]int, []schema.ColumnDescriptor, error) {
	pos := make(map[string]int, len(have))
	for i, c := range have {
		pos[strings.ToLower(c)] = i
	}
	idx := make([]int, len(want))
	descs := make([]schema.ColumnDescriptor, len(want))
	for i, c := range want {
		k, ok := pos[strings.ToLower(c)]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", errColumnMissing, c)
		}
		idx[i] = k
		descs[i], _ = s.Column(c)
	}
	return idx, descs, nil
}
