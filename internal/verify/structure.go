package verify

import (
	"fmt"
	"strings"

	"dbclone/internal/schema"
)

// Normalizer maps a source column to the form the target engine reports.
// Nil means both sides share an engine and columns compare as read.
type Normalizer func(c schema.ColumnDescriptor) (schema.ColumnDescriptor, error)

// CompareColumns compares the source and target column lists of one table
// and returns human-readable differences in a fixed order: column count
// first, then columns missing on the target, then per-column mismatches
// (type, nullability, length, exact-numeric precision/scale), then columns
// only on the target. Column names match case-insensitively and catalog
// order is irrelevant.
func CompareColumns(src, dst []schema.ColumnDescriptor, normalize Normalizer) []string {
	var (
		missing    []string
		mismatches []string
		extra      []string
	)

	target := make(map[string]schema.ColumnDescriptor, len(dst))
	for _, c := range dst {
		target[strings.ToLower(c.Name)] = c
	}
	source := make(map[string]struct{}, len(src))

	for _, sc := range src {
		key := strings.ToLower(sc.Name)
		source[key] = struct{}{}

		tc, ok := target[key]
		if !ok {
			missing = append(missing, fmt.Sprintf("missing column %s in target", sc.Name))
			continue
		}
		if normalize != nil {
			n, err := normalize(sc)
			if err != nil {
				mismatches = append(mismatches, fmt.Sprintf("column %s: cannot map type %s: %v", sc.Name, sc.DataType, err))
				continue
			}
			sc = n
		}
		mismatches = append(mismatches, compareColumn(sc, tc)...)
	}

	for _, tc := range dst {
		if _, ok := source[strings.ToLower(tc.Name)]; !ok {
			extra = append(extra, fmt.Sprintf("extra column %s in target", tc.Name))
		}
	}

	var out []string
	if len(src) != len(dst) {
		out = append(out, fmt.Sprintf("column count differs: source=%d target=%d", len(src), len(dst)))
	}
	out = append(out, missing...)
	out = append(out, mismatches...)
	out = append(out, extra...)
	return out
}

func compareColumn(s, t schema.ColumnDescriptor) []string {
	var out []string
	if !strings.EqualFold(s.DataType, t.DataType) {
		out = append(out, fmt.Sprintf("column %s: type source=%s target=%s", s.Name, s.DataType, t.DataType))
	}
	if s.Nullable != t.Nullable {
		out = append(out, fmt.Sprintf("column %s: nullable source=%t target=%t", s.Name, s.Nullable, t.Nullable))
	}
	if !intPtrEqual(s.CharLength, t.CharLength) {
		out = append(out, fmt.Sprintf("column %s: length source=%s target=%s", s.Name, s.LengthString(), t.LengthString()))
	}
	if isExactNumeric(s.DataType) && isExactNumeric(t.DataType) &&
		(!intPtrEqual(s.NumericPrecision, t.NumericPrecision) || !intPtrEqual(s.NumericScale, t.NumericScale)) {
		out = append(out, fmt.Sprintf("column %s: precision source=%s,%s target=%s,%s", s.Name,
			schema.FormatLength(s.NumericPrecision), schema.FormatLength(s.NumericScale),
			schema.FormatLength(t.NumericPrecision), schema.FormatLength(t.NumericScale)))
	}
	return out
}

func isExactNumeric(dataType string) bool {
	switch strings.ToLower(dataType) {
	case "decimal", "numeric":
		return true
	}
	return false
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
