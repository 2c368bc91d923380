package migrate

import (
	"path"
	"strings"

	"dbclone/internal/schema"
)

// Filter selects tables by glob pattern. A pattern containing a dot matches
// "schema.table"; otherwise it matches the table name alone. Matching is
// case-insensitive. An empty Include selects every table.
type Filter struct {
	Include []string
	Exclude []string
}

// Match reports whether t passes the filter.
func (f Filter) Match(t schema.TableIdentity) bool {
	if len(f.Include) > 0 && !matchAny(f.Include, t) {
		return false
	}
	return !matchAny(f.Exclude, t)
}

// Apply returns the tables that pass the filter, in order.
func (f Filter) Apply(tables []schema.TableIdentity) []schema.TableIdentity {
	if len(f.Include) == 0 && len(f.Exclude) == 0 {
		return tables
	}
	var out []schema.TableIdentity
	for _, t := range tables {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

func matchAny(patterns []string, t schema.TableIdentity) bool {
	full := strings.ToLower(t.String())
	name := strings.ToLower(t.Name)
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		subject := name
		if strings.Contains(p, ".") {
			subject = full
		}
		if ok, _ := path.Match(p, subject); ok {
			return true
		}
	}
	return false
}
