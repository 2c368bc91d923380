package verify

import (
	"fmt"
	"sort"
	"strings"

	"dbclone/internal/schema"
)

// Status is a table's verification outcome.
type Status string

const (
	StatusMatch    Status = "MATCH"
	StatusMismatch Status = "MISMATCH"
	StatusError    Status = "ERROR"
)

// IssueType classifies one divergence.
type IssueType string

const (
	IssueStructure    IssueType = "STRUCTURE"
	IssueRowCount     IssueType = "ROW_COUNT"
	IssueDataChecksum IssueType = "DATA_CHECKSUM"
	IssueError        IssueType = "ERROR"
)

// Issue is one reported divergence.
type Issue struct {
	Type    IssueType `json:"type"`
	Message string    `json:"message"`
}

// Result is the outcome of verifying one table. Status is MATCH iff Issues
// is empty.
type Result struct {
	Table    schema.TableIdentity `json:"table"`
	Status   Status               `json:"status"`
	RowCount int64                `json:"row_count"`
	Issues   []Issue              `json:"issues,omitempty"`
}

// NewResult derives the status from issues: MATCH when there are none,
// ERROR when any is an ERROR issue, MISMATCH otherwise.
func NewResult(t schema.TableIdentity, rowCount int64, issues []Issue) Result {
	r := Result{Table: t, RowCount: rowCount, Issues: issues, Status: StatusMatch}
	for _, is := range issues {
		if is.Type == IssueError {
			r.Status = StatusError
			return r
		}
		r.Status = StatusMismatch
	}
	return r
}

// Has reports whether r carries an issue of type typ.
func (r Result) Has(typ IssueType) bool {
	for _, is := range r.Issues {
		if is.Type == typ {
			return true
		}
	}
	return false
}

// Summary counts results by status and names the tables that did not match.
type Summary struct {
	Matched    int
	Mismatched int
	Errored    int

	MismatchedTables []string
	ErroredTables    []string
}

// Summarize aggregates results.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.Status {
		case StatusMatch:
			s.Matched++
		case StatusMismatch:
			s.Mismatched++
			s.MismatchedTables = append(s.MismatchedTables, r.Table.String())
		case StatusError:
			s.Errored++
			s.ErroredTables = append(s.ErroredTables, r.Table.String())
		}
	}
	sort.Strings(s.MismatchedTables)
	sort.Strings(s.ErroredTables)
	return s
}

// OK reports whether every table matched.
func (s Summary) OK() bool { return s.Mismatched == 0 && s.Errored == 0 }

func (s Summary) String() string {
	out := fmt.Sprintf("matched=%d mismatched=%d errored=%d", s.Matched, s.Mismatched, s.Errored)
	if len(s.MismatchedTables) > 0 {
		out += " mismatched_tables=" + strings.Join(s.MismatchedTables, ",")
	}
	if len(s.ErroredTables) > 0 {
		out += " errored_tables=" + strings.Join(s.ErroredTables, ",")
	}
	return out
}
