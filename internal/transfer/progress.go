package transfer

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"dbclone/internal/schema"
)

// Progress is a per-table snapshot taken after each window.
type Progress struct {
	Table       schema.TableIdentity
	Batch       int
	Transferred int64
	Failed      int64
	Total       int64
	Elapsed     time.Duration
}

// Percent is transferred rows over total; an empty table is complete.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 100
	}
	return float64(p.Transferred) / float64(p.Total) * 100
}

// RowsPerSec is the average throughput since the table's transfer began.
func (p Progress) RowsPerSec() float64 {
	if p.Elapsed <= 0 {
		return 0
	}
	return float64(p.Transferred+p.Failed) / p.Elapsed.Seconds()
}

// Remaining is the number of rows not yet transferred or failed.
func (p Progress) Remaining() int64 {
	r := p.Total - p.Transferred - p.Failed
	if r < 0 {
		return 0
	}
	return r
}

// ETA is remaining rows over average throughput. Zero when nothing remains
// or no throughput has been measured yet.
func (p Progress) ETA() time.Duration {
	rps := p.RowsPerSec()
	if rps <= 0 || p.Remaining() == 0 {
		return 0
	}
	return time.Duration(float64(p.Remaining()) / rps * float64(time.Second))
}

// String renders the progress log fields.
func (p Progress) String() string {
	s := fmt.Sprintf("table=%s batch=%d rows=%s/%s pct=%.1f rps=%.0f eta_min=%.1f",
		p.Table, p.Batch, humanize.Comma(p.Transferred), humanize.Comma(p.Total),
		p.Percent(), p.RowsPerSec(), p.ETA().Minutes())
	if p.Failed > 0 {
		s += " failed=" + humanize.Comma(p.Failed)
	}
	return s
}
