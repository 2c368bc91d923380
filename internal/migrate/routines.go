package migrate

import (
	"context"
	"log"

	"dbclone/internal/schema"
)

// Executor runs one statement.
type Executor interface {
	Exec(ctx context.Context, stmt string, args ...any) error
}

// RoutineResult reports a routine copy.
type RoutineResult struct {
	Copied int
	Passes int
	// Failed holds the routines that never succeeded, with their last error.
	Failed map[string]error
}

// CopyRoutines executes each definition verbatim on dst. Definitions may
// depend on each other in any order, so failures are retried in further
// passes for as long as a pass makes progress.
func CopyRoutines(ctx context.Context, dst Executor, routines []schema.RoutineDefinition) RoutineResult {
	res := RoutineResult{Failed: map[string]error{}}
	pending := routines
	for len(pending) > 0 && ctx.Err() == nil {
		res.Passes++
		var next []schema.RoutineDefinition
		for _, r := range pending {
			if err := dst.Exec(ctx, r.Definition); err != nil {
				res.Failed[r.QualifiedName()] = err
				next = append(next, r)
				continue
			}
			delete(res.Failed, r.QualifiedName())
			res.Copied++
		}
		if len(next) == len(pending) {
			break
		}
		pending = next
	}
	for name, err := range res.Failed {
		log.Printf("migrate: routine=%s not copied: %v", name, err)
	}
	return res
}
