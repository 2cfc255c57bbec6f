package summary

import (
	"fmt"
	"strings"

	"github.com/vins-anity/trailpack/internal/model"
)

// Fallback renders the deterministic template summary from structured
// fields only. It performs no I/O and cannot fail.
func Fallback(input Input) *Result {
	counts := map[model.EventType]int{}
	for _, ev := range input.Events {
		counts[ev.EventType]++
	}

	var b strings.Builder

	name := input.TaskKey
	if name == "" {
		name = "This task"
	}
	if input.TaskSummary != "" {
		fmt.Fprintf(&b, "%s (%s) recorded %d lifecycle events.", name, input.TaskSummary, len(input.Events))
	} else {
		fmt.Fprintf(&b, "%s recorded %d lifecycle events.", name, len(input.Events))
	}

	if n := counts[model.EventPRMerged]; n > 0 {
		fmt.Fprintf(&b, " %d pull request(s) merged", n)
		if a := counts[model.EventPRApproved]; a > 0 {
			fmt.Fprintf(&b, " with %d approval(s)", a)
		}
		b.WriteString(".")
	}

	switch {
	case counts[model.EventCIFailed] > 0 && counts[model.EventCIPassed] == 0:
		b.WriteString(" CI failed.")
	case counts[model.EventCIPassed] > 0:
		b.WriteString(" CI passed.")
	}

	switch {
	case counts[model.EventClosureFinalized] > 0:
		b.WriteString(" Closure finalized.")
	case counts[model.EventClosureVetoed] > 0:
		b.WriteString(" Closure was vetoed.")
	case counts[model.EventClosureProposed] > 0:
		b.WriteString(" Closure proposed, awaiting the veto window.")
	}

	return &Result{Text: b.String(), Model: FallbackModel}
}
