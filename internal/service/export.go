package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/vins-anity/trailpack/internal/chain"
)

// renderMarkdown produces the portable document form of a packet. The
// rendering includes the chain hashes so a recipient can re-verify the
// trail against the canonical encoding rules.
func renderMarkdown(view *PacketView) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Proof Packet %d\n\n", view.Packet.ID)
	fmt.Fprintf(&b, "- Task: %s\n", view.Task.TaskKey)
	if view.Task.Summary != nil && *view.Task.Summary != "" {
		fmt.Fprintf(&b, "- Description: %s\n", *view.Task.Summary)
	}
	fmt.Fprintf(&b, "- Status: %s\n", view.Packet.Status)
	if view.Packet.FinalizedAt != nil {
		fmt.Fprintf(&b, "- Finalized: %s\n", view.Packet.FinalizedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "- Events: %d\n", len(view.Events))

	if view.Packet.Summary != nil {
		modelTag := ""
		if view.Packet.SummaryModel != nil {
			modelTag = fmt.Sprintf(" (%s)", *view.Packet.SummaryModel)
		}
		fmt.Fprintf(&b, "\n## Summary%s\n\n%s\n", modelTag, *view.Packet.Summary)
	}

	b.WriteString("\n## Event trail\n\n")
	b.WriteString("| Seq | Time (UTC) | Event | Source | Hash |\n")
	b.WriteString("|----:|------------|-------|--------|------|\n")
	for _, ev := range view.Events {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | `%s` |\n",
			ev.Seq,
			ev.CreatedAt.UTC().Format(time.RFC3339),
			ev.EventType,
			ev.TriggerSource,
			shortHash(ev.EventHash))
	}

	fmt.Fprintf(&b, "\nGenesis `%s`, chain head `%s`.\n",
		shortHash(chain.Genesis), shortHash(chain.Tail(view.Events)))

	return b.String()
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12]
}
