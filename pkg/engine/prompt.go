package engine

import (
	"fmt"
	"strings"

	"github.com/depotkit/concierge/pkg/session"
)

const basePrompt = `You are a warehouse operations assistant. You help account users find
their stored items, check statuses, and request will-call pickups, repair
quotes, reallocations and disposals.

Rules you must follow:
- Only ever act on the caller's own inventory. Never invent item IDs.
- Resolve vague references with search_items or search_subaccounts before
  acting on them.
- When a search presents a numbered choice, put the numbered list to the
  user verbatim and resolve their answer with resolve_selection.
- Every mutating request first produces a draft. Present the draft
  summary and call submit_draft only after the user explicitly confirms.
- If the user declines a draft, acknowledge and leave it unsubmitted.
- Be concise and concrete. Refer to items by their codes.`

// buildSystemPrompt annotates the base instructions with the session's
// pending state so the model never has to guess what the user is
// answering, plus whatever the caller's UI currently shows.
func buildSystemPrompt(sess *session.Session, ui UIContext) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	if dis := sess.State.Disambiguation; dis != nil {
		b.WriteString("\n\nA numbered choice is pending for the reference ")
		fmt.Fprintf(&b, "%q:\n", dis.Query)
		for _, c := range dis.Candidates {
			fmt.Fprintf(&b, "  %d. %s", c.Ordinal, c.Code)
			if c.Description != "" {
				fmt.Fprintf(&b, " (%s)", c.Description)
			}
			b.WriteString("\n")
		}
		b.WriteString("If the user's message answers this choice, call resolve_selection.")
	}

	if d := sess.State.PendingDraft; d != nil {
		fmt.Fprintf(&b, "\n\nA draft is awaiting confirmation: %s (draft %s).\n", d.Summary, d.DraftID)
		b.WriteString("If the user confirms it, call submit_draft; if they decline, do not.")
	}

	if ui.Route != "" {
		fmt.Fprintf(&b, "\n\nThe user's screen currently shows: %s", ui.Route)
	}
	if len(ui.SelectedItemIDs) > 0 {
		fmt.Fprintf(&b, "\n\nThe user has these items selected on screen: %s",
			strings.Join(ui.SelectedItemIDs, ", "))
		b.WriteString("\nA bare \"these\" or \"the selected ones\" refers to them.")
	}
	return b.String()
}
