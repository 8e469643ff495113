package dispatch

import (
	"fmt"
	"strings"
)

// SynthesisPrompt builds the fan-in prompt: the original task followed
// by every handler outcome in selection order, failures included as
// their error text.
func SynthesisPrompt(task string, outcomes []Outcome) string {
	var sections []string
	sections = append(sections, fmt.Sprintf("ORIGINAL USER REQUEST:\n%s\n", task))
	sections = append(sections, "AGENT RESULTS:")
	for _, outcome := range outcomes {
		sections = append(sections, fmt.Sprintf("\n--- %s ---\n%s", outcome.Handler, outcome.Response))
	}
	sections = append(sections, "\nPlease synthesize the above results into a single, coherent response for the user.")
	return strings.Join(sections, "\n")
}
