package dispatch

import "strings"

// ParseRouting parses the routing oracle's free-text response as a
// comma-separated list of handler names. Whitespace is stripped, empty
// tokens are dropped, and names outside the known universe land in
// unknown rather than failing the parse. Order follows the response.
func ParseRouting(response string, universe []string) (selected []string, unknown []string) {
	known := make(map[string]bool, len(universe))
	for _, name := range universe {
		known[name] = true
	}

	raw := strings.ReplaceAll(strings.TrimSpace(response), " ", "")
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if known[token] {
			selected = append(selected, token)
		} else {
			unknown = append(unknown, token)
		}
	}
	return selected, unknown
}
