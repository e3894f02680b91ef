package observability

import (
	"strings"
	"unicode"
)

// Upper bounds, in runes, for request attributes copied into logs and span attributes.
const (
	routeRunes  = 180
	methodRunes = 10
	actorRunes  = 64
	addrRunes   = 64
)

// logSafe drops control characters, which could forge log lines, and keeps at most limit runes.
func logSafe(value string, limit int) string {
	kept := 0
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || kept >= limit {
			return -1
		}
		kept++
		return r
	}, value)
}

// routeLabel is the route recorded for a request, or the root when nothing matched.
func routeLabel(route string) string {
	if route == "" {
		return "/"
	}
	return logSafe(route, routeRunes)
}
