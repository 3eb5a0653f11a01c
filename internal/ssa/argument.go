package ssa

import (
	"strconv"
	"strings"

	"gmlvm/internal/symbol"
)

// argumentPrefix names the implicit per-call parameter locals a script or
// event body reads without ever declaring: "argument0".."argumentN-1",
// bound by the caller when a call is made. They resolve as locals without
// needing a `var` — the front end recognizes the spelling instead.
const argumentPrefix = "argument"

// parseArgumentIndex reports whether sym spells an implicit argument local,
// and which index it names.
func parseArgumentIndex(sym symbol.Symbol) (int, bool) {
	name := sym.String()
	if !strings.HasPrefix(name, argumentPrefix) {
		return 0, false
	}
	rest := name[len(argumentPrefix):]
	if rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
