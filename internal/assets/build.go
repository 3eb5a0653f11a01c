package assets

import (
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"gmlvm/internal/action"
	"gmlvm/internal/ast"
	"gmlvm/internal/bytecode"
	"gmlvm/internal/diag"
	"gmlvm/internal/lexer"
	"gmlvm/internal/parser"
	"gmlvm/internal/project"
	"gmlvm/internal/ssa"
	"gmlvm/internal/symbol"
)

// unit is one compilation unit queued for codegen: a script body or an
// object event, already reduced to (name, source bytes or actions).
type unit struct {
	fn   Function
	name string

	code    []byte // nil for an action-driven event
	actions []project.Action
}

// Build implements §6's Compile API: build(game, engine_bindings,
// error_sink_factory) -> Result<(Assets, Debug), error_count>. Every unit
// is parsed, SSA-lowered, and bytecode-compiled independently — the spec's
// own prose notes compilation order never matters, so each unit runs on its
// own goroutine via errgroup rather than one at a time; this
// is also why internal/symbol's interner is a concurrent-safe table rather
// than a bare map.
func Build(game *project.Game, bindings Bindings, errSinkFactory func() io.Writer, warnImplicitGlobal bool) (*Assets, *Debug, int) {
	proto := buildPrototypes(game, bindings)
	units := collectUnits(game)

	type result struct {
		fn    Function
		code  *bytecode.Function
		debug FuncDebug
		errs  uint32
	}

	results := make([]result, len(units))
	var g errgroup.Group
	for i, u := range units {
		i, u := i, u
		g.Go(func() error {
			lines := diag.NewLines()
			sink := errSinkFactory()
			errs := diag.NewPrinter(u.name, lines, sink)

			body, span := parseUnit(u, lines, errs)

			cg := ssa.NewCodegen(proto, errs, warnImplicitGlobal)
			ssaFn := cg.Build(u.name, body)

			code, err := bytecode.Build(ssaFn)
			if err != nil {
				errs.Error(span, "%s", err)
			}

			results[i] = result{
				fn:    u.fn,
				code:  code,
				debug: FuncDebug{Name: u.name, Lines: lines},
				errs:  errs.Count,
			}
			return nil
		})
	}
	// Every goroutine above always returns nil: a per-unit compile error is
	// recorded through its own diag.Printer, not propagated as a Go error,
	// so g.Wait() here only ever waits for every unit's goroutine to finish.
	_ = g.Wait()

	assets := &Assets{
		Code:        make(map[Function]*bytecode.Function, len(units)),
		Natives:     make(map[symbol.Symbol]NativeFunc, len(bindings.Natives)),
		Members:     bindings.Members,
		ScriptNames: make(map[int]string, len(game.Scripts)),
	}
	for sym, nb := range bindings.Natives {
		assets.Natives[sym] = nb.Func
	}
	for i, s := range game.Scripts {
		assets.ScriptNames[i] = s.Name
	}

	debug := &Debug{Funcs: make(map[Function]FuncDebug, len(units))}

	var errCount int
	for _, r := range results {
		assets.Code[r.fn] = r.code
		debug.Funcs[r.fn] = r.debug
		errCount += int(r.errs)
	}

	if errCount > 0 {
		return nil, nil, errCount
	}
	return assets, debug, 0
}

// buildPrototypes registers every script, native, and member binding the
// host exposes so that call and member-access resolution (§4.F) sees the
// whole game's name surface regardless of which unit is compiling.
func buildPrototypes(game *project.Game, bindings Bindings) *ssa.Prototypes {
	proto := ssa.NewPrototypes()
	for i, s := range game.Scripts {
		proto.AddScript(symbol.Intern(s.Name), i)
	}
	for sym, nb := range bindings.Natives {
		proto.AddNative(sym, nb.Arity, nb.Variadic)
	}
	for sym := range bindings.Members {
		proto.AddMember(sym)
	}
	return proto
}

// collectUnits flattens every script and object event into one compilation
// unit list, display-naming each per §6's diagnostic format ("a function is
// either `script <name>` or `event <type>(<kind>) for object <name>`"),
// confirmed character-for-character against `ErrorPrinter::error` in
// original_source/gml/src/lib.rs. The event kind itself stays the opaque
// integer pair §9 licenses ("event-kind display is opaque unless the host
// provides names") — only the kind's value is unnamed, not the wrapper
// around it.
func collectUnits(game *project.Game) []unit {
	var units []unit
	for i, s := range game.Scripts {
		units = append(units, unit{
			fn:   Script(i),
			name: fmt.Sprintf("script %s", s.Name),
			code: s.Body,
		})
	}
	for oi, obj := range game.Objects {
		for _, ev := range obj.Events {
			name := fmt.Sprintf("event %d(%d) for object %s", ev.Type, ev.Kind, obj.Name)
			u := unit{fn: Event(oi, ev.Type, ev.Kind), name: name}
			if len(ev.Actions) > 0 {
				u.actions = ev.Actions
			} else {
				u.code = ev.Code
			}
			units = append(units, u)
		}
	}
	return units
}

func parseUnit(u unit, lines *diag.Lines, errs *diag.Printer) (ast.Stmt, diag.Span) {
	if u.actions != nil {
		return action.Parse(u.actions, lines, errs)
	}
	base := lines.NextOffset()
	lines.AddCode(base, u.code, -1)
	p := parser.New(lexer.New(u.code, base), errs)
	return p.ParseProgram()
}
