package vm_test

import (
	"io"
	"testing"

	"gmlvm/internal/assets"
	"gmlvm/internal/project"
	"gmlvm/internal/symbol"
	"gmlvm/internal/value"
	"gmlvm/internal/vm"
	"gmlvm/internal/world"
)

// compile builds the given scripts (script ids follow argument order), with
// the given native/member bindings, and fails the test on any compile error.
func compile(t *testing.T, bindings assets.Bindings, scripts ...project.Script) (*assets.Assets, *assets.Debug) {
	t.Helper()
	game := &project.Game{Scripts: scripts}
	a, d, errCount := assets.Build(game, bindings, func() io.Writer { return io.Discard }, false)
	if errCount > 0 {
		t.Fatalf("compile failed with %d errors", errCount)
	}
	return a, d
}

func newThread(a *assets.Assets, d *assets.Debug) (*vm.Thread, *world.World) {
	w := world.New()
	return vm.NewThread(w, a, d), w
}

func run(t *testing.T, src string, args ...value.Value) value.Value {
	t.Helper()
	a, d := compile(t, assets.Bindings{}, project.Script{Name: "main", Body: []byte(src)})
	th, _ := newThread(a, d)
	v, err := th.Execute(assets.Script(0), args)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	return v
}

func TestArguments(t *testing.T) {
	v := run(t, `return argument0 + argument1`, value.Real(3), value.Real(4))
	if v.AsReal() != 7 {
		t.Fatalf("got %v", v)
	}

	v = run(t, `return argument0 + argument1`, value.Str(symbol.Intern("a")), value.Str(symbol.Intern("b")))
	if !v.IsString() || v.AsString().String() != "ab" {
		t.Fatalf("got %v", v)
	}
}

func TestMember(t *testing.T) {
	a, d := compile(t, assets.Bindings{}, project.Script{
		Name: "main",
		Body: []byte(`self.a = 1; self.b[3] = 5; return self.a + self.b[3]`),
	})
	th, w := newThread(a, d)
	inst := w.CreateInstance(0)
	th.SetSelf(inst.ID)

	v, err := th.Execute(assets.Script(0), nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if v.AsReal() != 6 {
		t.Fatalf("got %v", v)
	}
}

func TestBuiltinMemberBinding(t *testing.T) {
	xSym := symbol.Intern("x")
	bindings := assets.Bindings{
		Members: map[symbol.Symbol]assets.MemberBinding{
			xSym: {
				Get: func(inst *world.Instance) value.Value { return inst.Get(xSym) },
				Set: func(inst *world.Instance, v value.Value) { inst.Set(xSym, v) },
			},
		},
	}
	a, d := compile(t, bindings, project.Script{Name: "main", Body: []byte(`self.x = 3; return self.x`)})
	th, w := newThread(a, d)
	inst := w.CreateInstance(0)
	th.SetSelf(inst.ID)

	v, err := th.Execute(assets.Script(0), nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if v.AsReal() != 3 {
		t.Fatalf("got %v", v)
	}
	if inst.Get(xSym).AsReal() != 3 {
		t.Fatalf("member binding never wrote through to the instance: %v", inst.Get(xSym))
	}
}

func TestGlobal(t *testing.T) {
	a, d := compile(t, assets.Bindings{}, project.Script{
		Name: "main",
		Body: []byte(`
			globalvar a
			self.a = 1
			a = 2
			global.b = 3
			return self.a + a + global.b
		`),
	})
	th, w := newThread(a, d)
	inst := w.CreateInstance(0)
	th.SetSelf(inst.ID)

	v, err := th.Execute(assets.Script(0), nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if v.AsReal() != 6 {
		t.Fatalf("got %v", v)
	}
}

func TestWith(t *testing.T) {
	a, d := compile(t, assets.Bindings{}, project.Script{
		Name: "main",
		Body: []byte(`
			var a, b
			a = argument0
			b = argument1
			with (a) { n = 5 }
			return a.n + b.n
		`),
	})
	th, w := newThread(a, d)
	instA := w.CreateInstance(0)
	instB := w.CreateInstance(0)
	instB.Set(symbol.Intern("n"), value.Real(10))

	v, err := th.Execute(assets.Script(0), []value.Value{
		value.Real(float64(instA.ID)), value.Real(float64(instB.ID)),
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if v.AsReal() != 15 {
		t.Fatalf("got %v, want 15 (5 from with-body + 10 untouched on b)", v)
	}
}

func TestArray(t *testing.T) {
	v := run(t, `
		var a
		a = 1
		a[2] = 9
		return a[0] + a[2]
	`)
	if v.AsReal() != 10 {
		t.Fatalf("got %v", v)
	}
}

func TestForLoop(t *testing.T) {
	v := run(t, `
		var i, result
		result = 1
		for (i = 1; i <= 5; i += 1) {
			result = result * i
		}
		return result
	`)
	if v.AsReal() != 120 {
		t.Fatalf("got %v, want 120", v)
	}
}

func TestRepeat(t *testing.T) {
	v := run(t, `
		var count, result
		result = 0
		repeat (3.5) {
			result += 1
		}
		return result
	`)
	if v.AsReal() != 3 {
		t.Fatalf("got %v, want 3 (fractional count truncates toward zero)", v)
	}

	v = run(t, `
		var result
		result = 0
		repeat (-2) {
			result += 1
		}
		return result
	`)
	if v.AsReal() != 0 {
		t.Fatalf("got %v, want 0 (negative count runs zero iterations)", v)
	}
}

func TestSwitch(t *testing.T) {
	v := run(t, `
		var x, result
		x = 2
		result = 0
		switch (x) {
		case 1:
			result = 1
			break
		case 2:
			result = 2
			break
		default:
			result = -1
		}
		return result
	`)
	if v.AsReal() != 2 {
		t.Fatalf("got %v", v)
	}
}

func TestSwitchFallthrough(t *testing.T) {
	v := run(t, `
		var i
		switch (argument0) {
		case 1:
			i = 3
		case 2:
		case 3:
			i += 5
		}
		return i
	`, value.Real(2))
	if v.AsReal() != 5 {
		t.Fatalf("got %v, want 5 (case 2 is empty and falls through into case 3)", v)
	}
}

func TestCallScript(t *testing.T) {
	a, d := compile(t, assets.Bindings{},
		project.Script{Name: "main", Body: []byte(`return double(argument0) + 1`)},
		project.Script{Name: "double", Body: []byte(`return argument0 * 2`)},
	)
	th, _ := newThread(a, d)
	v, err := th.Execute(assets.Script(0), []value.Value{value.Real(4)})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if v.AsReal() != 9 {
		t.Fatalf("got %v", v)
	}
}

func TestRecurse(t *testing.T) {
	a, d := compile(t, assets.Bindings{}, project.Script{
		Name: "fib",
		Body: []byte(`
			if (argument0 <= 1) {
				return argument0
			}
			return fib(argument0 - 1) + fib(argument0 - 2)
		`),
	})
	th, _ := newThread(a, d)
	v, err := th.Execute(assets.Script(0), []value.Value{value.Real(6)})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if v.AsReal() != 8 {
		t.Fatalf("got %v, want 8", v)
	}
}

func TestFFI(t *testing.T) {
	addSym := symbol.Intern("native_add")
	bindings := assets.Bindings{
		Natives: map[symbol.Symbol]assets.NativeBinding{
			addSym: {
				Arity: 0, Variadic: true,
				Func: func(ctx assets.Context, args []value.Value) (value.Value, error) {
					sum := 0.0
					for _, v := range args {
						sum += v.Scalar().AsReal()
					}
					return value.Real(sum), nil
				},
			},
		},
	}
	a, d := compile(t, bindings, project.Script{Name: "main", Body: []byte(`return native_add(1, 2, 3)`)})
	th, _ := newThread(a, d)
	v, err := th.Execute(assets.Script(0), nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if v.AsReal() != 6 {
		t.Fatalf("got %v", v)
	}
}

func TestDivideByZero(t *testing.T) {
	a, d := compile(t, assets.Bindings{}, project.Script{Name: "main", Body: []byte(`return 1 / 0`)})
	th, _ := newThread(a, d)
	_, err := th.Execute(assets.Script(0), nil)
	if err == nil {
		t.Fatal("expected a divide-by-zero fault")
	}
	rerr, ok := err.(interface{ Error() string })
	if !ok {
		t.Fatalf("unexpected error type: %T", err)
	}
	t.Log(rerr.Error())
}

func TestTypeMismatchAddStringReal(t *testing.T) {
	a, d := compile(t, assets.Bindings{}, project.Script{Name: "main", Body: []byte(`return "5" + 1`)})
	th, _ := newThread(a, d)
	_, err := th.Execute(assets.Script(0), nil)
	if err == nil {
		t.Fatal("expected a type-mismatch fault: + never falls back to digit-string coercion")
	}
}

func TestDigitStringCoercionOnSubtraction(t *testing.T) {
	a, d := compile(t, assets.Bindings{}, project.Script{Name: "main", Body: []byte(`return "5" - 1`)})
	th, _ := newThread(a, d)
	v, err := th.Execute(assets.Script(0), nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if v.AsReal() != 4 {
		t.Fatalf("got %v, want 4 (digit string lazily coerced for -)", v)
	}
}
