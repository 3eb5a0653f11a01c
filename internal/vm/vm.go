// Package vm is the virtual machine: a single-threaded bytecode interpreter
// driven by a host Thread, executing compiled assets.Assets against a
// world.World. It is the runtime counterpart of every other package here —
// the front end and back end produce the bytecode.Function this package
// runs.
package vm

import (
	"fmt"
	"math"

	"gmlvm/internal/assets"
	"gmlvm/internal/bytecode"
	"gmlvm/internal/errors"
	"gmlvm/internal/symbol"
	"gmlvm/internal/value"
	"gmlvm/internal/world"
)

// Thread is one cooperative execution context: a call stack of frames plus
// the self/other binding that persists between Execute calls (set_self /
// set_other in the host binding, mirroring the reference runtime's
// vm::State). The world and assets it runs against are fixed at
// construction; §5 makes the executing thread the world's sole owner for
// the duration of a call.
type Thread struct {
	world  *world.World
	assets *assets.Assets
	debug  *assets.Debug

	self, other int

	frames     []*frame
	nativeArgs [][]value.Value
}

// NewThread returns a Thread ready to execute against w using the compiled
// assets a (and its debug index d for fault positions).
func NewThread(w *world.World, a *assets.Assets, d *assets.Debug) *Thread {
	return &Thread{world: w, assets: a, debug: d}
}

// SetSelf and SetOther rebind the thread's persistent self/other context,
// the binding a freshly pushed Execute call inherits (a script call never
// carries self along its own argument list, per §6's Execute API).
func (t *Thread) SetSelf(id int)  { t.self = id }
func (t *Thread) SetOther(id int) { t.other = id }

// World implements assets.Context.
func (t *Thread) World() *world.World { return t.world }

// Arguments implements assets.Context: it resolves a native-call argument
// handle against the Nth most recently pushed native call (0 = the call
// currently executing). The slice it returns is the one CallNative already
// copied out of the caller's registers and passed to the native as args.
func (t *Thread) Arguments(handle int) []value.Value {
	idx := len(t.nativeArgs) - 1 - handle
	if idx < 0 || idx >= len(t.nativeArgs) {
		return nil
	}
	return t.nativeArgs[idx]
}

// frame is one call frame: a register window, this call's with-iteration
// slots, and the self/other binding the with-statements inside it rebind
// as they iterate. retReg is the caller's register to receive this frame's
// return value, or bytecode.NoReg for the outermost frame of an Execute.
type frame struct {
	fn   assets.Function
	name string
	code *bytecode.Function

	regs  []value.Value
	iters []iterState

	self, other int
	pc          int

	retReg bytecode.Reg
}

// iterState is one with-statement's materialized iteration state: the
// snapshotted target ids (§4.I: insertion order, skipping instances already
// destroyed at materialization time), the cursor into it, and the
// self/other pair to restore once the with-statement is left.
type iterState struct {
	ids []int
	pos int

	savedSelf, savedOther int
}

func (t *Thread) newFrame(fn assets.Function, code *bytecode.Function, self, other int) *frame {
	return &frame{
		fn:     fn,
		name:   t.funcName(fn),
		code:   code,
		regs:   make([]value.Value, code.NumRegs),
		iters:  make([]iterState, code.NumIters),
		self:   self,
		other:  other,
		retReg: bytecode.NoReg,
	}
}

func (t *Thread) funcName(fn assets.Function) string {
	if t.debug != nil {
		if fd, ok := t.debug.Funcs[fn]; ok {
			return fd.Name
		}
	}
	return "<unknown>"
}

func bindArgs(f *frame, code *bytecode.Function, args []value.Value) {
	for i, v := range args {
		if i >= len(code.Params) {
			break
		}
		r := code.Params[i]
		if r == bytecode.NoReg {
			continue
		}
		f.regs[r] = v
	}
}

// Execute runs fn to completion with args bound to its argument0..N-1
// locals (§4.J), starting from the thread's current self/other binding.
// It returns the function's result, or the RuntimeError naming the exact
// faulting instruction once every frame Execute itself pushed has unwound.
func (t *Thread) Execute(fn assets.Function, args []value.Value) (value.Value, error) {
	code, ok := t.assets.Code[fn]
	if !ok || code == nil {
		return value.Value{}, errors.New(errors.UndeclaredScriptCall,
			"function has no compiled bytecode", t.funcName(fn), -1)
	}

	base := len(t.frames)
	f := t.newFrame(fn, code, t.self, t.other)
	bindArgs(f, code, args)
	t.frames = append(t.frames, f)

	result, rerr := t.run(base)
	if rerr != nil {
		return value.Value{}, rerr
	}
	return result, nil
}

// raise builds a RuntimeError for a fault at f's current instruction and
// unwinds every frame Execute pushed (down to base) onto its call stack,
// innermost first — §7's "any error pops all frames up to the caller of
// execute, preserving the faulting instruction site".
func (t *Thread) raise(f *frame, base int, kind errors.Kind, format string, args ...interface{}) *errors.RuntimeError {
	pos := t.debug.Position(f.fn, f.pc, f.code)
	e := errors.New(kind, fmt.Sprintf(format, args...), f.name, f.pc).WithPosition(pos)

	for len(t.frames) > base {
		top := t.frames[len(t.frames)-1]
		t.frames = t.frames[:len(t.frames)-1]
		if top == f {
			continue
		}
		e.AddFrame(errors.Frame{
			Function:    top.name,
			Instruction: top.pc,
			Position:    t.debug.Position(top.fn, top.pc, top.code),
		})
	}
	return e
}

// run drives frames until the frame Execute pushed at index base returns,
// dispatching one bytecode.Instr per iteration.
func (t *Thread) run(base int) (value.Value, *errors.RuntimeError) {
	for {
		f := t.frames[len(t.frames)-1]
		instr := f.code.Instrs[f.pc]

		switch instr.Op {
		case bytecode.Nop:
			f.pc++

		case bytecode.LoadConstReal:
			f.regs[instr.Dst] = value.Real(f.code.Consts[instr.ConstIdx].Real)
			f.pc++
		case bytecode.LoadConstString:
			f.regs[instr.Dst] = value.Str(f.code.Consts[instr.ConstIdx].Str)
			f.pc++
		case bytecode.Undef:
			f.regs[instr.Dst] = value.Real(0)
			f.pc++
		case bytecode.Move:
			f.regs[instr.Dst] = f.regs[instr.A]
			f.pc++
		case bytecode.CopyAssign:
			f.regs[instr.Dst] = copyForStore(f.regs[instr.A])
			f.pc++

		case bytecode.Add, bytecode.Sub, bytecode.Mul, bytecode.Div, bytecode.DivInt, bytecode.Mod,
			bytecode.BitAnd, bytecode.BitOr, bytecode.BitXor, bytecode.Shl, bytecode.Shr,
			bytecode.Lt, bytecode.Le, bytecode.Ge, bytecode.Gt:
			v, kind, msg := arithOp(instr.Op, f.regs[instr.A], f.regs[instr.B])
			if msg != "" {
				return value.Value{}, t.raise(f, base, kind, "%s", msg)
			}
			f.regs[instr.Dst] = v
			f.pc++
		case bytecode.Eq:
			f.regs[instr.Dst] = value.Real(boolReal(f.regs[instr.A].Scalar().Equal(f.regs[instr.B].Scalar())))
			f.pc++
		case bytecode.Ne:
			f.regs[instr.Dst] = value.Real(boolReal(!f.regs[instr.A].Scalar().Equal(f.regs[instr.B].Scalar())))
			f.pc++
		case bytecode.And, bytecode.Or, bytecode.Xor:
			v, msg := logicalOp(instr.Op, f.regs[instr.A], f.regs[instr.B])
			if msg != "" {
				return value.Value{}, t.raise(f, base, errors.TypeMismatch, "%s", msg)
			}
			f.regs[instr.Dst] = v
			f.pc++

		case bytecode.Neg, bytecode.Pos, bytecode.BitNot:
			af, err := f.regs[instr.A].Scalar().ToReal()
			if err != nil {
				return value.Value{}, t.raise(f, base, errors.TypeMismatch, "%v", err)
			}
			f.regs[instr.Dst] = value.Real(unaryNumeric(instr.Op, af))
			f.pc++
		case bytecode.Not:
			truthy, err := f.regs[instr.A].Scalar().Truthy()
			if err != nil {
				return value.Value{}, t.raise(f, base, errors.TypeMismatch, "%v", err)
			}
			f.regs[instr.Dst] = value.Real(boolReal(!truthy))
			f.pc++

		case bytecode.LoadGlobal:
			f.regs[instr.Dst] = t.world.GetGlobal(instr.Sym)
			f.pc++
		case bytecode.StoreGlobal:
			t.world.SetGlobal(instr.Sym, copyForStore(f.regs[instr.B]))
			f.pc++
		case bytecode.LoadGlobalIndexed:
			idx, idx2, rerr := t.indices(f, base, instr.Args)
			if rerr != nil {
				return value.Value{}, rerr
			}
			v, err := t.world.GetGlobalIndexed(instr.Sym, idx, idx2)
			if err != nil {
				return value.Value{}, t.raise(f, base, errors.ArrayIndexNegative, "%v", err)
			}
			f.regs[instr.Dst] = v
			f.pc++
		case bytecode.StoreGlobalIndexed:
			idx, idx2, rerr := t.indices(f, base, instr.Args)
			if rerr != nil {
				return value.Value{}, rerr
			}
			if err := t.world.SetGlobalIndexed(instr.Sym, idx, idx2, f.regs[instr.B]); err != nil {
				return value.Value{}, t.raise(f, base, errors.ArrayIndexNegative, "%v", err)
			}
			f.pc++

		case bytecode.LoadSelfMember:
			v, rerr := t.loadMember(f, base, f.self, instr.Sym)
			if rerr != nil {
				return value.Value{}, rerr
			}
			f.regs[instr.Dst] = v
			f.pc++
		case bytecode.StoreSelfMember:
			if rerr := t.storeMember(f, base, f.self, instr.Sym, f.regs[instr.B]); rerr != nil {
				return value.Value{}, rerr
			}
			f.pc++
		case bytecode.LoadSelfIndexed:
			v, rerr := t.loadIndexed(f, base, f.self, instr.Sym, instr.Args)
			if rerr != nil {
				return value.Value{}, rerr
			}
			f.regs[instr.Dst] = v
			f.pc++
		case bytecode.StoreSelfIndexed:
			if rerr := t.storeIndexed(f, base, f.self, instr.Sym, f.regs[instr.B], instr.Args); rerr != nil {
				return value.Value{}, rerr
			}
			f.pc++

		case bytecode.LoadOtherMember:
			v, rerr := t.loadMember(f, base, f.other, instr.Sym)
			if rerr != nil {
				return value.Value{}, rerr
			}
			f.regs[instr.Dst] = v
			f.pc++
		case bytecode.StoreOtherMember:
			if rerr := t.storeMember(f, base, f.other, instr.Sym, f.regs[instr.B]); rerr != nil {
				return value.Value{}, rerr
			}
			f.pc++
		case bytecode.LoadOtherIndexed:
			v, rerr := t.loadIndexed(f, base, f.other, instr.Sym, instr.Args)
			if rerr != nil {
				return value.Value{}, rerr
			}
			f.regs[instr.Dst] = v
			f.pc++
		case bytecode.StoreOtherIndexed:
			if rerr := t.storeIndexed(f, base, f.other, instr.Sym, f.regs[instr.B], instr.Args); rerr != nil {
				return value.Value{}, rerr
			}
			f.pc++

		case bytecode.LoadMemberOf:
			id, rerr := t.idArg(f, base, f.regs[instr.A])
			if rerr != nil {
				return value.Value{}, rerr
			}
			v, rerr := t.loadMember(f, base, id, instr.Sym)
			if rerr != nil {
				return value.Value{}, rerr
			}
			f.regs[instr.Dst] = v
			f.pc++
		case bytecode.StoreMemberOf:
			id, rerr := t.idArg(f, base, f.regs[instr.A])
			if rerr != nil {
				return value.Value{}, rerr
			}
			if rerr := t.storeMember(f, base, id, instr.Sym, f.regs[instr.B]); rerr != nil {
				return value.Value{}, rerr
			}
			f.pc++
		case bytecode.LoadIndexedOf:
			id, rerr := t.idArg(f, base, f.regs[instr.A])
			if rerr != nil {
				return value.Value{}, rerr
			}
			v, rerr := t.loadIndexed(f, base, id, instr.Sym, instr.Args)
			if rerr != nil {
				return value.Value{}, rerr
			}
			f.regs[instr.Dst] = v
			f.pc++
		case bytecode.StoreIndexedOf:
			id, rerr := t.idArg(f, base, f.regs[instr.A])
			if rerr != nil {
				return value.Value{}, rerr
			}
			if rerr := t.storeIndexed(f, base, id, instr.Sym, f.regs[instr.B], instr.Args); rerr != nil {
				return value.Value{}, rerr
			}
			f.pc++

		case bytecode.ArrayGet:
			idx, idx2, rerr := t.indices(f, base, instr.Args)
			if rerr != nil {
				return value.Value{}, rerr
			}
			v, err := arrayGet(f.regs[instr.A], idx, idx2)
			if err != nil {
				return value.Value{}, t.raise(f, base, errors.ArrayIndexNegative, "%v", err)
			}
			f.regs[instr.Dst] = v
			f.pc++
		case bytecode.ArrayPut:
			idx, idx2, rerr := t.indices(f, base, instr.Args)
			if rerr != nil {
				return value.Value{}, rerr
			}
			v, err := arrayPut(f.regs[instr.A], f.regs[instr.B], idx, idx2)
			if err != nil {
				return value.Value{}, t.raise(f, base, errors.ArrayIndexNegative, "%v", err)
			}
			f.regs[instr.Dst] = v
			f.pc++

		case bytecode.SelfID:
			f.regs[instr.Dst] = value.Real(float64(f.self))
			f.pc++
		case bytecode.OtherID:
			f.regs[instr.Dst] = value.Real(float64(f.other))
			f.pc++

		case bytecode.CallScript:
			calleeFn := assets.Script(instr.Imm)
			calleeCode, ok := t.assets.Code[calleeFn]
			if !ok || calleeCode == nil {
				return value.Value{}, t.raise(f, base, errors.UndeclaredScriptCall, "undeclared script %s", instr.Sym)
			}
			args := make([]value.Value, len(instr.Args))
			for i, r := range instr.Args {
				args[i] = f.regs[r]
			}
			nf := t.newFrame(calleeFn, calleeCode, f.self, f.other)
			bindArgs(nf, calleeCode, args)
			nf.retReg = instr.Dst
			t.frames = append(t.frames, nf)

		case bytecode.CallNative:
			native, ok := t.assets.Natives[instr.Sym]
			if !ok {
				return value.Value{}, t.raise(f, base, errors.UndeclaredScriptCall, "undeclared native %s", instr.Sym)
			}
			args := make([]value.Value, len(instr.Args))
			for i, r := range instr.Args {
				args[i] = f.regs[r]
			}
			t.nativeArgs = append(t.nativeArgs, args)
			result, err := native(t, args)
			t.nativeArgs = t.nativeArgs[:len(t.nativeArgs)-1]
			if err != nil {
				return value.Value{}, t.raise(f, base, errors.NativeRaised, "%v", err)
			}
			f.regs[instr.Dst] = result
			f.pc++

		case bytecode.Jump:
			f.pc = instr.To
		case bytecode.Branch:
			cond, err := f.regs[instr.A].Scalar().Truthy()
			if err != nil {
				return value.Value{}, t.raise(f, base, errors.TypeMismatch, "%v", err)
			}
			if cond {
				f.pc = instr.Then
			} else {
				f.pc = instr.Else
			}

		case bytecode.Return:
			var result value.Value
			if instr.HasValue {
				result = f.regs[instr.A]
			}
			t.frames = t.frames[:len(t.frames)-1]
			if len(t.frames) == base {
				return result, nil
			}
			caller := t.frames[len(t.frames)-1]
			if f.retReg != bytecode.NoReg {
				caller.regs[f.retReg] = result
			}
			caller.pc++

		case bytecode.WithBegin:
			ids, self2, other2, rerr := t.withBegin(f, base, instr)
			if rerr != nil {
				return value.Value{}, rerr
			}
			f.iters[instr.IterSlot] = iterState{ids: ids, pos: -1, savedSelf: self2, savedOther: other2}
			f.pc++
		case bytecode.WithNext:
			t.withNext(f, instr)
		case bytecode.WithEnd:
			slot := f.iters[instr.IterSlot]
			f.self, f.other = slot.savedSelf, slot.savedOther
			f.pc++

		default:
			return value.Value{}, t.raise(f, base, errors.TypeMismatch, "unimplemented opcode %s", instr.Op)
		}
	}
}

// withBegin resolves a with-target's id set per §4.F's classification.
func (t *Thread) withBegin(f *frame, base int, instr bytecode.Instr) ([]int, int, int, *errors.RuntimeError) {
	var kind world.SetKind
	var arg int
	switch instr.Imm {
	case 0: // all
		kind = world.SetAll
	case 1: // none
		kind = world.SetNone
	case 2: // self
		kind, arg = world.SetSingle, f.self
	case 3: // other
		kind, arg = world.SetSingle, f.other
	case 4: // computed value
		id, rerr := t.idArg(f, base, f.regs[instr.A])
		if rerr != nil {
			return nil, 0, 0, rerr
		}
		kind, arg = world.ClassifyMagnitude(float64(id)), id
	}
	return t.world.Resolve(kind, arg), f.self, f.other, nil
}

// withNext advances slot to the next live instance, skipping ids destroyed
// since materialization, and rebinds self/other for one more pass through
// the body — or takes the Else edge once the set is exhausted.
func (t *Thread) withNext(f *frame, instr bytecode.Instr) {
	slot := &f.iters[instr.IterSlot]
	for {
		slot.pos++
		if slot.pos >= len(slot.ids) {
			f.pc = instr.Else
			return
		}
		id := slot.ids[slot.pos]
		if _, ok := t.world.Instance(id); ok {
			f.self, f.other = id, slot.savedSelf
			f.pc = instr.Then
			return
		}
	}
}

func (t *Thread) idArg(f *frame, base int, v value.Value) (int, *errors.RuntimeError) {
	r, err := v.Scalar().ToReal()
	if err != nil {
		return 0, t.raise(f, base, errors.TypeMismatch, "%v", err)
	}
	return int(r), nil
}

func (t *Thread) indices(f *frame, base int, regs []bytecode.Reg) (int, int, *errors.RuntimeError) {
	i, err := f.regs[regs[0]].Scalar().ToReal()
	if err != nil {
		return 0, 0, t.raise(f, base, errors.TypeMismatch, "%v", err)
	}
	if len(regs) == 1 {
		return int(i), 0, nil
	}
	j, err := f.regs[regs[1]].Scalar().ToReal()
	if err != nil {
		return 0, 0, t.raise(f, base, errors.TypeMismatch, "%v", err)
	}
	return int(i), int(j), nil
}

// instance resolves id to a live instance, or raises out-of-range-instance-id.
func (t *Thread) instance(f *frame, base int, id int) (*world.Instance, *errors.RuntimeError) {
	inst, ok := t.world.Instance(id)
	if !ok {
		return nil, t.raise(f, base, errors.OutOfRangeInstanceID, "instance %d does not exist", id)
	}
	return inst, nil
}

// loadMember reads a scalar member of instance id, dispatching through a
// registered host Member binding when one intercepts sym.
func (t *Thread) loadMember(f *frame, base int, id int, sym symbol.Symbol) (value.Value, *errors.RuntimeError) {
	inst, rerr := t.instance(f, base, id)
	if rerr != nil {
		return value.Value{}, rerr
	}
	if mb, ok := t.assets.Members[sym]; ok && mb.Get != nil {
		return mb.Get(inst), nil
	}
	return inst.Get(sym), nil
}

func (t *Thread) storeMember(f *frame, base int, id int, sym symbol.Symbol, v value.Value) *errors.RuntimeError {
	inst, rerr := t.instance(f, base, id)
	if rerr != nil {
		return rerr
	}
	if mb, ok := t.assets.Members[sym]; ok && mb.Set != nil {
		mb.Set(inst, v)
		return nil
	}
	inst.Set(sym, v)
	return nil
}

// loadIndexed and storeIndexed always address the dynamic per-instance
// member table, bypassing any registered Member binding: the host's
// getter/setter pair only ever sees a whole scalar value (§4.I draws no
// indexed shape for a Member binding), so an indexed access on a
// Member-bound symbol falls through to the ordinary array-promoted slot
// instead of erroring.
func (t *Thread) loadIndexed(f *frame, base int, id int, sym symbol.Symbol, regs []bytecode.Reg) (value.Value, *errors.RuntimeError) {
	inst, rerr := t.instance(f, base, id)
	if rerr != nil {
		return value.Value{}, rerr
	}
	idx, idx2, rerr := t.indices(f, base, regs)
	if rerr != nil {
		return value.Value{}, rerr
	}
	v, err := inst.GetIndexed(sym, idx, idx2)
	if err != nil {
		return value.Value{}, t.raise(f, base, errors.ArrayIndexNegative, "%v", err)
	}
	return v, nil
}

func (t *Thread) storeIndexed(f *frame, base int, id int, sym symbol.Symbol, v value.Value, regs []bytecode.Reg) *errors.RuntimeError {
	inst, rerr := t.instance(f, base, id)
	if rerr != nil {
		return rerr
	}
	idx, idx2, rerr := t.indices(f, base, regs)
	if rerr != nil {
		return rerr
	}
	if err := inst.SetIndexed(sym, idx, idx2, v); err != nil {
		return t.raise(f, base, errors.ArrayIndexNegative, "%v", err)
	}
	return nil
}

// copyForStore is the VM's half of §9's array copy-on-assign: a whole-value
// store clones its array-valued operand so the new place never shares a
// handle with whatever it was assigned from.
func copyForStore(v value.Value) value.Value {
	if !v.IsArray() {
		return v
	}
	return value.FromArray(v.AsArray().Clone())
}

// arrayGet reads one cell of a local array-valued SSA value, treating a
// not-yet-promoted scalar as if it were an array holding that scalar at
// cell (0,0) and zero elsewhere (§4.F scalar-to-array promotion).
func arrayGet(base value.Value, i, j int) (value.Value, error) {
	if base.IsArray() {
		return base.AsArray().Get(i, j)
	}
	if i < 0 || j < 0 {
		return value.Value{}, value.ErrNegativeIndex
	}
	if i == 0 && j == 0 {
		return base.Scalar(), nil
	}
	return value.Real(0), nil
}

// arrayPut writes one cell, promoting base to array form on first indexed
// write; an already-array base is mutated and handed back unchanged, per
// ssa.OpArrayPut's contract.
func arrayPut(base, v value.Value, i, j int) (value.Value, error) {
	if base.IsArray() {
		if err := base.AsArray().Set(i, j, v); err != nil {
			return value.Value{}, err
		}
		return base, nil
	}
	arr := value.NewArray()
	if err := arr.Set(0, 0, base.Scalar()); err != nil {
		return value.Value{}, err
	}
	if err := arr.Set(i, j, v); err != nil {
		return value.Value{}, err
	}
	return value.FromArray(arr), nil
}

func boolReal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// arithOp evaluates one arithmetic, bitwise, or ordering binop. `+` on two
// strings concatenates; any other mix of string and real is a type
// mismatch even when the string holds only digits (§4.J); every other
// numeric op coerces a digit string to real lazily via Value.ToReal.
func arithOp(op bytecode.Op, a, b value.Value) (value.Value, errors.Kind, string) {
	as, bs := a.Scalar(), b.Scalar()

	if op == bytecode.Add {
		if as.IsString() && bs.IsString() {
			return value.Str(symbol.Intern(as.AsString().String() + bs.AsString().String())), 0, ""
		}
		if as.IsString() != bs.IsString() {
			return value.Value{}, errors.TypeMismatch, "mixed string and real operands to +"
		}
	}

	af, err := as.ToReal()
	if err != nil {
		return value.Value{}, errors.TypeMismatch, err.Error()
	}
	bf, err := bs.ToReal()
	if err != nil {
		return value.Value{}, errors.TypeMismatch, err.Error()
	}

	switch op {
	case bytecode.Add:
		return value.Real(af + bf), 0, ""
	case bytecode.Sub:
		return value.Real(af - bf), 0, ""
	case bytecode.Mul:
		return value.Real(af * bf), 0, ""
	case bytecode.Div:
		if bf == 0 {
			return value.Value{}, errors.DivideByZero, "division by zero"
		}
		return value.Real(af / bf), 0, ""
	case bytecode.DivInt:
		if bf == 0 {
			return value.Value{}, errors.DivideByZero, "division by zero"
		}
		return value.Real(math.Trunc(af / bf)), 0, ""
	case bytecode.Mod:
		if bf == 0 {
			return value.Value{}, errors.DivideByZero, "division by zero"
		}
		return value.Real(math.Mod(af, bf)), 0, ""
	case bytecode.BitAnd:
		return value.Real(float64(int64(af) & int64(bf))), 0, ""
	case bytecode.BitOr:
		return value.Real(float64(int64(af) | int64(bf))), 0, ""
	case bytecode.BitXor:
		return value.Real(float64(int64(af) ^ int64(bf))), 0, ""
	case bytecode.Shl:
		return value.Real(float64(int64(af) << shiftCount(bf))), 0, ""
	case bytecode.Shr:
		return value.Real(float64(int64(af) >> shiftCount(bf))), 0, ""
	case bytecode.Lt:
		return value.Real(boolReal(af < bf)), 0, ""
	case bytecode.Le:
		return value.Real(boolReal(af <= bf)), 0, ""
	case bytecode.Ge:
		return value.Real(boolReal(af >= bf)), 0, ""
	case bytecode.Gt:
		return value.Real(boolReal(af > bf)), 0, ""
	default:
		return value.Value{}, errors.TypeMismatch, fmt.Sprintf("unsupported operator %s", op)
	}
}

func shiftCount(v float64) uint {
	n := int64(v)
	if n < 0 {
		return 0
	}
	return uint(n)
}

func logicalOp(op bytecode.Op, a, b value.Value) (value.Value, string) {
	av, err := a.Scalar().Truthy()
	if err != nil {
		return value.Value{}, err.Error()
	}
	bv, err := b.Scalar().Truthy()
	if err != nil {
		return value.Value{}, err.Error()
	}
	switch op {
	case bytecode.And:
		return value.Real(boolReal(av && bv)), ""
	case bytecode.Or:
		return value.Real(boolReal(av || bv)), ""
	default: // Xor
		return value.Real(boolReal(av != bv)), ""
	}
}

func unaryNumeric(op bytecode.Op, v float64) float64 {
	switch op {
	case bytecode.Neg:
		return -v
	case bytecode.Pos:
		return v
	default: // BitNot
		return float64(^int64(v))
	}
}
