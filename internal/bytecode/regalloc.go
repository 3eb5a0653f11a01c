package bytecode

import (
	"sort"

	"gmlvm/internal/ssa"
)

// producesValue reports whether an ssa.Value leaves behind something worth
// keeping in a register. Store-family ops, with-set materialization and
// with-end are emitted for effect only (the with-set/with-end pair uses a
// frame-level iterator slot instead of a register; see iterSlot in
// emit.go).
func producesValue(op ssa.Op) bool {
	switch op {
	case ssa.OpStoreGlobal, ssa.OpStoreGlobalIndexed,
		ssa.OpStoreSelfMember, ssa.OpStoreSelfIndexed,
		ssa.OpStoreOtherMember, ssa.OpStoreOtherIndexed,
		ssa.OpStoreMemberOf, ssa.OpStoreIndexedOf,
		ssa.OpWithSetAll, ssa.OpWithSetNone, ssa.OpWithSetSelf,
		ssa.OpWithSetOther, ssa.OpWithSetValue, ssa.OpWithEnd:
		return false
	default:
		return true
	}
}

// allocation is the outcome of linear-scan register assignment: one Reg
// per value that producesValue, plus the total register count the
// compiled Function needs.
type allocation struct {
	reg     map[*ssa.Value]Reg
	numRegs int
}

// allocateRegisters runs classic linear-scan over intervals sorted by
// start position: expire intervals that have ended, reuse a freed
// register if one is available, otherwise allocate a fresh one. This is
// safe (if not always minimal) because every interval in intervals is a
// superset of the value's true live range — see buildIntervals.
func allocateRegisters(intervals []interval) *allocation {
	sorted := make([]interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start < sorted[j].start })

	type active struct {
		iv  interval
		reg Reg
	}
	var activeList []active
	var freeRegs []Reg
	var nextReg Reg

	reg := make(map[*ssa.Value]Reg, len(sorted))
	for _, iv := range sorted {
		kept := activeList[:0]
		for _, a := range activeList {
			if a.iv.end < iv.start {
				freeRegs = append(freeRegs, a.reg)
			} else {
				kept = append(kept, a)
			}
		}
		activeList = kept

		var r Reg
		if len(freeRegs) > 0 {
			sort.Slice(freeRegs, func(i, j int) bool { return freeRegs[i] < freeRegs[j] })
			r = freeRegs[0]
			freeRegs = freeRegs[1:]
		} else {
			r = nextReg
			nextReg++
		}
		reg[iv.value] = r
		activeList = append(activeList, active{iv: iv, reg: r})
	}

	return &allocation{reg: reg, numRegs: int(nextReg)}
}
