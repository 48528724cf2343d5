package logfile

import "github.com/gochaorg/logd/internal/block"

// maxBackRefSlots is the fixed capacity of a block's back-ref table,
// matching the "fixed-capacity array, no cyclic structures" design note:
// slot 0 is always the immediate predecessor, slots 1..31 are folded in
// from the predecessor's table per nextBackRefs.
const maxBackRefSlots = 32

// nextBackRefs computes the back-ref table attached to the block being
// appended with id newID, given the immediately preceding block's id,
// offset and its own back-ref table.
//
// Slot 0 is always the immediate predecessor. Slot i>0 is folded in from
// slot i-1 of the predecessor's table exactly when
// newID mod 2^(32-i) == 0; otherwise it is inherited unchanged from the
// predecessor's slot i (or, if the predecessor's table doesn't reach
// that slot yet, duplicated from its last available entry).
func nextBackRefs(prevID uint32, prevOffset uint64, prevRefs []block.BackRef, newID uint32) []block.BackRef {
	refs := make([]block.BackRef, maxBackRefSlots)
	refs[0] = block.BackRef{BlockID: prevID, Offset: prevOffset}

	fallback := func(idx int) block.BackRef {
		switch {
		case idx < len(prevRefs):
			return prevRefs[idx]
		case len(prevRefs) > 0:
			return prevRefs[len(prevRefs)-1]
		default:
			return refs[0]
		}
	}

	for i := 1; i < maxBackRefSlots; i++ {
		shift := uint(maxBackRefSlots - i)
		mod := uint64(1) << shift
		if uint64(newID)%mod == 0 {
			refs[i] = fallback(i - 1)
		} else {
			refs[i] = fallback(i)
		}
	}
	return refs
}
