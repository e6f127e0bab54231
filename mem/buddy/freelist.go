package buddy

// freeList is a LIFO stack of free block indexes with O(1) removal of an
// arbitrary member, which buddy merging needs.
type freeList struct {
	blocks []uint64
	pos    map[uint64]int
}

func newFreeList() freeList {
	return freeList{pos: make(map[uint64]int)}
}

func (l *freeList) len() int { return len(l.blocks) }

func (l *freeList) push(idx uint64) {
	l.pos[idx] = len(l.blocks)
	l.blocks = append(l.blocks, idx)
}

func (l *freeList) pop() (uint64, bool) {
	n := len(l.blocks)
	if n == 0 {
		return 0, false
	}
	idx := l.blocks[n-1]
	l.blocks = l.blocks[:n-1]
	delete(l.pos, idx)
	return idx, true
}

// remove deletes idx, moving the top of the stack into its slot.
func (l *freeList) remove(idx uint64) bool {
	i, ok := l.pos[idx]
	if !ok {
		return false
	}
	last := len(l.blocks) - 1
	if i != last {
		moved := l.blocks[last]
		l.blocks[i] = moved
		l.pos[moved] = i
	}
	l.blocks = l.blocks[:last]
	delete(l.pos, idx)
	return true
}
