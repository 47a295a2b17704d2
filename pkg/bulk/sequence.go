package bulk

import "sync/atomic"

// Sequence hands out execution ids. Ids from one Sequence are unique and
// strictly increasing.
type Sequence interface {
	Next() int64
}

// AtomicSequence is a lock-free Sequence. The zero value starts at 1.
type AtomicSequence struct {
	n atomic.Int64
}

// NewSequence returns a sequence whose first id is start+1.
func NewSequence(start int64) *AtomicSequence {
	s := &AtomicSequence{}
	s.n.Store(start)
	return s
}

// Next returns the next id.
func (s *AtomicSequence) Next() int64 {
	return s.n.Add(1)
}

// processSequence is shared by every Operator built without WithSequence,
// so ids stay unique across operators in one process.
var processSequence = &AtomicSequence{}

// DefaultSequence returns the process-wide sequence.
func DefaultSequence() Sequence {
	return processSequence
}
