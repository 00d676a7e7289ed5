package core

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// WorkUnit is a single queued unit of a task. It holds one reference on the
// task, released right after the unit runs.
type WorkUnit struct {
	Task  *Task
	Index int
}

// =============================================================================
// WorkQueue: ring-buffer deque of work units
// =============================================================================

// WorkQueue is a double-ended queue consumed from the front. Nested launches
// are pushed to the front, top-level launches to the back.
//
// WorkQueue is not synchronized; the Scheduler guards it with its mutex.
type WorkQueue struct {
	buf  []WorkUnit
	head int
	n    int
}

// NewWorkQueue creates an empty queue.
func NewWorkQueue() *WorkQueue {
	return &WorkQueue{
		buf: make([]WorkUnit, defaultQueueCap),
	}
}

// PushBack appends u behind every queued unit.
func (q *WorkQueue) PushBack(u WorkUnit) {
	q.grow()
	q.buf[(q.head+q.n)%len(q.buf)] = u
	q.n++
}

// PushFront puts u at the head, ahead of every queued unit.
func (q *WorkQueue) PushFront(u WorkUnit) {
	q.grow()
	q.head = (q.head - 1 + len(q.buf)) % len(q.buf)
	q.buf[q.head] = u
	q.n++
}

// Front returns the unit at the head without removing it.
func (q *WorkQueue) Front() (WorkUnit, bool) {
	if q.n == 0 {
		return WorkUnit{}, false
	}
	return q.buf[q.head], true
}

// PopFront removes and returns the unit at the head.
func (q *WorkQueue) PopFront() (WorkUnit, bool) {
	if q.n == 0 {
		return WorkUnit{}, false
	}
	u := q.buf[q.head]
	// Zero out the slot to release the task reference
	q.buf[q.head] = WorkUnit{}
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	q.maybeCompact()
	return u, true
}

// Len returns the number of queued units.
func (q *WorkQueue) Len() int {
	return q.n
}

// IsEmpty reports whether no unit is queued.
func (q *WorkQueue) IsEmpty() bool {
	return q.n == 0
}

// Drain removes and returns every queued unit in order.
func (q *WorkQueue) Drain() []WorkUnit {
	out := make([]WorkUnit, 0, q.n)
	for {
		u, ok := q.PopFront()
		if !ok {
			return out
		}
		out = append(out, u)
	}
}

func (q *WorkQueue) grow() {
	if q.n < len(q.buf) {
		return
	}
	q.resize(max(2*len(q.buf), defaultQueueCap))
}

func (q *WorkQueue) maybeCompact() {
	c := len(q.buf)
	if c < compactMinCap {
		return
	}
	if q.n*compactShrinkFactor >= c {
		return
	}
	q.resize(max(c/2, defaultQueueCap, q.n))
}

func (q *WorkQueue) resize(newCap int) {
	buf := make([]WorkUnit, newCap)
	for i := 0; i < q.n; i++ {
		buf[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = buf
	q.head = 0
}
