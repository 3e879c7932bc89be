package upstream

import (
	"container/heap"
	"sync"
	"time"

	"atrax/internal/transport"
)

// pendingRequest is one in-flight request this session issued upstream, awaiting a matching
// response. The pending map is the single source of truth for "is this id still live"; the
// heap entry is tombstoned rather than removed on early resolution so the heap itself never
// needs an O(n) search to cancel a timeout.
type pendingRequest struct {
	id       int64
	method   string
	deadline time.Time
	resultCh chan pendingResult

	tombstoned bool
	heapIndex  int
}

type pendingResult struct {
	msg *transport.Message
	err error
}

// pendingHeap is a container/heap min-heap ordered by deadline, giving O(log n) insertion
// and removal for timeout bookkeeping.
type pendingHeap []*pendingRequest

func (h pendingHeap) Len() int            { return len(h) }
func (h pendingHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h pendingHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *pendingHeap) Push(x interface{}) {
	pr := x.(*pendingRequest)
	pr.heapIndex = len(*h)
	*h = append(*h, pr)
}

func (h *pendingHeap) Pop() interface{} {
	old := *h
	n := len(old)
	pr := old[n-1]
	old[n-1] = nil
	pr.heapIndex = -1
	*h = old[:n-1]
	return pr
}

// pendingTable owns the id → pendingRequest map and the deadline heap for one session. All
// methods are safe for concurrent use; the single-writer discipline required elsewhere in the
// system is achieved by funneling all reads of completed responses through Resolve, called
// only from the session's own read loop.
type pendingTable struct {
	mu      sync.Mutex
	byID    map[int64]*pendingRequest
	heap    pendingHeap
	wake    chan struct{}
	closed  bool
	closeCh chan struct{}
}

func newPendingTable() *pendingTable {
	t := &pendingTable{
		byID:    make(map[int64]*pendingRequest),
		wake:    make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}
	go t.timeoutLoop()
	return t
}

// Insert registers a new pending request with the given deadline, returning the channel its
// eventual result will be delivered on.
func (t *pendingTable) Insert(id int64, method string, deadline time.Time) <-chan pendingResult {
	pr := &pendingRequest{id: id, method: method, deadline: deadline, resultCh: make(chan pendingResult, 1)}

	t.mu.Lock()
	t.byID[id] = pr
	heap.Push(&t.heap, pr)
	t.mu.Unlock()

	t.nudge()
	return pr.resultCh
}

// Resolve delivers a response to the pending request matching msg's id, if any. Returns false
// if no matching live pending request exists (unknown or already-timed-out id).
func (t *pendingTable) Resolve(id int64, msg *transport.Message) bool {
	t.mu.Lock()
	pr, ok := t.byID[id]
	if ok {
		delete(t.byID, id)
		pr.tombstoned = true
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	pr.resultCh <- pendingResult{msg: msg}
	return true
}

// Cancel removes a pending request without delivering any result, used when the request was
// never actually sent (e.g. the Transport rejected it outright) or its caller's context was
// cancelled before a response arrived.
func (t *pendingTable) Cancel(id int64) {
	t.mu.Lock()
	if pr, ok := t.byID[id]; ok {
		delete(t.byID, id)
		pr.tombstoned = true
	}
	t.mu.Unlock()
}

// FailAll resolves every still-live pending request with err, used on session teardown.
func (t *pendingTable) FailAll(err error) {
	t.mu.Lock()
	all := make([]*pendingRequest, 0, len(t.byID))
	for _, pr := range t.byID {
		all = append(all, pr)
	}
	t.byID = make(map[int64]*pendingRequest)
	t.heap = nil
	t.mu.Unlock()

	for _, pr := range all {
		pr.resultCh <- pendingResult{err: err}
	}
}

// Close stops the timeout loop. Safe to call once the session is torn down.
func (t *pendingTable) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()
	close(t.closeCh)
}

func (t *pendingTable) nudge() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// timeoutLoop sleeps until the earliest live deadline, then fails anything that has expired
// and recomputes the next wake time. It wakes early whenever Insert adds a new entry that
// might be earlier than what it was already waiting on.
func (t *pendingTable) timeoutLoop() {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		t.mu.Lock()
		var next time.Duration = time.Hour
		now := time.Now()
		for t.heap.Len() > 0 {
			top := t.heap[0]
			if top.tombstoned {
				heap.Pop(&t.heap)
				continue
			}
			if !top.deadline.After(now) {
				heap.Pop(&t.heap)
				delete(t.byID, top.id)
				top.tombstoned = true
				t.mu.Unlock()
				top.resultCh <- pendingResult{err: ErrTimeout}
				t.mu.Lock()
				continue
			}
			next = top.deadline.Sub(now)
			break
		}
		t.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(next)

		select {
		case <-timer.C:
		case <-t.wake:
		case <-t.closeCh:
			return
		}
	}
}
