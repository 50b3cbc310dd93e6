package nucleus

// This file implements the delay-descriptor list and syscall 18 (spec.md
// §4.K), grounded on the same sorted arena-with-sentinels shape asl.go uses
// for the ASL: a fixed pool of descriptors, two sentinels bounding a sorted
// chain, no allocation once booted.

type delayDescriptor struct {
	wake  uint64
	owner *SupportStructure
	next  int32
}

const nilDelay int32 = -1

// DelayList is the time-ordered list of sleeping user processes (spec.md
// §3, §4.K). Two sentinels (wake-time 0 and the maximum) bound the chain.
type DelayList struct {
	arena    []delayDescriptor
	freeHead int32
	head     int32
	sem      Semaphore
}

// NewDelayList builds a delay list with the given descriptor capacity
// (max_user_processes + 2 sentinels per spec.md §3).
func NewDelayList(capacity int) *DelayList {
	d := &DelayList{arena: make([]delayDescriptor, capacity), freeHead: nilDelay}
	for i := capacity - 1; i >= 2; i-- {
		d.arena[i].next = d.freeHead
		d.freeHead = int32(i)
	}
	d.arena[0] = delayDescriptor{wake: 0, next: 1}
	d.arena[1] = delayDescriptor{wake: ^uint64(0), next: nilDelay} // high sentinel; spec's 0xFFFFFFFF widened to uint64
	d.head = 0
	d.sem.Value = 1
	return d
}

// Semaphore returns the delay list's dedicated mutual-exclusion semaphore.
func (d *DelayList) Semaphore() *Semaphore { return &d.sem }

func (d *DelayList) alloc() (int32, bool) {
	if d.freeHead == nilDelay {
		return nilDelay, false
	}
	h := d.freeHead
	d.freeHead = d.arena[h].next
	return h, true
}

func (d *DelayList) free(h int32) {
	d.arena[h] = delayDescriptor{next: d.freeHead}
	d.freeHead = h
}

// Insert splices a new descriptor for owner into sorted position by wake
// time. Returns false if the pool is exhausted.
func (d *DelayList) Insert(owner *SupportStructure, wake uint64) bool {
	h, ok := d.alloc()
	if !ok {
		return false
	}
	prev := d.head
	cur := d.arena[prev].next
	for d.arena[cur].wake <= wake {
		prev = cur
		cur = d.arena[cur].next
	}
	d.arena[h] = delayDescriptor{wake: wake, owner: owner, next: cur}
	d.arena[prev].next = h
	return true
}

// DrainDue removes every descriptor whose wake time has passed and returns
// their owners, in wake-time order.
func (d *DelayList) DrainDue(now uint64) []*SupportStructure {
	var woken []*SupportStructure
	prev := d.head
	cur := d.arena[prev].next
	for cur != 1 && d.arena[cur].wake <= now {
		next := d.arena[cur].next
		woken = append(woken, d.arena[cur].owner)
		d.arena[prev].next = next
		d.free(cur)
		cur = next
	}
	return woken
}

// SyscallDelay implements syscall 18: negative seconds terminates the
// caller, zero returns immediately, otherwise the caller is inserted into
// the delay list and blocks on its own private semaphore until the delay
// daemon wakes it.
func (n *Nucleus) SyscallDelay(h Handle) {
	pcb := n.PCBs.Get(h)
	s := pcb.Support
	state := &s.ExceptState[GeneralExcept]
	seconds := int32(state.A1())
	if seconds < 0 {
		n.SyscallTerminate(h)
		return
	}
	if seconds == 0 {
		state.SetV0(0)
		return
	}

	n.P(n.Delay.Semaphore(), h) // mutual exclusion; never contends in this single-threaded model
	ok := n.Delay.Insert(s, n.now+uint64(seconds)*1_000_000)
	if !ok {
		n.V(n.Delay.Semaphore())
		n.SyscallTerminate(h) // delay-descriptor pool exhausted (spec.md §7)
		return
	}
	n.V(n.Delay.Semaphore())

	// The V/P pair is "atomic" in the original (interrupts disabled across
	// both) so the daemon cannot signal between them; here they are simply
	// sequential calls, since nothing else can run between them without a
	// real scheduler thread (spec.md §1 puts instruction execution, and so
	// true concurrency, out of scope).
	if n.P(&s.PrivateSem, h) {
		n.SwitchProcess()
	}
}

// DelayDaemonTick runs one iteration of the delay daemon's loop body
// (spec.md §4.K): P the delay-list semaphore, wake every descriptor whose
// wake time has passed, V the semaphore. A harness calls this once per
// simulated interval-timer tick in place of running the daemon as a literal
// blocking process, consistent with the Nucleus's direct-call component
// model (spec.md §9).
func (n *Nucleus) DelayDaemonTick() {
	n.P(n.Delay.Semaphore(), NilHandle) // never contends: nothing else holds it concurrently
	for _, owner := range n.Delay.DrainDue(n.now) {
		n.V(&owner.PrivateSem)
	}
	n.V(n.Delay.Semaphore())
}
