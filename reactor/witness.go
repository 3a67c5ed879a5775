package reactor

// WaitToken tracks the outcome of a single would-block suspension (`spec.md`
// §3 "WaitToken"). It is strongly owned by the waiting fiber; a conditional
// timer is given only a [Witness] — a non-owning handle that can test
// whether the token is still live without ever being able to keep it alive
// or dereference freed memory.
//
// Exactly one of {timer callback, event delivery} ever observes a live
// WaitToken — the other observes either an expired Witness or a token whose
// cancelCode has already been set, because [WaitToken.TrySetCancel] is a
// first-writer-wins operation.
type WaitToken struct {
	cancelCode int32
	cancelErr  error

	arena *witnessArena
	index int
	gen   uint64
}

// code values for cancelCode; 0 means "not cancelled".
const (
	codeNone int32 = iota
	codeSet
)

// TrySetCancel records err as the reason this wait ended, if nothing has
// claimed that right yet. Returns true if this call was the one that set
// it. Safe to call from a timer callback or from the suspension protocol
// that owns the token — whichever runs first wins, matching the "first
// writer of cancel_code wins" rule in `spec.md` §5.
func (t *WaitToken) TrySetCancel(err error) bool {
	if t.cancelCode != codeNone {
		return false
	}
	t.cancelCode = codeSet
	t.cancelErr = err
	return true
}

// Cancelled reports the error set by [WaitToken.TrySetCancel], or nil if
// the wait ended normally (event delivered, no timeout raced it).
func (t *WaitToken) Cancelled() error {
	if t.cancelCode == codeNone {
		return nil
	}
	return t.cancelErr
}

// Witness returns a non-owning handle a timer can hold to test whether this
// token is still interesting without extending its lifetime.
func (t *WaitToken) Witness() Witness {
	return Witness{arena: t.arena, index: t.index, gen: t.gen}
}

// Release marks this token's arena slot stale: any [Witness] obtained
// before this call will fail to upgrade from now on. Callers must call
// this once they have observed the wait's outcome and are about to
// return, which is what makes a timer that fires after the fiber already
// resumed a safe no-op instead of a use-after-free.
func (t *WaitToken) Release() {
	t.arena.release(t.index, t.gen)
}

// Witness is a weak, non-owning reference to a [WaitToken]. It is the
// generation-counter alternative to a weak pointer that `spec.md` §9
// sanctions explicitly: the arena rejects an upgrade once the slot's
// generation has moved past the one the Witness captured, whether because
// the token was released or because the slot was recycled for an unrelated
// later wait.
type Witness struct {
	arena *witnessArena
	index int
	gen   uint64
}

// Upgrade returns the live token this witness refers to, or ok=false if the
// wait it referred to has already concluded (fiber resumed and released
// it) — the only safe way for a timer callback to touch a WaitToken it does
// not own.
func (w Witness) Upgrade() (*WaitToken, bool) {
	return w.arena.upgrade(w.index, w.gen)
}

// witnessArena is a process... really a per-[Reactor] pool of WaitToken
// slots, indexed by (index, generation) pairs instead of pointers so a
// timer's Witness can never outlive-and-dereference a token whose memory
// has been reused. Free slots are recycled; every recycle bumps the
// generation so stale witnesses fail their upgrade.
type witnessArena struct {
	slots []witnessSlot
	free  []int
}

type witnessSlot struct {
	token *WaitToken
	gen   uint64
}

func newWitnessArena() *witnessArena {
	return &witnessArena{}
}

// newToken allocates a fresh [WaitToken] from the arena.
func (a *witnessArena) newToken() *WaitToken {
	var index int
	if n := len(a.free); n > 0 {
		index = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		index = len(a.slots)
		a.slots = append(a.slots, witnessSlot{})
	}

	gen := a.slots[index].gen
	token := &WaitToken{arena: a, index: index, gen: gen}
	a.slots[index].token = token
	return token
}

func (a *witnessArena) upgrade(index int, gen uint64) (*WaitToken, bool) {
	slot := a.slots[index]
	if slot.gen != gen || slot.token == nil {
		return nil, false
	}
	return slot.token, true
}

func (a *witnessArena) release(index int, gen uint64) {
	slot := &a.slots[index]
	if slot.gen != gen {
		// already released and recycled for a newer token; nothing to do
		return
	}
	slot.token = nil
	slot.gen++
	a.free = append(a.free, index)
}
