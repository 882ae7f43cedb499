package epoch

// Participant is one goroutine's reservation slot plus its private
// retirement list. It is not safe for concurrent use by more than one
// goroutine at a time — that would defeat the single-writer-per-slot
// invariant the reservation array relies on — but a single goroutine may
// freely call BeginBasicOp/BeginLinearizedOp/EndOp/Retire in sequence
// across many operations.
type Participant struct {
	mgr  *Manager
	slot int
	left bool

	retireHead  *Header
	retireCount uint64
}

// BeginBasicOp records the current global epoch into this participant's
// reservation slot. It gives no linearization guarantee beyond "memory
// retired strictly before this epoch will not be observed".
func (p *Participant) BeginBasicOp() {
	p.mgr.reservations[p.slot].Store(p.mgr.epoch.Load())
}

// BeginLinearizedOp publishes the current epoch into the reservation
// slot, then rereads the global epoch and retries until the two agree.
// The returned epoch is simultaneously at-least the published
// reservation and at-most any future advance, so a writer that commits
// at a later epoch can never have retired data this caller still needs.
//
// With Config.HelpBit set, a caller that has retried past
// HelpBitRetryThreshold (meaning writers are advancing the epoch faster
// than this goroutine can publish a matching reservation) raises the
// help flag and then checks for a handed-off epoch each iteration
// instead of only re-reading the counter itself; Manager.CommitWrite
// publishes one in response, bounding the remaining wait to at most one
// more writer commit rather than however long the epoch keeps moving.
func (p *Participant) BeginLinearizedOp() uint64 {
	retries := 0
	for {
		if p.mgr.cfg.HelpBit && retries >= p.mgr.cfg.HelpBitRetryThreshold {
			p.mgr.helpRequested.Store(true)
			if e := p.mgr.helpEpoch.Swap(0); e != 0 {
				p.mgr.reservations[p.slot].Store(e)
				return e
			}
		}
		e := p.mgr.epoch.Load()
		p.mgr.reservations[p.slot].Store(e)
		if p.mgr.epoch.Load() == e {
			return e
		}
		retries++
	}
}

// EndOp clears this participant's reservation, allowing epochs it was
// pinned at to be reclaimed once no other participant needs them.
func (p *Participant) EndOp() {
	p.mgr.reservations[p.slot].Store(unreserved)
}

// Leave returns the participant's slot to the manager's free pool. It is
// an error to call any other Participant method afterward.
func (p *Participant) Leave() error {
	if p.left {
		return ErrAlreadyLeft
	}
	p.left = true
	p.drainAll()
	p.mgr.release(p.slot)
	return nil
}

// Retire stamps h's retire_epoch with the current global epoch and
// pushes it onto this participant's retirement list. Every ScanEvery
// retirements, the list is scanned and every header whose retire_epoch
// is strictly less than the minimum reservation across all participants
// is dropped, allowing Go's collector to reclaim it.
func (p *Participant) Retire(h *Header) {
	h.retireEpoch = p.mgr.epoch.Load()
	h.retired = true
	h.next = p.retireHead
	p.retireHead = h
	p.retireCount++

	p.mgr.metrics.SetRetiredPending(float64(p.pendingCount()))

	if p.retireCount&uint64(p.mgr.cfg.ScanEvery-1) == 0 {
		p.Reclaim()
	}
}

// RetireUnused immediately drops h without adding it to the retirement
// list, valid only when the caller can prove no other goroutine could
// ever have observed it (for example, a record abandoned after losing a
// head-CAS race). See Manager.RetireUnused for the semantics; this
// method exists so a Participant-scoped caller doesn't need the Manager.
func (p *Participant) RetireUnused(h *Header) {
	p.mgr.RetireUnused(h)
}

// Reclaim scans this participant's retirement list and frees (drops the
// reference to) every header whose retire_epoch is strictly less than
// the minimum reservation across all participants. It returns the
// number of headers freed. Safe to call at any time, not just every
// ScanEvery retirements — Leave calls it (via drainAll) for one last
// pass before the participant's slot is released.
func (p *Participant) Reclaim() int {
	min := p.mgr.minReservation()

	freed := 0
	var keep, keepTail *Header
	for h := p.retireHead; h != nil; {
		next := h.next
		if h.retireEpoch < min {
			freed++
		} else {
			h.next = nil
			if keep == nil {
				keep = h
				keepTail = h
			} else {
				keepTail.next = h
				keepTail = h
			}
		}
		h = next
	}
	p.retireHead = keep
	p.mgr.log.Debug().Int("freed", freed).Uint64("min_reservation", min).Msg("epoch: reclamation scan")
	p.mgr.metrics.SetRetiredPending(float64(p.pendingCount()))
	return freed
}

func (p *Participant) pendingCount() int {
	n := 0
	for h := p.retireHead; h != nil; h = h.next {
		n++
	}
	return n
}

// drainAll is called from Leave: a departing participant's reservation
// is about to disappear, which can only help other participants'
// minimum, so it is always safe to attempt one last reclamation pass
// before handing retired-but-unfreed headers off. Anything still unsafe
// to free is simply dropped — Go's GC will keep them alive as long as
// some other reachable structure (for example a still-live Store that
// hasn't itself been retired) still points to them; once nothing does,
// they're collected regardless of epoch bookkeeping, since retirement
// bookkeeping exists to bound reclamation latency, not to be the only
// path to memory safety in a garbage-collected runtime.
func (p *Participant) drainAll() {
	p.Reclaim()
}
