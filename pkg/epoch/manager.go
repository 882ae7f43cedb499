package epoch

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"quorum/internal/qlog"
	"quorum/internal/qmetrics"
)

// unreserved is the sentinel reservation value meaning "this participant
// is not in a tracked operation right now". Treated as +infinity when
// computing the minimum safe epoch for reclamation.
const unreserved = ^uint64(0)

// Manager is the process-wide (per-table) EBR state: the global epoch
// counter and the fixed-size array of participant reservation slots.
// The epoch counter and reservation array are intentionally not
// sharded — the total order across every write is the entire point.
type Manager struct {
	epoch        atomic.Uint64
	reservations []atomic.Uint64

	slotsMu   sync.Mutex
	freeSlots []int
	nextSlot  int
	highWater atomic.Uint64 // one past the highest slot ever assigned

	// helpRequested is the optional MSB-reservation-help flag (spec.md
	// §9): a reader sets it after HelpBitRetryThreshold retries in
	// BeginLinearizedOp. A writer that sees it set publishes its just
	// committed epoch into helpEpoch for the stalled reader to adopt
	// directly, instead of making it keep re-reading the epoch itself.
	// Only consulted when Config.HelpBit is set.
	helpRequested atomic.Bool

	// helpEpoch is the handoff value CommitWrite publishes in response
	// to helpRequested: a committed epoch a stalled BeginLinearizedOp
	// may adopt as its own reservation. 0 means no handoff is pending.
	// Swapped back to 0 by whichever reader claims it, so at most one
	// reader adopts a given handoff.
	helpEpoch atomic.Uint64

	cfg     Config
	log     zerolog.Logger
	metrics *qmetrics.Collector
}

// Options configures optional collaborators for a Manager. A nil Logger
// discards everything; a nil Metrics disables metrics entirely.
type Options struct {
	Config  Config
	Logger  *zerolog.Logger
	Metrics *qmetrics.Collector
}

// New creates a Manager. The global epoch starts at 1, so that 0 can
// mean "uncommitted write" without colliding with a real epoch.
func New(opts Options) (*Manager, error) {
	cfg := opts.Config
	if cfg.MaxParticipants == 0 {
		cfg = DefaultConfig()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := qlog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	m := &Manager{
		reservations: make([]atomic.Uint64, cfg.MaxParticipants),
		cfg:          cfg,
		log:          logger,
		metrics:      opts.Metrics,
	}
	m.epoch.Store(1)
	for i := range m.reservations {
		m.reservations[i].Store(unreserved)
	}
	return m, nil
}

// CurrentEpoch returns the current global epoch.
func (m *Manager) CurrentEpoch() uint64 { return m.epoch.Load() }

// Join registers a new participant, returning a handle the caller keeps
// for the lifetime of its work (typically the lifetime of a goroutine).
// Exceeding Config.MaxParticipants is a configuration error.
func (m *Manager) Join() (*Participant, error) {
	m.slotsMu.Lock()
	var slot int
	if n := len(m.freeSlots); n > 0 {
		slot = m.freeSlots[n-1]
		m.freeSlots = m.freeSlots[:n-1]
	} else {
		if m.nextSlot >= len(m.reservations) {
			m.slotsMu.Unlock()
			return nil, ErrTooManyParticipants
		}
		slot = m.nextSlot
		m.nextSlot++
		if uint64(m.nextSlot) > m.highWater.Load() {
			m.highWater.Store(uint64(m.nextSlot))
		}
	}
	m.slotsMu.Unlock()

	m.reservations[slot].Store(unreserved)
	m.metrics.SetParticipantsActive(float64(m.activeCountLocked()))
	p := &Participant{mgr: m, slot: slot}
	m.log.Debug().Int("slot", slot).Msg("epoch: participant joined")
	return p, nil
}

func (m *Manager) activeCountLocked() int {
	m.slotsMu.Lock()
	defer m.slotsMu.Unlock()
	return m.nextSlot - len(m.freeSlots)
}

// release returns slot to the free pool. Called by Participant.Leave.
func (m *Manager) release(slot int) {
	m.reservations[slot].Store(unreserved)
	m.slotsMu.Lock()
	m.freeSlots = append(m.freeSlots, slot)
	m.slotsMu.Unlock()
	m.metrics.SetParticipantsActive(float64(m.activeCountLocked()))
}

// minReservation returns the minimum reservation across every assigned
// slot, treating unreserved as +infinity. If no participant holds a
// reservation it returns unreserved, so every retired header is freeable.
func (m *Manager) minReservation() uint64 {
	hw := m.highWater.Load()
	min := unreserved
	for i := uint64(0); i < hw; i++ {
		if r := m.reservations[i].Load(); r != unreserved && r < min {
			min = r
		}
	}
	return min
}

// CommitWrite is the write-epoch linearization point: it fetch-adds the
// global epoch by one and installs the result into h's write_epoch via
// CAS, but only if h has not already been committed. Losing the CAS
// (another goroutine's HelpCommit beat this one to it) is expected and
// benign; CommitWrite always returns the epoch that actually ended up
// installed, whether or not it was the one this call produced.
func (m *Manager) CommitWrite(h *Header) uint64 {
	candidate := m.epoch.Add(1)
	h.writeEpoch.CompareAndSwap(0, candidate)
	if m.cfg.HelpBit && m.helpRequested.Load() {
		// A reader raised the help flag after spinning past
		// HelpBitRetryThreshold: hand it this commit's epoch directly
		// so it can adopt a valid reservation without re-reading the
		// epoch itself, bounding its wait to at most one more writer
		// commit instead of however long the epoch keeps moving.
		m.helpEpoch.Store(candidate)
		m.helpRequested.Store(false)
	}
	return h.writeEpoch.Load()
}

// HelpCommit is the wait-free progress hook: any reader that walks onto
// a record with write_epoch == 0 must call this before comparing the
// record's epoch to its own, so that no reader is ever blocked behind an
// uncommitted writer. If the record is already committed this is a
// single atomic load; otherwise it performs the same fetch-add+CAS as
// CommitWrite.
func (m *Manager) HelpCommit(h *Header) uint64 {
	if w := h.writeEpoch.Load(); w != 0 {
		return w
	}
	return m.CommitWrite(h)
}

// RetireUnused immediately releases h, valid only when the caller can
// prove no other goroutine could ever have observed it — the abandoned
// side of a lost record-install CAS, for instance. Go's garbage
// collector reclaims the memory once the caller drops its last
// reference; this call only stamps the header's retire_epoch and marks
// it retired, without putting it on any retirement list.
func (m *Manager) RetireUnused(h *Header) {
	h.retireEpoch = m.epoch.Load()
	h.retired = true
}
