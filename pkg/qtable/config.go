package qtable

// Config holds a Table's tunables: initial sizing and the migration
// knobs spec.md §9 leaves as open questions. Mirrors the
// Config/DefaultConfig shape pkg/epoch already follows.
type Config struct {
	// InitialSizeExp sizes the first store to 2^InitialSizeExp buckets.
	InitialSizeExp uint

	// EagerMoveEmpty marks never-claimed buckets MOVED as soon as a
	// migration visits them, trading a little extra CAS traffic during
	// migration for fewer Hash() checks on buckets a later reader might
	// still touch. Off by default: most tables carry far more claimed
	// buckets than the load factor would suggest are empty, so the eager
	// marking rarely pays for itself. See DESIGN.md.
	EagerMoveEmpty bool

	// MaxPutRetries bounds how many times a write retries its head-CAS
	// before switching to the wait-free combine path: treat the CAS
	// winner's result as if it linearized immediately before this call.
	// A value of 0 or less selects DefaultMaxPutRetries, so every write
	// retries at least once before combining.
	MaxPutRetries int
}

const (
	// DefaultInitialSizeExp starts a fresh table at 16 buckets.
	DefaultInitialSizeExp = 4

	// DefaultMaxPutRetries is a small bound chosen so most writes settle
	// their own CAS rather than falling back to the combine path, while
	// still bounding worst-case retry spin under heavy contention.
	DefaultMaxPutRetries = 8
)

// DefaultConfig returns the library's default table configuration.
func DefaultConfig() Config {
	return Config{
		InitialSizeExp: DefaultInitialSizeExp,
		EagerMoveEmpty: false,
		MaxPutRetries:  DefaultMaxPutRetries,
	}
}

func (c Config) sizeExpOrDefault() uint {
	if c.InitialSizeExp == 0 {
		return DefaultInitialSizeExp
	}
	return c.InitialSizeExp
}

func (c Config) maxPutRetriesOrDefault() int {
	if c.MaxPutRetries <= 0 {
		return DefaultMaxPutRetries
	}
	return c.MaxPutRetries
}
