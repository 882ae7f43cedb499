package epoch

// Config holds the compile-time-ish constants the spec calls out as
// environment configuration: the maximum number of concurrent
// participants, the retirement-scan frequency, and whether the optional
// reservation-help bit policy is enabled.
type Config struct {
	// MaxParticipants bounds the number of live reservation slots.
	// Exceeding it is a configuration error at Join time.
	MaxParticipants int

	// ScanEvery controls how often Retire triggers a reclamation scan:
	// every ScanEvery retirements on a given participant. Must be a
	// power of two.
	ScanEvery int

	// HelpBit enables the reservation-help protocol: readers set a help
	// flag after a bounded number of BeginLinearizedOp retries, and the
	// next CommitWrite, after advancing the epoch, clears the flag and
	// hands its committed epoch to the stalled reader. Writers do not
	// scan reservations before advancing the epoch. Off by default.
	HelpBit bool

	// HelpBitRetryThreshold is the number of BeginLinearizedOp retries
	// before a participant raises the help flag. Only meaningful when
	// HelpBit is true.
	HelpBitRetryThreshold int
}

const (
	// DefaultMaxParticipants matches spec.md §6's default thread limit.
	DefaultMaxParticipants = 8192

	// DefaultScanEvery matches spec.md §6's default retirement-scan
	// frequency (a power of two).
	DefaultScanEvery = 32

	// DefaultHelpBitRetryThreshold is a conservative bound chosen so the
	// help bit only engages under genuine contention.
	DefaultHelpBitRetryThreshold = 64
)

// DefaultConfig returns the spec's default environment configuration.
func DefaultConfig() Config {
	return Config{
		MaxParticipants:       DefaultMaxParticipants,
		ScanEvery:             DefaultScanEvery,
		HelpBit:               false,
		HelpBitRetryThreshold: DefaultHelpBitRetryThreshold,
	}
}

func (c Config) validate() error {
	if c.MaxParticipants <= 0 {
		return ErrInvalidConfig
	}
	if c.ScanEvery <= 0 || c.ScanEvery&(c.ScanEvery-1) != 0 {
		return ErrInvalidConfig
	}
	return nil
}
