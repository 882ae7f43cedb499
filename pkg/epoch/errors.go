package epoch

import "errors"

// ErrTooManyParticipants is returned by Manager.Join when every
// reservation slot up to Config.MaxParticipants is already held.
// Configuration errors are fatal at setup time per the library's error
// model, but a library must not unilaterally crash its host process, so
// this is surfaced as an error rather than a panic; callers that want
// the spec's "fatal" behavior can log.Fatal on it themselves.
var ErrTooManyParticipants = errors.New("epoch: too many participants registered")

// ErrInvalidConfig is returned by New when a Config value cannot be
// honored (a non-power-of-two scan frequency, a negative participant
// cap). A zero participant cap selects DefaultConfig instead.
var ErrInvalidConfig = errors.New("epoch: invalid configuration")

// ErrAlreadyLeft is returned by Participant.Leave when called more than
// once on the same Participant.
var ErrAlreadyLeft = errors.New("epoch: participant already left")
