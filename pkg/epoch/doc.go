// Package epoch implements the process-wide epoch-based reclamation
// (EBR) manager shared by every table variant in this module. It hands
// out per-goroutine reservation slots, assigns the linearization epoch
// stamped into each committed write, and defers freeing retired memory
// until no reservation could still observe it.
//
// There is exactly one Manager per table; a Manager is never sharded,
// since the whole point of the design is a single, total write order.
// Go has no implicit thread-local storage, so the per-thread reservation
// the spec describes is modeled as an explicit *Participant handle: a
// goroutine calls Manager.Join once, keeps the Participant for the
// lifetime of its work, and calls Leave when it exits.
package epoch
