// Package qtable implements the wait-free, linearizable hash table built
// on top of pkg/epoch and pkg/bucket: Get/Put/Add/Replace/Remove/Len,
// the cooperative migration engine that grows or compacts the active
// store without ever blocking a reader, and the create-epoch-ordered
// snapshot view.
package qtable
