// Package device provides the in-memory registry of logical field devices.
//
// The registry is pure bookkeeping: it owns every device entry, enforces
// identifier uniqueness and a capacity bound, and preserves insertion order
// for listing. It performs no I/O; per-device poll dispatch belongs to the
// protocol layer above, which consumes ListEnabled.
//
// All registry methods are safe for concurrent use. Reads (Get, List,
// ListEnabled, Len) may run in parallel; mutations (Add, Remove, Enable,
// Disable, Process) are exclusive.
package device
