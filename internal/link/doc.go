// Package link is the device side of the serial link: it reassembles command
// frames byte by byte, dispatches them against a VM, loads bytecode, and
// answers every frame with exactly one ack.
//
// Ownership boundary:
// - link owns the reception state, the dispatch table and the bytecode store.
// - the VM behind the VM interface owns execution, stacks and memory.
// - callers own the transport: bytes arrive through Feed/Write and acks leave
// through the io.Writer given to New.
//
// A Link is not safe for concurrent use.
package link
