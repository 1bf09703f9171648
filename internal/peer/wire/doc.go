// Package wire implements the peer wire codec.
//
// Every peer message travels as one frame:
//
//	magic:u32 = 0x57545052 | version:u32 = 1 | length:u32 | payload
//
// All integers are big-endian. The first frame on a channel is the
// handshake (shared secret and sender name); every later frame carries a
// Message whose first payload byte is its MessageType.
//
// Invocation argument lists are tagged variants encoded with protowire:
// the field number is the value Kind, so the list is self-describing and
// keeps its order.
package wire
