// Package handle provides a generation-counted handle table.
//
// A Handle names a slot in an arena plus the generation the slot had when
// the value was inserted. Removing a value bumps the slot generation, so a
// callback that captured a Handle can cheaply detect that its target is
// gone, even after the slot was reused for another value.
//
// A Table is not safe for concurrent use; it is meant to be owned by one
// control goroutine.
package handle
