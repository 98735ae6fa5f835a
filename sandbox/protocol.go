//go:build linux

package sandbox

// Command bytes exchanged over the controller<->zygote socket.
//
// spec.md's Open Question #1 ("does the wire protocol need a distinct
// hello byte, or can the zygote's first read just be the first command?")
// is resolved here in favor of a two-byte table: HELLO is read once at
// connect time and discarded, so a future third command can be added
// without overloading byte 0x01 the way original_source's single
// CMD_START = 0x1 does.
const (
	Hello byte = 0x01
	Start byte = 0x02
)
