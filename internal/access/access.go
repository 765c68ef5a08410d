// Package access defines the bus access-timing qualifier shared by the
// CPU, DMA controller, and bus so none of them need to import another
// component's package just to describe how an access is timed.
package access

// Kind qualifies a bus access as sequential (the address continues the
// previous access's natural progression) or non-sequential (a new burst,
// e.g. after a branch or at the start of a DMA transfer).
type Kind int

const (
	NonSequential Kind = iota
	Sequential
	// Code marks an access as an opcode fetch. The bus times it like any
	// other non-sequential access.
	Code
)
