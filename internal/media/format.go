// Package media implements the DataSource/DataConsumer/Translator graph
// (spec.md §3 "DataSource"/"DataConsumer"/"Translator", §4.4).
package media

// Format names a media encoding, e.g. "slin" or "alaw". It is a plain
// string rather than an enum because drivers/codecs outside the core
// register their own formats at runtime.
type Format string

// Flags annotate a forwarded Block.
type Flags uint8

const (
	// DataMark marks the first block of a talkspurt.
	DataMark Flags = 1 << iota
	// DataSilent marks a comfort-noise block.
	DataSilent
	// DataMissed marks a block following a detected gap.
	DataMissed
)

// Block is one unit of media data flowing from a Source to its Consumers.
type Block struct {
	Data        []byte
	TimestampUs int64
	Flags       Flags
}
