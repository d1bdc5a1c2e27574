package media

// Consumer accepts media blocks. A Consumer may declare the format it
// accepts; if empty, it accepts whatever its Source produces without
// needing a translator.
type Consumer interface {
	Format() Format
	Consume(block Block) int
}

// ConsumerFunc adapts a plain function to Consumer for a fixed format.
type ConsumerFunc struct {
	format Format
	fn     func(Block) int
}

// NewConsumerFunc builds a Consumer around fn, declaring format.
func NewConsumerFunc(format Format, fn func(Block) int) *ConsumerFunc {
	return &ConsumerFunc{format: format, fn: fn}
}

// Format implements Consumer.
func (c *ConsumerFunc) Format() Format { return c.format }

// Consume implements Consumer.
func (c *ConsumerFunc) Consume(block Block) int { return c.fn(block) }
