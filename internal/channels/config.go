package channels

// EventChannelsConfig configures buffer sizes for event channels
type EventChannelsConfig struct {
	TargetStateBufferSize int
	FirstPassBufferSize   int
	CycleBufferSize       int
}

func (c EventChannelsConfig) withDefaults() EventChannelsConfig {
	if c.TargetStateBufferSize <= 0 {
		c.TargetStateBufferSize = 64
	}
	if c.FirstPassBufferSize <= 0 {
		c.FirstPassBufferSize = 64
	}
	if c.CycleBufferSize <= 0 {
		c.CycleBufferSize = 256
	}
	return c
}
