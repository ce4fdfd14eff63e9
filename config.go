package timemap

import (
	"fmt"
	"time"
)

// DefaultTimeLife is the entry lifetime applied when Config.TimeLife is
// zero.
const DefaultTimeLife = 1000 * time.Millisecond

type Config struct {
	// TimeLife is the uniform lifetime shared by every entry, fixed for
	// the life of the map. Zero selects DefaultTimeLife.
	TimeLife time.Duration
}

func DefaultConfig() Config {
	return Config{
		TimeLife: DefaultTimeLife,
	}
}

func (c Config) Validate() error {
	if c.TimeLife < 0 {
		return fmt.Errorf("TimeLife cannot be negative")
	}
	return nil
}
