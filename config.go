package esc

import (
	"time"
)

// defaultPublishingInterval is the Dispatcher's poll interval when
// Config.PublishingInterval is left zero.
const defaultPublishingInterval = 100 * time.Millisecond

// Config holds the options recognized by Store.
type Config struct {
	// PublishingInterval is the Dispatcher's poll interval. Zero means
	// defaultPublishingInterval.
	PublishingInterval time.Duration

	// Logger, if set to the literal "console", binds the built-in
	// zerolog-backed ConsoleLogger unless a logger was already
	// bound explicitly via Use.
	Logger string
}

func (c Config) publishingInterval() time.Duration {
	if c.PublishingInterval <= 0 {
		return defaultPublishingInterval
	}
	return c.PublishingInterval
}
