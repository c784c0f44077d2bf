package feed

import (
	"context"
	"errors"
	"fmt"
)

// LineSource delivers raw tracker lines to subscribers. The serial port
// multiplexer and the MQTT source both satisfy it.
type LineSource interface {
	// Subscribe creates a channel of lines. The ID is used to unsubscribe.
	Subscribe() (string, chan string)
	// Unsubscribe closes and removes the channel with the given ID.
	Unsubscribe(string)
	// Monitor pumps lines to subscribers until ctx is done or the
	// underlying transport ends.
	Monitor(context.Context) error
	// Close releases the transport and closes every subscriber channel.
	Close() error
}

// Observer consumes parsed readings, one per tracker frame.
type Observer interface {
	Observe(Reading) error
}

// Pump subscribes to src and forwards every parsable line to obs until ctx
// is cancelled or the subscription channel closes. Malformed lines are
// reported through onError and skipped; blank lines are dropped silently.
func Pump(ctx context.Context, src LineSource, obs Observer, onError func(line string, err error)) error {
	id, lines := src.Subscribe()
	defer src.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			r, err := ParseLine(line)
			if errors.Is(err, ErrEmptyLine) {
				continue
			}
			if err == nil {
				err = obs.Observe(r)
				if err != nil {
					err = fmt.Errorf("observe: %w", err)
				}
			}
			if err != nil && onError != nil {
				onError(line, err)
			}
		}
	}
}
