package channel

import (
	"fmt"
	"net/http"
	"time"

	"github.com/PulfordJ/lastsignal/internal/config"
	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
)

// Options carries settings shared by every channel built from configuration.
type Options struct {
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Build constructs the channel variant selected by the descriptor's type tag.
func Build(d config.OutputDescriptor, index int, opts Options) (Channel, error) {
	name := d.Label(index)
	switch d.Type {
	case config.OutputEmail:
		if d.Email == nil {
			return nil, errors.ConfigError(fmt.Sprintf("output %s: missing email block", name)).Build()
		}
		return NewEmail(name, *d.Email, opts.Timeout), nil
	case config.OutputMessenger:
		if d.Messenger == nil {
			return nil, errors.ConfigError(fmt.Sprintf("output %s: missing messenger block", name)).Build()
		}
		return NewMessenger(name, *d.Messenger, opts.HTTPClient), nil
	default:
		return nil, errors.ConfigError(fmt.Sprintf("output %s: unknown output type %q", name, d.Type)).Build()
	}
}

// BuildAll constructs channels in configured order.
func BuildAll(descriptors []config.OutputDescriptor, opts Options) ([]Channel, error) {
	channels := make([]Channel, 0, len(descriptors))
	for i, d := range descriptors {
		ch, err := Build(d, i, opts)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, nil
}
