package capability

import (
	"fmt"
	"time"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
	"github.com/hugo-lorenzo-mato/teamflow/internal/logging"
)

// Modes accepted by New.
const (
	ModeLocal = "local"
	ModeHTTP  = "http"
)

// Options selects and configures the capability used by the engine.
type Options struct {
	Mode       string
	BaseURL    string
	Token      string
	Timeout    time.Duration
	LocalDelay time.Duration
	Logger     *logging.Logger
}

// New builds a Router whose fallback is the capability selected by opts.Mode.
func New(opts Options) (*Router, error) {
	var fallback core.Capability
	switch opts.Mode {
	case "", ModeLocal:
		fallback = NewLocalCapability(WithDelay(opts.LocalDelay))
	case ModeHTTP:
		c, err := NewHTTPCapability(opts.BaseURL, opts.Timeout,
			WithToken(opts.Token), WithHTTPLogger(opts.Logger))
		if err != nil {
			return nil, err
		}
		fallback = c
	default:
		return nil, fmt.Errorf("unknown capability mode %q (valid: %s, %s)", opts.Mode, ModeLocal, ModeHTTP)
	}
	return NewRouter(fallback), nil
}
