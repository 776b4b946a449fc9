package integration

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/andig/ngenic/config"
	"github.com/andig/ngenic/ngenic"
	"github.com/evcc-io/evcc/util"
)

// Flow errors, named like the form errors they are shown as
var (
	ErrAlreadyConfigured = errors.New("already_configured")
	ErrBadToken          = errors.New("bad_token")
	ErrNoTunes           = errors.New("no_tune")
)

// TuneLister lists the tunes of an account
type TuneLister interface {
	Tunes(ctx context.Context) ([]ngenic.Tune, error)
}

// Flow validates a token before it becomes an entry
type Flow struct {
	log        *util.Logger
	connect    func(token string) TuneLister
	configured func() ([]string, error)
}

// NewFlow creates a config flow. connect opens a connection for a token,
// configured returns the tokens already set up.
func NewFlow(connect func(token string) TuneLister, configured func() ([]string, error)) *Flow {
	return &Flow{
		log:        util.NewLogger("flow"),
		connect:    connect,
		configured: configured,
	}
}

// Submit validates token and returns the entry to create, titled after the account's tune
func (f *Flow) Submit(ctx context.Context, token string) (config.Entry, error) {
	var res config.Entry

	tokens, err := f.configured()
	if err != nil {
		return res, err
	}
	if slices.Contains(tokens, token) {
		return res, ErrAlreadyConfigured
	}

	tunes, err := f.connect(token).Tunes(ctx)
	if err != nil {
		f.log.DEBUG.Printf("token rejected: %v", err)
		return res, fmt.Errorf("%w: %w", ErrBadToken, err)
	}

	if len(tunes) == 0 {
		return res, ErrNoTunes
	}

	// the last tune names the account, its name may be empty
	return config.Entry{
		Title:   tunes[len(tunes)-1].TuneName,
		Token:   token,
		Options: config.DefaultOptions(),
	}, nil
}
