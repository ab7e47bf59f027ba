package cmds

import (
	"context"
	"io"
	"os"

	"github.com/jackzhu119/Gemini-clone/pkg/controller"
	"github.com/jackzhu119/Gemini-clone/pkg/events"
	"github.com/jackzhu119/Gemini-clone/pkg/helpers"
	"github.com/jackzhu119/Gemini-clone/pkg/steps/ai/gemini"
	"github.com/jackzhu119/Gemini-clone/pkg/steps/ai/settings"
	"github.com/jackzhu119/Gemini-clone/pkg/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// app wires settings, store, backend, event router and controller for one
// command invocation.
type app struct {
	settings   *settings.ChatSettings
	controller *controller.Controller
	router     *events.EventRouter
	closeStore func() error
}

type appOptions struct {
	// printer writes chat events to out while the router runs
	printer bool
	// sessions also prints the session list whenever it changes
	sessions bool
	out      io.Writer
}

func newApp(opts appOptions) (*app, error) {
	s, err := settings.FromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}

	st, closeStore, err := store.Open(s.Store)
	if err != nil {
		return nil, errors.Wrap(err, "could not open session store")
	}
	log.Debug().Str("backend", string(s.Store.Backend)).Str("path", s.Store.Path).Msg("Opened session store")

	router, err := events.NewEventRouter(
		events.WithLogger(helpers.NewWatermill(log.Logger)),
		events.WithVerbose(viper.GetBool("verbose")),
	)
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	out := opts.out
	if out == nil {
		out = os.Stdout
	}
	if opts.printer {
		var printerOptions []events.PrinterOption
		if width := terminalWidth(out); width > 0 {
			// glamour needs the whole reply, so on a terminal the reply is
			// rendered once it settled instead of streamed
			printerOptions = append(printerOptions,
				events.WithMarkdownStyle("dark"),
				events.WithWordWrap(width-2),
			)
		}
		printerOptions = append(printerOptions, events.WithSessionChanges(opts.sessions))
		router.AddHandler("chat", events.DefaultTopic, events.ChatPrinterFunc("Gemini", out, printerOptions...))
	}
	if viper.GetBool("dump-events") {
		router.AddHandler("dump", events.DefaultTopic, router.DumpRawEvents)
	}

	c := controller.New(st, gemini.NewBackend(s),
		controller.WithEventSinks(router.Sink(events.DefaultTopic)),
		controller.WithErrorText(s.ErrorText),
		controller.WithStreamTimeout(s.StreamTimeout),
		controller.WithModel(s.Model),
	)

	return &app{
		settings:   s,
		controller: c,
		router:     router,
		closeStore: closeStore,
	}, nil
}

func (a *app) Close() error {
	if err := a.router.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close event router")
	}
	return a.closeStore()
}

// run loads the sessions and runs f while the event router delivers events.
// The router is stopped once f returns.
func (a *app) run(ctx context.Context, f func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg := errgroup.Group{}
	eg.Go(func() error {
		return a.router.Run(ctx)
	})
	eg.Go(func() error {
		defer cancel()
		select {
		case <-a.router.Running():
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := a.controller.Load(ctx); err != nil {
			return err
		}
		return f(ctx)
	})

	return eg.Wait()
}

// load loads the sessions without delivering events.
func (a *app) load(ctx context.Context) error {
	return a.controller.Load(ctx)
}
