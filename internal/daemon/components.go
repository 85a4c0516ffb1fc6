package daemon

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/nats-io/nats.go"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/PulfordJ/lastsignal/internal/channel"
	"github.com/PulfordJ/lastsignal/internal/checkin"
	"github.com/PulfordJ/lastsignal/internal/compose"
	"github.com/PulfordJ/lastsignal/internal/config"
	"github.com/PulfordJ/lastsignal/internal/dispatch"
	"github.com/PulfordJ/lastsignal/internal/escalation"
	"github.com/PulfordJ/lastsignal/internal/events"
	"github.com/PulfordJ/lastsignal/internal/eventstore"
	"github.com/PulfordJ/lastsignal/internal/logfields"
	"github.com/PulfordJ/lastsignal/internal/metrics"
	"github.com/PulfordJ/lastsignal/internal/state"
)

// LockFileName is the single-instance lock inside the data directory.
const LockFileName = "daemon.lock"

// BuildOptions selects which optional parts Build wires.
type BuildOptions struct {
	// Remote connects to NATS when events are configured.
	Remote bool
	// Sources enables automatic check-in sources (activity provider, NATS).
	Sources bool
	History HistoryMode
}

// HistoryMode says whether Build opens the escalation history database.
type HistoryMode int

const (
	// HistoryOptional opens the database and carries on without it if that fails.
	HistoryOptional HistoryMode = iota
	// HistoryRequired fails Build when the database cannot be opened.
	HistoryRequired
	// HistoryNone leaves the database untouched.
	HistoryNone
)

// Components is everything built from a configuration. The daemon and the
// one-shot commands share it.
type Components struct {
	Config *config.Config

	Store            *state.Store
	Loader           *compose.Loader
	Dispatcher       *dispatch.Dispatcher
	ReminderChannels []channel.Channel
	SignalChannels   []channel.Channel
	EngineConfig     escalation.Config
	Engine           *escalation.Engine
	Aggregator       *checkin.Aggregator

	// Whoop is set when an activity provider is configured.
	Whoop *checkin.Whoop

	History  eventstore.Store
	Bus      *events.Bus
	Registry *prom.Registry
	Recorder metrics.Recorder

	nats       *nats.Conn
	natsSource *checkin.NATSSource
}

// Build constructs the components described by cfg. Nothing here talks to
// an output channel; NATS is dialed only when opts.Remote is set and a
// connection failure only disables event publishing.
func Build(cfg *config.Config, opts BuildOptions) (*Components, error) {
	c := &Components{Config: cfg, Registry: prom.NewRegistry()}

	if cfg.App.MetricsListen != "" {
		c.Recorder = metrics.NewPrometheusRecorder(c.Registry)
	} else {
		c.Recorder = metrics.NoopRecorder{}
	}

	store, err := state.NewStore(cfg.App.DataDirectory)
	if err != nil {
		return nil, err
	}
	c.Store = store

	chOpts := channel.Options{Timeout: cfg.App.ChannelTimeout.Std()}
	if c.ReminderChannels, err = channel.BuildAll(cfg.Checkin.Outputs, chOpts); err != nil {
		return nil, err
	}
	if c.SignalChannels, err = channel.BuildAll(cfg.Recipient.LastSignalOutputs, chOpts); err != nil {
		return nil, err
	}

	if opts.History != HistoryNone {
		history, err := eventstore.NewSQLiteStore(filepath.Join(cfg.App.DataDirectory, eventstore.FileName))
		switch {
		case err == nil:
			c.History = history
		case opts.History == HistoryRequired:
			return nil, err
		default:
			slog.Warn("Escalation history disabled", logfields.Error(err))
		}
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if opts.Remote && cfg.Events != nil && cfg.Events.NATSURL != "" {
		conn, err := events.Connect(cfg.Events.NATSURL)
		if err != nil {
			slog.Warn("Event publishing disabled", logfields.Error(err))
		} else {
			c.nats = conn
			publisher = events.NewNATSPublisher(conn, cfg.Events.SubjectPrefix)
		}
	}
	c.Bus = events.NewBus(c.History, publisher, slog.Default())

	c.Loader = compose.NewLoader(cfg.MessageFilePath(), cfg.LastSignal.Subject)
	c.Dispatcher = dispatch.New(cfg.App.ChannelTimeout.Std()).WithRecorder(c.Recorder)

	c.EngineConfig = escalation.Config{
		DurationBetweenCheckins: cfg.Checkin.DurationBetweenCheckins,
		MaxTimeSinceLastCheckin: cfg.Recipient.MaxTimeSinceLastCheckin,
		ReminderRetryDelay:      cfg.Checkin.OutputRetryDelay.Std(),
		SignalRetryDelay:        cfg.Recipient.OutputRetryDelay.Std(),
		ReminderChannels:        c.ReminderChannels,
		SignalChannels:          c.SignalChannels,
		PersonName:              cfg.LastSignal.PersonName,
		ContactInfo:             cfg.LastSignal.ContactInfo,
	}
	c.Engine = escalation.New(c.EngineConfig, store, c.Dispatcher, c.Loader,
		escalation.WithEvents(c.Bus),
		escalation.WithRecorder(c.Recorder),
	)

	if a := cfg.Activity; a != nil {
		c.Whoop = checkin.NewWhoop(checkin.WhoopOptions{
			ClientID:     a.ClientID,
			ClientSecret: a.ClientSecret,
			RedirectURL:  a.RedirectURL,
			AuthURL:      a.AuthURL,
			TokenURL:     a.TokenURL,
			APIURL:       a.APIURL,
			Tokens:       checkin.NewTokenFile(filepath.Join(cfg.App.DataDirectory, checkin.TokenFileName)),
		})
	}

	var sources []checkin.Source
	if opts.Sources {
		if c.Whoop != nil {
			sources = append(sources, c.Whoop)
		}
		if c.nats != nil && cfg.Events.AcceptRemoteCheckins {
			src, err := checkin.NewNATSSource(c.nats, events.CheckinSubject(cfg.Events.SubjectPrefix))
			if err != nil {
				slog.Warn("Remote check-ins disabled", logfields.Error(err))
			} else {
				c.natsSource = src
				sources = append(sources, src)
			}
		}
	}
	aggOpts := []checkin.Option{checkin.WithRecorder(c.Recorder)}
	if cfg.Activity != nil {
		aggOpts = append(aggOpts, checkin.WithAuthFailureCountsAsCheckin(cfg.Activity.AuthFailureCountsAsCheckin))
	}
	c.Aggregator = checkin.NewAggregator(store, sources, aggOpts...)

	return c, nil
}

// worstCaseDispatch bounds one tick's dispatch: a health check and a send on
// every channel, each under the channel timeout.
func (c *Components) worstCaseDispatch() time.Duration {
	return 2 * c.Config.App.ChannelTimeout.Std() * time.Duration(len(c.Channels()))
}

// Channels returns every configured channel, reminder channels first.
func (c *Components) Channels() []channel.Channel {
	out := make([]channel.Channel, 0, len(c.ReminderChannels)+len(c.SignalChannels))
	out = append(out, c.ReminderChannels...)
	return append(out, c.SignalChannels...)
}

// Close releases the history database and the NATS connection.
func (c *Components) Close() error {
	if c.natsSource != nil {
		_ = c.natsSource.Close()
	}
	_ = c.Bus.Close()
	if c.nats != nil {
		c.nats.Close()
	}
	if c.History == nil {
		return nil
	}
	return c.History.Close()
}
