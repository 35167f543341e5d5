package main

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"mellium.im/xmpp/jid"

	"github.com/meszmate/roster-core/internal/app"
	"github.com/meszmate/roster-core/internal/config"
	"github.com/meszmate/roster-core/internal/domain"
	"github.com/meszmate/roster-core/internal/logging"
	"github.com/meszmate/roster-core/internal/messaging"
	"github.com/meszmate/roster-core/internal/metrics"
	"github.com/meszmate/roster-core/internal/reconcile"
	"github.com/meszmate/roster-core/internal/storage/sqlite"
	client "github.com/meszmate/roster-core/internal/xmpp"
	"github.com/meszmate/roster-core/internal/xmpp/disco"
	"github.com/meszmate/roster-core/internal/xmpp/muc"
	"github.com/meszmate/roster-core/internal/xmpp/presence"
	"github.com/meszmate/roster-core/internal/xmpp/roster"
	"github.com/meszmate/roster-core/internal/xmpp/sidebar"
)

const (
	reconnectDelay = 10 * time.Second
	sweepInterval  = time.Minute
)

var errNotConnected = errors.New("not connected")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	accounts, err := config.LoadAccounts()
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}

	if err := logging.Init(logging.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		JSON:    cfg.Logging.JSON,
	}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logging.Default()
	defer log.Close()

	var db *sqlite.DB
	if cfg.Storage.SaveMessages {
		db, err = sqlite.New(cfg.Storage.Database)
		if err != nil {
			return fmt.Errorf("failed to open message store: %w", err)
		}
		defer db.Close()
		log.Info("Message store at %s", cfg.Storage.Database)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	var m *metrics.Metrics
	if cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		g.Go(func() error { return serveMetrics(ctx, cfg.Metrics.Listen, reg, log) })
	}

	started := 0
	for _, acc := range accounts.Accounts {
		if acc.Disabled {
			continue
		}
		g.Go(func() error { return runAccount(ctx, cfg, acc, db, m, log) })
		started++
	}
	if started == 0 {
		log.Warn("No enabled accounts configured")
	}

	return g.Wait()
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log *logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	log.Info("Serving metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve metrics: %w", err)
	}
	return nil
}

// currentSession routes replies to whichever session is connected.
type currentSession struct {
	atomic.Pointer[client.Session]
}

func (c *currentSession) Send(ctx context.Context, r xml.TokenReader) error {
	s := c.Load()
	if s == nil {
		return errNotConnected
	}
	return s.Send(ctx, r)
}

func runAccount(ctx context.Context, cfg *config.Config, acc config.Account, db *sqlite.DB, m *metrics.Metrics, log *logging.Logger) error {
	j, err := jid.Parse(acc.JID)
	if err != nil {
		return fmt.Errorf("invalid account %q: %w", acc.JID, err)
	}
	id := domain.NewUserID(j)
	log = log.With("account", id.String())

	var (
		store   messaging.Store
		archive app.ArchiveStore
	)
	if db != nil {
		store, archive = db, db
	}

	engine := reconcile.NewEngine(reconcile.Config{
		PendingTTL: cfg.Reconcile.PendingTTL.Duration,
		MaxPending: cfg.Reconcile.MaxPending,
	})
	messages := messaging.NewRepository(id, store, engine, log)
	parser := messaging.NewParser(j, nil, nil)
	own := disco.NewOwn(cfg.Client.CapsNode, cfg.Client.Name, cfg.Client.Features...)

	var session currentSession
	responder := client.NewResponder(&session, own, client.Software{
		Name:    cfg.Client.Name,
		Version: cfg.Client.Version,
		OS:      cfg.Client.OS,
	})

	events := app.NewEventBus()
	events.Subscribe(func(ev app.ClientEvent) {
		log.Debug("Client event %T: %+v", ev, ev)
	})

	pipeline := app.NewDefaultPipeline(app.Services{
		UserInfo:  roster.NewManager(),
		Presence:  presence.NewManager(),
		Rooms:     muc.NewManager(),
		Sidebar:   sidebar.NewManager(),
		Responder: responder,
		Messages:  messages,
		Parser:    parser,
		Events:    events,
	}, log, m)

	account := app.NewAccount(app.AccountConfig{
		JID:           j,
		Pipeline:      pipeline,
		Messages:      messages,
		Parser:        parser,
		Events:        events,
		Archive:       archive,
		Rejecter:      responder,
		InboxSize:     cfg.General.InboxSize,
		SweepInterval: sweepInterval,
		Log:           log,
		Metrics:       m,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return account.Run(ctx) })
	g.Go(func() error {
		for {
			err := connect(ctx, acc, own, account, &session, log)
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("Connection lost: %v, reconnecting in %s", err, reconnectDelay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(reconnectDelay):
			}
		}
	})
	return g.Wait()
}

// connect runs one session until it ends.
func connect(ctx context.Context, acc config.Account, own *disco.Own, account *app.Account, current *currentSession, log *logging.Logger) error {
	s, err := client.Dial(ctx, client.Config{
		JID:      acc.JID,
		Password: acc.Password,
		Server:   acc.Server,
		Port:     acc.Port,
		Resource: acc.Resource,
		Priority: acc.Priority,
	}, log)
	if err != nil {
		return err
	}
	current.Store(s)
	defer current.Store(nil)

	// Closing the session is the only way to unblock Serve.
	stop := context.AfterFunc(ctx, func() { _ = s.Close(context.Background()) })
	defer stop()

	node, ver, _ := disco.SplitCapabilities(own.CapabilitiesID())
	if err := s.SendPresence(ctx, node, ver); err != nil {
		_ = s.Close(context.Background())
		return fmt.Errorf("failed to send initial presence: %w", err)
	}
	if err := account.Connected(ctx); err != nil {
		_ = s.Close(context.Background())
		return err
	}

	err = s.Serve(ctx, account.Push)
	_ = s.Close(context.Background())
	_ = account.Disconnected(ctx, err)
	return err
}
