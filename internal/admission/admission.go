// Package admission owns process startup: it loads configuration,
// provisions the on-disk layout, wires the queue store, forwarder, and
// receive handlers together, and blocks serving associations until
// told to stop. The lifecycle (signal handling, graceful shutdown)
// follows the teacher server package's Server.ListenAndServe shape.
package admission

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/egosumscientia/mini-pacs-edge/internal/config"
	"github.com/egosumscientia/mini-pacs-edge/internal/correlate"
	"github.com/egosumscientia/mini-pacs-edge/internal/dimse"
	"github.com/egosumscientia/mini-pacs-edge/internal/forward"
	"github.com/egosumscientia/mini-pacs-edge/internal/obslog"
	"github.com/egosumscientia/mini-pacs-edge/internal/receive"
	"github.com/egosumscientia/mini-pacs-edge/internal/store"
)

// Gateway is the fully wired, runnable edge process.
type Gateway struct {
	cfg      *config.Store
	store    store.Store
	forward  *forward.Forwarder
	listener *dimse.Listener
	log      *obslog.Logger
}

// dataDirs are provisioned under edge.data_root at startup.
var dataDirs = []string{"incoming", "queued", "sent", "failed"}

// New loads cfg, provisions the filesystem layout, and wires the
// already-connected queue store st into the forwarder and receive
// handlers. It does not start serving; call Run for that.
func New(ctx context.Context, configPath string, st store.Store) (*Gateway, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	edge := cfg.Edge()

	if err := ensureDirs(edge.DataRoot); err != nil {
		return nil, fmt.Errorf("admission: %w", err)
	}
	if edge.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(edge.LogPath), 0o755); err != nil {
			return nil, fmt.Errorf("admission: %w", err)
		}
	}

	log, err := obslog.New(edge.LogPath)
	if err != nil {
		return nil, fmt.Errorf("admission: %w", err)
	}

	routing := cfg.Routing()
	fwd, err := forward.New(edge.AETitle, edge.DataRoot, routing, st, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("admission: %w", err)
	}

	corr := correlate.New(st, log)
	handler := receive.New(edge.AETitle, edge.AllowedCallingAETs, edge.DataRoot, routing, st, cfg, corr, fwd, log)
	listener := dimse.NewListener(
		dimse.ListenerConfig{AETitle: edge.AETitle, Addr: fmt.Sprintf(":%d", edge.Port)},
		handler.Echo, handler.Store,
	)

	return &Gateway{cfg: cfg, store: st, forward: fwd, listener: listener, log: log}, nil
}

// Run starts the background forwarder (unless routing mode is
// "parallel", where forwarding happens inline on the receive path) and
// blocks serving associations until ctx is canceled or a SIGINT/SIGTERM
// arrives.
func (g *Gateway) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if g.cfg.Routing().Mode != config.ModeParallel {
		go func() {
			if err := g.forward.Run(ctx); err != nil && ctx.Err() == nil {
				g.log.Error("forwarder exited", obslog.Fields{"error": err.Error()})
			}
		}()
	}

	return g.listener.ListenAndServe(ctx)
}

func ensureDirs(dataRoot string) error {
	for _, dir := range dataDirs {
		if err := os.MkdirAll(filepath.Join(dataRoot, dir), 0o755); err != nil {
			return err
		}
	}
	return nil
}
