// Package server initializes and runs the sync server: the merge engine
// behind the gRPC endpoint, the change notifier behind the websocket
// endpoint, and the optional attachment presigner.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/dmitrijs2005/notesync/internal/server/attachments"
	"github.com/dmitrijs2005/notesync/internal/server/config"
	"github.com/dmitrijs2005/notesync/internal/server/merge"
	"github.com/dmitrijs2005/notesync/internal/server/notify"
	"github.com/dmitrijs2005/notesync/internal/server/storage"
	"github.com/dmitrijs2005/notesync/internal/server/ws"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/notesync/internal/server/grpc"
)

type runner interface {
	Run(ctx context.Context) error
}

type App struct {
	config  *config.Config
	logger  logging.Logger
	store   storage.Store
	servers []runner
}

var openStore = storage.Open

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout, logging.ParseLevel(c.LogLevel))
	return newApp(ctx, c, logger)
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {

	store, err := openStore(ctx, c.DatabaseDSN, logger)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	hub := notify.NewHub(c.NotifyBuffer, logger)
	engine := merge.NewEngine(store, logger,
		merge.WithChangeHook(hub.OnChangeApplied),
		merge.WithMaxPageSize(c.MaxPageSize),
	)

	var presigner *attachments.Presigner
	if c.AttachmentsEnabled() {
		presigner = attachments.NewPresigner(attachments.Config{
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			Expiry:       c.PresignExpiry,
		})
	} else {
		logger.Warn(ctx, "Attachments disabled, no S3 bucket configured")
	}

	var grpcServer *gs.GRPCServer
	if presigner != nil {
		grpcServer = gs.NewGRPCServer(c.EndpointAddrGRPC, logger, engine, presigner, c.SecretKey)
	} else {
		// a nil *Presigner must not reach the handler as a non-nil interface
		grpcServer = gs.NewGRPCServer(c.EndpointAddrGRPC, logger, engine, nil, c.SecretKey)
	}

	return &App{
		config: c,
		logger: logger,
		store:  store,
		servers: []runner{
			grpcServer,
			ws.NewServer(c.EndpointAddrHTTP, hub, c.SecretKey, logger),
		},
	}, nil
}

// Run serves until ctx is cancelled, a termination signal arrives or one of
// the servers fails. The first server error is returned.
func (app *App) Run(ctx context.Context) error {

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting app...")

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range app.servers {
		g.Go(func() error { return s.Run(gctx) })
	}

	err := g.Wait()
	if cerr := app.store.Close(); cerr != nil {
		app.logger.Error(ctx, "Closing store failed", "error", cerr.Error())
	}

	if err != nil {
		app.logger.Error(ctx, err.Error())
		return err
	}
	app.logger.Info(ctx, "App stopped")
	return nil
}
