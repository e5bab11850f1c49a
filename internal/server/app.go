// Package server wires the configured store, blob backend and services
// into the REST API and the gRPC health endpoint and runs them together.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/taskkeeper/internal/dbx"
	"github.com/dmitrijs2005/taskkeeper/internal/logging"
	"github.com/dmitrijs2005/taskkeeper/internal/server/blob"
	"github.com/dmitrijs2005/taskkeeper/internal/server/config"
	"github.com/dmitrijs2005/taskkeeper/internal/server/ratelimit"
	"github.com/dmitrijs2005/taskkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/taskkeeper/internal/server/rest"
	"github.com/dmitrijs2005/taskkeeper/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/taskkeeper/internal/server/grpc"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	redis      *redis.Client
	httpServer *rest.Server
	grpcServer *gs.GRPCServer

	cancel context.CancelFunc
	done   chan struct{}
	err    error
	once   sync.Once
}

func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	app := &App{config: cfg, logger: logger, done: make(chan struct{})}

	tx, rm, err := app.openStore(ctx)
	if err != nil {
		return nil, err
	}

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		app.closeResources()
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	var limiter ratelimit.Limiter = ratelimit.Unlimited{}
	if cfg.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		limiter = ratelimit.NewRedisLimiter(app.redis, cfg.LoginRateLimit, cfg.LoginRateWindow, "taskkeeper:login:")
	}

	us := services.NewUserService(tx, rm, cfg)
	ts := services.NewTaskService(tx, rm, blobs, logger.With("module", "tasks"))

	app.httpServer = rest.NewServer(cfg, logger, us, ts, blobs, limiter)
	app.grpcServer = gs.NewGRPCServer(cfg.GRPCAddr, logger)
	return app, nil
}

// openStore selects the in-memory store for MemoryDSN and PostgreSQL
// otherwise, applying migrations before use.
func (app *App) openStore(ctx context.Context) (dbx.Transactor, repomanager.RepositoryManager, error) {
	if app.config.DatabaseDSN == config.MemoryDSN {
		app.logger.Warn(ctx, "using in-memory store, data is lost on exit")
		return dbx.NoTx{}, repomanager.NewInMemoryRepositoryManager(), nil
	}

	db, err := sql.Open("pgx", app.config.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("db migration error: %w", err)
	}

	app.db = db
	return dbx.NewSQLTransactor(db), rm, nil
}

func newBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.BlobBackend {
	case config.BlobBackendLocal, "":
		return blob.NewLocalStore(cfg.UploadDir)
	case config.BlobBackendS3:
		return blob.NewS3Store(ctx, blob.S3Config{
			User:         cfg.S3RootUser,
			Password:     cfg.S3RootPassword,
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
		})
	}
	return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
}

// Start runs the HTTP and gRPC servers in the background. If either fails
// the other is stopped too; Done is closed once both have returned.
func (app *App) Start(ctx context.Context) {
	ctx, app.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	app.logger.Info(ctx, "Starting app...")

	g.Go(func() error { return app.httpServer.Run(gctx) })
	g.Go(func() error { return app.grpcServer.Run(gctx) })

	go func() {
		app.err = g.Wait()
		close(app.done)
	}()
}

func (app *App) Done() <-chan struct{} { return app.done }

// Err returns the first server error once Done is closed.
func (app *App) Err() error {
	select {
	case <-app.done:
		return app.err
	default:
		return nil
	}
}

// Stop shuts both servers down and releases the store connections.
func (app *App) Stop(ctx context.Context) error {
	app.logger.Info(ctx, "Stopping app...")
	app.grpcServer.SetServing(false)
	if app.cancel != nil {
		app.cancel()
	}

	var err error
	if app.cancel != nil {
		select {
		case <-app.done:
			err = app.err
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	return errors.Join(err, app.closeResources())
}

func (app *App) closeResources() error {
	var errs []error
	app.once.Do(func() {
		if app.redis != nil {
			errs = append(errs, app.redis.Close())
		}
		if app.db != nil {
			errs = append(errs, app.db.Close())
		}
	})
	return errors.Join(errs...)
}

// OpenUsers opens the configured store and returns a user service over it
// with a func releasing the connections. The admin CLI uses it to create
// accounts without starting the servers.
func OpenUsers(ctx context.Context, cfg *config.Config, logger logging.Logger) (*services.UserService, func() error, error) {
	app := &App{config: cfg, logger: logger}
	tx, rm, err := app.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return services.NewUserService(tx, rm, cfg), app.closeResources, nil
}
