// Package server initializes and runs the account directory server.
// It wires the cache cluster, the two backing stores, the external asset
// sinks, dynamic configuration, and the metrics endpoint, and handles
// graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/uber-go/tally/v4"
	promreporter "github.com/uber-go/tally/v4/prometheus"

	"github.com/securemsg/accountdir/internal/accounts"
	"github.com/securemsg/accountdir/internal/accounts/migrations"
	"github.com/securemsg/accountdir/internal/assets"
	"github.com/securemsg/accountdir/internal/dynconfig"
	"github.com/securemsg/accountdir/internal/experiment"
	"github.com/securemsg/accountdir/internal/logging"
	"github.com/securemsg/accountdir/internal/server/config"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	manager *accounts.AccountsManager
	dynamic *dynconfig.Manager

	metricsHandler http.Handler
	scopeCloser    io.Closer
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	ctx := context.Background()

	dynamic, err := dynconfig.NewManager(c.DynamicConfigPath, c.DynamicConfigReloadInterval, logger)
	if err != nil {
		return nil, fmt.Errorf("dynamic config init error: %w", err)
	}

	db, err := openDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	cacheClient := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: c.RedisAddrs})

	awsCfg, err := loadAWSConfig(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("aws config error: %w", err)
	}

	dynamoClient := dynamodb.NewFromConfig(awsCfg, withDynamoEndpoint(c))
	sqsClient := sqs.NewFromConfig(awsCfg, withSQSEndpoint(c))
	s3Client := s3.NewFromConfig(awsCfg, withS3Endpoint(c))

	registry := prometheus.NewRegistry()
	reporter := promreporter.NewReporter(promreporter.Options{Registerer: registry})
	scope, closer := tally.NewRootScope(tally.ScopeOptions{
		CachedReporter: reporter,
		Separator:      promreporter.DefaultSeparator,
	}, time.Second)

	manager := accounts.NewAccountsManager(accounts.ManagerOptions{
		Legacy:      accounts.NewPostgresStore(db),
		Target:      accounts.NewDynamoDBStore(dynamoClient, c.AccountsTable, c.NumbersTable),
		Cache:       accounts.NewCache(cacheClient, scope, logger),
		Usernames:   assets.NewUsernamesRepository(db),
		Directory:   assets.NewDirectoryQueue(sqsClient, c.DirectoryQueueURL),
		Profiles:    assets.NewProfilesRepository(db),
		Keys:        assets.NewKeysStore(dynamoClient, c.KeysTable),
		Messages:    assets.NewMessagesRepository(db),
		Storage:     assets.NewSecureStorageClient(s3Client, c.StorageBucket),
		Backup:      assets.NewSecureBackupClient(s3Client, c.BackupBucket),
		Config:      dynamic,
		Experiments: experiment.NewEnrollmentManager(dynamic),
		Scope:       scope,
		Logger:      logger,
	})

	return &App{
		config:         c,
		logger:         logger,
		manager:        manager,
		dynamic:        dynamic,
		metricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		scopeCloser:    closer,
	}, nil
}

// Manager exposes the wired facade to embedding callers.
func (app *App) Manager() *accounts.AccountsManager {
	return app.manager
}

func openDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("migration dialect error: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return db, nil
}

func loadAWSConfig(ctx context.Context, c *config.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(c.AWSRegion),
	}

	// Static credentials serve local stacks; production relies on the
	// default chain.
	if c.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AWSAccessKeyID, c.AWSSecretAccessKey, "")))
	}

	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

func withDynamoEndpoint(c *config.Config) func(*dynamodb.Options) {
	return func(o *dynamodb.Options) {
		if c.AWSEndpoint != "" {
			o.BaseEndpoint = aws.String(c.AWSEndpoint)
		}
	}
}

func withSQSEndpoint(c *config.Config) func(*sqs.Options) {
	return func(o *sqs.Options) {
		if c.AWSEndpoint != "" {
			o.BaseEndpoint = aws.String(c.AWSEndpoint)
		}
	}
}

func withS3Endpoint(c *config.Config) func(*s3.Options) {
	return func(o *s3.Options) {
		if c.AWSEndpoint != "" {
			o.BaseEndpoint = aws.String(c.AWSEndpoint)
			o.UsePathStyle = true
		}
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startMetricsServer(ctx context.Context, cancelFunc context.CancelFunc) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", app.metricsHandler)

	srv := &http.Server{Addr: app.config.MetricsAddr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.dynamic.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startMetricsServer(ctx, cancelFunc)
	}()

	wg.Wait()

	_ = app.scopeCloser.Close()
}
