package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lodthe/registry-gc/internal/gcrun"
	"github.com/lodthe/registry-gc/internal/gctrigger"
	"github.com/lodthe/registry-gc/internal/gctrigger/dockercli"
	"github.com/lodthe/registry-gc/internal/gctrigger/dockerengine"
	api "github.com/lodthe/registry-gc/pkg/restapi"

	awsconf "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Listen to termination signals.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize config.
	config, err := LoadConfig()
	if err != nil {
		zlog.Fatal().Err(err).Msg("config cannot be loaded")
	}

	// Initialize logger.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if config.LogFormat == PrettyLogFormat {
		zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	lvl, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		zlog.Fatal().Err(err).Msg("invalid log level")
	}

	zlog.Logger = zlog.Logger.Level(lvl)
	logger := zlog.Logger

	// Initialize the run history.
	runRepo := initializeHistory(ctx, config)

	// Create the executor and the gc service.
	executor, closeExecutor := initializeExecutor(config, logger)
	defer closeExecutor()

	gc, err := gctrigger.New(logger, config.GCTrigger(), executor, gctrigger.WithRecorder(runRepo))
	if err != nil {
		zlog.Fatal().Err(err).Msg("gc service cannot be created")
	}

	gcCfg := gc.Config()
	zlog.Info().
		Str("container", gcCfg.Container).
		Str("collector_image", gcCfg.Collector.Image).
		Strs("collector_command", gcCfg.Collector.Command).
		Str("executor", string(config.Executor.Type)).
		Str("success_policy", string(gcCfg.SuccessPolicy)).
		Str("concurrency_policy", string(gcCfg.ConcurrencyPolicy)).
		Msg("gc service has been initialized")

	// Initialize the REST servers.
	router := api.NewRouter(api.RouterConfig{
		AllowedOrigins: config.API.CORSAllowedOrigins,
	}, gc)

	// The sequence takes a few seconds at least, so there is no write timeout.
	srv := &http.Server{
		Addr:              config.API.ListeningAddress,
		Handler:           router,
		ReadTimeout:       20 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var adminSrv *http.Server
	if *config.Admin.Enabled {
		adminSrv = &http.Server{
			Addr:              config.Admin.ListeningAddress,
			Handler:           api.NewAdminRouter(runRepo),
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		zlog.Info().Str("address", srv.Addr).Msg("starting the server")

		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			return err
		}

		return nil
	})

	if adminSrv != nil {
		group.Go(func() error {
			zlog.Info().Str("address", adminSrv.Addr).Msg("starting the admin server")

			err := adminSrv.ListenAndServe()
			if err != nil && err != http.ErrServerClosed {
				return err
			}

			return nil
		})
	}

	// Wait for a termination signal or a listener failure.
	group.Go(func() error {
		<-groupCtx.Done()

		// Let a running sequence finish, otherwise the registry may be left stopped.
		shutdownCtx, shutdown := context.WithTimeout(context.Background(), config.API.ShutdownTimeout)
		defer shutdown()

		zlog.Info().Dur("timeout", config.API.ShutdownTimeout).Msg("shutting down")

		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			zlog.Error().Err(err).Msg("server shutdown failed")
		}

		if adminSrv != nil {
			err = adminSrv.Shutdown(shutdownCtx)
			if err != nil {
				zlog.Error().Err(err).Msg("admin server shutdown failed")
			}
		}

		return nil
	})

	err = group.Wait()
	if err != nil {
		zlog.Error().Err(err).Msg("server listen failed")
	}
}

func initializeExecutor(config *Config, logger zerolog.Logger) (gctrigger.Executor, func()) {
	switch config.Executor.Type {
	case gctrigger.ExecutorDockerCLI:
		exec, err := dockercli.New(logger, config.DockerCLI())
		if err != nil {
			zlog.Fatal().Err(err).Msg("failed to create docker cli executor")
		}

		return exec, func() {}

	case gctrigger.ExecutorDockerEngine:
		exec, err := dockerengine.New(logger, config.DockerEngine())
		if err != nil {
			zlog.Fatal().Err(err).Msg("failed to create docker engine executor")
		}

		return exec, func() {
			err := exec.Close()
			if err != nil {
				zlog.Error().Err(err).Msg("docker engine client cannot be closed")
			}
		}

	default:
		zlog.Fatal().Str("type", string(config.Executor.Type)).Msg("invalid executor type")
	}

	return nil, nil
}

func initializeHistory(ctx context.Context, config *Config) gcrun.Repository {
	if config.History.Type != HistoryTypeDynamoDB {
		return gcrun.NewMemoryRepository(config.History.Capacity)
	}

	// Load AWS credentials.
	var awsOpts []func(*awsconf.LoadOptions) error
	if config.AWS.AccessKeyID != "" {
		// Load AWS config with credentials when AccessKeyID is not empty.
		// Otherwise, we let SDK to pick credentials from available sources automatically.
		awsOpts = append(awsOpts, awsconf.WithCredentialsProvider(config))
	}

	awsOpts = append(awsOpts, awsconf.WithRegion(config.AWS.Region))

	awsConfig, err := awsconf.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load AWS config")
	}

	return gcrun.NewDynamoRepository(dynamodb.NewFromConfig(awsConfig), config.AWS.RunsTableName)
}
