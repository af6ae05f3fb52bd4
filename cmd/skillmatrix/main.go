package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/skillmatrix/internal/auth"
	"github.com/gosuda/skillmatrix/internal/config"
	"github.com/gosuda/skillmatrix/internal/conversation"
	"github.com/gosuda/skillmatrix/internal/domain"
	"github.com/gosuda/skillmatrix/internal/llm"
	"github.com/gosuda/skillmatrix/internal/messenger"
	smslack "github.com/gosuda/skillmatrix/internal/messenger/slack"
	"github.com/gosuda/skillmatrix/internal/notify"
	"github.com/gosuda/skillmatrix/internal/prompts"
	"github.com/gosuda/skillmatrix/internal/secrets"
	"github.com/gosuda/skillmatrix/internal/server"
	"github.com/gosuda/skillmatrix/internal/store/dynamo"
	"github.com/gosuda/skillmatrix/internal/store/memory"
	"github.com/gosuda/skillmatrix/internal/store/postgres"
	redisstore "github.com/gosuda/skillmatrix/internal/store/redis"
	"github.com/gosuda/skillmatrix/internal/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogger(cfg.Log)

	var awsCfg aws.Config
	if cfg.NeedsAWS() {
		awsCfg, err = loadAWS(ctx, cfg.AWS.Region)
		if err != nil {
			return err
		}

		// Secrets named by SSM parameter replace their plain-text settings.
		params, paramErr := secrets.NewParamStore(ssm.NewFromConfig(awsCfg))
		if paramErr != nil {
			return paramErr
		}
		if resolveErr := secrets.Resolve(ctx, params,
			secrets.Ref{Param: cfg.LLM.APIKeyParam, Dest: &cfg.LLM.APIKey},
			secrets.Ref{Param: cfg.Admin.APIKeyParam, Dest: &cfg.Admin.APIKey},
		); resolveErr != nil {
			return resolveErr
		}
	}

	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	// Connect to PostgreSQL.
	store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Database.Migrate {
		if migrateErr := store.Migrate(ctx); migrateErr != nil {
			return migrateErr
		}
	}

	checkpoints, closeCheckpoints, err := openCheckpointer(cfg.Checkpoint, store, awsCfg)
	if err != nil {
		return err
	}
	defer closeCheckpoints()

	// Connect to Redis.
	rdb, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	client, err := llm.New(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
	})
	if err != nil {
		return err
	}

	registry, err := prompts.Load(cfg.Conversation.PromptsFile)
	if err != nil {
		return err
	}

	retry := llm.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.LLM.MaxAttempts
	retry.CallTimeout = cfg.LLM.CallTimeout

	engine := conversation.NewEngine(client, registry, checkpoints,
		conversation.WithMaxTransitions(cfg.Conversation.MaxTransitions),
		conversation.WithIrregularityThreshold(cfg.Conversation.IrregularityThreshold),
		conversation.WithRetryPolicy(retry),
		conversation.WithLookups(conversation.StoreLookups{UserSkills: store.UserSkills()}),
	)

	orchOpts := []conversation.OrchestratorOption{
		conversation.WithLocker(rdb.Locker()),
		conversation.WithPublisher(rdb),
	}

	// Completion messages go out as Slack DMs when a bot token is configured.
	var slackMessenger *smslack.SlackMessenger
	if cfg.Slack.BotToken != "" {
		slackMessenger = smslack.NewSlackMessenger(slacklib.New(cfg.Slack.BotToken))
		orchOpts = append(orchOpts, conversation.WithCompletionNotifier(
			notify.New(notify.NewRegistry(slackMessenger), store.Users()),
		))
	}

	orchestrator := conversation.NewOrchestrator(engine, checkpoints,
		conversation.Repositories{
			Chats:         store.Chats(),
			Skills:        store.Skills(),
			Users:         store.Users(),
			UserSkills:    store.UserSkills(),
			Grades:        store.Grades(),
			Notifications: store.Notifications(),
		},
		orchOpts...,
	)

	authSvc := auth.NewService(store.Users(), store.APIKeys(), cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL).
		WithAdminKey(cfg.Admin.APIKey)

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	deps := server.Deps{
		Store:      store,
		Auth:       authSvc,
		Chats:      orchestrator,
		Subscriber: rdb,
	}

	// Escalations are mirrored into a Slack channel when one is configured.
	switch {
	case slackMessenger != nil && cfg.Slack.EscalationChannel != "":
		escalations := messenger.NewRouter(
			store.Notifications(),
			slackMessenger,
			cfg.Slack.EscalationChannel,
			orchestrator.ResumeFromMessenger,
			messenger.WithTimeout(cfg.Slack.EscalationTimeout),
		)
		orchestrator.SetEscalator(escalations)
		deps.Escalations = escalations
		go escalations.StartTimeoutWatcher(ctx)
	case slackMessenger != nil:
		log.Warn().Msg("SKILLMATRIX_SLACK_ESCALATION_CHANNEL not set, escalations stay in the notification inbox")
	}

	// Create HTTP server with all routes wired.
	srv := server.New(ctx, cfg, deps)

	// Start server in background goroutine.
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
			cancel()
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}

func loadAWS(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("aws config: %w", err)
	}
	return awsCfg, nil
}

// openCheckpointer picks the thread state backend. The returned func releases
// backend resources; Postgres checkpoints share the main pool.
func openCheckpointer(cfg config.CheckpointConfig, store *postgres.Store, awsCfg aws.Config) (domain.Checkpointer, func(), error) {
	noop := func() {}

	switch cfg.Backend {
	case config.BackendSQLite:
		cp, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return cp, func() {
			if closeErr := cp.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("close sqlite checkpointer")
			}
		}, nil
	case config.BackendDynamoDB:
		cp, err := dynamo.New(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable)
		if err != nil {
			return nil, nil, err
		}
		return cp, noop, nil
	case config.BackendMemory:
		log.Warn().Msg("memory checkpoint backend: thread state is lost on restart")
		return memory.NewCheckpointer(), noop, nil
	default:
		return store.Checkpoints(), noop, nil
	}
}
