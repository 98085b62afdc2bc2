package bootstrap

import (
	"context"
	"time"

	"triage_server/adapter/in/http"
	"triage_server/adapter/out/graph"
	"triage_server/adapter/out/messaging"
	"triage_server/adapter/out/mongodb"
	"triage_server/adapter/out/multisink"
	"triage_server/adapter/out/persistence"
	"triage_server/adapter/out/provider"
	"triage_server/config"
	"triage_server/core/agent/llm"
	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/core/service/decision"
	"triage_server/core/service/normalize"
	"triage_server/core/service/prompt"
	"triage_server/core/service/taxonomy"
	"triage_server/core/service/triage"
	"triage_server/infra/database"
	"triage_server/pkg/apperr"
	"triage_server/pkg/cache"
	"triage_server/pkg/logger"

	"github.com/jmoiron/sqlx"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

const exampleVersionKey = "taxonomy:examples:version"

type Dependencies struct {
	Config *config.Config
	Log    *logger.Logger

	Redis   *redis.Client
	MongoDB *mongo.Client
	SQLDB   *sqlx.DB
	Neo4j   neo4j.DriverWithContext

	Mailbox    out.MailboxProvider
	Classifier out.ClassificationService
	Cache      out.ExampleCache
	Sink       out.DashboardSink
	Publisher  out.RunPublisher

	Triage    *triage.Orchestrator
	Dashboard *triage.DashboardService
}

// NewDependencies connects every configured backend and assembles the
// services. The returned cleanup closes what was opened.
func NewDependencies(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg, Log: log}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	if cfg.RedisURL != "" {
		client, err := database.NewRedis(ctx, cfg.RedisURL, nil)
		if err != nil {
			return fail(err)
		}
		deps.Redis = client
		closers = append(closers, func() { client.Close() })
		log.Info("Redis connected")
	}

	sink, closeSinks, err := newSink(ctx, cfg, deps, log)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeSinks)
	deps.Sink = sink

	mailbox, err := provider.NewGmailMailbox(ctx, provider.GmailConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RefreshToken: cfg.GoogleRefreshToken,
		User:         cfg.GmailUser,
	})
	if err != nil {
		return fail(err)
	}
	deps.Mailbox = mailbox

	classifier, err := newClassifier(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	deps.Classifier = classifier
	log.Info("Classification backend: %s", classifier.Name())

	if deps.Redis != nil {
		deps.Cache = cache.NewRedisCache(deps.Redis, exampleVersionKey)
		deps.Publisher = messaging.NewRedisPublisher(deps.Redis, cfg.RunStream)
	} else {
		deps.Cache = cache.NewMemoryCache()
		log.Warn("Redis not configured: example cache is process-local and runs execute in-process")
	}

	deps.Triage, deps.Dashboard = newServices(cfg, deps, log)
	return deps, cleanup, nil
}

// newServices builds the triage core from configured adapters.
func newServices(cfg *config.Config, deps *Dependencies, log *logger.Logger) (*triage.Orchestrator, *triage.DashboardService) {
	profile := domain.BasicProfile
	if cfg.ExtendedFields {
		profile = domain.ExtendedProfile
	}

	loader := taxonomy.NewLoader(deps.Mailbox, deps.Cache, taxonomy.Config{
		ProcessedLabel:   cfg.ProcessedLabel,
		ManualLabel:      cfg.ManualLabel,
		ExcludedPrefixes: cfg.ExcludedPrefixes,
		DefaultLabels:    cfg.DefaultLabels,
		CacheTTL:         cfg.ExampleCacheTTL,
	}, log)

	policy := decision.New(decision.Config{
		ManualLabel:            cfg.ManualLabel,
		DeferLabels:            cfg.DeferLabels,
		MarkReadOnApply:        cfg.MarkReadOnApply,
		ArchiveOnApply:         cfg.ArchiveOnApply,
		PreserveUnreadOnManual: cfg.PreserveUnreadOnManual,
		MinConfidence:          cfg.MinConfidence,
	})

	orchestrator := triage.NewOrchestrator(triage.Deps{
		Mailbox:    deps.Mailbox,
		Classifier: deps.Classifier,
		Sink:       deps.Sink,
		Loader:     loader,
		Builder:    prompt.NewBuilder(profile),
		Normalizer: normalize.New(profile, log),
		Policy:     policy,
	}, triage.Config{
		ProcessedLabel: cfg.ProcessedLabel,
		BatchLimit:     cfg.BatchLimit,
		BodyMaxChars:   cfg.BodyMaxChars,
	}, log)

	return orchestrator, triage.NewDashboardService(deps.Sink)
}

func newClassifier(ctx context.Context, cfg *config.Config) (out.ClassificationService, error) {
	timeout := time.Duration(cfg.LLMTimeoutSec) * time.Second
	switch cfg.LLMProvider {
	case config.ProviderVertex:
		return llm.NewVertexClassifier(ctx, llm.VertexConfig{
			ProjectID:   cfg.VertexProjectID,
			Location:    cfg.VertexLocation,
			Model:       cfg.VertexModel,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
			Timeout:     timeout,
		})
	default:
		return llm.NewOpenAIClassifier(llm.OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.LLMModel,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
			Timeout:     timeout,
		}), nil
	}
}

// newSink opens the configured sinks. The first document or relational sink
// in RESULT_SINKS is primary and serves the dashboard; the rest mirror writes.
func newSink(ctx context.Context, cfg *config.Config, deps *Dependencies, log *logger.Logger) (out.DashboardSink, func(), error) {
	var (
		primary out.DashboardSink
		mirrors []out.ResultSink
		opened  []out.ResultSink
	)
	closeAll := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, s := range opened {
			if err := s.Close(closeCtx); err != nil {
				log.WithError(err).Warn("Failed to close result sink")
			}
		}
	}
	add := func(s out.ResultSink) {
		opened = append(opened, s)
		if ds, ok := s.(out.DashboardSink); ok && primary == nil {
			primary = ds
			return
		}
		mirrors = append(mirrors, s)
	}

	for _, name := range cfg.Sinks {
		switch name {
		case config.SinkMongo:
			client, err := mongodb.NewClient(ctx, cfg.MongoDBURL)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			deps.MongoDB = client
			s := mongodb.NewResultSink(client.Database(cfg.MongoDBName))
			if err := s.EnsureIndexes(ctx); err != nil {
				log.WithError(err).Warn("Failed to ensure MongoDB indexes")
			}
			add(s)

		case config.SinkPostgres:
			db, err := database.NewPostgres(ctx, cfg.DatabaseURL, nil)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			deps.SQLDB = db
			s := persistence.NewResultSink(db, cfg.PostgresSchema)
			if err := s.EnsureSchema(ctx); err != nil {
				db.Close()
				closeAll()
				return nil, nil, err
			}
			add(s)

		case config.SinkNeo4j:
			driver, err := graph.NewDriver(ctx, cfg.Neo4jURL, cfg.Neo4jUsername, cfg.Neo4jPassword)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			deps.Neo4j = driver
			s := graph.NewResultSink(driver, cfg.Neo4jDatabase)
			if err := s.EnsureIndexes(ctx); err != nil {
				log.WithError(err).Warn("Failed to ensure Neo4j constraints")
			}
			add(s)
		}
		log.Info("Result sink enabled: %s", name)
	}

	if primary == nil {
		closeAll()
		return nil, nil, apperr.ConfigError("no result sink can serve the dashboard")
	}
	if len(mirrors) == 0 {
		return primary, closeAll, nil
	}
	// multisink.Close closes every sink, so cleanup must not close them again.
	fan := multisink.New(primary, log, mirrors...)
	return fan, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := fan.Close(closeCtx); err != nil {
			log.WithError(err).Warn("Failed to close result sinks")
		}
	}, nil
}

// ReadinessChecks returns a ping per connected backend.
func (d *Dependencies) ReadinessChecks() map[string]http.CheckFunc {
	checks := make(map[string]http.CheckFunc)
	if d.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return d.Redis.Ping(ctx).Err() }
	}
	if d.MongoDB != nil {
		checks["mongodb"] = func(ctx context.Context) error { return d.MongoDB.Ping(ctx, nil) }
	}
	if d.SQLDB != nil {
		checks["postgres"] = d.SQLDB.PingContext
	}
	if d.Neo4j != nil {
		checks["neo4j"] = d.Neo4j.VerifyConnectivity
	}
	return checks
}
