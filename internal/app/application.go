// Package app wires every component named in SPEC into one lifecycle-managed
// Application: storage, blob, queue, scheduler, adapters, normalizers, the
// derived-state engines, the feed generator, and the HTTP API.
package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tenantsync/engine/internal/adapters/commerce"
	"github.com/tenantsync/engine/internal/adapters/legislative"
	coreservice "github.com/tenantsync/engine/internal/app/core/service"
	"github.com/tenantsync/engine/internal/app/system"
	"github.com/tenantsync/engine/internal/config"
	"github.com/tenantsync/engine/internal/feed"
	"github.com/tenantsync/engine/internal/httpapi"
	"github.com/tenantsync/engine/internal/ingestpipeline"
	commercenorm "github.com/tenantsync/engine/internal/normalize/commerce"
	legislativenorm "github.com/tenantsync/engine/internal/normalize/legislative"
	"github.com/tenantsync/engine/internal/platform/database"
	"github.com/tenantsync/engine/internal/platform/migrations"
	"github.com/tenantsync/engine/internal/queue"
	"github.com/tenantsync/engine/internal/ratelimit"
	"github.com/tenantsync/engine/internal/scheduler"
	"github.com/tenantsync/engine/internal/storage"
	"github.com/tenantsync/engine/internal/storage/memory"
	"github.com/tenantsync/engine/internal/storage/postgres"
	"github.com/tenantsync/engine/pkg/blob"
	"github.com/tenantsync/engine/pkg/logger"
)

// Application bundles every long-running component behind a single
// Start/Stop pair driven by the system.Manager.
type Application struct {
	cfg     *config.Config
	log     *logger.Logger
	db      *sql.DB
	manager *system.Manager
}

// NewPipeline wires just the storage/blob/adapter/normalize/pipeline
// collaborators, without the queue or HTTP server. The batch ingestion CLI
// uses this to run one pass outside the long-running server process.
func NewPipeline(cfg *config.Config) (*ingestpipeline.Pipeline, *logger.Logger, *sql.DB, error) {
	log := logger.New(logger.LoggingConfig{
		Level: cfg.Logging.Level, Format: cfg.Logging.Format,
		Output: cfg.Logging.Output, FilePrefix: cfg.Logging.FilePrefix,
	})

	stores, db, err := buildStores(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	blobStore, err := blob.New(context.Background(), blob.Config{
		Driver: cfg.Blob.Driver, Root: cfg.Blob.Root,
		Bucket: cfg.Blob.Bucket, Region: cfg.Blob.Region, Endpoint: cfg.Blob.Endpoint,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	sourceHTTPClient := ratelimit.NewRateLimitedClient(&http.Client{Timeout: 30 * time.Second}, ratelimit.DefaultConfig())
	commerceAdapter := commerce.New(commerce.Config{
		ClientID: cfg.Source.ClientID, ClientSecret: cfg.Source.ClientSecret,
		Scopes: cfg.Source.ScopesList(), WebhookSecret: cfg.Source.WebhookSecret,
		RedirectURI: cfg.Server.AppBaseURL + "/callback",
	}, sourceHTTPClient)
	legislativeAdapter := legislative.New(legislative.Config{ResourceURLs: defaultLegislativeResources()}, sourceHTTPClient)

	commerceNorm := commercenorm.New(stores.Products, stores.Orders, stores.InventoryLevels, stores.SourceRefs)
	legislativeNorm := legislativenorm.New(legislativenorm.Stores{
		Legislators: stores.Legislators, Bills: stores.Bills, Movements: stores.BillMovements,
		Authors: stores.BillAuthors, VoteEvents: stores.VoteEvents, VoteResults: stores.VoteResults,
		Sessions: stores.Sessions, Attendances: stores.Attendances, SourceRefs: stores.SourceRefs,
	})
	feedGenerator := feed.New(stores.FeedPosts)

	pipeline := &ingestpipeline.Pipeline{
		Stores: stores, Commerce: commerceAdapter, Legislative: legislativeAdapter,
		CommerceNorm: commerceNorm, LegislativeNorm: legislativeNorm,
		Feed: feedGenerator, Blobs: blobStore, Log: log,
	}
	return pipeline, log, db, nil
}

// New builds and wires, but does not start, every component.
func New(cfg *config.Config) (*Application, error) {
	pipeline, log, db, err := NewPipeline(cfg)
	if err != nil {
		return nil, err
	}
	stores := pipeline.Stores
	commerceAdapter := pipeline.Commerce
	legislativeAdapter := pipeline.Legislative
	commerceNorm := pipeline.CommerceNorm
	legislativeNorm := pipeline.LegislativeNorm
	feedGenerator := pipeline.Feed
	blobStore := pipeline.Blobs

	jobQueue := buildQueue(cfg, log, stores)
	pipeline.Queue = jobQueue
	tracer := coreservice.NewLoggingTracer(log)
	registerQueueHandlers(jobQueue, pipeline, log, tracer)

	var schedulerSvc system.Service = system.NoopService{ServiceName: "scheduler"}
	if cfg.Scheduler.Enabled {
		schedulerSvc = scheduler.New(log, jobQueue, stores.ScheduleLastFire, nil)
	}

	limiter := ratelimit.New(ratelimit.DefaultConfig())
	verifyJWT := buildJWTVerifier(cfg.Security.JWTSecret)

	httpServer := httpapi.NewServer(httpapi.Deps{
		Config: cfg, Log: log, Stores: stores, Commerce: commerceAdapter, Legislative: legislativeAdapter,
		CommerceNorm: commerceNorm, LegislativeNorm: legislativeNorm, Feed: feedGenerator,
		Blobs: blobStore, Limiter: limiter, VerifyJWT: verifyJWT,
	})

	manager := system.NewManager(log)
	manager.SetObservationHooks(coreservice.ObservationHooks{
		OnComplete: func(_ context.Context, meta map[string]string, err error, d time.Duration) {
			entry := log.WithField("service", meta["service"]).WithField("phase", meta["phase"]).WithField("duration_ms", d.Milliseconds())
			if err != nil {
				entry.WithError(err).Warn("service lifecycle transition failed")
				return
			}
			entry.Debug("service lifecycle transition complete")
		},
	})
	manager.Register(queueService{jobQueue})
	manager.Register(schedulerSvc)
	manager.Register(httpServer)

	var providers []system.DescriptorProvider
	for _, svc := range manager.Services() {
		if p, ok := svc.(system.DescriptorProvider); ok {
			providers = append(providers, p)
		}
	}
	for _, d := range system.CollectDescriptors(providers) {
		log.WithField("layer", d.Layer).WithField("capabilities", d.Capabilities).Info(d.Name)
	}

	return &Application{cfg: cfg, log: log, db: db, manager: manager}, nil
}

func (a *Application) Start(ctx context.Context) error { return a.manager.Start(ctx) }

func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	if a.db != nil {
		_ = a.db.Close()
	}
	return err
}

func (a *Application) Log() *logger.Logger { return a.log }

func buildStores(cfg *config.Config) (storage.Stores, *sql.DB, error) {
	if cfg.Database.DSN == "" {
		return memory.New().AsStores(), nil, nil
	}
	db, err := database.Open(context.Background(), cfg.Database.DSN)
	if err != nil {
		return storage.Stores{}, nil, err
	}
	database.ConfigurePool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if cfg.Database.MigrateOnStart {
		if err := migrations.Apply(db); err != nil {
			db.Close()
			return storage.Stores{}, nil, err
		}
	}
	return postgres.AsStores(db), db, nil
}

func buildQueue(cfg *config.Config, log *logger.Logger, stores storage.Stores) queue.Queue {
	if cfg.Redis.URL == "" {
		return queue.NewMemoryQueue(log, stores.DeadLetters, 4)
	}
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return queue.NewMemoryQueue(log, stores.DeadLetters, 4)
	}
	client := redis.NewClient(opts)
	return queue.NewRedisQueue(client, log, stores.DeadLetters, 4)
}

// registerQueueHandlers binds each stage of the ingest pipeline to its own
// queue (§4.2, §4.3): a fetch enqueues a "normalize" job per SourceRef,
// normalization enqueues "metrics"/"feed" jobs per affected entity, and the
// scheduler drives the two bulk jobs directly. Handlers must be idempotent
// per §3: re-running an unchanged fetch is a no-op because of the checksum
// dedupe in ingestpipeline.Pipeline. Each handler runs inside a tracer span
// named after its job so a stage's failures and latency are attributable.
func registerQueueHandlers(q queue.Queue, p *ingestpipeline.Pipeline, log *logger.Logger, tracer coreservice.Tracer) {
	traced := func(jobName string, h queue.Handler) queue.Handler {
		return func(ctx context.Context, job queue.Job) error {
			ctx, done := tracer.StartSpan(ctx, jobName, map[string]string{"queue": job.Queue})
			err := h(ctx, job)
			done(err)
			return err
		}
	}

	q.RegisterHandler(queue.Ingest, "ingest:all-sources", traced("ingest:all-sources", func(ctx context.Context, job queue.Job) error {
		enqueued, errored, err := p.IngestAllSources(ctx)
		if log != nil {
			log.WithField("enqueued", enqueued).WithField("errored", errored).Info("ingest:all-sources complete")
		}
		return err
	}))
	q.RegisterHandler(queue.Normalize, ingestpipeline.JobNormalizeSourceRef, traced(ingestpipeline.JobNormalizeSourceRef, func(ctx context.Context, job queue.Job) error {
		var payload ingestpipeline.NormalizeJobPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return err
		}
		return p.NormalizeSourceRef(ctx, payload)
	}))
	q.RegisterHandler(queue.Feed, ingestpipeline.JobEmitFeedTransition, traced(ingestpipeline.JobEmitFeedTransition, func(ctx context.Context, job queue.Job) error {
		var payload ingestpipeline.FeedJobPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return err
		}
		return p.EmitFeedTransition(ctx, payload)
	}))
	q.RegisterHandler(queue.Metrics, ingestpipeline.JobRecomputeLegislatorMetric, traced(ingestpipeline.JobRecomputeLegislatorMetric, func(ctx context.Context, job queue.Job) error {
		var payload ingestpipeline.MetricsJobPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return err
		}
		return p.RecomputeLegislatorMetric(ctx, payload.TenantID, payload.LegislatorID, payload.Period)
	}))
	q.RegisterHandler(queue.Metrics, "metrics:recompute-all", traced("metrics:recompute-all", func(ctx context.Context, job queue.Job) error {
		count, err := p.RecomputeAllMetrics(ctx)
		if log != nil {
			log.WithField("legislators", count).Info("metrics:recompute-all complete")
		}
		return err
	}))
}

func buildJWTVerifier(secret string) func(string) (string, error) {
	if secret == "" {
		return nil
	}
	key := []byte(secret)
	return func(tokenStr string) (string, error) {
		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return key, nil
		})
		if err != nil {
			return "", err
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			return "", fmt.Errorf("invalid JWT claims")
		}
		tenantID, _ := claims["tenant_id"].(string)
		if tenantID == "" {
			return "", fmt.Errorf("JWT missing tenant_id claim")
		}
		return tenantID, nil
	}
}

// defaultLegislativeResources is the compiled-in CKAN/CSV resource map. It
// is empty and no config setting overrides it.
func defaultLegislativeResources() map[string]string {
	return map[string]string{}
}

// queueService adapts queue.Queue to system.Service so the manager can start
// and stop it alongside the scheduler and HTTP server.
type queueService struct{ q queue.Queue }

func (s queueService) Name() string                    { return "queue" }
func (s queueService) Start(ctx context.Context) error { return s.q.Start(ctx) }
func (s queueService) Stop(ctx context.Context) error  { return s.q.Stop(ctx) }

// Descriptor reports the queue as the data layer's durable job store.
func (s queueService) Descriptor() coreservice.Descriptor {
	return coreservice.Descriptor{Name: s.Name(), Domain: "tenantsync", Layer: coreservice.LayerData}.
		WithCapabilities("ingest", "normalize", "metrics", "feed")
}
