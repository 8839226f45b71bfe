// Command mstream runs the change-data-capture and event-routing service:
// it loads a TOML configuration file, registers every declared service
// with the service registry, reconciles persisted jobs against the
// configured connectors, and serves the management API until signalled to
// stop. Exit codes follow spec.md §6: 0 clean shutdown, 1 config/bootstrap
// error, 2 unrecoverable runtime error.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/mstreamio/mstream/internal/api"
	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/jobmanager"
	"github.com/mstreamio/mstream/internal/jobmanager/memstore"
	"github.com/mstreamio/mstream/internal/jobmanager/mongostore"
	"github.com/mstreamio/mstream/internal/jobmanager/pgstore"
	"github.com/mstreamio/mstream/internal/logging"
	"github.com/mstreamio/mstream/internal/mstreamconfig"
	"github.com/mstreamio/mstream/internal/pipeline"
	"github.com/mstreamio/mstream/internal/registry"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", mstreamconfig.DefaultConfigPath, "path to the mstream TOML configuration file")
	flag.Parse()

	cfg, err := mstreamconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bootstrap error:", err)
		return 1
	}

	log := logging.New(logging.Config{Level: "info", Format: "json"})
	if cfg.System != nil && cfg.System.Logs != nil {
		log = logging.New(logging.Config{Level: cfg.System.Logs.Level, Format: cfg.System.Logs.Format})
	}

	reg := registry.New(log)
	registerBuilders(reg)
	for _, svc := range cfg.Services {
		if err := reg.Register(registry.Descriptor{Name: svc.Name, Kind: core.ServiceKind(svc.Kind), Config: svc.Settings}); err != nil {
			log.WithError(err).Error("registering service")
			return 1
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, startupState, err := buildJobStorage(ctx, cfg, reg)
	if err != nil {
		log.WithError(err).Error("building job storage")
		return 1
	}

	builder := pipeline.NewBuilder(reg, log)
	manager := jobmanager.New(builder, store, log)

	tail := api.New(manager, reg, log)
	log.AddHook(tail.Tail())

	scheduler := jobmanager.NewScheduler(manager, log)
	if err := scheduler.ScheduleCheckpointPruning("0 * * * *", 1000); err != nil {
		log.WithError(err).Warn("scheduling checkpoint pruning failed, continuing without it")
	} else {
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
	}

	connectors := make([]core.Connector, len(cfg.Connectors))
	for i, c := range cfg.Connectors {
		connectors[i] = toConnector(c)
	}
	if err := manager.Reconcile(ctx, startupState, connectors); err != nil {
		log.WithError(err).Error("startup reconciliation failed")
		return 1
	}

	srv := &http.Server{Addr: ":8080", Handler: tail}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("management API server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	for _, job := range mustListJobs(ctx, manager, log) {
		if manager.IsRunning(job.ConnectorName) {
			if err := manager.Stop(shutdownCtx, job.ConnectorName); err != nil {
				log.WithError(err).WithField("connector", job.ConnectorName).Error("error stopping job during shutdown")
				return 2
			}
		}
	}
	return 0
}

func mustListJobs(ctx context.Context, m *jobmanager.Manager, log *logging.Logger) []core.Job {
	jobs, err := m.ListJobs(ctx)
	if err != nil {
		log.WithError(err).Warn("listing jobs during shutdown")
		return nil
	}
	return jobs
}

func toConnector(c mstreamconfig.ConnectorConfig) core.Connector {
	schemas := make([]core.SchemaReference, len(c.Schemas))
	for i, s := range c.Schemas {
		schemas[i] = core.SchemaReference{ID: s.ID, ServiceName: s.ServiceName, Resource: s.Resource}
	}
	middlewares := make([]core.ServiceReference, len(c.Middlewares))
	for i, m := range c.Middlewares {
		middlewares[i] = toServiceRef(m)
	}
	sinks := make([]core.ServiceReference, len(c.Sinks))
	for i, s := range c.Sinks {
		sinks[i] = toServiceRef(s)
	}
	return core.Connector{
		Name:              c.Name,
		Source:            toServiceRef(c.Source),
		Schemas:           schemas,
		Middlewares:       middlewares,
		Sinks:             sinks,
		BatchSize:         c.BatchSize,
		IsBatchingEnabled: c.IsBatchingEnabled,
		FailFast:          c.FailFast,
	}
}

func toServiceRef(r mstreamconfig.ServiceRefConfig) core.ServiceReference {
	return core.ServiceReference{
		ServiceName:    r.ServiceName,
		Resource:       r.Resource,
		SchemaID:       r.SchemaID,
		OutputEncoding: core.Encoding(r.OutputEncoding),
	}
}

// buildJobStorage resolves the [system.job_lifecycle] service into a
// concrete Storage backend (Mongo or Postgres), falling back to an
// in-memory store with ForceFromFile when no job_lifecycle block is
// configured, per original_source/src/provision/system.rs::init_job_storage.
func buildJobStorage(ctx context.Context, cfg *mstreamconfig.Config, reg *registry.Registry) (jobmanager.Storage, core.StartupState, error) {
	if cfg.System == nil || cfg.System.JobLifecycle == nil {
		return memstore.New(), core.StartupForceFromFile, nil
	}

	lc := cfg.System.JobLifecycle
	desc, err := reg.ServiceDefinition(lc.ServiceName)
	if err != nil {
		return nil, "", err
	}

	startupState := core.StartupState(lc.StartupState)
	if startupState == "" {
		startupState = core.StartupSeedFromFile
	}

	switch desc.Kind {
	case core.ServiceKindMongoDB:
		client, err := reg.MongoDBClient(ctx, lc.ServiceName)
		if err != nil {
			return nil, "", err
		}
		mc := client.(*mongo.Client)
		store := mongostore.New(mc.Database(settingString(desc, "db_name")))
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, "", err
		}
		return store, startupState, nil

	case core.ServiceKindPostgres:
		client, err := reg.PostgresClient(ctx, lc.ServiceName)
		if err != nil {
			return nil, "", err
		}
		db := client.(*sqlx.DB)
		if err := pgstore.Migrate(db.DB); err != nil {
			return nil, "", err
		}
		return pgstore.New(db), startupState, nil

	default:
		return memstore.New(), core.StartupForceFromFile, nil
	}
}

func settingString(desc registry.Descriptor, key string) string {
	settings, ok := desc.Config.(map[string]any)
	if !ok {
		return ""
	}
	v, _ := settings[key].(string)
	return v
}

// registerBuilders installs the concrete-client builders pipeline's build
// steps expect for each ServiceKind, per internal/pipeline's package doc.
func registerBuilders(reg *registry.Registry) {
	reg.RegisterBuilder(core.ServiceKindMongoDB, buildMongoClient)
	reg.RegisterBuilder(core.ServiceKindHTTP, buildHTTPClient)
	reg.RegisterBuilder(core.ServiceKindKafka, buildKafkaClient)
	reg.RegisterBuilder(core.ServiceKindPubSub, buildGCPClients)
	reg.RegisterBuilder(core.ServiceKindUDF, buildUDFSource)
	reg.RegisterBuilder(core.ServiceKindPostgres, buildPostgresClient)
}

func buildMongoClient(ctx context.Context, d registry.Descriptor) (any, error) {
	uri := settingString(d, "connection_string")
	return mongo.Connect(ctx, options.Client().ApplyURI(uri))
}

func buildHTTPClient(ctx context.Context, d registry.Descriptor) (any, error) {
	return &http.Client{Timeout: 30 * time.Second}, nil
}

func buildKafkaClient(ctx context.Context, d registry.Descriptor) (any, error) {
	settings, _ := d.Config.(map[string]any)
	brokers := []string{"localhost:9092"}
	if raw, ok := settings["brokers"].([]any); ok {
		brokers = brokers[:0]
		for _, b := range raw {
			if s, ok := b.(string); ok {
				brokers = append(brokers, s)
			}
		}
	}
	return kgo.NewClient(kgo.SeedBrokers(brokers...))
}

func buildGCPClients(ctx context.Context, d registry.Descriptor) (any, error) {
	projectID := settingString(d, "project_id")
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	schemaClient, err := pubsub.NewSchemaClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &pipeline.GCPClients{Client: client, Schema: schemaClient, ProjectID: projectID}, nil
}

func buildUDFSource(ctx context.Context, d registry.Descriptor) (any, error) {
	path := settingString(d, "script_path")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func buildPostgresClient(ctx context.Context, d registry.Descriptor) (any, error) {
	dsn := settingString(d, "connection_string")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return sqlx.NewDb(db, "postgres"), nil
}
