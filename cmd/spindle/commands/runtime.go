package commands

import (
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/skeinworks/spindle/config"
	"github.com/skeinworks/spindle/db"
	"github.com/skeinworks/spindle/errors"
	"github.com/skeinworks/spindle/ingest"
	"github.com/skeinworks/spindle/logger"
	"github.com/skeinworks/spindle/schedule"
	"github.com/skeinworks/spindle/spec"
)

// Flags shared across commands, bound by the root command.
var (
	Verbose    bool
	ConfigFile string
)

// runtime holds the wired components every command starts from.
type runtime struct {
	cfg *config.Config
	log *zap.SugaredLogger
	db  *sql.DB

	jobs      *schedule.Store
	execs     *schedule.ExecutionStore
	specs     *spec.Store
	records   *ingest.RecordStore
	registry  *schedule.Registry
	scheduler *schedule.Scheduler
}

// newRuntime loads config, opens and migrates the database, and wires the
// scheduler with the spider handlers registered.
func newRuntime() (*runtime, error) {
	var cfg *config.Config
	var err error
	if ConfigFile != "" {
		cfg, err = config.LoadFromFile(ConfigFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}

	log, err := logger.New(logger.Options{Verbose: Verbose})
	if err != nil {
		return nil, errors.Wrap(err, "failed to build logger")
	}

	conn, err := db.Open(cfg.Database.Path, log)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(conn, log); err != nil {
		conn.Close()
		return nil, err
	}

	r := &runtime{
		cfg:      cfg,
		log:      log,
		db:       conn,
		jobs:     schedule.NewStore(conn),
		execs:    schedule.NewExecutionStore(conn),
		specs:    spec.NewStore(conn),
		records:  ingest.NewRecordStore(conn),
		registry: schedule.NewRegistry(),
	}

	fetcher := ingest.NewFetcher(cfg.Fetcher, log)
	ingest.NewHandlers(fetcher, r.records, log).Register(r.registry)

	dispatcher := schedule.NewDispatcher(r.jobs, r.execs, r.registry, spec.NewResolver(r.specs), log)
	r.scheduler = schedule.NewScheduler(r.jobs, r.registry, dispatcher, schedulerOptions(cfg), log)

	return r, nil
}

func schedulerOptions(cfg *config.Config) schedule.Options {
	return schedule.Options{
		TickInterval:        tickInterval(cfg),
		DefaultMaxInstances: cfg.Scheduler.DefaultMaxInstances,
		DefaultQueueDepth:   cfg.Scheduler.DefaultQueueDepth,
	}
}

func tickInterval(cfg *config.Config) time.Duration {
	if cfg.Scheduler.TickerIntervalSeconds <= 0 {
		return time.Second
	}
	return time.Duration(cfg.Scheduler.TickerIntervalSeconds) * time.Second
}

func (r *runtime) Close() {
	if err := r.db.Close(); err != nil {
		r.log.Warnw("Failed to close database", "error", err)
	}
}
