package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentinela-io/sentinela/internal/config"
	"github.com/sentinela-io/sentinela/internal/controller"
	"github.com/sentinela-io/sentinela/internal/domain/execution"
	"github.com/sentinela-io/sentinela/internal/domain/monitor"
	"github.com/sentinela-io/sentinela/internal/executor"
	"github.com/sentinela-io/sentinela/internal/httpserver"
	"github.com/sentinela-io/sentinela/internal/monitordef"
	"github.com/sentinela-io/sentinela/internal/monitors"
	"github.com/sentinela-io/sentinela/internal/pkg/logger"
	"github.com/sentinela-io/sentinela/internal/plugins"
	"github.com/sentinela-io/sentinela/internal/queue"
	"github.com/sentinela-io/sentinela/internal/registry"
	"github.com/sentinela-io/sentinela/internal/repository/postgres"
	"github.com/sentinela-io/sentinela/internal/services"
	"github.com/sentinela-io/sentinela/migrations"
)

// Process roles selectable on the command line
const (
	RoleController = "controller"
	RoleExecutor   = "executor"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sentinela [controller] [executor]",
		Short: "Sentinela monitoring engine",
		Long: `Sentinela runs user-defined monitors, aggregates the problems they
find into alerts and routes reactions and notifications.

The process takes one or both roles: the controller schedules monitor
runs and janitorial procedures; the executor consumes queued work.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			roles, err := parseRoles(args)
			if err != nil {
				return err
			}
			return run(roles)
		},
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func parseRoles(args []string) (map[string]bool, error) {
	roles := make(map[string]bool)
	for _, arg := range args {
		switch arg {
		case RoleController, RoleExecutor:
			roles[arg] = true
		default:
			return nil, fmt.Errorf("unknown role '%s'", arg)
		}
	}
	return roles, nil
}

func run(roles map[string]bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger.Init(logger.Config{
		Mode:   cfg.Logging.Mode,
		Level:  cfg.Logging.Format,
		Fields: cfg.Logging.Fields,
	})
	log := logger.New(logger.Config{
		Mode:   cfg.Logging.Mode,
		Level:  cfg.Logging.Format,
		Fields: cfg.Logging.Fields,
	})

	db, err := postgres.New(cfg.ApplicationDatabaseDSN, cfg.ApplicationDatabaseSettings)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.RunMigrations(db, migrations.GetFS()); err != nil {
		return err
	}

	pools, err := postgres.NewPools(cfg)
	if err != nil {
		return err
	}
	defer pools.Close()

	monitorRepo := postgres.NewMonitorRepository(db)
	issueRepo := postgres.NewIssueRepository(db)
	alertRepo := postgres.NewAlertRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)
	eventRepo := postgres.NewEventRepository(db)
	variableRepo := postgres.NewVariableRepository(db)
	executionRepo := postgres.NewExecutionRepository(db)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	q, err := queue.New(rootCtx, cfg.ApplicationQueue)
	if err != nil {
		return err
	}

	reg := registry.New(monitorRepo, cfg.MonitorsLoadSchedule, cfg.Location(), log)

	eventService := services.NewEventService(eventRepo, q, reg, cfg.LogAllEvents, log)
	monitorService := services.NewMonitorService(monitorRepo, eventService, log)
	issueService := services.NewIssueService(issueRepo, eventService, log)
	alertService := services.NewAlertService(alertRepo, issueRepo, eventService, log)
	notificationService := services.NewNotificationService(notificationRepo, eventService, log)
	executionService := services.NewExecutionService(executionRepo)
	variableService := services.NewVariableService(variableRepo)

	tools := monitordef.Tools{
		Monitors:  monitorRepo,
		Variables: variableService,
		Databases: pools,
	}
	activePlugins, err := plugins.Activate(cfg.Plugins)
	if err != nil {
		return err
	}
	if err := registerDefinitions(cfg, reg, monitorRepo, executionRepo, tools, activePlugins); err != nil {
		return err
	}

	// The controller role owns initial registration so replicas never race
	// on inserts
	if roles[RoleController] {
		if err := reg.RegisterStoredMonitors(rootCtx, monitorService); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		reg.Run(rootCtx)
	}()

	if err := reg.WaitReady(rootCtx, registry.DefaultReadyTimeout); err != nil {
		stop()
		wg.Wait()
		return err
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		eventService.RunFlusher(rootCtx, cfg.ExecutorSleepDuration())
	}()

	if roles[RoleController] {
		ctrl := controller.New(cfg, reg, monitorService, notificationService, q, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctrl.Run(rootCtx)
		}()
	}

	if roles[RoleExecutor] {
		monitorHandler := executor.NewMonitorHandler(cfg, reg, monitorService, issueService, alertService, eventService, executionService, log)
		reactionHandler := executor.NewReactionHandler(reg, log)
		requestHandler := executor.NewRequestHandler(reg, monitorService, alertService, issueService, log)
		for _, p := range activePlugins {
			requestHandler.RegisterPluginActions(p.Name(), p.Actions())
		}
		exec := executor.New(cfg, q, monitorService, monitorHandler, reactionHandler, requestHandler, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			exec.Run(rootCtx)
		}()
	}

	server := httpserver.New(cfg, reg, q, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Run(rootCtx); err != nil {
			log.ErrorWithErr(err, "HTTP server failed")
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("Shutting down")

	// Shutdown is two-phase: the cancelled context stops intake, then the
	// wait gives in-flight work time to finish
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(cfg.DatabaseCloseTimeoutDuration() + 30*time.Second):
		log.Warn("Shutdown timed out waiting for in-flight work")
	}

	log.Info("Shutdown complete")
	return nil
}

// registerDefinitions fills the registry catalog with the internal
// monitors, the samples when enabled and the active plugins' monitors.
// The configured manifest directories override the compiled-in options
func registerDefinitions(cfg *config.Config, reg *registry.Registry, monitorRepo monitor.Repository, executionRepo execution.Repository, tools monitordef.Tools, active []plugins.Plugin) error {
	internal := monitors.InternalDefinitions(cfg, monitorRepo, executionRepo, tools.Databases)
	if err := registerAll(reg, internal, cfg.InternalMonitorsPath); err != nil {
		return err
	}

	if cfg.LoadSampleMonitors {
		if err := registerAll(reg, monitors.SampleDefinitions(tools), cfg.SampleMonitorsPath); err != nil {
			return err
		}
	}

	for _, p := range active {
		if err := registerAll(reg, p.Definitions(tools), ""); err != nil {
			return err
		}
	}
	return nil
}

// registerAll registers defs, first rebuilding the ones a manifest in dir
// overrides
func registerAll(reg *registry.Registry, defs []*monitordef.Definition, dir string) error {
	if dir != "" {
		overridden, err := monitors.ApplyManifestOverrides(dir, defs)
		if err != nil {
			return err
		}
		defs = overridden
	}
	for _, def := range defs {
		if err := reg.RegisterDefinition(def); err != nil {
			return err
		}
	}
	return nil
}
