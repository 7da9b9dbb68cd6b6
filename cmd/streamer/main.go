package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/assetstream/streamer/internal/asset"
	"github.com/assetstream/streamer/internal/component"
	"github.com/assetstream/streamer/internal/config"
	"github.com/assetstream/streamer/internal/core/ecs"
	"github.com/assetstream/streamer/internal/core/event"
	coresys "github.com/assetstream/streamer/internal/core/system"
	"github.com/assetstream/streamer/internal/data"
	"github.com/assetstream/streamer/internal/model"
	"github.com/assetstream/streamer/internal/persist"
	"github.com/assetstream/streamer/internal/scripting"
	"github.com/assetstream/streamer/internal/system"
	"github.com/assetstream/streamer/internal/watch"
	"github.com/assetstream/streamer/internal/workerpool"
	"github.com/pkg/profile"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfgPath := flag.String("config", "config/streamer.toml", "path to the TOML config")
	profileMode := flag.String("profile", "", "write a cpu or mem profile to the working directory")
	flag.Parse()
	if p := os.Getenv(config.EnvPath); p != "" {
		*cfgPath = p
	}

	switch *profileMode {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.Quiet).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.Quiet).Stop()
	default:
		return fmt.Errorf("unknown -profile mode %q", *profileMode)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	var journal *persist.Journal
	if cfg.Journal.Enabled {
		j, closeDB, err := openJournal(cfg.Journal, log)
		if err != nil {
			return err
		}
		journal = j
		defer func() {
			err = multierr.Combine(err, journal.Close())
			closeDB()
		}()
	}

	pool := workerpool.New(cfg.Loader.Workers, log.Named("pool"))
	queue := asset.NewMultithreadedQueue(pool, log.Named("loader"),
		asset.WithResultBuffer(cfg.Loader.ResultBuffer),
		asset.WithDecodeTimeout(cfg.Loader.DecodeTimeout))
	defer func() {
		err = multierr.Combine(err, queue.Close())
		pool.Close()
	}()

	res := model.NewResources()
	bus := event.NewBus()
	engine := scripting.NewEngine(log.Named("lua"))
	defer engine.Close()

	world := ecs.NewWorld()
	renderModels := ecs.NewStore[component.RenderModel](world.Registry())

	var recorder system.LoadRecorder
	if journal != nil {
		recorder = journal
	}
	streaming := system.NewStreamingSystem(queue, res, bus, engine, recorder, log.Named("stream"))
	render := system.NewRenderSystem(renderModels, res)

	engine.SetRequester(func(path string, meshIndex int) error {
		system.SpawnModel(world, renderModels, streaming, filepath.Join(cfg.Assets.Root, path), meshIndex, filepath.Base(path))
		return nil
	})

	event.Subscribe(bus, func(e event.ModelFailed) {
		hidden := 0
		renderModels.Each(func(_ ecs.EntityID, rm *component.RenderModel) {
			if rm.Model == e.Model && rm.Visible {
				rm.Visible = false
				hidden++
			}
		})
		log.Debug("hid entities of failed model", zap.String("path", e.Path), zap.Int("entities", hidden))
	})

	runner := coresys.NewRunner()
	runner.Register(streaming)
	runner.Register(system.NewEventDispatchSystem(bus))
	runner.Register(render)
	runner.Register(system.NewCleanupSystem(world, renderModels, streaming, log.Named("cleanup")))

	if cfg.Watch.Enabled {
		w, err := watch.New(cfg.Watch.Debounce, log.Named("watch"), cfg.Assets.Root)
		if err != nil {
			return fmt.Errorf("watch %s: %w", cfg.Assets.Root, err)
		}
		defer w.Close()
		runner.Register(system.NewReloadSystem(w, streaming, log.Named("reload")))
	}

	if n, err := engine.LoadDir(filepath.Join(cfg.Assets.Root, cfg.Assets.Scripts)); err != nil {
		return fmt.Errorf("load startup scripts: %w", err)
	} else if n > 0 {
		log.Info("startup scripts loaded", zap.Int("count", n))
	}

	if err := spawnManifest(filepath.Join(cfg.Assets.Root, cfg.Assets.Manifest), world, renderModels, streaming, log); err != nil {
		return err
	}

	log.Info("streamer running",
		zap.Int("workers", pool.Size()),
		zap.Duration("tick", cfg.Tick.Rate),
		zap.Bool("watch", cfg.Watch.Enabled),
		zap.Bool("journal", journal != nil))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Tick.Rate)
	defer ticker.Stop()

	var statsC <-chan time.Time
	if cfg.Tick.StatsEvery > 0 {
		stats := time.NewTicker(cfg.Tick.StatsEvery)
		defer stats.Stop()
		statsC = stats.C
	}

	last := time.Now()
	for {
		select {
		case now := <-ticker.C:
			runner.Tick(now.Sub(last))
			last = now
		case <-statsC:
			st := streaming.Stats()
			f := render.Last()
			log.Info("stats",
				zap.Int("entities", f.Entities),
				zap.Int("draws", f.DrawCalls),
				zap.Int("triangles", f.Triangles),
				zap.Int("loading", f.Loading),
				zap.Int("pending", streaming.Pending()),
				zap.Int("loaded", st.Loaded),
				zap.Int("failed", st.Failed),
				zap.Int("reloaded", st.Reloaded),
				zap.Int("models", res.Models.Len()),
				zap.Int("meshes", res.Meshes.Len()))
		case sig := <-shutdownCh:
			log.Info("shutting down", zap.String("signal", sig.String()))
			return nil
		}
	}
}

func spawnManifest(path string, world *ecs.World, store *ecs.PtrComponentStore[component.RenderModel], streaming *system.StreamingSystem, log *zap.Logger) error {
	m, err := data.LoadManifest(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn("no scene manifest", zap.String("path", path))
			return nil
		}
		return err
	}
	for _, script := range m.Scripts {
		streaming.RequestScript(m.Resolve(script))
	}
	for _, e := range m.Models {
		for i := 0; i < e.Instances; i++ {
			system.SpawnModel(world, store, streaming, m.Resolve(e.Path), e.MeshIndex, e.Label)
		}
	}
	log.Info("scene manifest loaded",
		zap.String("path", path),
		zap.Int("models", len(m.Models)),
		zap.Int("entities", m.InstanceCount()),
		zap.Int("scripts", len(m.Scripts)))
	return nil
}

func openJournal(cfg config.JournalConfig, log *zap.Logger) (*persist.Journal, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg, log.Named("db"))
	if err != nil {
		return nil, nil, fmt.Errorf("open journal db: %w", err)
	}
	version, err := persist.RunMigrations(ctx, db.Pool)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Info("journal ready", zap.Int64("schema_version", version))
	return persist.NewJournal(persist.NewPgSink(db), cfg.Buffer, log.Named("journal")), db.Close, nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
