// Command fluidsim runs the SPH fluid simulation headless, logging frame and
// performance statistics and optionally streaming them over a websocket.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/pprof"
	"time"

	"github.com/pthm-cable/sph/config"
	"github.com/pthm-cable/sph/scene"
	"github.com/pthm-cable/sph/sim"
	"github.com/pthm-cable/sph/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	maxFrames := flag.Int64("max-frames", 0, "Stop after N frames (0 = until interrupted)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and the effective config")
	listen := flag.String("listen", "", "Address to serve the websocket stats stream on, e.g. :8080")
	cpuProfile := flag.String("cpuprofile", "", "Write a CPU profile to this file")
	seed := flag.Int64("seed", 0, "Seeding RNG seed (0 = use config)")
	count := flag.Int("count", 0, "Particle count (0 = use config)")
	logStats := flag.Bool("log-stats", true, "Output frame and perf stats via slog")
	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	opts := runOptions{
		configPath: *configPath,
		maxFrames:  *maxFrames,
		outputDir:  *outputDir,
		listen:     *listen,
		cpuProfile: *cpuProfile,
		seed:       *seed,
		count:      *count,
		logStats:   *logStats,
	}
	if err := run(opts); err != nil {
		slog.Error("fluidsim failed", "error", err)
		os.Exit(1)
	}
}

type runOptions struct {
	configPath string
	maxFrames  int64
	outputDir  string
	listen     string
	cpuProfile string
	seed       int64
	count      int
	logStats   bool
}

func run(o runOptions) error {
	if err := config.Init(o.configPath); err != nil {
		return err
	}
	cfg := config.Cfg()
	if o.seed != 0 {
		cfg.Particles.Seed = o.seed
	}
	if o.count > 0 {
		cfg.Particles.Count = o.count
	}
	if err := cfg.Refresh(); err != nil {
		return err
	}

	if o.cpuProfile != "" {
		f, err := os.Create(o.cpuProfile)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	output, err := telemetry.NewOutputManager(o.outputDir)
	if err != nil {
		return err
	}
	defer output.Close()
	if err := output.WriteConfig(cfg); err != nil {
		return err
	}

	perf := telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow)
	particles, err := scene.FromConfig(cfg)
	if err != nil {
		return err
	}
	s, err := sim.NewFromConfig(cfg, particles, perf)
	if err != nil {
		return err
	}
	defer s.Close()

	var stream *telemetry.Stream
	if o.listen != "" {
		stream = telemetry.NewStream()
		defer stream.Close()

		mux := http.NewServeMux()
		mux.Handle("/ws", stream)
		srv := &http.Server{Addr: o.listen, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("stream server stopped", "error", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				slog.Warn("stream server shutdown", "error", err)
			}
		}()
		slog.Info("streaming stats", "addr", o.listen, "path", "/ws")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	slog.Info("starting simulation",
		"particles", len(particles),
		"layout", cfg.Particles.Layout,
		"seed", cfg.Particles.Seed,
		"dt", cfg.Physics.DT,
		"max_frames", o.maxFrames,
	)

	interval := int64(cfg.Telemetry.StatsInterval)
	mass := float32(cfg.Fluid.Mass)
	var sampler telemetry.FrameSampler

	for ctx.Err() == nil {
		if err := s.Step(cfg.Derived.DT32); err != nil {
			return err
		}
		perf.RecordFrame()
		frame := s.Frame()

		if interval > 0 && frame%interval == 0 {
			stats := sampler.Sample(frame, s.SimTime(), s.Particles(), mass, s.FlooredLastFrame())
			perfStats := perf.Stats()
			if o.logStats {
				stats.LogStats()
				perfStats.LogStats()
			}
			if err := output.WriteFrame(stats); err != nil {
				slog.Error("failed to write frame stats", "error", err)
			}
			if err := output.WritePerf(perfStats, frame); err != nil {
				slog.Error("failed to write perf stats", "error", err)
			}
			if stream != nil {
				stream.Broadcast(stats)
			}
		}

		if o.maxFrames > 0 && frame >= o.maxFrames {
			slog.Info("max frames reached", "frame", frame)
			return nil
		}
	}

	slog.Info("interrupted", "frame", s.Frame())
	return nil
}

