// Command calibrate reports the lattice spacing and particle mass that put a
// resting lattice at the configured rest density.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/pthm-cable/sph/config"
	"github.com/pthm-cable/sph/scene"
)

func main() {
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	spacing := flag.Float64("spacing", 0, "Lattice spacing to calibrate mass for (0 = particles.spacing or h/2)")
	out := flag.String("out", "", "Write a config with the calibrated mass and spacing to this path")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(*configPath, *spacing, *out); err != nil {
		slog.Error("calibration failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, spacing float64, out string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	c, err := cfg.Coefficients()
	if err != nil {
		return err
	}

	if spacing == 0 {
		spacing = cfg.Particles.Spacing
	}
	if spacing == 0 {
		spacing = float64(c.H) / 2
	}

	fmt.Printf("h=%.6g mass=%.6g rest_density=%.6g\n", c.H, c.M, c.P0)
	fmt.Printf("self density: %.6g\n", c.SelfDensity())
	fmt.Printf("lattice density at spacing %.6g: %.6g\n", spacing, scene.LatticeDensity(&c, float32(spacing)))

	mass, err := scene.CalibrateMass(&c, float32(spacing))
	if err != nil {
		return err
	}
	fmt.Printf("mass for rest density at spacing %.6g: %.6g\n", spacing, mass)
	cfg.Fluid.Mass = float64(mass)
	cfg.Particles.Spacing = spacing

	if rest, err := scene.CalibrateSpacing(&c); err != nil {
		fmt.Printf("spacing for current mass: %v\n", err)
	} else {
		fmt.Printf("spacing for rest density at mass %.6g: %.6g\n", c.M, rest)
	}

	if out == "" {
		return nil
	}
	if err := cfg.Refresh(); err != nil {
		return err
	}
	if err := cfg.WriteYAML(out); err != nil {
		return err
	}
	slog.Info("calibrated config written", "path", out, "mass", mass, "spacing", spacing)
	return nil
}
