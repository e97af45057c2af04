package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dustin/go-humanize"

	"tomoproj/pkg/config"
	"tomoproj/pkg/logging"
	"tomoproj/pkg/reconstruction"
)

func main() {
	configPath := flag.String("config", "tomoproj.yaml", "Configuration file (.yaml or .toml)")
	outputDir := flag.String("output", "", "Output directory (overrides the configuration)")
	workers := flag.Int("workers", -1, "Number of concurrent workers, 0 for all cores (overrides the configuration)")
	model := flag.String("model", "", "Projector model: siddon, improved-siddon or orthogonal")
	rays := flag.Int("rays", 0, "Rays per LOR: 1, 3 or 5")
	writeConfig := flag.String("write-config", "", "Write the default configuration to this file and exit")
	extractSlices := flag.Bool("extract-slices", false, "Extract JPEG slices of the sensitivity and ratio images")
	verbose := flag.Bool("verbose", false, "Print debug messages")
	flag.Parse()

	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *writeConfig)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *workers >= 0 {
		cfg.Projection.NumCores = *workers
	}
	if *model != "" {
		cfg.Projection.Model = *model
	}
	if *rays > 0 {
		cfg.Projection.RaysPerLOR = *rays
	}
	if *extractSlices {
		cfg.Output.ExtractSlices = true
	}
	if *verbose {
		cfg.Output.Verbose = true
	}

	logging.SetLogMode(cfg.LogMode())
	cfg.Logging.SetLogger()
	defer logging.Shutdown()

	runner, err := reconstruction.NewRunner(cfg)
	if err != nil {
		logging.Criticalf("%v", err)
		os.Exit(1)
	}
	if err := runner.Process(); err != nil {
		logging.Criticalf("Projection failed: %v", err)
		logging.Shutdown()
		os.Exit(1)
	}

	s := runner.Summary()
	fmt.Printf("\nProjection completed in %.2f seconds\n", s.Duration.Seconds())
	fmt.Printf("=======================================\n")
	fmt.Printf("LORs:                 %s\n", humanize.Comma(int64(s.LORs)))
	fmt.Printf("Projected:            %s\n", humanize.Comma(int64(s.Projected)))
	fmt.Printf("Degenerate:           %s\n", humanize.Comma(int64(s.Degenerate)))
	fmt.Printf("Outside FOV:          %s\n", humanize.Comma(int64(s.OutsideFOV)))
	fmt.Printf("Zero measurement:     %s\n", humanize.Comma(int64(s.ZeroMeasurement)))
	fmt.Printf("Voxels touched:       %s\n", humanize.Comma(int64(s.VoxelsTouched)))
	fmt.Printf("Sensitivity mean/std/max: %.4g / %.4g / %.4g\n", s.SummMean, s.SummStd, s.SummMax)
	fmt.Printf("Ratio total:          %.6g\n", s.RHSTotal)

	fmt.Println("\nFiles written:")
	for _, path := range runner.Written() {
		fmt.Printf("- %s\n", path)
	}
}
