package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"cellseg/pkg/config"
	"cellseg/pkg/pipeline"
)

func main() {
	// Parse command line arguments
	inputDir := flag.String("input", "", "Directory containing <position>_<channel>_t<time> frame images")
	configPath := flag.String("config", "cellseg.yaml", "Path to the YAML configuration file")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file to -config and exit")
	outputDir := flag.String("output", "", "Directory to write results to (overrides output.directory)")
	numCores := flag.Int("cores", 0, "Number of frames to segment concurrently (overrides processing.numCores)")
	database := flag.String("db", "", "SQLite file to record the run in (overrides output.database)")
	saveIntermediary := flag.Bool("save-intermediary", false, "Save label masks and background plots")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write default configuration: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	// Validate inputs
	if *inputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *outputDir != "" {
		cfg.Output.Directory = *outputDir
	}
	if *numCores > 0 {
		cfg.Processing.NumCores = *numCores
	}
	if *database != "" {
		cfg.Output.Database = *database
	}
	if *saveIntermediary {
		cfg.Output.SaveIntermediaryResults = true
	}

	p, err := pipeline.New(&pipeline.Params{InputDir: *inputDir, Config: cfg})
	if err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	fmt.Println("Starting cell segmentation...")
	startTime := time.Now()
	res, err := p.Process()
	if err != nil {
		log.Fatalf("Processing failed: %v", err)
	}
	processingTime := time.Since(startTime)

	fmt.Printf("\nProcessing completed successfully in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Frames segmented: %d\n", len(res.Masks))
	fmt.Printf("Cells detected: %d\n", len(res.Detections))
	for _, bg := range res.Background {
		fmt.Printf("Light source levels, position %q channel %s: %.4f\n", bg.Position, bg.Channel, bg.Levels())
	}
	if res.RunID != "" {
		fmt.Printf("Run recorded as %s\n", res.RunID)
	}
	fmt.Printf("Results saved to: %s\n", cfg.Output.Directory)
}
