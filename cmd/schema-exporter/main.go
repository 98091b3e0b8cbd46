// Command schema-exporter writes a JSON Schema for every registered
// stormbridge component and checks component configs against them.
package main

import (
	"flag"
	"log"
	"os"
)

func main() {
	outDir := flag.String("out", "./schemas", "Output directory for schemas")
	index := flag.String("index", "./schemas/index.yaml", "Output path for the component index, empty to skip")
	check := flag.String("check", "", "Config file whose component configs are validated instead of exporting")
	flag.Parse()

	registry, err := newRegistry()
	if err != nil {
		log.Fatalf("Failed to register components: %v", err)
	}

	if *check != "" {
		problems, err := checkConfigFile(registry, *check)
		if err != nil {
			log.Fatalf("Check failed: %v", err)
		}
		for _, p := range problems {
			log.Printf("  %s", p)
		}
		if len(problems) > 0 {
			os.Exit(1)
		}
		log.Printf("All component configs in %s match their schemas", *check)
		return
	}

	log.Printf("Schema Exporter")
	log.Printf("  Output dir: %s", *outDir)

	written, err := exportSchemas(registry, *outDir)
	if err != nil {
		log.Fatalf("Export failed: %v", err)
	}
	for _, f := range written {
		log.Printf("  Generated: %s", f)
	}

	if *index != "" {
		if err := writeIndex(registry, *index); err != nil {
			log.Fatalf("Failed to write index: %v", err)
		}
		log.Printf("  Generated index: %s", *index)
	}
	log.Printf("Schema generation complete: %d components", len(written))
}
