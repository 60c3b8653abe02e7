package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/newsdesk/sentinel/pkg/config"
)

func main() {
	out := flag.String("out", "schema.json", "output file path")
	flag.Parse()

	schema := jsonschema.Reflect(&config.Config{})
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		log.Fatalf("marshal schema: %v", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(*out, data, 0o600); err != nil { //nolint:gosec // schema file is not sensitive
		log.Fatalf("write %s: %v", *out, err)
	}
	log.Printf("schema written to %s", *out)
}
