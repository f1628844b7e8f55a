// registerschema validates a schema document locally and registers it with a
// running orchestrator. YAML and JSON inputs are both accepted.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ryandmonk/knowledge-graph-brain/internal/schema"
	"github.com/ryandmonk/knowledge-graph-brain/internal/types"
)

func main() {
	var (
		file     = flag.String("file", "", "path to the schema document (.json, .yaml, .yml)")
		server   = flag.String("server", "http://localhost:8080", "orchestrator base URL")
		apiKey   = flag.String("api-key", os.Getenv("KGB_API_KEY"), "api key (defaults to KGB_API_KEY)")
		validate = flag.Bool("validate-only", false, "validate locally and exit without registering")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: registerschema -file schema.yaml [-server URL] [-api-key KEY]")
		os.Exit(2)
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		fatal("read %s: %v", *file, err)
	}

	var doc *types.SchemaDocument
	switch strings.ToLower(filepath.Ext(*file)) {
	case ".yaml", ".yml":
		doc, err = schema.ParseYAML(raw)
	default:
		doc, err = schema.Parse(raw)
	}
	if err != nil {
		fatal("parse: %v", err)
	}
	if err := schema.Validate(doc); err != nil {
		fatal("validate: %v", err)
	}
	fmt.Printf("schema for %q is valid: %d node types, %d relationship types, %d sources\n",
		doc.KBID, len(doc.Schema.Nodes), len(doc.Schema.Relationships), len(doc.Mappings.Sources))
	if *validate {
		return
	}

	if *apiKey == "" {
		fatal("an api key is required to register (set -api-key or KGB_API_KEY)")
	}
	body, err := json.Marshal(doc)
	if err != nil {
		fatal("encode: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*server, "/")+"/api/schemas", bytes.NewReader(body))
	if err != nil {
		fatal("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", *apiKey)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fatal("register: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fatal("register failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	fmt.Printf("registered: %s\n", strings.TrimSpace(string(respBody)))
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
