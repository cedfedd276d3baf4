// Schema Generator
//
// Generates JSON Schema files from the operator API types so that clients
// can validate requests and responses. Go is the source of truth.
//
// Usage:
//
//	go run ./cmd/schema-gen -out schemas
//
// Output:
//
//	schemas/queue.json
//	schemas/lifecycle.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/openarchive/retention-service/internal/handlers"
	"github.com/openarchive/retention-service/internal/lifecycle"
	"github.com/openarchive/retention-service/internal/taskqueue"
)

// SchemaGroup represents a group of related schemas
type SchemaGroup struct {
	Name   string
	Types  []any
	Output string
}

func schemaGroups() []SchemaGroup {
	return []SchemaGroup{
		{
			Name: "queue",
			Types: []any{
				// Request types
				handlers.ListTasksRequest{},
				handlers.EnqueueTaskRequest{},
				handlers.CleanupRequest{},
				taskqueue.DocumentPayload{},
				// Response types
				taskqueue.Task{},
				taskqueue.Stats{},
				handlers.ListTasksResponse{},
				handlers.EnqueueTaskResponse{},
				handlers.CleanupResponse{},
				handlers.HealthResponse{},
			},
			Output: "queue.json",
		},
		{
			Name: "lifecycle",
			Types: []any{
				// Request types
				handlers.ReportRequest{},
				handlers.ReviewRequest{},
				handlers.ResolveApprovalRequest{},
				// Response types
				lifecycle.CheckResult{},
				lifecycle.RunSummary{},
				lifecycle.Report{},
				lifecycle.Approval{},
				handlers.ReviewResponse{},
				handlers.ApprovalsResponse{},
			},
			Output: "lifecycle.json",
		},
	}
}

func main() {
	outputDir := flag.String("out", "schemas", "output directory")
	flag.Parse()

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	for _, group := range schemaGroups() {
		schema := generateGroupSchema(group)
		outputPath := filepath.Join(*outputDir, group.Output)

		if err := writeSchema(schema, outputPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", group.Output, err)
			os.Exit(1)
		}

		fmt.Printf("Generated %s\n", outputPath)
	}

	fmt.Println("Schema generation complete!")
}

// generateGroupSchema creates a combined schema with all types in a group
func generateGroupSchema(group SchemaGroup) map[string]any {
	reflector := &jsonschema.Reflector{}

	definitions := make(map[string]any)
	for _, t := range group.Types {
		schema := reflector.Reflect(t)
		for name, def := range schema.Definitions {
			definitions[name] = def
		}
	}

	return map[string]any{
		"$schema":     "https://json-schema.org/draft/2020-12/schema",
		"$id":         fmt.Sprintf("https://openarchive.org/schemas/retention/%s.json", group.Name),
		"title":       fmt.Sprintf("%s API Types", capitalize(group.Name)),
		"description": fmt.Sprintf("JSON Schema for %s API types generated from Go structs", group.Name),
		"$defs":       definitions,
	}
}

func writeSchema(schema map[string]any, path string) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func capitalize(s string) string {
	if len(s) == 0 {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
