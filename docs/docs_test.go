package docs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readDoc(t *testing.T) map[string]interface{} {
	t.Helper()
	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(SwaggerInfo.ReadDoc()), &parsed), "ReadDoc should return valid JSON")
	return parsed
}

func TestSwaggerInfoMetadata(t *testing.T) {
	assert.Equal(t, "Retention Service API", SwaggerInfo.Title)
	assert.Equal(t, "1.0", SwaggerInfo.Version)
	assert.Equal(t, "/", SwaggerInfo.BasePath)
	assert.Equal(t, "Internal API for the document processing queue and the retention lifecycle.", SwaggerInfo.Description)
	assert.Equal(t, "swagger", SwaggerInfo.InfoInstanceName)
}

func TestSwaggerInfoReadDoc(t *testing.T) {
	parsed := readDoc(t)

	info, ok := parsed["info"].(map[string]interface{})
	require.True(t, ok, "JSON should have info section")
	assert.Equal(t, "Retention Service API", info["title"])
	assert.Equal(t, "1.0", info["version"])

	assert.Equal(t, "/", parsed["basePath"])
	assert.Equal(t, "2.0", parsed["swagger"])

	security, ok := parsed["securityDefinitions"].(map[string]interface{})
	require.True(t, ok)
	apiKey, ok := security["InternalAPIKey"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "X-Internal-API-Key", apiKey["name"])
	assert.Equal(t, "header", apiKey["in"])
}

func TestSwaggerInfoHasEndpoints(t *testing.T) {
	paths, ok := readDoc(t)["paths"].(map[string]interface{})
	require.True(t, ok, "JSON should have paths section")

	expected := map[string][]string{
		"/health":                                           {"get"},
		"/internal/queue/stats":                             {"get"},
		"/internal/queue/tasks":                             {"get", "post"},
		"/internal/queue/tasks/{taskId}":                    {"get"},
		"/internal/queue/tasks/{taskId}/retry":              {"post"},
		"/internal/queue/cleanup":                           {"post"},
		"/internal/lifecycle/check":                         {"get"},
		"/internal/lifecycle/run":                           {"post"},
		"/internal/lifecycle/report":                        {"get"},
		"/internal/lifecycle/review":                        {"post"},
		"/internal/lifecycle/approvals":                     {"get"},
		"/internal/lifecycle/approvals/{approvalId}/approve": {"post"},
		"/internal/lifecycle/approvals/{approvalId}/reject":  {"post"},
	}

	for path, methods := range expected {
		item, exists := paths[path].(map[string]interface{})
		if !assert.True(t, exists, "Path %s should exist in swagger spec", path) {
			continue
		}
		for _, m := range methods {
			assert.Contains(t, item, m, "Path %s should declare %s", path, m)
		}
	}
}

func TestSwaggerInfoHasDefinitions(t *testing.T) {
	definitions, ok := readDoc(t)["definitions"].(map[string]interface{})
	require.True(t, ok, "JSON should have definitions section")

	for _, name := range []string{
		"handlers.EnqueueTaskRequest",
		"handlers.ListTasksResponse",
		"handlers.CleanupRequest",
		"handlers.ReviewRequest",
		"taskqueue.Task",
		"taskqueue.Stats",
		"lifecycle.CheckResult",
		"lifecycle.RunSummary",
		"lifecycle.Report",
		"lifecycle.Approval",
	} {
		assert.Contains(t, definitions, name, "Type %s should exist in swagger definitions", name)
	}
}
