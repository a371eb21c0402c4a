package docs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAPI_Document(t *testing.T) {
	var doc struct {
		OpenAPI string                    `json:"openapi"`
		Paths   map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(OpenAPI, &doc))

	assert.Equal(t, "3.0.3", doc.OpenAPI)
	assert.Contains(t, doc.Paths["/venues/{venue_id}/queue"], "post")
	assert.Contains(t, doc.Paths["/queue/{id}/extend"], "post")
	assert.Contains(t, doc.Paths["/proposals/{id}/confirm"], "post")
	assert.Contains(t, doc.Paths["/orders/{id}/status"], "patch")
	assert.Contains(t, doc.Paths["/queue/{id}/position/stream"], "get")
}
