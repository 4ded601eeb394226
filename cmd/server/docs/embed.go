package docs

import (
	_ "embed"
	"encoding/json"
	"sort"
	"strings"
)

//go:embed swagger.json
var swaggerJSON []byte

// SwaggerSpec is the part of swagger.json the index page reads.
type SwaggerSpec struct {
	Info struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Version     string `json:"version"`
	} `json:"info"`
	Paths map[string]map[string]PathInfo `json:"paths"`
}

// PathInfo contains information about an API endpoint
type PathInfo struct {
	Summary     string         `json:"summary"`
	Description string         `json:"description"`
	Tags        []string       `json:"tags"`
	Parameters  []any          `json:"parameters"`
	Responses   map[string]any `json:"responses"`
}

// Endpoint is one method on one path.
type Endpoint struct {
	Method string
	Path   string
	PathInfo
}

// GetSwaggerSpec returns the parsed swagger specification
func GetSwaggerSpec() (*SwaggerSpec, error) {
	var spec SwaggerSpec
	if err := json.Unmarshal(swaggerJSON, &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Endpoints lists every operation sorted by path, then method.
func (s *SwaggerSpec) Endpoints() []Endpoint {
	var out []Endpoint
	for path, methods := range s.Paths {
		for method, info := range methods {
			out = append(out, Endpoint{Method: strings.ToUpper(method), Path: path, PathInfo: info})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}
