package orchestrator

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RouteTable maps source types to adapter base URLs. It is data, not
// code: new source types only need a new table entry.
type RouteTable struct {
	routes map[string]string
}

type routesFile struct {
	Adapters map[string]string `yaml:"adapters"`
}

func NewRouteTable(routes map[string]string) *RouteTable {
	normalized := make(map[string]string, len(routes))
	for sourceType, base := range routes {
		normalized[sourceType] = strings.TrimRight(base, "/")
	}
	return &RouteTable{routes: normalized}
}

// LoadRoutes reads the adapter table from a YAML file:
//
//	adapters:
//	  document-store: http://adapter-docstore:8100
//	  chat: http://adapter-chat:8100
func LoadRoutes(path string) (*RouteTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading adapter routes: %w", err)
	}

	var file routesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing adapter routes: %w", err)
	}
	if len(file.Adapters) == 0 {
		return nil, fmt.Errorf("adapter routes file %s defines no adapters", path)
	}

	return NewRouteTable(file.Adapters), nil
}

func (t *RouteTable) Resolve(sourceType string) (string, bool) {
	base, ok := t.routes[sourceType]
	return base, ok
}
