package config

import (
	"Gamebuddies/services/proxy"
	"fmt"
	"os"
)

// LoadProxyTargets reads the routing table. An empty path means no game
// services are proxied.
func LoadProxyTargets(path string) ([]proxy.Target, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading proxy config: %w", err)
	}
	targets, err := proxy.ParseTargets(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return targets, nil
}
