// Package config loads and validates service configuration.
package config

import (
	"fmt"
	"strings"
)

// ValidateCore ensures critical configuration is present.
func (c *Config) ValidateCore() error {
	var missing []string

	if strings.TrimSpace(c.Provider.Endpoint) == "" {
		missing = append(missing, "RATE_API_ENDPOINT")
	}
	if strings.TrimSpace(c.Redis.URL) == "" {
		missing = append(missing, "REDIS_URL")
	}
	if strings.TrimSpace(c.Server.Port) == "" {
		missing = append(missing, "SERVER_PORT")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	return nil
}
