// Package config loads service configuration from the process environment.
// All variables share the MPG_ prefix; struct tags on each service's Config
// declare the names and defaults.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv fills target from environment variables according to its env
// struct tags. Nested structs are walked, so composed configs parse in one
// call.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse environment config: %w", err)
	}
	return nil
}
