package config

import (
	"fmt"
	"os"
	"strings"
)

// RequireEnv returns the value of the named environment variable and fails
// hard when it is unset or empty.
func RequireEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("environment variable %s is not set", name)
	}
	return value, nil
}

// ResolveEnv returns the value of the named environment variable, or the
// empty string when unset.
func ResolveEnv(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}
