package app

import "os"

// EnvOrDefault returns the environment variable value or a default.
func EnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
