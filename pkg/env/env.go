package env

import "os"

// Get reads an environment variable, falling back when it is unset or empty.
// Empty counts as unset so blank overrides in deploy manifests do not clobber
// defaults.
func Get(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
