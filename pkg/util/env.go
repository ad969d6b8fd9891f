package util

import (
	"os"
	"strings"
)

// GetEnv returns the value of the environment variable or the fallback if unset or empty.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func RemoveTrailingSlash(url string) string {
	return strings.TrimSuffix(url, "/")
}
