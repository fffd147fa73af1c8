package reliability

import (
	"os"
	"strconv"
	"time"
)

// ReliabilityConfig holds configuration for reliability testing.
type ReliabilityConfig struct {
	Level         string        // "basic" or "stress"
	Duration      time.Duration // Test duration for stress tests
	MaxGoroutines int           // Maximum goroutines for concurrent tests
}

// getReliabilityConfig reads configuration from environment variables.
func getReliabilityConfig() ReliabilityConfig {
	return ReliabilityConfig{
		Level:         os.Getenv("CTRACE_RELIABILITY_LEVEL"),
		Duration:      parseDuration(getEnv("CTRACE_RELIABILITY_DURATION", "10s")),
		MaxGoroutines: parseInt(getEnv("CTRACE_RELIABILITY_MAX_GOROUTINES", "100")),
	}
}

// requireLevel skips the test unless reliability testing is enabled.
func requireLevel(t interface{ Skip(...any) }) ReliabilityConfig {
	config := getReliabilityConfig()
	if config.Level != "basic" && config.Level != "stress" {
		t.Skip("CTRACE_RELIABILITY_LEVEL not set, skipping reliability tests")
	}
	return config
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string) int {
	if value, err := strconv.Atoi(s); err == nil {
		return value
	}
	return 100
}

func parseDuration(s string) time.Duration {
	if duration, err := time.ParseDuration(s); err == nil {
		return duration
	}
	return 10 * time.Second
}
