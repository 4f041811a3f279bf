package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shpitdev/datadash/pkg/pipeline/worker"
	"github.com/shpitdev/datadash/pkg/provider"
)

// sourceEnv holds the environment defaults that flags may override.
type sourceEnv struct {
	Format     string
	SchemaPath string
	PageSize   int
	Fetch      worker.Options
	LogLevel   string
	LogFormat  string
}

func loadSourceEnv() (sourceEnv, error) {
	pageSize, err := envInt("DATA_PAGE_SIZE", provider.DefaultPageSize)
	if err != nil {
		return sourceEnv{}, err
	}
	workers, err := envInt("FETCH_WORKERS", 4)
	if err != nil {
		return sourceEnv{}, err
	}
	maxRetries, err := envInt("FETCH_MAX_RETRIES", 3)
	if err != nil {
		return sourceEnv{}, err
	}
	timeout, err := envDuration("FETCH_TIMEOUT", 30*time.Second)
	if err != nil {
		return sourceEnv{}, err
	}
	rps, err := envFloat("FETCH_RATE_LIMIT_RPS", 0)
	if err != nil {
		return sourceEnv{}, err
	}
	return sourceEnv{
		Format:     defaultString("DATA_FORMAT", "json"),
		SchemaPath: strings.TrimSpace(os.Getenv("DATASET_SCHEMA")),
		PageSize:   pageSize,
		Fetch: worker.Options{
			Workers:        workers,
			MaxRetries:     maxRetries,
			RequestTimeout: timeout,
			RateLimitRPS:   rps,
		},
		LogLevel:  defaultString("LOG_LEVEL", "INFO"),
		LogFormat: defaultString("LOG_FORMAT", "text"),
	}, nil
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(varName string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envFloat(varName string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envDuration(varName string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}
