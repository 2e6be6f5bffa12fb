package config

import (
	"os"
	"strconv"
)

type Config struct {
	LogLevel string

	// Stream buffer; must exceed the largest VSL record the cache emits.
	StreamBufferSize int

	// Correlation store bounds.
	MaxRecordSlots int
	EvictFactor    float64
	MaxEpochDiff   uint64

	// Output shaping.
	Format               string
	KeepRawHeaders       bool
	KeepRawLog           bool
	NoHeaderIndexing     bool
	NoLogProcessing      bool
	MaskSensitiveHeaders bool
}

func FromEnv() Config {
	cfg := Config{
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		StreamBufferSize: getEnvInt("STREAM_BUFFER_SIZE", 262144),
		MaxRecordSlots:   getEnvInt("MAX_RECORD_SLOTS", 4000),
		EvictFactor:      getEnvFloat("EVICT_FACTOR", 0.01),
		MaxEpochDiff:     uint64(getEnvInt("MAX_EPOCH_DIFF", 14410)),
		Format:           getEnv("OUTPUT_FORMAT", "json"),
	}
	cfg.KeepRawHeaders = getEnvBool("KEEP_RAW_HEADERS", false)
	cfg.KeepRawLog = getEnvBool("KEEP_RAW_LOG", false)
	cfg.NoHeaderIndexing = getEnvBool("NO_HEADER_INDEXING", false)
	cfg.NoLogProcessing = getEnvBool("NO_LOG_PROCESSING", false)
	cfg.MaskSensitiveHeaders = getEnvBool("MASK_SENSITIVE_HEADERS", false)
	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	switch os.Getenv(key) {
	case "1", "true":
		return true
	case "0", "false":
		return false
	}
	return def
}
