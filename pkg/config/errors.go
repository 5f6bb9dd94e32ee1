package config

import "errors"

// Common errors returned by the config package.
var (
	// ErrInvalidLatency is returned when the watch latency is negative.
	ErrInvalidLatency = errors.New("invalid latency: must be >= 0")

	// ErrInvalidQueueCapacity is returned when a queue capacity is negative.
	ErrInvalidQueueCapacity = errors.New("invalid queue capacity: must be >= 0")

	// ErrInvalidExclusions is returned when the exclusion list is rejected.
	ErrInvalidExclusions = errors.New("invalid exclusions")

	// ErrInvalidIgnorePattern is returned when an ignore pattern does not compile.
	ErrInvalidIgnorePattern = errors.New("invalid ignore pattern")

	// ErrInvalidCreateFlag is returned when a create flag name is not recognized.
	ErrInvalidCreateFlag = errors.New("invalid create flag")

	// ErrInvalidCheckpointInterval is returned when the checkpoint interval is <= 0.
	ErrInvalidCheckpointInterval = errors.New("invalid checkpoint interval: must be > 0")

	// ErrInvalidOutputFormat is returned when the output format is not recognized.
	ErrInvalidOutputFormat = errors.New("invalid output format: must be table, json, or simple")

	// ErrInvalidLogLevel is returned when log level is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level: must be debug, info, warn, or error")

	// ErrInvalidLogFormat is returned when log format is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")

	// ErrConfigNotFound is returned when config file is not found.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidYAML is returned when config file has invalid YAML syntax.
	ErrInvalidYAML = errors.New("invalid YAML syntax in config file")
)
