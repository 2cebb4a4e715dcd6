// Package config loads service configuration from an optional YAML file and
// STRIDE_* environment variables, with the environment winning.
package config
