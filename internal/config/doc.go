// Package config loads, normalizes, and validates pipewright configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PIPEWRIGHT_DATA_DIR. The Config type centralizes every knob the CLI and the
// orchestrator need, so the data directory, the pipe directory, and the
// supervision settings are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
