// Package config loads, normalizes, and validates discdump configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the DISCDUMP_DEVICE environment
// fallback. The Config type centralizes every knob the dump engine and CLI
// need so the state database, output images and drive tuning are discovered
// in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
