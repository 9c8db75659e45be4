// Package config loads and watches the thermocert configuration file.
//
// Top-level types:
//   - Config{Engine, Limits, Server}: full config tree parsed from YAML
//   - EngineConfig: category, timezone, legacy_zero_fill, workers and the
//     header markers used to locate the real header row of tabular exports
//   - Limits: stability, uniformity and lethality acceptance thresholds plus
//     the F0 constants (reference temperature, z-value, lethality floor)
//   - ServerConfig: http_port, result_ttl, broadcast_interval,
//     max_upload_bytes, storage and alerts
//
// Load(path) reads the YAML file, applies defaults (uniformity category, UTC,
// zero-fill on, 1.0/2.0/15.0 limits, port 8080), then validates.
//
// Watch(ctx, path, onChange) uses fsnotify to reload the file on write so a
// running server can pick up a new regulatory regime without a restart.
package config
