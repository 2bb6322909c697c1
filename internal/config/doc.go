// Package config loads the poolrun YAML configuration.
//
// The file has four sections:
//   - pool: supervisor settings (grace period, dial concurrency)
//   - endpoints: the WebSocket endpoints to connect, with per-endpoint
//     idle timeout and reconnect policy
//   - database: optional Postgres connection for outcome recording
//   - log: log level
//
// ${VAR} references are expanded from the environment before parsing.
package config
