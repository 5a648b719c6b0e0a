// Package internal contains the docserve implementation packages.
//
// # Package Organization
//
//   - config: viper-backed configuration, defaults and validation
//   - errors: typed errors, suggestions and exit codes
//   - logging: slog-backed structured logger and the log(level, msg) adapter
//   - watcher: fsnotify subscriptions feeding a deduplicating pending set
//   - renderer: the renderer contract, the command renderer and watch roots
//   - rebuild: change classification and the throttled rebuild loop
//   - reload: the edge-triggered wake shared by reload streams
//   - inject: reload client script and HTML head injection
//   - server: static files, SSE and websocket reload streams, health, metrics
//   - metrics: prometheus collectors
//   - supervisor: component wiring, startup and shutdown order
//   - version: build identity
//
// # Data Flow
//
// A file-system event becomes a Change in the watcher's pending set. The
// rebuild loop drains the set once per tick, classifies the batch as a
// selective build, a full build or a renderer restart, runs the renderer and
// wakes the reload broadcaster. Every parked reload stream then tells its
// browser to reload, and the browser fetches the fresh output through the
// static file handler, which injects the reload client again.
package internal
