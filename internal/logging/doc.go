// Package logging provides per-module structured loggers built on log/slog.
//
// Modules request loggers by name via GetLogger; each module gets its own
// slog.LevelVar so verbosity can be tuned per subsystem (session, exposure,
// recording, ...) without restarting. Records fan out to stdout (text or
// json) and to the systemd journal when one is present.
package logging
