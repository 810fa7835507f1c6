// Package logging wires zerolog to the console and a rotating log file.
package logging

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/saltyorg/jellygate/internal/config"
)

const (
	DefaultLogFilePath = "jellygate.log"
	DefaultMaxSizeMB   = 50
	DefaultMaxBackups  = 5
	DefaultMaxAgeDays  = 30
	DefaultCompress    = true
)

const consoleTimeFormat = "2006-01-02 15:04:05"

// Apply sets the global level and routes logs to the console and a rotating
// file. The console gets the human format while the file gets JSON lines so
// log shippers can parse it. When logFilePath is empty a default name in the
// working directory is used.
func Apply(level string, loader *config.Loader, logFilePath string) {
	zerolog.SetGlobalLevel(parseLevel(level))

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: consoleTimeFormat}

	if logFilePath == "" {
		logFilePath = DefaultLogFilePath
	}
	if err := ensureLogDir(logFilePath); err != nil {
		log.Logger = zerolog.New(console).With().Timestamp().Logger()
		log.Error().Err(err).Str("path", logFilePath).Msg("Failed to prepare log directory; logging to console only")
		return
	}

	file := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    positiveSetting(loader, "log.max_size_mb", DefaultMaxSizeMB),
		MaxBackups: boundedSetting(loader, "log.max_backups", DefaultMaxBackups),
		MaxAge:     boundedSetting(loader, "log.max_age_days", DefaultMaxAgeDays),
		Compress:   compressSetting(loader),
	}

	multi := zerolog.MultiLevelWriter(console, file)
	log.Logger = zerolog.New(multi).With().Timestamp().Logger()
}

// parseLevel accepts any zerolog level name and falls back to info.
func parseLevel(level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}

func positiveSetting(loader *config.Loader, key string, fallback int) int {
	if loader == nil {
		return fallback
	}
	if val := loader.Int(key, fallback); val > 0 {
		return val
	}
	return fallback
}

func boundedSetting(loader *config.Loader, key string, fallback int) int {
	if loader == nil {
		return fallback
	}
	if val := loader.Int(key, fallback); val >= 0 {
		return val
	}
	return fallback
}

func compressSetting(loader *config.Loader) bool {
	if loader == nil {
		return DefaultCompress
	}
	return loader.Bool("log.compress", DefaultCompress)
}

// FilePathForDB returns a log file path that lives alongside the database
// file, so a single data directory holds everything the daemon writes.
func FilePathForDB(dbPath string) string {
	if dbPath == "" {
		return DefaultLogFilePath
	}
	absDBPath, err := filepath.Abs(dbPath)
	if err != nil {
		return filepath.Join(filepath.Dir(dbPath), DefaultLogFilePath)
	}
	return filepath.Join(filepath.Dir(absDBPath), DefaultLogFilePath)
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
