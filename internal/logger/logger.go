package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

const (
	AppName = "AniNotify"

	LogDebug   = "DEBUG"
	LogError   = "ERROR"
	LogInfo    = "INFO"
	LogWarning = "WARN"
)

var (
	logger = zerolog.New(os.Stdout).With().Timestamp().Str("app", AppName).Logger()
)

// InitLogger sends log output to stdout and logs/AniNotify.log.
func InitLogger(level string) {
	err := os.MkdirAll("logs", os.ModePerm)
	if err != nil {
		log.Fatalf("Failed to create logs folder: %v", err)
	}

	logFile, err := os.OpenFile(filepath.Join("logs", AppName+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, logFile)
	logger = zerolog.New(multiWriter).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Str("app", AppName).
		Logger()
	LogMsg(LogInfo, "Application started")
}

// SetOutput replaces the destination of all log output. Used by the CLI for
// one-shot commands and by tests. Terminals get the console format.
func SetOutput(w io.Writer, level string) {
	if isTerminal(w) {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	logger = zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Str("app", AppName).Logger()
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func LogMsg(level string, format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	switch level {
	case LogDebug:
		logger.Debug().Msg(msg)
	case LogWarning:
		logger.Warn().Msg(msg)
	case LogError:
		logger.Error().Msg(msg)
	default:
		logger.Info().Msg(msg)
	}
}

// With returns a child logger tagged with the component name.
func With(component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
