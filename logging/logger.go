package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/superstate/config"
	"github.com/grovetools/superstate/pkg/paths"
	"github.com/grovetools/superstate/util/pathutil"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex

	// configured is set by Configure; nil means load superstate.yml lazily.
	configured *Config
)

// Configure fixes the logging section used by loggers created afterwards,
// taken from an already loaded configuration. Cached loggers are dropped.
func Configure(cfg *config.Config) error {
	var logCfg Config
	if cfg != nil {
		if err := cfg.UnmarshalExtension("logging", &logCfg); err != nil {
			return err
		}
	}
	loggersMu.Lock()
	defer loggersMu.Unlock()
	configured = &logCfg
	loggers = make(map[string]*logrus.Entry)
	return nil
}

// NewLogger creates and returns a pre-configured logger for a specific component.
// It uses a singleton pattern per component to avoid re-initializing.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	logCfg := loadConfig()
	logger := logrus.New()
	configure(logger, component, logCfg)

	entry := logger.WithField("component", component)
	loggers[component] = entry
	return entry
}

// NewTestLogger returns a debug-level logger writing plain text to w.
func NewTestLogger(w io.Writer) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&TextFormatter{Config: FormatConfig{DisableTimestamp: true}})
	return logger.WithField("component", "test")
}

func loadConfig() Config {
	if configured != nil {
		return *configured
	}
	var logCfg Config
	cfg, err := config.LoadDefault()
	if err == nil {
		if err := cfg.UnmarshalExtension("logging", &logCfg); err != nil {
			logrus.Warnf("Failed to parse 'logging' config: %v", err)
		}
	}
	return logCfg
}

func configure(logger *logrus.Logger, component string, logCfg Config) {
	logger.SetLevel(logCfg.levelFor(component))

	if os.Getenv("SUPERSTATE_LOG_CALLER") == "true" || logCfg.ReportCaller {
		logger.SetReportCaller(true)
	}

	switch logCfg.Format.Preset {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "simple":
		logger.SetFormatter(&TextFormatter{Config: FormatConfig{
			DisableTimestamp: true,
			DisableComponent: true,
		}})
	default:
		logger.SetFormatter(&TextFormatter{Config: logCfg.Format})
	}

	var writers []io.Writer
	if logCfg.File.Enabled {
		logFilePath := pathutil.Expand(logCfg.File.Path)
		if logFilePath == "" {
			logFilePath = filepath.Join(paths.StateDir(), "logs",
				fmt.Sprintf("%s-%s.log", component, time.Now().Format("2006-01-02")))
		}
		writers = append(writers, newReopeningWriter(logFilePath))
	}

	isDebug := os.Getenv("SUPERSTATE_DEBUG") == "1" || logger.GetLevel() >= logrus.DebugLevel
	isInteractive := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	if toStderr(logCfg.stderrMode(), isDebug, isInteractive) {
		writers = append(writers, os.Stderr)
	}

	switch len(writers) {
	case 0:
		// interactive auto mode keeps structured logs off the terminal
		logger.SetOutput(io.Discard)
	case 1:
		logger.SetOutput(writers[0])
	default:
		logger.SetOutput(io.MultiWriter(writers...))
	}
}

// toStderr decides whether structured logs go to stderr. In auto mode they
// do when debugging or when stderr is not a terminal.
func toStderr(mode string, debug, interactive bool) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	default:
		return debug || !interactive
	}
}

