package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Level controls which messages are written.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

const (
	reset   = "\033[0m"
	bold    = "\033[1m"
	dim     = "\033[2m"
	red     = "\033[31m"
	green   = "\033[32m"
	yellow  = "\033[33m"
	blue    = "\033[34m"
	magenta = "\033[35m"
	cyan    = "\033[36m"
)

var (
	mu       sync.Mutex
	out      io.Writer
	minLevel = LevelInfo
	color    bool
	colorSet bool
)

// ParseLevel maps a config string to a Level. Unknown values fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLevel sets the minimum level written.
func SetLevel(l Level) {
	mu.Lock()
	minLevel = l
	mu.Unlock()
}

// SetOutput redirects log output. Colors are disabled for non-terminal writers.
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	color = isTerminal(w)
	colorSet = true
	mu.Unlock()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// writer resolves os.Stdout lazily so tests that swap it still capture output.
func writer() (io.Writer, bool) {
	if out != nil {
		return out, color
	}
	if !colorSet {
		color = isTerminal(os.Stdout)
		colorSet = true
	}
	return os.Stdout, color
}

func write(l Level, paint, label, tag, msg string) {
	mu.Lock()
	defer mu.Unlock()
	if l < minLevel {
		return
	}
	w, c := writer()
	ts := time.Now().Format("15:04:05")
	if c {
		fmt.Fprintf(w, "%s%s%s %s%-5s%s %s[%s]%s %s\n", dim, ts, reset, paint, label, reset, bold, tag, reset, msg)
		return
	}
	fmt.Fprintf(w, "%s %-5s [%s] %s\n", ts, label, tag, msg)
}

func Debug(tag, msg string)   { write(LevelDebug, magenta, "DEBUG", tag, msg) }
func Info(tag, msg string)    { write(LevelInfo, blue, "INFO", tag, msg) }
func Success(tag, msg string) { write(LevelInfo, green, "OK", tag, msg) }
func Warn(tag, msg string)    { write(LevelWarn, yellow, "WARN", tag, msg) }
func Error(tag, msg string)   { write(LevelError, red, "ERROR", tag, msg) }

// Section prints a heading line.
func Section(title string) {
	mu.Lock()
	defer mu.Unlock()
	if minLevel > LevelInfo {
		return
	}
	w, c := writer()
	if c {
		fmt.Fprintf(w, "\n%s%s== %s ==%s\n", bold, cyan, title, reset)
		return
	}
	fmt.Fprintf(w, "\n== %s ==\n", title)
}

// Stats prints an indented key/value line.
func Stats(key string, value interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if minLevel > LevelInfo {
		return
	}
	w, c := writer()
	if c {
		fmt.Fprintf(w, "   %s%-18s%s %v\n", dim, key, reset, value)
		return
	}
	fmt.Fprintf(w, "   %-18s %v\n", key, value)
}

// Banner prints the startup banner.
func Banner(version string) {
	if version == "" {
		version = "dev"
	}
	mu.Lock()
	defer mu.Unlock()
	w, c := writer()
	line := strings.Repeat("=", 40)
	if c {
		fmt.Fprintf(w, "%s%s%s\n%s  EVE Arbitrage Route Engine %s%s\n%s%s%s\n", cyan, line, reset, bold, version, reset, cyan, line, reset)
		return
	}
	fmt.Fprintf(w, "%s\n  EVE Arbitrage Route Engine %s\n%s\n", line, version, line)
}

// Server announces the listening address.
func Server(addr string) {
	Success("HTTP", fmt.Sprintf("Listening on http://%s", addr))
}
