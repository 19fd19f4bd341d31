// Package debug sets up the zerolog logger of the command line tool.
package debug

import (
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a console logger writing to w. With verbose set it logs
// at debug level and adds the caller of every event.
func NewLogger(w io.Writer, verbose bool, noColor bool) zerolog.Logger {
	out := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    noColor,
		TimeFormat: time.TimeOnly,
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if verbose {
		logger = logger.Hook(CallerHook{})
	}
	return logger
}

// CallerHook adds a short pkg:file:line caller field.
type CallerHook struct {
	// Skip is the number of frames between the hook and the logging call.
	Skip int
}

func (c CallerHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	skip := c.Skip
	if skip == 0 {
		skip = 3
	}

	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return
	}

	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return
	}

	pkg, _ := PackageAndFunc(fn.Name())
	e.Str("caller", FormatCaller(pkg, file, line))
}

// PackageAndFunc splits a fully qualified function name as returned by
// runtime.FuncForPC.
func PackageAndFunc(name string) (pkg, function string) {
	lastSlash := strings.LastIndexByte(name, '/')
	if lastSlash < 0 {
		lastSlash = 0
	}

	firstDot := strings.IndexByte(name[lastSlash:], '.') + lastSlash
	if firstDot < lastSlash {
		return name, ""
	}

	pkg = name[:firstDot]
	function = name[firstDot+1:]

	if strings.Contains(pkg, ".(") {
		splt := strings.SplitN(pkg, ".(", 2)
		pkg = splt[0]
		function = "(" + splt[1] + "." + function
	}

	return pkg, function
}

func FormatCaller(pkg, path string, line int) string {
	return fmt.Sprintf("%s:%s:%d", pkg, FileNameOfPath(path), line)
}

func FileNameOfPath(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
