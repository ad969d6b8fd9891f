// based on https://dusted.codes/creating-a-pretty-console-logger-using-gos-slog-package
package prettylog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"
)

const (
	timeFormat = "15:04:05.000"
)

const (
	reset = "\033[0m"

	darkGray = 90
	cyan     = 36
	yellow   = 33
	lightRed = 91
	white    = 97
)

func colorize(colorCode int, v string) string {
	return fmt.Sprintf("\033[%sm%s%s", strconv.Itoa(colorCode), v, reset)
}

type handler struct {
	level  slog.Leveler
	mu     *sync.Mutex
	output io.Writer
	attrs  []slog.Attr
	group  string
}

func NewHandler(level slog.Leveler) slog.Handler {
	return NewHandlerWithOutput(level, os.Stderr)
}

func NewHandlerWithOutput(level slog.Leveler, output io.Writer) slog.Handler {
	return &handler{
		level:  level,
		mu:     &sync.Mutex{},
		output: output,
	}
}

// Setup installs the default logger: pretty console output unless disabled,
// JSON otherwise.
func Setup(pretty bool, level slog.Level) *slog.Logger {
	var logger *slog.Logger
	if pretty {
		logger = slog.New(NewHandler(level))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	slog.SetDefault(logger)
	return logger
}

func (h *handler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), h.qualify(attrs)...)
	return &clone
}

func (h *handler) WithGroup(name string) slog.Handler {
	clone := *h
	if clone.group != "" {
		clone.group = clone.group + "." + name
	} else {
		clone.group = name
	}
	return &clone
}

func (h *handler) qualify(attrs []slog.Attr) []slog.Attr {
	if h.group == "" {
		return attrs
	}
	qualified := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		qualified[i] = slog.Attr{Key: h.group + "." + a.Key, Value: a.Value}
	}
	return qualified
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	level := r.Level.String() + ":"

	switch r.Level {
	case slog.LevelDebug:
		level = colorize(darkGray, level)
	case slog.LevelInfo:
		level = colorize(cyan, level)
	case slog.LevelWarn:
		level = colorize(yellow, level)
	case slog.LevelError:
		level = colorize(lightRed, level)
	}

	attrs := make(map[string]any)
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	recordAttrs := make([]slog.Attr, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		recordAttrs = append(recordAttrs, a)
		return true
	})
	for _, a := range h.qualify(recordAttrs) {
		attrs[a.Key] = a.Value.Any()
	}

	sb := strings.Builder{}
	sb.WriteString(colorize(darkGray, r.Time.Format(timeFormat)))
	sb.WriteString(" ")
	sb.WriteString(level)
	sb.WriteString(" ")
	sb.WriteString(colorize(white, r.Message))
	if len(attrs) > 0 {
		sb.WriteString(" ")
		sb.WriteString(colorize(darkGray, attributesToString(attrs)))
	}
	sb.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.output, sb.String())
	return err
}

func attributesToString(attrs map[string]any) string {
	for k, v := range attrs {
		if err, ok := v.(error); ok {
			attrs[k] = err.Error()
			continue
		}
		v = convert(v)
		if _, err := json.Marshal(v); err != nil {
			attrs[k] = fmt.Sprintf("%v", v)
		} else {
			attrs[k] = v
		}
	}

	asJson, err := json.MarshalIndent(attrs, "  ", "  ")
	if err != nil {
		return fmt.Sprintf("%v", attrs)
	}
	return string(asJson)
}

// Loggable lets a value choose its own log representation, e.g. to hide secrets.
type Loggable interface {
	ToLog() any
}

var customConverters = map[reflect.Type]func(any) any{
	reflect.TypeOf([]byte(nil)): func(value any) any {
		return fmt.Sprintf("%v", value)
	},
}

func convert(value any) any {
	if value == nil {
		return "nil"
	}

	if loggable, ok := value.(Loggable); ok {
		return loggable.ToLog()
	}

	if converter, ok := customConverters[reflect.TypeOf(value)]; ok {
		return converter(value)
	}

	return value
}
