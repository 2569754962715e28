package catedral

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

func logColors(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	if os.Getenv("NO_COLOR") != "" {
		return false
	}

	if !isatty.IsTerminal(f.Fd()) {
		return false
	}

	return os.Getenv("TERM") != "dumb"
}

func logLevel(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func GetSlogHandler(debug bool, out io.Writer) slog.Handler {
	return tint.NewHandler(out, &tint.Options{
		AddSource: true,
		Level:     logLevel(debug),
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if _, ok := attr.Value.Any().(error); attr.Key == "err" || ok {
				return tint.Attr(9, attr)
			}
			return attr
		},
		TimeFormat: time.RFC3339,
		NoColor:    !logColors(out),
	})
}

// NewLogger writes colored output to out, JSON lines to a rotated payments.log if logDir is set,
// and everything to the extra handlers.
func NewLogger(debug bool, out io.Writer, logDir string, extra ...slog.Handler) *slog.Logger {
	handlers := []slog.Handler{GetSlogHandler(debug, out)}
	if logDir != "" {
		file := &lumberjack.Logger{
			Filename: filepath.Join(logDir, "payments.log"),
			MaxSize:  80,
			Compress: true,
		}
		handlers = append(handlers, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: logLevel(debug)}))
	}
	handlers = append(handlers, extra...)
	if len(handlers) == 1 {
		return slog.New(handlers[0])
	}
	return slog.New(slogmulti.Fanout(handlers...))
}
