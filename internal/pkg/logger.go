package pkg

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger level 解析失败时退回 info；pretty 输出给本地开发用
func NewLogger(level string, pretty bool) zerolog.Logger {
	return NewLoggerTo(os.Stdout, level, pretty)
}

func NewLoggerTo(w io.Writer, level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", "pixel-canvas").Logger()
}
