package txcache

import (
	"io"
	"time"

	"github.com/skipor/txcache/log"
)

// Config is parsed and validated server config.
type Config struct {
	Addr           string
	LogDestination io.Writer
	LogLevel       log.Level
	Capacity       int
	MaxItemSize    int64
	// MetricsInterval is period of cache metrics logging. Zero disables it.
	MetricsInterval time.Duration
}
