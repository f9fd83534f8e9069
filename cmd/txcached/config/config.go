package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/facebookgo/stackerr"

	"github.com/skipor/txcache"
	"github.com/skipor/txcache/internal/util"
	"github.com/skipor/txcache/log"
)

// Config is user input config. All values are strings or numbers, as they
// are written in JSON file or command line.
type Config struct {
	Port           int    `json:"port,omitempty"`
	Host           string `json:"host,omitempty"`
	LogDestination string `json:"log-destination,omitempty"` // Stdout, stderr, or filepath.
	LogLevel       string `json:"log-level,omitempty"`
	// Capacity is max number of cache entries.
	Capacity int `json:"capacity,omitempty"`
	// Size values 10g, 128m, 1024k, 1000000b
	MaxItemSize string `json:"max-item-size,omitempty"`
	// Go duration: 30s, 1m. Empty disables metrics logging.
	MetricsInterval string `json:"metrics-interval,omitempty"`
}

func Default() *Config {
	return &Config{
		Port:           11211,
		Host:           "",
		LogDestination: "stderr",
		LogLevel:       "info",
		Capacity:       1024,
		MaxItemSize:    "1m",
	}
}

func Parse(conf Config) (tconf txcache.Config, err error) {
	if conf.Capacity <= 0 {
		err = stackerr.Newf("Capacity should be positive, but: %v", conf.Capacity)
		return
	}
	tconf.Capacity = conf.Capacity
	tconf.MaxItemSize, err = parseSize(conf.MaxItemSize)
	if err != nil {
		err = stackerr.Newf("Max item size parse error: %v", err)
		return
	}
	if tconf.MaxItemSize > txcache.MaxItemSize {
		err = stackerr.Newf("Too large max item size.")
		return
	}
	if tconf.MaxItemSize <= 0 {
		err = stackerr.Newf("Max item size should be positive, but: %v", tconf.MaxItemSize)
		return
	}
	tconf.LogLevel, err = log.LevelFromString(conf.LogLevel)
	if err != nil {
		err = stackerr.Newf("Log level parse error: %v", err)
		return
	}
	if conf.MetricsInterval != "" {
		tconf.MetricsInterval, err = time.ParseDuration(conf.MetricsInterval)
		if err != nil {
			err = stackerr.Newf("Metrics interval parse error: %v", err)
			return
		}
	}
	if conf.Port < 0 || conf.Port > 1<<16-1 {
		err = stackerr.Newf("Invalid port: %v", conf.Port)
		return
	}
	tconf.Addr = net.JoinHostPort(conf.Host, strconv.Itoa(conf.Port))
	// Destination is opened last, so file is not leaked on other errors.
	tconf.LogDestination, err = logDestination(conf.LogDestination)
	if err != nil {
		err = stackerr.Newf("Log destination open error: %v", err)
		return
	}
	return
}

// Merge overwrites def values with non zero override values.
func Merge(def, override *Config) {
	defVal := reflect.ValueOf(def).Elem()
	overrideVal := reflect.ValueOf(override).Elem()
	for i, end := 0, defVal.NumField(); i < end; i++ {
		overrideVal := overrideVal.Field(i)
		if !util.IsZeroVal(overrideVal) {
			defVal.Field(i).Set(overrideVal)
		}
	}
}

func Marshal(conf *Config) []byte {
	data, err := json.MarshalIndent(conf, "", "  ")
	if err != nil {
		panic(err)
	}
	return data
}

func Unmarshal(data []byte, conf *Config) error {
	return stackerr.Wrap(json.Unmarshal(data, conf))
}

func parseSize(s string) (size int64, err error) {
	if len(s) < 2 {
		err = errors.New("Invalid size format.")
		return
	}
	sep := len(s) - 1
	sizeStr := s[:sep]
	exponentStr := s[sep:]
	var exponent uint32
	switch strings.ToLower(exponentStr) {
	case "b":
		exponent = 0
	case "k":
		exponent = 10
	case "m":
		exponent = 20
	case "g":
		exponent = 30
	default:
		err = errors.New("Invalid exponent. Only 'b', 'k', 'm', 'g' allowed.")
		return
	}
	size, err = strconv.ParseInt(sizeStr, 10, 31)
	if err != nil {
		err = fmt.Errorf("Size parse error: %s", err)
		return
	}
	size <<= exponent
	return
}

func logDestination(dest string) (w io.Writer, err error) {
	switch strings.ToLower(dest) {
	case "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		w, err = os.OpenFile(dest, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	}
	return
}
