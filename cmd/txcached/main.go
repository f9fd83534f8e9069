package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"syscall"

	"github.com/rcrowley/go-metrics"

	"github.com/skipor/txcache"
	"github.com/skipor/txcache/cache"
	"github.com/skipor/txcache/cmd/txcached/config"
	"github.com/skipor/txcache/internal/tag"
	"github.com/skipor/txcache/log"
)

const usage = `
Config values merge rules:
1) config file value overrides default
2) command line value overrides any
Options:
`

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "%s", usage)
		flag.PrintDefaults()
	}
}

func main() {
	conf := getConfig()
	l := log.NewLogger(conf.LogLevel, conf.LogDestination)
	l.Debugf("Config: %#v", conf)
	if tag.Debug {
		l.Warn("Using debug build. It has more runtime checks and large perfomance overhead.")
	}

	registry := metrics.NewRegistry()
	c, err := cache.New(l, cache.Config[string, txcache.Item]{
		Capacity: conf.Capacity,
		Registry: registry,
	})
	if err != nil {
		l.Fatal("Cache create error: ", err)
	}
	if conf.MetricsInterval != 0 {
		go metrics.Log(registry, conf.MetricsInterval, metricsLogger{l.WithFields(log.Fields{"metrics": true})})
	}

	s := &txcache.Server{
		Addr: conf.Addr,
		Log:  l,
		ConnMeta: txcache.ConnMeta{
			Cache:       c,
			MaxItemSize: int(conf.MaxItemSize),
		},
	}
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		l.Infof("Got %s. Closing.", <-sig)
		s.Close()
	}()

	l.Infof("Serve on %s.", s.Addr)
	err = s.ListenAndServe()
	if err != nil {
		l.Fatal("Serve error: ", err)
	}
	l.Info("Server closed.")
}

// metricsLogger adapts log.Logger for metrics.Log.
type metricsLogger struct {
	log.Logger
}

func (l metricsLogger) Printf(format string, v ...interface{}) {
	l.Infof(format, v...)
}

type flags struct {
	configPath         string
	printDefaultConfig bool
	config.Config
}

// getConfig parses command flags, reads config file if any, returns merged config.
func getConfig() txcache.Config {
	l := log.NewLogger(log.DebugLevel, os.Stderr)
	flg := parseFlags()
	if flg.printDefaultConfig {
		os.Stdout.Write(config.Marshal(config.Default()))
		fmt.Println()
		os.Exit(0)
	}
	conf := config.Default()
	if flg.configPath != "" {
		data, err := ioutil.ReadFile(flg.configPath)
		if err != nil {
			l.Fatal("Config file read error: ", err)
		}
		err = config.Unmarshal(data, conf)
		if err != nil {
			l.Fatal("Config parse error: ", err)
		}
	}
	config.Merge(conf, &flg.Config)
	parsed, err := config.Parse(*conf)
	if err != nil {
		l.Fatal("Config error: ", err)
	}
	return parsed
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "path to json config")
	flag.BoolVar(&f.printDefaultConfig, "print-default-config", false, "print default json config and exit")

	def := config.Default()
	usage := func(usage string, defVal interface{}) string {
		if _, ok := defVal.(string); ok {
			usage += fmt.Sprintf(" (default %q)", defVal)
		} else {
			usage += fmt.Sprintf(" (default %v)", defVal)
		}
		return usage
	}
	flag.StringVar(&f.Host, "host", "", usage("host address to bind", def.Host))
	flag.IntVar(&f.Port, "port", 0, usage("port num", def.Port))
	flag.StringVar(&f.LogDestination, "log-destination", "", usage("log destination: stderr, stdout or file path", def.LogDestination))
	flag.StringVar(&f.LogLevel, "log-level", "", usage("log level: debug, info, warn, error, fatal", def.LogLevel))
	flag.IntVar(&f.Capacity, "capacity", 0, usage("max number of cache entries", def.Capacity))
	flag.StringVar(&f.MaxItemSize, "max-item-size", "", usage("max item size: 10m, 1024k", def.MaxItemSize))
	flag.StringVar(&f.MetricsInterval, "metrics-interval", "", usage("cache metrics log period: 30s, 1m; disabled if empty", def.MetricsInterval))
	flag.Parse()
	return f
}
