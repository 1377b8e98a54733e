package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	offlineshell "github.com/offline-shell/offline-shell"
	"github.com/offline-shell/offline-shell/cache"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	portFlag           int
	originFlag         string
	addrFlag           string
	hostFlag           string
	configFilenameFlag string
	versionFlag        string
	providerFlag       string
	dbFilenameFlag     string
	redisAddrFlag      string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&originFlag, "origin", "", "Origin URL to proxy to (overrides addr and host)")
	flag.StringVar(&addrFlag, "addr", "", "Origin IP address to proxy to")
	flag.StringVar(&hostFlag, "host", "", "Hostname of origin")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on")
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.StringVar(&versionFlag, "app-version", "", "Deployed application version (names the cache store)")
	flag.StringVar(&providerFlag, "provider", "sqlite", "Cache provider to use (sqlite, memory, redis)")
	flag.StringVar(&dbFilenameFlag, "db", "cache.db", "Cache DB file name (use 'memory' for in-memory db)")
	flag.StringVar(&redisAddrFlag, "redis", "localhost:6379", "Redis address for the redis provider")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	var config Config
	if configFilenameFlag != "" {
		var err error
		config, err = getConfig(configFilenameFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not read config file")
		}
	}
	if originFlag != "" {
		config.Origin = originFlag
	}
	if hostFlag != "" {
		config.Host = hostFlag
	}
	if versionFlag != "" {
		config.Version = versionFlag
	}

	workerConfig := offlineshell.Config{
		OriginHost:  config.Host,
		Version:     config.Version,
		Precache:    config.Precache,
		OfflinePath: config.OfflinePath,
		LandingPath: config.LandingPath,
		Routes:      config.Routes,
		Logger:      &log.Logger,
	}

	// use configured provider
	switch providerFlag {
	case "sqlite":
		dbFilename := dbFilenameFlag
		if dbFilename == "memory" {
			dbFilename = ""
		}
		workerConfig.Cache = cache.NewSQLiteCache(dbFilename)
	case "memory":
		workerConfig.Cache = cache.NewMemCache()
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: redisAddrFlag})
		workerConfig.Cache = cache.NewRedisCache(client, 0)
	default:
		log.Fatal().Msgf("Unsupported cache provider: %s", providerFlag)
	}

	// get the downstream server address
	if config.Origin != "" {
		originUrl, err := url.Parse(config.Origin)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not parse url")
		}
		workerConfig.OriginURL = *originUrl
	} else if addrFlag != "" {
		originUrl, err := url.Parse("https://" + addrFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not parse url")
		}
		workerConfig.OriginURL = *originUrl
	} else {
		log.Fatal().Msg("Please specify origin")
	}

	worker := offlineshell.New(workerConfig)

	// run the lifecycle: prime the store, then evict stale versions
	ctx := context.Background()
	if err := worker.Install(ctx); err != nil {
		log.Fatal().Err(err).Msg("Install interrupted")
	}
	if err := worker.Activate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Activation failed")
	}

	router := chi.NewRouter()
	router.Mount("/_worker", worker.ControlHandler())
	router.Handle("/*", worker)

	log.Info().Msgf("Proxying port %v to %s (store '%s')", portFlag, workerConfig.OriginURL.String(), worker.Store())
	err := http.ListenAndServe(fmt.Sprintf(":%d", portFlag), router)

	if err != nil {
		panic(err)
	}
}
