package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"
	"github.com/robertodauria/speedtest/internal/config"
	"github.com/robertodauria/speedtest/internal/handler"
	"github.com/robertodauria/speedtest/internal/netx"
	"go.uber.org/zap"
)

const readHeaderTimeout = 10 * time.Second

var (
	flagConfig         = flag.String("config", "", "Path to an optional YAML configuration file")
	flagListen         = flag.String("listen", config.DefaultListenAddr, "Listen address/port for cleartext connections")
	flagStaticDir      = flag.String("static-dir", "", "Directory served at / (disabled if empty)")
	flagAllowedOrigins = flag.String("allowed-origins", "*", "Comma separated list of origins allowed by CORS")
	flagMaxUpload      = flag.Int64("max-upload-bytes", 0, "Maximum upload size in bytes (0 means unlimited)")
	flagReadTimeout    = flag.Duration("read-timeout", 0, "Maximum duration for reading a request, including its body (0 means none)")
	flagShutdown       = flag.Duration("shutdown-timeout", config.DefaultShutdownTimeout, "Time allowed for in-flight requests on shutdown")
	flagDebug          = flag.Bool("debug", false, "Enable debug logging")
)

// loadConfig reads the YAML file, if any, and applies the flags that were
// explicitly set on top of it.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *flagConfig != "" {
		var err error
		if cfg, err = config.Load(*flagConfig); err != nil {
			return nil, err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.ListenAddr = *flagListen
		case "static-dir":
			cfg.StaticDir = *flagStaticDir
		case "allowed-origins":
			cfg.AllowedOrigins = config.SplitComma(*flagAllowedOrigins)
		case "max-upload-bytes":
			cfg.MaxUploadBytes = *flagMaxUpload
		case "read-timeout":
			cfg.ReadTimeout = *flagReadTimeout
		case "shutdown-timeout":
			cfg.ShutdownTimeout = *flagShutdown
		}
	})
	return cfg, cfg.Validate()
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from environment variables")

	logger, err := newLogger(*flagDebug)
	rtx.Must(err, "Could not create logger")
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	cfg, err := loadConfig()
	rtx.Must(err, "Could not load configuration")

	promServer := prometheusx.MustServeMetrics()
	defer promServer.Close()

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler.NewRouter(handler.New(cfg.MaxUploadBytes), cfg.AllowedOrigins, cfg.StaticDir),
		ConnContext:       netx.SaveConn,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zap.L().Sugar().Warnw("Shutdown error", "error", err)
		}
	}()

	zap.L().Sugar().Infow("About to listen for speedtest cleartext tests",
		"addr", cfg.ListenAddr,
		"static_dir", cfg.StaticDir,
		"max_upload_bytes", cfg.MaxUploadBytes)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		rtx.Must(err, "Could not start speedtest cleartext server")
	}
}
