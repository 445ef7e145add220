package main

import (
	"context"
	"flag"
	"strconv"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"
	"github.com/robertodauria/speedtest/client"
	"github.com/robertodauria/speedtest/client/config"
	"go.uber.org/zap"
)

var (
	flagServer    = flag.String("server", "localhost:8080", "Server address")
	flagScheme    = flag.String("scheme", string(config.HTTP), "Scheme to use (http/https)")
	flagTransport = flag.String("transport", string(config.DefaultTransport), "Transport of the subtests (http/websocket)")
	flagTimeout   = flag.Duration("timeout", config.DefaultTimeout, "Timeout of each subtest")
	flagUploadMB  = flag.Float64("upload-mb", 10, "Upload size in MiB (0 disables the upload)")
	flagSizes     flagx.StringArray
)

func init() {
	flag.Var(&flagSizes, "download-mb", "Download size in MiB (can be repeated, default 1 and 5)")
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from environment variables")

	logger, err := zap.NewDevelopment()
	rtx.Must(err, "Could not create logger")
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	sizes := config.DefaultDownloadSizesMB
	if len(flagSizes) > 0 {
		sizes = nil
		for _, s := range flagSizes {
			mb, err := strconv.ParseFloat(s, 64)
			rtx.Must(err, "Invalid download size %q", s)
			sizes = append(sizes, mb)
		}
	}

	cfg := config.New(config.Scheme(*flagScheme), *flagTimeout, sizes, int64(*flagUploadMB*(1<<20)))
	cfg.Transport = config.Transport(*flagTransport)
	c := client.NewWithConfig(*flagServer, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(len(sizes)+2)*(*flagTimeout))
	defer cancel()
	rtx.Must(c.Run(ctx), "Speedtest failed")
}
