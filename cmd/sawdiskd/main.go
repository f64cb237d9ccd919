// Package main runs the scan service without the CLI front end.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/sawdisk/internal/app"
	"github.com/JakeFAU/sawdisk/internal/config"
	configfile "github.com/JakeFAU/sawdisk/pkg/config"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	path, err := configfile.Locate(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "locate config failed: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if port := os.Getenv("PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid PORT %q: %v\n", port, err)
			os.Exit(1)
		}
		cfg.Server.Port = n
	}

	ctx := context.Background()
	a, err := app.Build(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}
	if err := a.Serve(ctx); err != nil {
		a.Logger().Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
}
