package main

import (
	"context"
	"fmt"
	"os"

	"github.com/virtbridge/vmcourier/internal/client/cli"
	"github.com/virtbridge/vmcourier/internal/client/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app := cli.NewApp(cfg)

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "courierctl: %v\n", err)
		os.Exit(1)
	}
}
