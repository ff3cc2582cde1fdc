package main

import (
	"context"
	"log"

	"github.com/virtbridge/vmcourier/internal/agent"
	"github.com/virtbridge/vmcourier/internal/agent/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := agent.NewApp(cfg)

	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}
