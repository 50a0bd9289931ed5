package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/seftconsumer/internal/consumer"
	"github.com/dmitrijs2005/seftconsumer/internal/consumer/config"
)

func main() {

	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

	app, err := consumer.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}
}
