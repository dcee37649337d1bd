package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/libraryauth/internal/admin"
	"github.com/dmitrijs2005/libraryauth/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app := admin.NewApp(cfg, os.Stdout)

	if err := app.Run(ctx, os.Args[1:]); err != nil {
		log.Fatalf("%v", err)
	}

}
