package main

import (
	"context"
	"os"

	"rtc-transport/internal"
	"rtc-transport/pkg/log"
)

func main() {
	log.SetupLogger(log.DefaultLevel)

	app := internal.NewApp()

	if err := app.Setup(os.Args[1:]); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Run(ctx, cancel); err != nil {
		log.Fatal(err)
	}
}
