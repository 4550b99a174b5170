package main

import (
	"embed"
	"log"

	"video-converter/internal/bootstrap"
)

//go:embed all:frontend
var appAssets embed.FS

func main() {
	app, err := bootstrap.NewWithAssets(appAssets)
	if err != nil {
		log.Fatalf("create application: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("run application: %v", err)
	}
}
