package main

import (
	"log"

	"video-converter/internal/bootstrap"
)

func main() {
	app, err := bootstrap.New()
	if err != nil {
		log.Fatalf("create application: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("run application: %v", err)
	}
}
