package main

import (
	"embed"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"time"

	"nearby.live/presence"
	"nearby.live/server"
)

//go:embed html/*
var html embed.FS

func main() {
	cfg, err := server.FromEnv()
	if err != nil {
		log.Fatal(err)
	}

	registry := presence.NewRegistry()
	registry.StartPruneLoop(time.Minute, cfg.TTL())

	htmlContent, err := fs.Sub(html, "html")
	if err != nil {
		log.Fatal(err)
	}

	// serve the html client by default
	http.Handle("/", http.FileServer(http.FS(htmlContent)))
	http.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(htmlContent))))

	http.Handle("/health", server.WithCors(server.HealthHandler(registry, cfg), cfg))
	http.HandleFunc("/ws", server.WSHandler(registry, cfg))

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("[main] listening on %s (radius %.2fkm, ttl %ds)", addr, cfg.DefaultRadiusKM, cfg.PresenceTTL)

	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatal(err)
	}
}
