package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/NoahNelson/Pipes/internal/config"
	"github.com/NoahNelson/Pipes/pkg/logger"
	"github.com/NoahNelson/Pipes/pkg/pipes"
)

var (
	port           int
	configPath     string
	corpus         string
	allowedOrigins string
)

func init() {
	flag.IntVar(&port, "port", 8080, "HTTP server port")
	flag.StringVar(&configPath, "config", "", "Settings file (.toml or .json)")
	flag.StringVar(&corpus, "corpus", "", "Corpus locator (overrides config and PIPES_CORPUS)")
	flag.StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
}

func main() {
	flag.Parse()
	log := logger.GetLogger()

	settings, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	if corpus != "" {
		settings.Corpus = corpus
	}
	if !pipes.IsCorpus(settings.Corpus) {
		log.Fatalf("Corpus %q is not a database locator", settings.Corpus)
	}

	var origins []string
	if allowedOrigins == "*" {
		origins = []string{"*"}
	} else {
		origins = strings.Split(allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	service, err := pipes.NewService(pipes.WithSettings(settings))
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := NewServer(service, &ServerConfig{
		Port:           port,
		Corpus:         settings.Corpus,
		Threshold:      settings.Threshold,
		AllowedOrigins: origins,
	})
	if err := server.Start(ctx); err != nil {
		log.Errorf("Server failed: %v", err)
		os.Exit(1)
	}
}
