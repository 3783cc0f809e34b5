// Package main is the entrypoint for the function host.
package main

import (
	"flag"
	"log"

	"github.com/fnhost/fnhost/internal/config"
	"github.com/fnhost/fnhost/internal/server"
	"github.com/fnhost/fnhost/pkg/registry"
)

func main() {
	configPath := flag.String("c", config.DefaultPath, "config file path")
	flag.Parse()

	if err := server.Run(*configPath, registry.PluginResolver{}); err != nil {
		log.Fatalf("fnhost: %v", err)
	}
}
