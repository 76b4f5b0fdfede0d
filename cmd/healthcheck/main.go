// Package main is a container HEALTHCHECK probe: it exits non-zero unless
// /healthz on the local bot answers 200.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	path := flag.String("path", "/healthz", "endpoint to probe, e.g. /readyz")
	flag.Parse()

	client := &http.Client{Timeout: 3 * time.Second}
	ctx := context.Background()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL(os.Getenv("HTTP_ADDR"), *path), nil)
	if err != nil {
		os.Exit(1)
	}
	resp, err := client.Do(req)
	if err != nil {
		os.Exit(1)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}

// probeURL turns a listen address such as ":8080" or "0.0.0.0:9000" into a
// loopback URL.
func probeURL(addr, path string) string {
	if addr == "" {
		addr = ":8080"
	}
	host, port, ok := strings.Cut(addr, ":")
	if !ok {
		port = addr
	}
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return "http://" + host + ":" + port + path
}
