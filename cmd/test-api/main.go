// Package main is a smoke-test utility that verifies the vault's HTTP API is
// reachable and returning valid responses. It hits the health and version
// endpoints and prints the status codes and response bodies, making it useful
// for quick post-deployment checks without needing external tooling like curl
// or a full integration test suite.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
)

func main() {
	base := "http://localhost:8080"
	if len(os.Args) > 1 {
		base = os.Args[1]
	}

	failed := false
	for _, path := range []string{"/health", "/ready", "/version"} {
		resp, err := http.Get(base + path)
		if err != nil {
			fmt.Printf("%s: error: %v\n", path, err)
			failed = true
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			fmt.Printf("%s: error reading body: %v\n", path, err)
			failed = true
			continue
		}

		fmt.Printf("%s: %d\n%s\n", path, resp.StatusCode, string(body))
		if resp.StatusCode != http.StatusOK {
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
}
