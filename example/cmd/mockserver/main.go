// Standalone mock backend for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/pricewatch serve -c example/config.yaml
//	go run ./cmd/pricewatch check-price -c example/config.yaml --interval 1s
//
// Set MOCK_OUTCOME to "oom" or "unknown" to make every job fail.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jpalmerr/pricewatch/internal/mockbackend"
)

func main() {
	script := mockbackend.DefaultScript
	switch os.Getenv("MOCK_OUTCOME") {
	case "oom":
		script = mockbackend.Script{
			Statuses:   []string{"PROVISIONING", "RUNNING", "STOPPED"},
			StopReason: "OutOfMemoryError: Container killed due to memory usage",
			ExitCode:   137,
		}
	case "unknown":
		script = mockbackend.Script{Statuses: []string{"PROVISIONING", "UNKNOWN"}}
	}

	fmt.Println("Mock price tracker backend starting on :5000")
	fmt.Println("Jobs walk through:", script.Statuses)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	backend := mockbackend.New(mockbackend.WithScript(script))
	srv := &http.Server{
		Addr:              ":5000",
		Handler:           backend.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
