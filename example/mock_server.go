package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jpalmerr/pricewatch/internal/mockbackend"
)

// demoScript walks a job through a realistic ECS lifecycle. Each status is
// reported for one status query, so with the demo's 3s polling a job takes
// roughly half a minute.
var demoScript = mockbackend.Script{
	Statuses: []string{
		"PROVISIONING", "PENDING", "PENDING", "ACTIVATING",
		"RUNNING", "RUNNING", "RUNNING", "RUNNING",
		"DEACTIVATING", "STOPPING", "STOPPED",
	},
	StopReason: mockbackend.CleanStopReason,
	ExitCode:   0,
}

// StartMockBackend runs an in-memory price tracker backend on addr.
// Call this in a goroutine before creating the PriceWatch client.
func StartMockBackend(addr string) {
	backend := mockbackend.New(
		mockbackend.WithScript(demoScript),
		mockbackend.WithLogger(slog.Default().With("component", "mock")),
	)

	srv := &http.Server{
		Addr:              addr,
		Handler:           backend.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("mock server error", "error", err)
	}
}
