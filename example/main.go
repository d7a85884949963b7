package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/pricewatch"
)

func main() {
	// start mock backend (see mock_server.go)
	go StartMockBackend(":5000")
	time.Sleep(100 * time.Millisecond)

	// localhost gets no base path; a deployed API Gateway would get "/dev"
	client, err := pricewatch.NewClient("http://localhost:5000",
		pricewatch.WithTimeout(5*time.Second),
	)
	if err != nil {
		slog.Error("failed to create client", "error", err)
		os.Exit(1)
	}

	// print every session event alongside the browser UI
	logEvent := func(ev pricewatch.Event) {
		slog.Info("session event", "kind", ev.Kind, "type", ev.Type, "message", ev.Message)
	}

	d, err := pricewatch.NewDashboard(client,
		pricewatch.WithPort(8080),
		pricewatch.WithTitle("PriceWatch Demo"),
		pricewatch.WithTrackerOptions(
			pricewatch.WithPollingInterval(3*time.Second),
			pricewatch.WithMaxChecks(20),
			pricewatch.WithEventCallback(logEvent),
		),
	)
	if err != nil {
		slog.Error("failed to create dashboard", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  PriceWatch Demo")
	fmt.Println()
	fmt.Println("  Open http://localhost:8080 in your browser")
	fmt.Println()
	fmt.Println("  Mock backend on :5000")
	fmt.Println("    products: Inspiron 14 (2 models), XPS 13")
	fmt.Println("    jobs:     check_price, notification_test (3s polling, 20 checks)")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Start(ctx); err != nil {
		slog.Error("pricewatch error", "error", err)
		os.Exit(1)
	}
}
