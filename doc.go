// Package pricewatch is a client and dashboard for a laptop price tracker
// backend.
//
// The backend scrapes product prices on a schedule, keeps their history and
// sends LINE notifications when a watched price drops. PriceWatch reads that
// history, starts scrape jobs on demand and follows them until they stop,
// and manages which items are watched.
//
// # Quick Start
//
// Create a client and serve the dashboard with graceful shutdown:
//
//	client, _ := pricewatch.NewClient("https://abc123.execute-api.ap-northeast-1.amazonaws.com")
//	d, _ := pricewatch.NewDashboard(client, pricewatch.WithPort(8080))
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	d.Start(ctx) // blocks until context is cancelled
//
// # Jobs
//
// A [Tracker] starts a remote job and polls its status until the job stops,
// the backend no longer knows it, or the check limit is reached. Each
// session reports its progress as [Event] values and ends with exactly one
// terminal event and an [Outcome]:
//
//	tracker, _ := pricewatch.NewTracker(client,
//	    pricewatch.WithPollingInterval(10*time.Second),
//	    pricewatch.WithMaxChecks(60),
//	    pricewatch.WithEventCallback(func(ev pricewatch.Event) {
//	        log.Println(ev.Message)
//	    }),
//	)
//	outcome, err := tracker.Run(ctx, pricewatch.JobCheckPrice)
//
// A stopped job completed only if its stop reason is [CleanStopReason];
// any other stop reason, such as an out-of-memory kill, is a failure.
//
// # Notifications
//
// [Toggles] holds the per-item notification switches. At most
// [DefaultMaxEnabledToggles] items can be enabled at once; enabling one more
// is refused locally with [ErrToggleLimit] before any request is sent.
//
// # Architecture
//
// PriceWatch consists of several internal packages (under internal/):
//
//   - internal/poller: HTTP transport and the status polling loop
//   - internal/store: in-memory session store with pub/sub for live updates
//   - internal/server: HTTP server with the UI API and Server-Sent Events
//   - internal/mockbackend: in-memory backend used by tests and examples
//   - dashboard: embedded web UI assets
//   - config: YAML configuration for the pricewatch binary
//
// The internal packages are not part of the public API and may change
// without notice.
package pricewatch
