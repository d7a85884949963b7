// Package dashboard provides the embedded web UI assets for PriceWatch.
//
// The pages are embedded at compile time for single-binary deployment and
// served by the server package. They talk to the dashboard's /ui API only;
// backend calls and job polling happen server-side.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - price trend chart, job buttons and live session table
//	  settings.html - LINE notification toggles
//
//go:embed assets/*
var Assets embed.FS
