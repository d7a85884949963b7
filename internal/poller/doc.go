// Package poller provides the HTTP transport and the status polling loop
// used by PriceWatch.
//
// This package is internal to PriceWatch. It knows nothing about the price
// tracker API: callers supply the query and the classification.
//
// The main components are:
//
//   - [Client]: HTTP client wrapper with timeout and size limits
//   - [Loop]: queries a job status on a fixed interval until a terminal
//     [Verdict], the check limit, or cancellation
//   - [Check]: the result of one status query, delivered on [Loop.Checks]
//
// Users of the pricewatch library should not need to interact with this
// package directly.
package poller
