// Package store provides storage and pub/sub functionality for polling sessions.
//
// This package is internal to PriceWatch and keeps job polling sessions in an
// in-memory go-memdb database indexed by id, job handle and job kind. It
// implements a publish-subscribe pattern for real-time updates to connected
// dashboard clients.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemDBStore]: go-memdb implementation of Store with pub/sub
//   - [Session]: Storage representation of a polling session
//
// The store is designed for concurrent access with proper synchronization.
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers will miss updates rather than block the system).
//
// Users of the pricewatch library should not need to interact with this
// package directly. Storage is managed internally by the dashboard.
package store
