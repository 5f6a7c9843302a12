// Package timeouts defines shared timeout constants used across the service.
package timeouts

import "time"

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// StoreCall caps a single read or write against the record store.
const StoreCall = 2 * time.Second

// Publish caps a historian or archive write, which run off the request path.
const Publish = 2 * time.Second

// SocketWrite caps one snapshot write to a websocket client.
const SocketWrite = 3 * time.Second

// SocketIdle is how long a websocket may go without traffic. Sockets are
// pinged at half this interval.
const SocketIdle = 60 * time.Second
