// Package tarpit implements a TCP tarpit: a server that accepts
// connections, never speaks a real protocol, and instead holds each
// connection open while dribbling an endless banner to it at a crawl,
// wasting a scanner's time at near-zero local cost.
//
// # Scheduling
//
// Connections live on a timer wheel of delay-seconds slots. A one second
// ticker activates one slot per firing, and each connection in the active
// slot receives exactly one non-blocking write attempt, so every
// connection is serviced once per rotation and the per-tick workload
// stays near total/delay connections no matter how many are held.
//
// Backpressure is the expected steady state rather than an error. A
// write that would block only counts against the connection's timeout
// budget; eviction happens once delay times the consecutive would-block
// count reaches the timeout, or on a genuine socket error.
//
// # Admission
//
// Admission capacity is reserved before accept, and only once a
// connection is already pending on the listener, so an idle listener
// reserves nothing. At the MaxClients ceiling the acceptors park, and
// surplus connection attempts wait in the OS listen backlog; nothing is
// accepted merely to be turned away.
//
// # Concurrency
//
// A single event-loop goroutine owns the wheel, the connection records,
// and the write driver; per-listener acceptor goroutines only accept and
// hand sockets to the loop. [Server.Stats] may be called from any
// goroutine.
//
// # Usage
//
//	srv, err := tarpit.New(tarpit.Config{
//		Addresses:  []string{"0.0.0.0:2222"},
//		MaxClients: 4096,
//	})
//	if err != nil {
//		// invalid configuration
//	}
//	ctx := context.Background()
//	if err := srv.Listen(ctx); err != nil {
//		// could not bind
//	}
//	err = srv.Run(ctx) // blocks until SIGINT/SIGTERM or ctx cancels
package tarpit
