package tarpit

import "time"

// Stats is a point-in-time snapshot of the server's counters.
type Stats struct {
	// Clients is the number of connections currently held.
	Clients uint64
	// TotalClients counts every admission since the server was created.
	TotalClients uint64
	// TotalBytes counts every banner byte delivered since the server was
	// created.
	TotalBytes uint64
	// Uptime is the time since the server was created.
	Uptime time.Duration
}

// Stats returns a snapshot of the server's counters. Unlike the rest of
// the server state, which belongs to the event loop, the counters are
// atomics, so snapshots may be taken from any goroutine.
func (x *Server) Stats() Stats {
	return Stats{
		Clients:      x.clients.Load(),
		TotalClients: x.totalClients.Load(),
		TotalBytes:   x.totalBytes.Load(),
		Uptime:       time.Since(x.epoch),
	}
}

// logStats emits the aggregate counters as a structured event, as done
// on info signals and at shutdown.
func (x *Server) logStats(msg string) {
	s := x.Stats()
	x.log.Info().
		Dur(`uptime`, s.Uptime).
		Uint64(`clients`, s.Clients).
		Uint64(`total_clients`, s.TotalClients).
		Uint64(`total_bytes`, s.TotalBytes).
		Log(msg)
}
