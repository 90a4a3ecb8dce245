// Package federation implements the slave side of the broker
// hierarchy: the connection to an upstream master, the jobs forwarded
// to it, and the worker loop that keeps the link alive.
package federation

import (
	"github.com/marmos91/sbrokerd/internal/wire"
)

// Job is one request queued for the upstream master: an already
// encoded command body plus a completion channel the dispatcher reads
// from once the round trip finishes (or the link drops).
type Job struct {
	Command wire.Command
	Body    []byte

	// Done receives exactly one Result once the job is resolved,
	// whether by a real response, a connection failure (EIO-flavored),
	// or removePending draining the queue on shutdown.
	Done chan Result
}

// Result is what a Job's Done channel receives.
type Result struct {
	Status wire.Status
	Body   []byte
	Err    error
}

// NewJob builds a job with an unbuffered-safe completion channel.
func NewJob(cmd wire.Command, body []byte) *Job {
	return &Job{Command: cmd, Body: body, Done: make(chan Result, 1)}
}
