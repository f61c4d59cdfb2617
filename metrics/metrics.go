package metrics

import (
	"context"
	"strings"
	"time"
)

// BucketSize is the width of one metric bucket
const BucketSize = time.Hour

// Kind is what happened to an event
type Kind int

const (
	Received Kind = iota + 1
	Processed
	Failed
	Retried
	Duplicate
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case Received:
		return "received"
	case Processed:
		return "processed"
	case Failed:
		return "failed"
	case Retried:
		return "retried"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// ErrorClass groups failures for the health breakdown. The zero value means no error.
type ErrorClass int

const (
	Unauthorized ErrorClass = iota + 1
	NotFound
	ServerError
	Timeout
	OtherError
)

// String returns the string representation of the error class
func (c ErrorClass) String() string {
	switch c {
	case Unauthorized:
		return "unauthorized"
	case NotFound:
		return "not_found"
	case ServerError:
		return "server_error"
	case Timeout:
		return "timeout"
	case OtherError:
		return "other"
	default:
		return ""
	}
}

// Classify maps an error message to its class
func Classify(msg string) ErrorClass {
	if msg == "" {
		return 0
	}
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "unauthorized"), strings.Contains(m, "status 401"), strings.Contains(m, "status 403"):
		return Unauthorized
	case strings.Contains(m, "not found"), strings.Contains(m, "status 404"):
		return NotFound
	case strings.Contains(m, "timeout"), strings.Contains(m, "timed out"), strings.Contains(m, "deadline exceeded"):
		return Timeout
	case strings.Contains(m, "server error"), strings.Contains(m, "status 5"):
		return ServerError
	default:
		return OtherError
	}
}

// Sample is one recorded occurrence
type Sample struct {
	IntegrationID  string
	TenantID       string
	Kind           Kind
	ProcessingTime time.Duration
	ErrorClass     ErrorClass
	At             time.Time
}

// ErrorCounts is the per-class failure breakdown
type ErrorCounts struct {
	Unauthorized int64 `json:"unauthorized"`
	NotFound     int64 `json:"not_found"`
	ServerError  int64 `json:"server_error"`
	Timeout      int64 `json:"timeout"`
	Other        int64 `json:"other"`
}

// Add increments the counter for class
func (e *ErrorCounts) Add(class ErrorClass, n int64) {
	switch class {
	case Unauthorized:
		e.Unauthorized += n
	case NotFound:
		e.NotFound += n
	case ServerError:
		e.ServerError += n
	case Timeout:
		e.Timeout += n
	case OtherError:
		e.Other += n
	}
}

/* Bucket is the counter set of one integration for one BucketSize window
 * Only the bucket containing the current time is ever incremented
 */
type Bucket struct {
	IntegrationID    string
	TenantID         string
	Start            time.Time
	Received         int64
	Processed        int64
	Failed           int64
	Retried          int64
	Duplicate        int64
	ProcessingTimeMs int64
	Errors           ErrorCounts
}

// Apply adds a sample to the bucket
func (b *Bucket) Apply(s Sample) {
	switch s.Kind {
	case Received:
		b.Received++
	case Processed:
		b.Processed++
		b.ProcessingTimeMs += s.ProcessingTime.Milliseconds()
	case Failed:
		b.Failed++
	case Retried:
		b.Retried++
	case Duplicate:
		b.Duplicate++
	}
	b.Errors.Add(s.ErrorClass, 1)
}

// BucketStart returns the start of the bucket containing t
func BucketStart(t time.Time) time.Time {
	return t.UTC().Truncate(BucketSize)
}

/* Store persists buckets
 * Increment must be a single atomic write per sample, since many
 * processes record into the same bucket
 */
type Store interface {
	Increment(ctx context.Context, s Sample) error
	// Range returns the buckets of an integration whose start is within [from, to]
	Range(ctx context.Context, integrationID string, from, to time.Time) ([]Bucket, error)
}

// Observer receives every recorded sample, used to export metrics
type Observer interface {
	Observe(ctx context.Context, s Sample)
}
