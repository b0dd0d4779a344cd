package batch

import "github.com/kailas-cloud/lexdex/internal/domain"

// ItemStatus is the processing outcome of a single bulk item.
type ItemStatus string

// Bulk item status values.
const (
	StatusOK    ItemStatus = "ok"
	StatusError ItemStatus = "error"
)

// Result is the outcome of one document in a bulk admin operation.
// Each document is handled atomically; one failure never affects its neighbours.
type Result struct {
	id     string
	status ItemStatus
	err    error
}

// NewOK creates a successful result.
func NewOK(id string) Result { return Result{id: id, status: StatusOK} }

// NewError creates a failed result.
func NewError(id string, err error) Result { return Result{id: id, status: StatusError, err: err} }

// ID returns the document identifier.
func (r Result) ID() string { return r.id }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// Reason returns the machine reason code of a failed item, "" on success.
func (r Result) Reason() domain.ReasonCode { return domain.ReasonOf(r.err) }

// Count tallies succeeded and failed results.
func Count(results []Result) (succeeded, failed int) {
	for _, r := range results {
		if r.status == StatusOK {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}
