// Copyright 2025 James Ross
// Package osmoerr classifies handler-facing errors as retryable or
// permanent so job handlers and FrontendWorker's Outcome reporting share one
// judgement about whether a failure is worth a broker requeue (§7 error
// categories).
package osmoerr

import "errors"

type kind int

const (
	kindRetryable kind = iota
	kindPermanent
)

type classified struct {
	kind kind
	err  error
}

func (c *classified) Error() string { return c.err.Error() }
func (c *classified) Unwrap() error { return c.err }

// Retryable marks err as transient infrastructure failure (§7 category 2):
// a Store/Broker/FileStore disconnect a broker requeue can paper over.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &classified{kind: kindRetryable, err: err}
}

// Permanent marks err as terminal (§7 categories 1, 3, 4): retrying the job
// would never succeed, so the dispatch loop should go straight to
// handle_failure instead of spending retries on it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &classified{kind: kindPermanent, err: err}
}

// IsPermanent reports whether err, or something it wraps, was marked
// Permanent. Unclassified errors default to retryable, matching the
// broker's own stance: assume transient, let max_retry_per_job cap the
// damage.
func IsPermanent(err error) bool {
	var c *classified
	if errors.As(err, &c) {
		return c.kind == kindPermanent
	}
	return false
}
