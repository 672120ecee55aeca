// Package iox holds cleanup helpers for files, decoders, and loggers whose
// close or flush errors cannot change the outcome.
package iox

import "io"

// DiscardClose closes c and drops the error. Only for read paths; writers
// must check Close.
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// DiscardErr calls fn and drops its error, e.g. a logger Sync on exit.
//
//	defer iox.DiscardErr(logger.Sync)
func DiscardErr(fn func() error) { _ = fn() }
