// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package errorkind defines the error taxonomy shared by the embedded services
// and the callbacks they drive.
package errorkind

import "errors"

// ErrIllegalOperation is returned on API misuse, e.g. starting a running thread.
var ErrIllegalOperation = errors.New("IllegalOperation")

// ErrParameters is returned on a bad or missing configuration value.
var ErrParameters = errors.New("ParametersError")

// ErrTimeout is returned when a bounded wait expired. Callbacks return it
// during the WaitRequest stage to signal that no request is pending yet.
var ErrTimeout = errors.New("Timeout")

// ErrFatal is returned on unrecoverable failures (construction, forced kill).
var ErrFatal = errors.New("FatalError")

// ErrCompleted is not a failure: a callback returns it to end the current
// episode cleanly.
var ErrCompleted = errors.New("Completed")

// Kind classifies an error returned by a service or a callback.
type Kind string

const (
	NoError          Kind = "NoError"
	IllegalOperation Kind = "IllegalOperation"
	ParametersError  Kind = "ParametersError"
	Timeout          Kind = "Timeout"
	FatalError       Kind = "FatalError"
	Completed        Kind = "Completed"
	Unknown          Kind = "Unknown"
)

// KindOf maps err to its Kind, looking through wrapped errors.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return NoError
	case errors.Is(err, ErrCompleted):
		return Completed
	case errors.Is(err, ErrTimeout):
		return Timeout
	case errors.Is(err, ErrIllegalOperation):
		return IllegalOperation
	case errors.Is(err, ErrParameters):
		return ParametersError
	case errors.Is(err, ErrFatal):
		return FatalError
	default:
		return Unknown
	}
}

// Cleared reports whether err lets a Main stage loop keep going: no error, or
// a Timeout meaning "no work yet".
func Cleared(err error) bool {
	return err == nil || errors.Is(err, ErrTimeout)
}
