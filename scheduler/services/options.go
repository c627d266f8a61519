// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"go.rtcore.io/scheduler/hostthread"
)

type options struct {
	facility     hostthread.Facility
	name         string
	service      string
	threadNumber uint32
}

// Option customises a thread or a service at construction.
type Option func(*options)

// WithFacility spawns threads through f instead of hostthread.Default().
func WithFacility(f hostthread.Facility) Option {
	return func(o *options) {
		o.facility = f
	}
}

// WithName names the service. Pool threads are named "<name>_<n>".
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithThreadNumber sets the number reported to the callback during Startup.
func WithThreadNumber(n uint32) Option {
	return func(o *options) {
		o.threadNumber = n
	}
}

func newOptions(opts []Option) options {
	o := options{facility: hostthread.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.service == "" {
		o.service = o.name
	}
	return o
}

// withService labels the logs and metrics of a pool thread with its pool.
func withService(service string) Option {
	return func(o *options) {
		o.service = service
	}
}
