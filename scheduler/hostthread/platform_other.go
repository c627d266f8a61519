// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package hostthread

import (
	log "github.com/sirupsen/logrus"
)

func applyPlatform(cfg Config) (int, error) {
	if cfg.CPUMask != UndefinedCPUs || cfg.PriorityClass == IdlePriorityClass || cfg.PriorityClass == RealTimePriorityClass {
		log.WithField("thread", cfg.Name).Debug("Thread affinity and priority are not supported on this platform")
	}
	return 0, nil
}
