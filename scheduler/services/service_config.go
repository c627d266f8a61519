// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"fmt"
	"math"
	"time"

	"go.rtcore.io/scheduler/config"
	"go.rtcore.io/scheduler/errorkind"
	"go.rtcore.io/scheduler/hostthread"
	"go.rtcore.io/scheduler/timeout"
)

// Configuration keys.
const (
	TimeoutKey             = "Timeout"
	PriorityClassKey       = "PriorityClass"
	PriorityLevelKey       = "PriorityLevel"
	CPUMaskKey             = "CPUMask"
	StackSizeKey           = "StackSize"
	NumberOfPoolThreadsKey = "NumberOfPoolThreads"
	MinNumberOfThreadsKey  = "MinNumberOfThreads"
	MaxNumberOfThreadsKey  = "MaxNumberOfThreads"
	PrioritiesClassKey     = "PrioritiesClass"
	PrioritiesLevelKey     = "PrioritiesLevel"
	StackSizesKey          = "StackSizes"
	CPUMasksKey            = "CPUMasks"
)

// ServiceConfig is the tuning applied to every thread a service owns.
type ServiceConfig struct {
	// Timeout bounds every state transition. 0 is infinite.
	Timeout       time.Duration
	PriorityClass hostthread.PriorityClass
	PriorityLevel uint8
	CPUMask       hostthread.CPUMask
	StackSize     uint32
}

// DefaultServiceConfig returns an infinite timeout at normal priority on any CPU.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Timeout:       timeout.Infinite,
		PriorityClass: hostthread.NormalPriorityClass,
		CPUMask:       hostthread.UndefinedCPUs,
	}
}

// Initialise reads the service keys. Timeout is required, the others keep
// their current value when absent. On error c is left unchanged.
func (c *ServiceConfig) Initialise(data config.StructuredData) error {
	next := *c

	ms, err := data.Uint64(TimeoutKey)
	if err != nil {
		return err
	}
	next.Timeout = timeout.FromMilliseconds(ms)

	if data.Exists(PriorityClassKey) {
		s, err := data.String(PriorityClassKey)
		if err != nil {
			return err
		}
		if next.PriorityClass, err = parsePriorityClass(s); err != nil {
			return err
		}
	}
	if data.Exists(PriorityLevelKey) {
		if next.PriorityLevel, err = readUint8(data, PriorityLevelKey); err != nil {
			return err
		}
	}
	if data.Exists(CPUMaskKey) {
		mask, err := data.Uint64(CPUMaskKey)
		if err != nil {
			return err
		}
		next.CPUMask = hostthread.CPUMask(mask)
	}
	if data.Exists(StackSizeKey) {
		if next.StackSize, err = readUint32(data, StackSizeKey); err != nil {
			return err
		}
	}

	*c = next
	return nil
}

func (c ServiceConfig) threadConfig(name string) hostthread.Config {
	return hostthread.Config{
		Name:          name,
		PriorityClass: c.PriorityClass,
		PriorityLevel: c.PriorityLevel,
		CPUMask:       c.CPUMask,
		StackSize:     c.StackSize,
	}
}

func parsePriorityClass(s string) (hostthread.PriorityClass, error) {
	class, err := hostthread.ParsePriorityClass(s)
	if err != nil {
		return hostthread.UnknownPriorityClass, fmt.Errorf("%v: %w", err, errorkind.ErrParameters)
	}
	return class, nil
}

func readUint8(data config.StructuredData, key string) (uint8, error) {
	v, err := data.Uint64(key)
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint8 {
		return 0, fmt.Errorf("%s %d out of range: %w", key, v, errorkind.ErrParameters)
	}
	return uint8(v), nil
}

func readUint32(data config.StructuredData, key string) (uint32, error) {
	v, err := data.Uint64(key)
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("%s %d out of range: %w", key, v, errorkind.ErrParameters)
	}
	return uint32(v), nil
}
