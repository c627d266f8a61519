// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package hostthread

import (
	"fmt"
	"math/bits"
	"strings"
)

// PriorityClass is the scheduling class of a thread.
type PriorityClass int

const (
	UnknownPriorityClass PriorityClass = iota
	IdlePriorityClass
	NormalPriorityClass
	RealTimePriorityClass
)

// MaxPriorityLevel is the highest level inside a priority class. Higher
// levels are clipped.
const MaxPriorityLevel uint8 = 15

func (c PriorityClass) String() string {
	switch c {
	case IdlePriorityClass:
		return "IdlePriorityClass"
	case NormalPriorityClass:
		return "NormalPriorityClass"
	case RealTimePriorityClass:
		return "RealTimePriorityClass"
	default:
		return "UnknownPriorityClass"
	}
}

// ParsePriorityClass accepts both the short ("RealTime") and the long
// ("RealTimePriorityClass") spelling.
func ParsePriorityClass(s string) (PriorityClass, error) {
	switch strings.TrimSuffix(s, "PriorityClass") {
	case "Idle":
		return IdlePriorityClass, nil
	case "Normal":
		return NormalPriorityClass, nil
	case "RealTime":
		return RealTimePriorityClass, nil
	}
	return UnknownPriorityClass, fmt.Errorf("unknown priority class %q", s)
}

// ClipPriorityLevel bounds level to MaxPriorityLevel.
func ClipPriorityLevel(level uint8) uint8 {
	if level > MaxPriorityLevel {
		return MaxPriorityLevel
	}
	return level
}

// CPUMask is a bitmask of the CPUs a thread may run on. Bit n is CPU n.
type CPUMask uint64

// UndefinedCPUs lets the thread run on any CPU.
const UndefinedCPUs CPUMask = 0

// CPUs returns the indices of the CPUs set in the mask.
func (m CPUMask) CPUs() []int {
	var cpus []int
	for v := uint64(m); v != 0; v &= v - 1 {
		cpus = append(cpus, bits.TrailingZeros64(v))
	}
	return cpus
}

func (m CPUMask) String() string {
	if m == UndefinedCPUs {
		return "any"
	}
	return fmt.Sprintf("%#x", uint64(m))
}
