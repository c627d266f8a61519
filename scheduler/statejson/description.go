// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package statejson

import (
	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

// ThreadDescription ...
type ThreadDescription struct {
	Name          string `json:"name"`
	ThreadNumber  uint32 `json:"threadNumber"`
	ID            string `json:"id"`
	Status        string `json:"status"`
	PriorityClass string `json:"priorityClass"`
	PriorityLevel uint8  `json:"priorityLevel"`
	CPUMask       string `json:"cpuMask"`
	StackSize     uint32 `json:"stackSize"`
	TimeoutMs     uint64 `json:"timeoutMs"`
}

// ServiceDescription describes a service and its threads for introspection
type ServiceDescription struct {
	Name       string              `json:"name"`
	Kind       string              `json:"kind"`
	MinThreads uint32              `json:"minThreads,omitempty"`
	MaxThreads uint32              `json:"maxThreads,omitempty"`
	Threads    []ThreadDescription `json:"threads"`
}

func (s *ServiceDescription) AsJSON() []byte {
	bytes, err := json.Marshal(s)
	if err != nil {
		log.Panicf("Failed to marshall service description: %s", err)
	}
	return bytes
}
