// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package hostthread

import (
	"sort"
	"sync"
	"time"
)

// ThreadInfo is a snapshot of a registered thread.
type ThreadInfo struct {
	ID            ThreadIdentifier `json:"id"`
	Name          string           `json:"name"`
	PriorityClass string           `json:"priorityClass"`
	PriorityLevel uint8            `json:"priorityLevel"`
	CPUMask       string           `json:"cpuMask"`
	StackSize     uint32           `json:"stackSize"`
	OSThreadID    int              `json:"osThreadId,omitempty"`
	Started       time.Time        `json:"started"`
}

// Database is a registry of live threads.
type Database struct {
	mutex   sync.Mutex
	threads map[ThreadIdentifier]ThreadInfo
}

// NewDatabase returns an empty registry.
func NewDatabase() *Database {
	return &Database{threads: make(map[ThreadIdentifier]ThreadInfo)}
}

func (d *Database) add(info ThreadInfo) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.threads[info.ID] = info
}

func (d *Database) setOSThreadID(id ThreadIdentifier, tid int) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if info, ok := d.threads[id]; ok {
		info.OSThreadID = tid
		d.threads[id] = info
	}
}

func (d *Database) remove(id ThreadIdentifier) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	delete(d.threads, id)
}

// Get returns the entry for id, if registered.
func (d *Database) Get(id ThreadIdentifier) (ThreadInfo, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	info, ok := d.threads[id]
	return info, ok
}

// Len returns the number of registered threads.
func (d *Database) Len() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.threads)
}

// List returns the registered threads ordered by start time then name.
func (d *Database) List() []ThreadInfo {
	d.mutex.Lock()
	list := make([]ThreadInfo, 0, len(d.threads))
	for _, info := range d.threads {
		list = append(list, info)
	}
	d.mutex.Unlock()

	sort.Slice(list, func(i, j int) bool {
		if !list[i].Started.Equal(list[j].Started) {
			return list[i].Started.Before(list[j].Started)
		}
		return list[i].Name < list[j].Name
	})
	return list
}
