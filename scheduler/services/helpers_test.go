// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"go.rtcore.io/scheduler/execinfo"
	"go.rtcore.io/scheduler/hostthread"
)

const (
	waitFor = 2 * time.Second
	tick    = time.Millisecond
)

// spyFacility records the configuration of every spawned thread and can be
// told to fail one spawn.
type spyFacility struct {
	*hostthread.Goroutines

	mutex   sync.Mutex
	configs []hostthread.Config
	failAt  int
}

func newSpyFacility() *spyFacility {
	return &spyFacility{Goroutines: hostthread.NewGoroutines(hostthread.NewDatabase()), failAt: -1}
}

func (f *spyFacility) Spawn(cfg hostthread.Config, body func(context.Context)) (hostthread.Handle, error) {
	f.mutex.Lock()
	n := len(f.configs)
	f.configs = append(f.configs, cfg)
	f.mutex.Unlock()

	if n == f.failAt {
		return nil, errors.New("resource temporarily unavailable")
	}
	return f.Goroutines.Spawn(cfg, body)
}

func (f *spyFacility) spawned() []hostthread.Config {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]hostthread.Config(nil), f.configs...)
}

// hangInMain blocks every Main call until the thread is killed and signals
// entered the first time.
func hangInMain(entered chan<- struct{}) func(info *execinfo.ExecutionInfo) error {
	return func(info *execinfo.ExecutionInfo) error {
		if info.Stage() == execinfo.MainStage {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-info.Context().Done()
		}
		return nil
	}
}

func waitEntered(t *testing.T, entered <-chan struct{}) {
	t.Helper()
	select {
	case <-entered:
	case <-time.After(waitFor):
		assert.FailNow(t, "callback never reached the Main stage")
	}
}

func assertEpisodes(t *testing.T, episodes [][]execinfo.Stage) {
	t.Helper()
	for i, episode := range episodes {
		if !assert.NotEmpty(t, episode) {
			continue
		}
		assert.Equal(t, execinfo.StartupStage, episode[0], "episode %d", i)
		terminals := 0
		for _, s := range episode {
			if s == execinfo.TerminationStage || s == execinfo.BadTerminationStage {
				terminals++
			}
		}
		assert.Equal(t, 1, terminals, "episode %d: %v", i, episode)
		last := episode[len(episode)-1]
		assert.True(t, last == execinfo.TerminationStage || last == execinfo.BadTerminationStage, "episode %d ends with %s", i, last)
	}
}
