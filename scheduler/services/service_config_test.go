// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.rtcore.io/scheduler/config"
	"go.rtcore.io/scheduler/errorkind"
	"go.rtcore.io/scheduler/hostthread"
	"go.rtcore.io/scheduler/testdata"
)

func database(t *testing.T, values map[string]any) *config.Database {
	t.Helper()
	data := config.NewDatabase()
	for k, v := range values {
		require.NoError(t, data.Write(k, v))
	}
	return data
}

func TestServiceConfigInitialise(t *testing.T) {
	cfg := DefaultServiceConfig()
	err := cfg.Initialise(database(t, map[string]any{
		TimeoutKey:       250,
		PriorityClassKey: "RealTimePriorityClass",
		PriorityLevelKey: 9,
		CPUMaskKey:       "0xf0",
		StackSizeKey:     1 << 20,
	}))
	require.NoError(t, err)
	assert.Equal(t, ServiceConfig{
		Timeout:       250 * time.Millisecond,
		PriorityClass: hostthread.RealTimePriorityClass,
		PriorityLevel: 9,
		CPUMask:       0xf0,
		StackSize:     1 << 20,
	}, cfg)
}

func TestServiceConfigInitialiseKeepsOptionalKeys(t *testing.T) {
	cfg := DefaultServiceConfig()
	cfg.PriorityLevel = 4
	require.NoError(t, cfg.Initialise(database(t, map[string]any{TimeoutKey: 0})))
	assert.Equal(t, time.Duration(0), cfg.Timeout)
	assert.Equal(t, uint8(4), cfg.PriorityLevel)
	assert.Equal(t, hostthread.NormalPriorityClass, cfg.PriorityClass)
}

func TestServiceConfigInitialiseRejects(t *testing.T) {
	cases := map[string]map[string]any{
		"missing timeout":   {PriorityLevelKey: 1},
		"negative timeout":  {TimeoutKey: -1},
		"unknown class":     {TimeoutKey: 10, PriorityClassKey: "Urgent"},
		"level overflow":    {TimeoutKey: 10, PriorityLevelKey: 300},
		"stack size string": {TimeoutKey: 10, StackSizeKey: "big"},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultServiceConfig()
			err := cfg.Initialise(database(t, values))
			assert.ErrorIs(t, err, errorkind.ErrParameters)
			assert.Equal(t, DefaultServiceConfig(), cfg)
		})
	}
}

func TestSingleThreadServiceInitialise(t *testing.T) {
	svc := NewSingleThreadService(testdata.NewRecorder(nil), WithName("Echo"))
	data, err := config.Load("../config/testdata/services.yaml", "")
	require.NoError(t, err)

	require.NoError(t, svc.Initialise(data.Sub("Echo")))
	assert.Equal(t, time.Second, svc.Timeout())
	assert.Equal(t, hostthread.NormalPriorityClass, svc.PriorityClass())
	assert.Equal(t, uint8(3), svc.PriorityLevel())
	assert.Equal(t, hostthread.CPUMask(3), svc.CPUMask())

	assert.ErrorIs(t, svc.Initialise(config.NewDatabase()), errorkind.ErrParameters)
	assert.Equal(t, time.Second, svc.Timeout())
}

func TestInitialiseWhileRunningIsIllegal(t *testing.T) {
	entered := make(chan struct{}, 1)
	svc := NewSingleThreadService(testdata.NewRecorder(hangInMain(entered)))
	svc.SetTimeout(20 * time.Millisecond)
	require.NoError(t, svc.Start())
	defer svc.Close()
	waitEntered(t, entered)

	err := svc.Initialise(database(t, map[string]any{TimeoutKey: 5}))
	assert.ErrorIs(t, err, errorkind.ErrIllegalOperation)
	assert.Equal(t, 20*time.Millisecond, svc.Timeout())
}
