// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.rtcore.io/scheduler/errorkind"
)

func TestWriteAndRead(t *testing.T) {
	d := NewDatabase()
	require.NoError(t, d.Write("Timeout", 1000))
	require.NoError(t, d.Write("PriorityClass", "RealTime"))
	require.NoError(t, d.Write("PriorityLevel", -1))
	require.NoError(t, d.Write("CPUMask", "0xF"))

	assert.True(t, d.Exists("Timeout"))
	assert.False(t, d.Exists("Timeot"))

	timeout, err := d.Uint64("Timeout")
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), timeout)

	class, err := d.String("PriorityClass")
	require.NoError(t, err)
	assert.Equal(t, "RealTime", class)

	level, err := d.Int64("PriorityLevel")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), level)

	mask, err := d.Uint64("CPUMask")
	require.NoError(t, err)
	assert.Equal(t, uint64(0xF), mask)
}

func TestMissingAndMistypedKeys(t *testing.T) {
	d := NewDatabase()
	require.NoError(t, d.Write("Negative", -5))
	require.NoError(t, d.Write("Name", "abc"))

	_, err := d.Uint64("Timeout")
	assert.ErrorIs(t, err, errorkind.ErrParameters)

	_, err = d.Uint64("Negative")
	assert.ErrorIs(t, err, errorkind.ErrParameters)

	_, err = d.Int64("Name")
	assert.ErrorIs(t, err, errorkind.ErrParameters)

	_, err = d.Rows("Name")
	assert.NoError(t, err, "a string is parsed as a one-cell matrix")

	_, err = d.Rows("Negative")
	assert.ErrorIs(t, err, errorkind.ErrParameters)

	assert.ErrorIs(t, d.Write("", 1), errorkind.ErrParameters)
}

func TestRows(t *testing.T) {
	d := NewDatabase()
	require.NoError(t, d.Write("PrioritiesClass", [][]any{{0, "Idle"}, {1, "Normal"}}))
	require.NoError(t, d.Write("CPUMasks", "0, 0x1; 2, 0x4"))

	rows, err := d.Rows("PrioritiesClass")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"0", "Idle"}, {"1", "Normal"}}, rows)

	rows, err = d.Rows("CPUMasks")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"0", "0x1"}, {"2", "0x4"}}, rows)
}

func TestLoadFileAndSub(t *testing.T) {
	d, err := Load("testdata/services.yaml", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Echo", "Pool"}, d.Blocks())

	echo := d.Sub("Echo")
	timeout, err := echo.Uint64("Timeout")
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), timeout)
	mask, err := echo.Uint64("CPUMask")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), mask)

	pool := d.Sub("Pool")
	rows, err := pool.Rows("PrioritiesClass")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"0", "Idle"}, {"2", "RealTime"}}, rows)
	assert.False(t, pool.Exists("MinNumberOfThreads"))
}

func TestLoadEnvironmentOverlay(t *testing.T) {
	t.Setenv("RTCORE_TEST_Echo__Timeout", "250")
	t.Setenv("RTCORE_TEST_Extra__MaxNumberOfThreads", "7")

	d, err := Load("testdata/services.yaml", "RTCORE_TEST_")
	require.NoError(t, err)

	timeout, err := d.Sub("Echo").Uint64("Timeout")
	require.NoError(t, err)
	assert.Equal(t, uint64(250), timeout)

	maxThreads, err := d.Uint64("Extra.MaxNumberOfThreads")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), maxThreads)

	// Keys not overridden by the environment survive.
	level, err := d.Sub("Echo").Int64("PriorityLevel")
	require.NoError(t, err)
	assert.Equal(t, int64(3), level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("testdata/absent.yaml", "")
	assert.Error(t, err)
}
