// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordStage(t *testing.T) {
	before := testutil.ToFloat64(ThreadStageCallsTotal.WithLabelValues("metrics_test", "Main"))
	RecordStage("metrics_test", "Main")
	RecordStage("metrics_test", "Main")
	assert.Equal(t, before+2, testutil.ToFloat64(ThreadStageCallsTotal.WithLabelValues("metrics_test", "Main")))
}

func TestRecordKillAndErrors(t *testing.T) {
	kills := testutil.ToFloat64(ThreadKillsTotal.WithLabelValues("metrics_test"))
	errs := testutil.ToFloat64(CallbackErrorsTotal.WithLabelValues("metrics_test"))

	RecordKill("metrics_test")
	RecordCallbackError("metrics_test")

	assert.Equal(t, kills+1, testutil.ToFloat64(ThreadKillsTotal.WithLabelValues("metrics_test")))
	assert.Equal(t, errs+1, testutil.ToFloat64(CallbackErrorsTotal.WithLabelValues("metrics_test")))
}

func TestPoolThreads(t *testing.T) {
	SetPoolThreads("metrics_test", 3)
	assert.Equal(t, float64(3), testutil.ToFloat64(PoolThreads.WithLabelValues("metrics_test")))
	SetPoolThreads("metrics_test", 2)
	assert.Equal(t, float64(2), testutil.ToFloat64(PoolThreads.WithLabelValues("metrics_test")))
}
