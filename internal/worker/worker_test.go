package worker

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimdaga/givethnotes/internal/blocks"
	"github.com/jimdaga/givethnotes/internal/provisioning"
)

type fakeProvisioner struct {
	calls int
	res   provisioning.Result
	err   error
}

func (f *fakeProvisioner) RunIfNeeded(context.Context) (provisioning.Result, error) {
	f.calls++
	return f.res, f.err
}

type fakeReconciler struct {
	calls int
	res   blocks.ReconcileResult
	err   error
}

func (f *fakeReconciler) Reconcile(context.Context) (blocks.ReconcileResult, error) {
	f.calls++
	return f.res, f.err
}

func TestProvisionTaskCallsEngine(t *testing.T) {
	var buf bytes.Buffer
	p := &fakeProvisioner{res: provisioning.Result{RunID: "run-1", Created: 3}}
	mux := NewMux(NewLoggerTo(&buf, "info", "json"), p, &fakeReconciler{})

	err := mux.ProcessTask(context.Background(), asynq.NewTask(TaskProvisionEntries, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls)
	assert.Contains(t, buf.String(), `"run_id":"run-1"`)
	assert.Contains(t, buf.String(), `"created":3`)
}

func TestProvisionTaskFailureIsRetryable(t *testing.T) {
	boom := errors.New("db down")
	p := &fakeProvisioner{err: boom}
	mux := NewMux(NewLoggerTo(&bytes.Buffer{}, "info", "text"), p, &fakeReconciler{})

	err := mux.ProcessTask(context.Background(), asynq.NewTask(TaskProvisionEntries, nil))
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestReconcileTask(t *testing.T) {
	var buf bytes.Buffer
	r := &fakeReconciler{res: blocks.ReconcileResult{Checked: 4, Repaired: []uint{7}}}
	mux := NewMux(NewLoggerTo(&buf, "info", "text"), &fakeProvisioner{}, r)

	require.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask(TaskReconcileBlocks, nil)))
	assert.Equal(t, 1, r.calls)
	assert.Contains(t, buf.String(), "Reconciled block positions")
}

func TestTaskOptions(t *testing.T) {
	assert.Equal(t, TaskProvisionEntries, provisionTask().Type())
	assert.Equal(t, TaskReconcileBlocks, reconcileTask().Type())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", ParseLevel("debug").String())
	assert.Equal(t, "WARN", ParseLevel("Warning").String())
	assert.Equal(t, "ERROR", ParseLevel("error").String())
	assert.Equal(t, "INFO", ParseLevel("nonsense").String())
}

func TestNewLoggerToFormats(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerTo(&buf, "debug", "json").Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	NewLoggerTo(&buf, "warn", "text").Info("hidden")
	assert.Empty(t, buf.String())
}
