package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake_policy.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func TestInvokeSuccess(t *testing.T) {
	script := writeScript(t, `echo "placing jobs for $1"
exit 0
`)
	inv := New(script, time.Second)
	err := inv.Invoke(context.Background(), "default", time.Unix(1000, 0))
	assert.NoError(t, err)
}

func TestInvokeNonzeroExit(t *testing.T) {
	script := writeScript(t, `echo "boom"
exit 1
`)
	inv := New(script, time.Second)
	err := inv.Invoke(context.Background(), "q2", time.Unix(1000, 0))
	require.Error(t, err)
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "q2", failure.Queue)
	assert.Contains(t, failure.Reason, "exit code 1")
}

func TestInvokeTimeout(t *testing.T) {
	script := writeScript(t, `sleep 5
exit 0
`)
	inv := New(script, 50*time.Millisecond)
	err := inv.Invoke(context.Background(), "default", time.Unix(1000, 0))
	require.Error(t, err)
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Contains(t, failure.Reason, "timed out")
}

func TestInvokeForkFailure(t *testing.T) {
	inv := New(filepath.Join(t.TempDir(), "does-not-exist"), time.Second)
	err := inv.Invoke(context.Background(), "default", time.Unix(1000, 0))
	require.Error(t, err)
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "fork failure", failure.Reason)
}
