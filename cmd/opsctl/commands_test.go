package main

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filmtrack/backend/internal/httpapi"
	"filmtrack/backend/internal/service"
	"filmtrack/backend/internal/store/memory"
)

func newBackend(t *testing.T) string {
	t.Helper()
	repo := memory.NewSeeded()
	svc := service.New(repo, nil, service.Options{})
	auth := httpapi.NewAuthManager("opsctl-test-secret-with-32-characters", time.Hour, repo)
	srv := httptest.NewServer(httpapi.New(svc, auth, "*", nil).Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("OPSCTL_TOKEN", "")
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLoginThenListLowStock(t *testing.T) {
	server := newBackend(t)

	out, err := run(t, "--server", server, "login", "-u", "viewer", "-p", "viewer123")
	require.NoError(t, err)
	token := strings.TrimSpace(out)
	require.NotEmpty(t, token)

	out, err = run(t, "--server", server, "--token", token, "materials", "--low")
	require.NoError(t, err)
	assert.Contains(t, out, "MAS200")
	assert.NotContains(t, out, "HAM001")

	out, err = run(t, "--server", server, "--token", token, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "low stock:          1")
}

func TestStockOutRecordsSignedEntry(t *testing.T) {
	server := newBackend(t)

	out, err := run(t, "--server", server, "login", "-u", "operator", "-p", "operator123")
	require.NoError(t, err)
	token := strings.TrimSpace(out)

	out, err = run(t, "--server", server, "--token", token, "stock", "out", "mat-gas", "12.5", "--reference", "shift-b")
	require.NoError(t, err)
	assert.Contains(t, out, "mat-gas out -12.5")

	out, err = run(t, "--server", server, "--token", token, "costs")
	require.NoError(t, err)
	assert.Contains(t, out, "TOTAL")
}

func TestViewerCannotMoveStock(t *testing.T) {
	server := newBackend(t)

	out, err := run(t, "--server", server, "login", "-u", "viewer", "-p", "viewer123")
	require.NoError(t, err)

	_, err = run(t, "--server", server, "--token", strings.TrimSpace(out), "stock", "in", "mat-gas", "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestCommandsRequireToken(t *testing.T) {
	_, err := run(t, "--server", "http://127.0.0.1:1", "materials")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no token")
}

func TestStockRejectsNonNumericQuantity(t *testing.T) {
	_, err := run(t, "--token", "x", "stock", "in", "mat-gas", "lots")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a number")
}
