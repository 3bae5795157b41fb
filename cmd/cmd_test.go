package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// MockClient implements ClientInterface
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Stop(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockClient) Reload(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestRunReload_Success(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("Reload", mock.Anything).Return(nil)

	var buf bytes.Buffer
	err := runReload(context.Background(), mockClient, &buf)

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "reload requested")
	mockClient.AssertExpectations(t)
}

func TestRunReload_Failure(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("Reload", mock.Anything).Return(errors.New("daemon not running"))

	var buf bytes.Buffer
	err := runReload(context.Background(), mockClient, &buf)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "daemon not running")
	assert.Empty(t, buf.String())
}

func TestRunStop(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("Stop", mock.Anything).Return(nil).Once()
	mockClient.On("Stop", mock.Anything).Return(errors.New("no such process")).Once()

	var buf bytes.Buffer
	assert.NoError(t, runStop(context.Background(), mockClient, &buf))
	assert.Contains(t, buf.String(), "Stop signal sent")
	assert.Error(t, runStop(context.Background(), mockClient, &buf))
	mockClient.AssertExpectations(t)
}

func TestRunValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wisniff.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
wisniff:
  radio:
    driver: sim
    channel: 11
  link:
    type: tcp
`), 0644))

	var buf bytes.Buffer
	require.NoError(t, runValidate(path, true, &buf))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "VALID: driver=sim channel=11 link=tcp"))

	var printed map[string]map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out[strings.Index(out, "\n")+1:]), &printed))
	assert.Equal(t, "sim", printed["wisniff"]["radio"].(map[string]any)["driver"])
}

func TestRunValidate_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("wisniff:\n  radio:\n    channel: 99\n"), 0644))

	var buf bytes.Buffer
	err := runValidate(path, false, &buf)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID")
}

func TestPrintChannels(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printChannels(&buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 15)
	assert.Contains(t, lines[1], "2412")
	assert.Contains(t, lines[14], "2484")
}
