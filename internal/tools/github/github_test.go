package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftlabs/vpsagent/internal/tools"
	"github.com/riftlabs/vpsagent/pkg/models"
)

type fakeStore struct {
	token string
}

func (f *fakeStore) GitHubToken(ctx context.Context, userID string) (string, error) {
	return f.token, nil
}

func (f *fakeStore) BackupConfigs(ctx context.Context, serverID string) ([]*models.BackupConfig, error) {
	return nil, nil
}

func (f *fakeStore) CreateBackupConfig(ctx context.Context, config *models.BackupConfig) error {
	return nil
}

func TestGetRepoSendsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"full_name":"octocat/hello"}`))
	}))
	defer server.Close()

	original := apiBase
	apiBase = server.URL
	defer func() { apiBase = original }()

	sess := &tools.Session{UserID: "u1", Store: &fakeStore{token: "ghp_example"}}
	tool := NewGetRepoTool()

	result, err := tool.Execute(context.Background(), sess, json.RawMessage(`{"Owner":"octocat","Repo":"hello"}`))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "Bearer ghp_example", gotAuth)
	assert.Contains(t, result.Output, "octocat/hello")
}

func TestGetRepoMissingTokenErrors(t *testing.T) {
	sess := &tools.Session{UserID: "u1", Store: &fakeStore{token: ""}}
	tool := NewGetRepoTool()

	result, err := tool.Execute(context.Background(), sess, json.RawMessage(`{"Owner":"a","Repo":"b"}`))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no token configured")
}

func TestCallSurfacesNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not Found"}`))
	}))
	defer server.Close()

	original := apiBase
	apiBase = server.URL
	defer func() { apiBase = original }()

	sess := &tools.Session{UserID: "u1", Store: &fakeStore{token: "tok"}}
	tool := NewGetRepoTool()

	result, err := tool.Execute(context.Background(), sess, json.RawMessage(`{"Owner":"a","Repo":"b"}`))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "404")
}

func TestCallSetsAcceptAndUserAgent(t *testing.T) {
	var gotAccept, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"full_name":"octocat/hello"}`))
	}))
	defer server.Close()

	original := apiBase
	apiBase = server.URL
	defer func() { apiBase = original }()

	sess := &tools.Session{UserID: "u1", Store: &fakeStore{token: "tok"}}
	tool := NewGetRepoTool()

	_, err := tool.Execute(context.Background(), sess, json.RawMessage(`{"Owner":"octocat","Repo":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, "application/vnd.github.v3+json", gotAccept)
	assert.NotEmpty(t, gotUA)
}

func TestCreateFileFetchesExistingSHABeforeUpdate(t *testing.T) {
	var gotMethods []string
	var putBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethods = append(gotMethods, r.Method)
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"sha":"abc123"}`))
		case http.MethodPut:
			_ = json.NewDecoder(r.Body).Decode(&putBody)
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"content":{"sha":"def456"}}`))
		}
	}))
	defer server.Close()

	original := apiBase
	apiBase = server.URL
	defer func() { apiBase = original }()

	sess := &tools.Session{UserID: "u1", Store: &fakeStore{token: "tok"}}
	tool := NewCreateFileTool()

	params, _ := json.Marshal(map[string]string{
		"owner": "octocat", "repo": "hello", "path": "README.md",
		"content": "hi", "message": "update readme",
	})
	result, err := tool.Execute(context.Background(), sess, params)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Equal(t, []string{http.MethodGet, http.MethodPut}, gotMethods)
	assert.Equal(t, "abc123", putBody["sha"])
}

func TestCreateFileSkipsLookupWhenSHAProvided(t *testing.T) {
	var gotMethods []string
	var putBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethods = append(gotMethods, r.Method)
		_ = json.NewDecoder(r.Body).Decode(&putBody)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"content":{"sha":"def456"}}`))
	}))
	defer server.Close()

	original := apiBase
	apiBase = server.URL
	defer func() { apiBase = original }()

	sess := &tools.Session{UserID: "u1", Store: &fakeStore{token: "tok"}}
	tool := NewCreateFileTool()

	params, _ := json.Marshal(map[string]string{
		"owner": "octocat", "repo": "hello", "path": "README.md",
		"content": "hi", "message": "update readme", "sha": "preknown",
	})
	result, err := tool.Execute(context.Background(), sess, params)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Equal(t, []string{http.MethodPut}, gotMethods)
	assert.Equal(t, "preknown", putBody["sha"])
}

func TestGetFileDecodesBase64Content(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"content":"aGVsbG8gd29ybGQ=","encoding":"base64"}`))
	}))
	defer server.Close()

	original := apiBase
	apiBase = server.URL
	defer func() { apiBase = original }()

	sess := &tools.Session{UserID: "u1", Store: &fakeStore{token: "tok"}}
	tool := NewGetFileTool()

	result, err := tool.Execute(context.Background(), sess, json.RawMessage(`{"Owner":"a","Repo":"b","Path":"README.md"}`))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "hello world", result.Output)
}
