// Package github implements the github_* tool family: HTTPS calls to the
// GitHub REST API using a per-user token from the Store, never touching
// SSH.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/riftlabs/vpsagent/internal/tools"
	"github.com/riftlabs/vpsagent/pkg/models"
)

// apiBase is a var, not a const, so tests can point it at an httptest server.
var apiBase = "https://api.github.com"

var httpClient = &http.Client{Timeout: 20 * time.Second}

func call(ctx context.Context, sess *tools.Session, method, path string, query url.Values, body any) (*models.ToolResult, error) {
	token, err := sess.Store.GitHubToken(ctx, sess.UserID)
	if err != nil {
		return tools.ErrorResult("github: could not resolve token: " + err.Error()), nil
	}
	if token == "" {
		return tools.ErrorResult("github: no token configured for this user"), nil
	}
	if sess.APIKeyVault != nil {
		token, err = sess.APIKeyVault.DecryptString(token)
		if err != nil {
			return tools.ErrorResult("github: decrypt token: " + err.Error()), nil
		}
	}

	endpoint := apiBase + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return tools.ErrorResult("encode request body: " + err.Error()), nil
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return tools.ErrorResult("build request: " + err.Error()), nil
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "vpsagent/1.0")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return tools.ErrorResult("github request failed: " + err.Error()), nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return tools.ErrorResult("read response: " + err.Error()), nil
	}

	if resp.StatusCode >= 400 {
		return tools.ErrorResult(fmt.Sprintf("github api error (%d): %s", resp.StatusCode, string(respBody))), nil
	}
	return tools.TextResult(string(respBody)), nil
}

// SearchReposTool searches repositories.
type SearchReposTool struct{}

func NewSearchReposTool() *SearchReposTool { return &SearchReposTool{} }

func (t *SearchReposTool) Name() string        { return "github_search_repos" }
func (t *SearchReposTool) Description() string { return "Search GitHub repositories." }
func (t *SearchReposTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"query": {"type": "string"}}, "required": ["query"]}`)
}
func (t *SearchReposTool) RequiresApproval(json.RawMessage) bool { return false }
func (t *SearchReposTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	var p struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	return call(ctx, sess, http.MethodGet, "/search/repositories", url.Values{"q": {p.Query}}, nil)
}

// GetRepoTool fetches repository metadata.
type GetRepoTool struct{}

func NewGetRepoTool() *GetRepoTool { return &GetRepoTool{} }

func (t *GetRepoTool) Name() string        { return "github_get_repo" }
func (t *GetRepoTool) Description() string { return "Fetch a repository's metadata." }
func (t *GetRepoTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"owner": {"type": "string"}, "repo": {"type": "string"}}, "required": ["owner", "repo"]}`)
}
func (t *GetRepoTool) RequiresApproval(json.RawMessage) bool { return false }
func (t *GetRepoTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	var p struct{ Owner, Repo string }
	if err := json.Unmarshal(params, &p); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	return call(ctx, sess, http.MethodGet, fmt.Sprintf("/repos/%s/%s", p.Owner, p.Repo), nil, nil)
}

// ListContentsTool lists directory contents at a path.
type ListContentsTool struct{}

func NewListContentsTool() *ListContentsTool { return &ListContentsTool{} }

func (t *ListContentsTool) Name() string        { return "github_list_contents" }
func (t *ListContentsTool) Description() string { return "List a repository directory's contents." }
func (t *ListContentsTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"owner": {"type": "string"}, "repo": {"type": "string"}, "path": {"type": "string"}}, "required": ["owner", "repo"]}`)
}
func (t *ListContentsTool) RequiresApproval(json.RawMessage) bool { return false }
func (t *ListContentsTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	var p struct{ Owner, Repo, Path string }
	if err := json.Unmarshal(params, &p); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	return call(ctx, sess, http.MethodGet, fmt.Sprintf("/repos/%s/%s/contents/%s", p.Owner, p.Repo, strings.TrimPrefix(p.Path, "/")), nil, nil)
}

// GetFileTool fetches a single file's content, base64-decoded.
type GetFileTool struct{}

func NewGetFileTool() *GetFileTool { return &GetFileTool{} }

func (t *GetFileTool) Name() string        { return "github_get_file" }
func (t *GetFileTool) Description() string { return "Fetch and decode a single file's content." }
func (t *GetFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"owner": {"type": "string"}, "repo": {"type": "string"}, "path": {"type": "string"}}, "required": ["owner", "repo", "path"]}`)
}
func (t *GetFileTool) RequiresApproval(json.RawMessage) bool { return false }
func (t *GetFileTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	var p struct{ Owner, Repo, Path string }
	if err := json.Unmarshal(params, &p); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	result, err := call(ctx, sess, http.MethodGet, fmt.Sprintf("/repos/%s/%s/contents/%s", p.Owner, p.Repo, strings.TrimPrefix(p.Path, "/")), nil, nil)
	if err != nil || !result.Success {
		return result, err
	}

	var decoded struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := json.Unmarshal([]byte(result.Output), &decoded); err != nil {
		return tools.ErrorResult("decode file response: " + err.Error()), nil
	}
	if decoded.Encoding != "base64" {
		return tools.TextResult(decoded.Content), nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(decoded.Content, "\n", ""))
	if err != nil {
		return tools.ErrorResult("decode base64 content: " + err.Error()), nil
	}
	return tools.TextResult(string(raw)), nil
}

// SearchCodeTool searches code across GitHub.
type SearchCodeTool struct{}

func NewSearchCodeTool() *SearchCodeTool { return &SearchCodeTool{} }

func (t *SearchCodeTool) Name() string        { return "github_search_code" }
func (t *SearchCodeTool) Description() string { return "Search code across GitHub." }
func (t *SearchCodeTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"query": {"type": "string"}}, "required": ["query"]}`)
}
func (t *SearchCodeTool) RequiresApproval(json.RawMessage) bool { return false }
func (t *SearchCodeTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	var p struct{ Query string }
	if err := json.Unmarshal(params, &p); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	return call(ctx, sess, http.MethodGet, "/search/code", url.Values{"q": {p.Query}}, nil)
}

// ListCommitsTool lists recent commits.
type ListCommitsTool struct{}

func NewListCommitsTool() *ListCommitsTool { return &ListCommitsTool{} }

func (t *ListCommitsTool) Name() string        { return "github_list_commits" }
func (t *ListCommitsTool) Description() string { return "List recent commits on a repository." }
func (t *ListCommitsTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"owner": {"type": "string"}, "repo": {"type": "string"}}, "required": ["owner", "repo"]}`)
}
func (t *ListCommitsTool) RequiresApproval(json.RawMessage) bool { return false }
func (t *ListCommitsTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	var p struct{ Owner, Repo string }
	if err := json.Unmarshal(params, &p); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	return call(ctx, sess, http.MethodGet, fmt.Sprintf("/repos/%s/%s/commits", p.Owner, p.Repo), nil, nil)
}

// ListBranchesTool lists branches.
type ListBranchesTool struct{}

func NewListBranchesTool() *ListBranchesTool { return &ListBranchesTool{} }

func (t *ListBranchesTool) Name() string        { return "github_list_branches" }
func (t *ListBranchesTool) Description() string { return "List a repository's branches." }
func (t *ListBranchesTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"owner": {"type": "string"}, "repo": {"type": "string"}}, "required": ["owner", "repo"]}`)
}
func (t *ListBranchesTool) RequiresApproval(json.RawMessage) bool { return false }
func (t *ListBranchesTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	var p struct{ Owner, Repo string }
	if err := json.Unmarshal(params, &p); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	return call(ctx, sess, http.MethodGet, fmt.Sprintf("/repos/%s/%s/branches", p.Owner, p.Repo), nil, nil)
}

// ListIssuesTool lists issues.
type ListIssuesTool struct{}

func NewListIssuesTool() *ListIssuesTool { return &ListIssuesTool{} }

func (t *ListIssuesTool) Name() string        { return "github_list_issues" }
func (t *ListIssuesTool) Description() string { return "List a repository's issues." }
func (t *ListIssuesTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"owner": {"type": "string"}, "repo": {"type": "string"}, "state": {"type": "string", "enum": ["open", "closed", "all"]}}, "required": ["owner", "repo"]}`)
}
func (t *ListIssuesTool) RequiresApproval(json.RawMessage) bool { return false }
func (t *ListIssuesTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	var p struct{ Owner, Repo, State string }
	if err := json.Unmarshal(params, &p); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	state := p.State
	if state == "" {
		state = "open"
	}
	return call(ctx, sess, http.MethodGet, fmt.Sprintf("/repos/%s/%s/issues", p.Owner, p.Repo), url.Values{"state": {state}}, nil)
}

// CreateIssueTool opens a new issue.
type CreateIssueTool struct{}

func NewCreateIssueTool() *CreateIssueTool { return &CreateIssueTool{} }

func (t *CreateIssueTool) Name() string        { return "github_create_issue" }
func (t *CreateIssueTool) Description() string { return "Open a new issue on a repository." }
func (t *CreateIssueTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"owner": {"type": "string"}, "repo": {"type": "string"}, "title": {"type": "string"}, "body": {"type": "string"}}, "required": ["owner", "repo", "title"]}`)
}
func (t *CreateIssueTool) RequiresApproval(json.RawMessage) bool { return false }
func (t *CreateIssueTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	var p struct{ Owner, Repo, Title, Body string }
	if err := json.Unmarshal(params, &p); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	return call(ctx, sess, http.MethodPost, fmt.Sprintf("/repos/%s/%s/issues", p.Owner, p.Repo), nil,
		map[string]string{"title": p.Title, "body": p.Body})
}

// ListPullRequestsTool lists pull requests.
type ListPullRequestsTool struct{}

func NewListPullRequestsTool() *ListPullRequestsTool { return &ListPullRequestsTool{} }

func (t *ListPullRequestsTool) Name() string        { return "github_list_pull_requests" }
func (t *ListPullRequestsTool) Description() string { return "List a repository's pull requests." }
func (t *ListPullRequestsTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"owner": {"type": "string"}, "repo": {"type": "string"}, "state": {"type": "string", "enum": ["open", "closed", "all"]}}, "required": ["owner", "repo"]}`)
}
func (t *ListPullRequestsTool) RequiresApproval(json.RawMessage) bool { return false }
func (t *ListPullRequestsTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	var p struct{ Owner, Repo, State string }
	if err := json.Unmarshal(params, &p); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	state := p.State
	if state == "" {
		state = "open"
	}
	return call(ctx, sess, http.MethodGet, fmt.Sprintf("/repos/%s/%s/pulls", p.Owner, p.Repo), url.Values{"state": {state}}, nil)
}

// CreateFileTool creates or updates a file via the contents API.
type CreateFileTool struct{}

func NewCreateFileTool() *CreateFileTool { return &CreateFileTool{} }

func (t *CreateFileTool) Name() string        { return "github_create_file" }
func (t *CreateFileTool) Description() string { return "Create or update a file in a repository." }
func (t *CreateFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"owner": {"type": "string"}, "repo": {"type": "string"}, "path": {"type": "string"},
			"content": {"type": "string"}, "message": {"type": "string"}, "branch": {"type": "string"},
			"sha": {"type": "string", "description": "Existing blob SHA, required by the GitHub API when overwriting a file that already exists. Omit to let the tool look it up automatically."}
		},
		"required": ["owner", "repo", "path", "content", "message"]
	}`)
}
func (t *CreateFileTool) RequiresApproval(json.RawMessage) bool { return false }
func (t *CreateFileTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	var p struct{ Owner, Repo, Path, Content, Message, Branch, SHA string }
	if err := json.Unmarshal(params, &p); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	contentsPath := fmt.Sprintf("/repos/%s/%s/contents/%s", p.Owner, p.Repo, strings.TrimPrefix(p.Path, "/"))

	sha := p.SHA
	if sha == "" {
		var query url.Values
		if p.Branch != "" {
			query = url.Values{"ref": {p.Branch}}
		}
		if existing, err := call(ctx, sess, http.MethodGet, contentsPath, query, nil); err == nil && existing.Success {
			var decoded struct {
				SHA string `json:"sha"`
			}
			if jsonErr := json.Unmarshal([]byte(existing.Output), &decoded); jsonErr == nil {
				sha = decoded.SHA
			}
		}
	}

	body := map[string]string{
		"message": p.Message,
		"content": base64.StdEncoding.EncodeToString([]byte(p.Content)),
	}
	if p.Branch != "" {
		body["branch"] = p.Branch
	}
	if sha != "" {
		body["sha"] = sha
	}
	return call(ctx, sess, http.MethodPut, contentsPath, nil, body)
}
