package siyuan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"time"

	"siyuan-ocr/internal/models"
)

// AssetsDirPath is where uploaded assets land inside the workspace.
const AssetsDirPath = "/assets/"

// Client talks to the SiYuan kernel HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a kernel client. token may be empty when the kernel has
// no access authorization code configured.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// Error is a kernel response with a non-zero code.
type Error struct {
	Endpoint string
	Code     int
	Msg      string
}

func (e *Error) Error() string {
	return fmt.Sprintf("siyuan %s: code=%d, msg=%s", e.Endpoint, e.Code, e.Msg)
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// ListNotebooks returns the open notebooks ordered by their sort key.
func (c *Client) ListNotebooks(ctx context.Context) ([]models.Notebook, error) {
	var data struct {
		Notebooks []models.Notebook `json:"notebooks"`
	}
	if err := c.postJSON(ctx, "/api/notebook/lsNotebooks", map[string]any{}, &data); err != nil {
		return nil, err
	}

	open := make([]models.Notebook, 0, len(data.Notebooks))
	for _, nb := range data.Notebooks {
		if !nb.Closed {
			open = append(open, nb)
		}
	}
	sort.SliceStable(open, func(i, j int) bool { return open[i].Sort < open[j].Sort })
	return open, nil
}

// CreateDocWithMarkdown creates a document at path inside notebookID and
// returns the new document's ID.
func (c *Client) CreateDocWithMarkdown(ctx context.Context, notebookID, path, markdown string) (string, error) {
	req := map[string]string{
		"notebook": notebookID,
		"path":     path,
		"markdown": markdown,
	}
	var data json.RawMessage
	if err := c.postJSON(ctx, "/api/filetree/createDocWithMd", req, &data); err != nil {
		return "", err
	}

	// The kernel answers with the bare ID; some versions wrap it in an object.
	var id string
	if err := json.Unmarshal(data, &id); err == nil && id != "" {
		return id, nil
	}
	var wrapped struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.ID != "" {
		return wrapped.ID, nil
	}
	return "", fmt.Errorf("siyuan createDocWithMd: unexpected data %s", string(data))
}

// UploadAsset uploads one file into the workspace assets directory and
// returns the path documents should reference.
func (c *Client) UploadAsset(ctx context.Context, data []byte, filename string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("assetsDirPath", AssetsDirPath); err != nil {
		return "", fmt.Errorf("write assetsDirPath field: %w", err)
	}
	part, err := writer.CreateFormFile("file[]", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	var result struct {
		ErrFiles []string          `json:"errFiles"`
		SuccMap  map[string]string `json:"succMap"`
	}
	if err := c.do(ctx, "/api/asset/upload", writer.FormDataContentType(), &body, &result); err != nil {
		return "", err
	}

	if stored, ok := result.SuccMap[filename]; ok {
		return stored, nil
	}
	for _, stored := range result.SuccMap {
		return stored, nil
	}
	return "", fmt.Errorf("siyuan asset upload: %s rejected (errFiles=%v)", filename, result.ErrFiles)
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", endpoint, err)
	}
	return c.do(ctx, endpoint, "application/json", bytes.NewReader(reqBody), out)
}

func (c *Client) do(ctx context.Context, endpoint, contentType string, body io.Reader, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Token "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("execute %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("siyuan %s: status=%d, body=%s", endpoint, resp.StatusCode, string(raw))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("unmarshal %s response: %w, body=%s", endpoint, err, string(raw))
	}
	if env.Code != 0 {
		return &Error{Endpoint: endpoint, Code: env.Code, Msg: env.Msg}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", endpoint, err)
	}
	return nil
}
