package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const mastodonTimeout = 30 * time.Second

type MastodonClient struct {
	instance   string
	token      string
	httpClient *http.Client
}

type MastodonOption func(*MastodonClient)

func WithMastodonHTTPClient(c *http.Client) MastodonOption {
	return func(m *MastodonClient) { m.httpClient = c }
}

func NewMastodonClient(instance, accessToken string, opts ...MastodonOption) *MastodonClient {
	m := &MastodonClient{
		instance:   strings.TrimRight(instance, "/"),
		token:      accessToken,
		httpClient: &http.Client{Timeout: mastodonTimeout},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// APIError is a non-2xx answer from the instance.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mastodon: HTTP %d: %s", e.StatusCode, e.Message)
}

type mastodonMedia struct {
	ID string `json:"id"`
}

type mastodonStatus struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type MastodonAccount struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Acct     string `json:"acct"`
}

// UploadMedia uploads a PNG image and returns its media id.
func (m *MastodonClient) UploadMedia(ctx context.Context, image []byte, filename string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("mastodon: create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return "", fmt.Errorf("mastodon: write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("mastodon: close multipart: %w", err)
	}

	var media mastodonMedia
	if err := m.do(ctx, http.MethodPost, "/api/v2/media", writer.FormDataContentType(), &body, &media); err != nil {
		return "", err
	}
	if media.ID == "" {
		return "", fmt.Errorf("mastodon: upload returned no media id")
	}
	return media.ID, nil
}

func (m *MastodonClient) SetAltText(ctx context.Context, mediaID, description string) error {
	form := url.Values{}
	form.Set("description", description)
	return m.do(ctx, http.MethodPut, "/api/v1/media/"+url.PathEscape(mediaID), "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), nil)
}

// PostStatus posts a public status and returns its URL.
func (m *MastodonClient) PostStatus(ctx context.Context, status string, mediaIDs ...string) (string, error) {
	form := url.Values{}
	form.Set("status", status)
	for _, id := range mediaIDs {
		form.Add("media_ids[]", id)
	}

	var posted mastodonStatus
	if err := m.do(ctx, http.MethodPost, "/api/v1/statuses", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), &posted); err != nil {
		return "", err
	}
	return posted.URL, nil
}

func (m *MastodonClient) VerifyCredentials(ctx context.Context) (MastodonAccount, error) {
	var account MastodonAccount
	if err := m.do(ctx, http.MethodGet, "/api/v1/accounts/verify_credentials", "", nil, &account); err != nil {
		return MastodonAccount{}, err
	}
	return account, nil
}

func (m *MastodonClient) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, m.instance+path, body)
	if err != nil {
		return fmt.Errorf("mastodon: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mastodon: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("mastodon: decode %s response: %w", path, err)
	}
	return nil
}

func errorMessage(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, 2048))

	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(raw))
}
