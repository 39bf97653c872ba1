package ghost

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nutriplan/internal/config"
	"nutriplan/internal/shared"

	"github.com/golang-jwt/jwt/v5"
)

const (
	serviceName = "ghost"
	pageSize    = 50
	adminAud    = "/admin/"
)

// Post is a recipe post of the blog that feeds the catalog.
type Post struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	HTML      string `json:"html"`
	URL       string `json:"url,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

type pagination struct {
	Page  int  `json:"page"`
	Pages int  `json:"pages"`
	Next  *int `json:"next"`
}

type postsResponse struct {
	Posts []Post `json:"posts"`
	Meta  struct {
		Pagination pagination `json:"pagination"`
	} `json:"meta"`
}

// Client reads catalog posts from the Content API and writes clipped
// recipes through the Admin API.
type Client interface {
	FetchPosts(ctx context.Context, updatedSince string) ([]Post, error)
	CreatePost(ctx context.Context, title, html string, publish bool) (*Post, error)
}

type client struct {
	httpClient *http.Client
	baseURL    string
	contentKey string
	adminKey   string
}

// NewClient creates a Ghost API client from the catalog settings.
func NewClient(cfg *config.Config) Client {
	return &client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(cfg.GhostURL, "/"),
		contentKey: cfg.GhostContentKey,
		adminKey:   cfg.GhostAdminKey,
	}
}

// FetchPosts pages through every post. When updatedSince is set only posts
// edited after that RFC3339 timestamp are returned.
func (c *client) FetchPosts(ctx context.Context, updatedSince string) ([]Post, error) {
	var all []Post
	for page := 1; ; {
		q := url.Values{}
		q.Set("key", c.contentKey)
		q.Set("limit", fmt.Sprint(pageSize))
		q.Set("page", fmt.Sprint(page))
		q.Set("formats", "html")
		if updatedSince != "" {
			q.Set("filter", fmt.Sprintf("updated_at:>'%s'", updatedSince))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ghost/api/content/posts/?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		var resp postsResponse
		if err := c.do(req, http.StatusOK, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Posts...)

		if resp.Meta.Pagination.Next == nil {
			return all, nil
		}
		page = *resp.Meta.Pagination.Next
	}
}

// CreatePost creates a post through the Admin API.
func (c *client) CreatePost(ctx context.Context, title, html string, publish bool) (*Post, error) {
	token, err := AdminToken(c.adminKey, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to create admin token: %w", err)
	}

	status := "draft"
	if publish {
		status = "published"
	}
	body, err := json.Marshal(map[string][]map[string]string{
		"posts": {{"title": title, "html": html, "status": status}},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ghost/api/admin/posts/?source=html", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Ghost "+token)
	req.Header.Set("Content-Type", "application/json")

	var resp postsResponse
	if err := c.do(req, http.StatusCreated, &resp); err != nil {
		return nil, err
	}
	if len(resp.Posts) == 0 {
		return nil, fmt.Errorf("no post returned from api")
	}
	return &resp.Posts[0], nil
}

func (c *client) do(req *http.Request, want int, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &shared.ExternalServiceError{Service: serviceName, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != want && resp.StatusCode != http.StatusOK {
		var sentinel error
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			sentinel = shared.ErrUnauthorized
		case resp.StatusCode == http.StatusTooManyRequests:
			sentinel = shared.ErrRateLimited
		case resp.StatusCode >= 500:
			sentinel = shared.ErrServerError
		default:
			sentinel = fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return &shared.ExternalServiceError{Service: serviceName, StatusCode: resp.StatusCode, Err: sentinel}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// AdminToken signs the short-lived JWT the Admin API expects. The key has
// the form "id:hexsecret".
func AdminToken(adminKey string, now time.Time) (string, error) {
	id, secretHex, ok := strings.Cut(adminKey, ":")
	if !ok || id == "" {
		return "", fmt.Errorf("invalid admin key format: expected id:secret")
	}
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode secret hex: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		Audience:  jwt.ClaimStrings{adminAud},
	})
	token.Header["kid"] = id
	return token.SignedString(secret)
}
