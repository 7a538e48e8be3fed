package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Vanequal/ideafeed/internal/models"
)

// AuthTelegram exchanges Telegram WebApp init data for a bearer token
func (c *Client) AuthTelegram(ctx context.Context, initData string) (string, error) {
	if strings.TrimSpace(initData) == "" {
		return "", fmt.Errorf("init data is empty")
	}
	form := url.Values{}
	form.Set("init_data", initData)

	body, err := c.do(ctx, request{
		endpoint:    "auth.telegram",
		method:      http.MethodPost,
		path:        "/api/v1/auth/telegram",
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
		anonymous:   true,
	})
	if err != nil {
		return "", fmt.Errorf("telegram auth failed: %w", err)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		Token       string `json:"token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to decode auth response: %w", err)
	}
	token := firstNonEmpty(out.AccessToken, out.Token)
	if token == "" {
		return "", fmt.Errorf("auth response carried no token")
	}
	return token, nil
}

// Me fetches the signed-in user
func (c *Client) Me(ctx context.Context) (models.User, error) {
	body, err := c.getJSON(ctx, "user.me", "/api/v1/user/me", nil)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to fetch current user: %w", err)
	}
	var w wireUser
	if err := decodeObject(body, &w, "user", "data"); err != nil {
		return models.User{}, fmt.Errorf("failed to decode user: %w", err)
	}
	return toUser(w), nil
}

// GetTheme fetches theme metadata
func (c *Client) GetTheme(ctx context.Context, themeID int64) (models.Theme, error) {
	body, err := c.getJSON(ctx, "themes.get", "/api/v1/themes/"+strconv.FormatInt(themeID, 10), nil)
	if err != nil {
		return models.Theme{}, fmt.Errorf("failed to fetch theme %d: %w", themeID, err)
	}
	var w wireTheme
	if err := decodeObject(body, &w, "theme", "data"); err != nil {
		return models.Theme{}, fmt.Errorf("failed to decode theme: %w", err)
	}
	t := toTheme(w)
	if t.ID == 0 {
		t.ID = themeID
	}
	return t, nil
}
