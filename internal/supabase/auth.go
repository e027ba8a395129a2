package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// AuthClient handles GoTrue auth operations. The service never creates
// sessions itself; it only verifies and inspects tokens minted by the
// hosted auth provider.
type AuthClient struct {
	client *Client
}

// User is a Supabase auth user.
type User struct {
	ID           string                 `json:"id"`
	Email        string                 `json:"email"`
	Role         string                 `json:"role"`
	CreatedAt    time.Time              `json:"created_at"`
	AppMetadata  map[string]interface{} `json:"app_metadata"`
	UserMetadata map[string]interface{} `json:"user_metadata"`
}

// GetUser resolves the user behind an access token. A 4xx response means the
// session is missing or expired.
func (a *AuthClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	respBody, statusCode, err := a.client.requestWithToken(ctx, "GET", a.client.authURL+"/user", nil, nil, accessToken)
	if err != nil {
		return nil, err
	}
	if statusCode >= 400 {
		return nil, parseError(respBody, statusCode)
	}

	var user User
	if err := json.Unmarshal(respBody, &user); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &user, nil
}

// AdminGetUser retrieves a user by id with the service role key.
func (a *AuthClient) AdminGetUser(ctx context.Context, userID string) (*User, error) {
	respBody, statusCode, err := a.client.request(ctx, "GET", a.client.authURL+"/admin/users/"+userID, nil, nil)
	if err != nil {
		return nil, err
	}
	if statusCode >= 400 {
		return nil, parseError(respBody, statusCode)
	}

	var user User
	if err := json.Unmarshal(respBody, &user); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &user, nil
}
