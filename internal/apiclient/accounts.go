package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
)

const (
	pathLogin          = "/accounts/login/"
	pathRegister       = "/accounts/register/"
	pathProfile        = "/accounts/user_profile/"
	pathChangePassword = "/accounts/change-password/"
)

func (c *Client) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	var out LoginResponse
	err := c.call(ctx, Request{
		Method:  http.MethodPost,
		Path:    pathLogin,
		Body:    map[string]string{"username": username, "password": password},
		NoRetry: true,
	}, &out)
	return out, err
}

func (c *Client) Register(ctx context.Context, r RegisterRequest) (User, error) {
	resp, err := c.Do(ctx, Request{
		Method:  http.MethodPost,
		Path:    pathRegister,
		Body:    r,
		NoRetry: true,
	})
	if err != nil {
		return User{}, err
	}
	// The created user is informational; an unexpected body is not a failure.
	u, _ := decodeUser(resp.Body)
	return u, nil
}

// Profile returns the identity behind the stored access token.
func (c *Client) Profile(ctx context.Context) (User, error) {
	req := Request{Method: http.MethodGet, Path: pathProfile}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return User{}, err
	}
	u, err := decodeUser(resp.Body)
	if err != nil {
		return User{}, &Error{Kind: KindServer, Status: resp.Status, Method: req.Method, Path: req.Path, Message: "malformed profile", Err: err}
	}
	return u, nil
}

func (c *Client) UpdateProfile(ctx context.Context, p ProfileUpdate) (User, error) {
	req := Request{Method: http.MethodPut, Path: pathProfile, Body: p}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return User{}, err
	}
	u, err := decodeUser(resp.Body)
	if err != nil {
		return User{}, &Error{Kind: KindServer, Status: resp.Status, Method: req.Method, Path: req.Path, Message: "malformed profile", Err: err}
	}
	return u, nil
}

func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	return c.call(ctx, Request{
		Method: http.MethodPost,
		Path:   pathChangePassword,
		Body:   map[string]string{"old_password": oldPassword, "new_password": newPassword},
	}, nil)
}

// decodeUser accepts both {"user": {...}} and a bare user object.
func decodeUser(body []byte) (User, error) {
	var wrapped struct {
		User *User `json:"user"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.User != nil {
		return *wrapped.User, nil
	}

	var u User
	if err := json.Unmarshal(body, &u); err != nil {
		return User{}, err
	}
	return u, nil
}
