// Package credentials holds the persisted client credentials (access token, refresh
// token, user id). A Store is the only place tokens live; the HTTP client and the
// session store receive it at construction time.
package credentials

import "context"

type Credentials struct {
	AccessToken  string `json:"access"`
	RefreshToken string `json:"refresh"`
	UserID       string `json:"user_id"`
}

func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == "" && c.UserID == ""
}

// Store is durable key/value storage for a single client profile.
// Load on an empty store returns zero Credentials and no error.
type Store interface {
	Load(ctx context.Context) (Credentials, error)
	Save(ctx context.Context, c Credentials) error
	SetAccessToken(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}
