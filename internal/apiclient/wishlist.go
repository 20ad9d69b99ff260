package apiclient

import (
	"context"
	"net/http"
)

const pathWishlist = "/urbanfoot/wishlist_view/"

func (c *Client) Wishlist(ctx context.Context) ([]WishlistEntry, error) {
	var out []WishlistEntry
	if err := c.call(ctx, Request{Method: http.MethodGet, Path: pathWishlist}, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []WishlistEntry{}
	}
	return out, nil
}

func (c *Client) AddToWishlist(ctx context.Context, productID int64) (WishlistAddResult, error) {
	var out WishlistAddResult
	err := c.call(ctx, Request{
		Method: http.MethodPost,
		Path:   pathWishlist,
		Body:   map[string]any{"product_id": productID},
	}, &out)
	return out, err
}

func (c *Client) DeleteFromWishlist(ctx context.Context, productID int64) error {
	return c.call(ctx, Request{
		Method: http.MethodDelete,
		Path:   pathWishlist,
		Body:   map[string]any{"product_id": productID},
	}, nil)
}
