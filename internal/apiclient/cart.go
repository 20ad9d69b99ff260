package apiclient

import (
	"context"
	"net/http"
)

const pathCart = "/urbanfoot/cart_view/"

func (c *Client) Cart(ctx context.Context) (Cart, error) {
	var out Cart
	err := c.call(ctx, Request{Method: http.MethodGet, Path: pathCart}, &out)
	return out, err
}

// AddToCart asks the server to create or merge the line for productID and returns
// the resulting line.
func (c *Client) AddToCart(ctx context.Context, productID int64, quantity int) (CartLine, error) {
	var out CartLine
	err := c.call(ctx, Request{
		Method: http.MethodPost,
		Path:   pathCart,
		Body:   map[string]any{"product_id": productID, "quantity": quantity},
	}, &out)
	return out, err
}

func (c *Client) UpdateCartLine(ctx context.Context, lineID int64, quantity int) (CartLine, error) {
	var out CartLine
	err := c.call(ctx, Request{
		Method: http.MethodPatch,
		Path:   pathCart,
		Body:   map[string]any{"cart_id": lineID, "quantity": quantity},
	}, &out)
	return out, err
}

func (c *Client) DeleteCartLine(ctx context.Context, lineID int64) error {
	return c.call(ctx, Request{
		Method: http.MethodDelete,
		Path:   pathCart,
		Body:   map[string]any{"cart_id": lineID},
	}, nil)
}
