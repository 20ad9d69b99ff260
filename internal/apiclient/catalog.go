package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const (
	pathProducts      = "/urbanfoot/productview/"
	pathProductDetail = "/urbanfoot/product_detail/%d/"
	pathProductFilter = "/urbanfoot/product_filter/"
	pathOrders        = "/urbanfoot/orders/"
)

func (c *Client) Products(ctx context.Context) ([]Product, error) {
	var out []Product
	err := c.call(ctx, Request{Method: http.MethodGet, Path: pathProducts}, &out)
	return out, err
}

func (c *Client) Product(ctx context.Context, id int64) (Product, error) {
	var out Product
	err := c.call(ctx, Request{Method: http.MethodGet, Path: fmt.Sprintf(pathProductDetail, id)}, &out)
	return out, err
}

func (c *Client) FilterProducts(ctx context.Context, f ProductFilter) ([]Product, error) {
	q := url.Values{}
	if f.Query != "" {
		q.Set("q", f.Query)
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.MinPrice != nil {
		q.Set("min_price", f.MinPrice.String())
	}
	if f.MaxPrice != nil {
		q.Set("max_price", f.MaxPrice.String())
	}

	var out []Product
	err := c.call(ctx, Request{Method: http.MethodGet, Path: pathProductFilter, Query: q}, &out)
	return out, err
}

func (c *Client) Orders(ctx context.Context) ([]Order, error) {
	var out []Order
	err := c.call(ctx, Request{Method: http.MethodGet, Path: pathOrders}, &out)
	return out, err
}
