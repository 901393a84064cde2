package api

import (
	"context"
	"encoding/json"
	"net/http"
)

// Request performs a call through c and decodes the JSON body into T.
func Request[T any](ctx context.Context, c *Client, path string, opts *RequestOptions) (T, error) {
	var out T
	data, err := c.Do(ctx, path, opts)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		method := http.MethodGet
		if opts != nil && opts.Method != "" {
			method = opts.Method
		}
		return out, newError(c.baseURL+path, method, http.StatusOK, KindMalformed, MalformedMessage, preview(data), err)
	}
	return out, nil
}

// Get is a cached GET decoded into T.
func Get[T any](ctx context.Context, c *Client, path string) (T, error) {
	return Request[T](ctx, c, path, nil)
}

// Post sends body and drops cached responses matching invalidate on success.
func Post[T any](ctx context.Context, c *Client, path string, body any, invalidate ...string) (T, error) {
	return Request[T](ctx, c, path, &RequestOptions{
		Method:     http.MethodPost,
		Body:       body,
		Invalidate: invalidate,
	})
}
