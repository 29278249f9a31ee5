package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/vbonduro/unlabel/internal/domain"
)

type envelope[T any] struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func decodeEnvelope[T any](body []byte) (T, error) {
	var env envelope[T]
	if err := json.Unmarshal(body, &env); err != nil {
		var zero T
		return zero, fmt.Errorf("failed to decode response: %w", err)
	}
	if env.Status != "success" {
		msg := env.Message
		if msg == "" {
			msg = "request failed"
		}
		var zero T
		return zero, &ServiceError{Message: msg}
	}
	return env.Data, nil
}

// SearchFood searches the product database. A search without matches is a
// *ServiceError carrying the service's message.
func (c *Client) SearchFood(ctx context.Context, query string) ([]domain.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query required")
	}
	body, err := c.get(ctx, "/food/search?query="+url.QueryEscape(query))
	if err != nil {
		return nil, err
	}
	products, err := decodeEnvelope[[]domain.Product](body)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []domain.Product{}
	}
	return products, nil
}

// Product fetches one product by barcode.
func (c *Client) Product(ctx context.Context, id string) (*domain.DetailedProduct, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("product id required")
	}
	body, err := c.get(ctx, "/food/product/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	product, err := decodeEnvelope[*domain.DetailedProduct](body)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, &ServiceError{Message: "Product not found."}
	}
	return product, nil
}
