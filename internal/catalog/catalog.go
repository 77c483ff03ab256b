// Package catalog looks up product records for the cart.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/azuma-miyu/filatelier/internal/domain"
	apperrors "github.com/azuma-miyu/filatelier/pkg/errors"
	"github.com/azuma-miyu/filatelier/pkg/httpclient"
)

// Catalog returns the current record of a product. Unknown ids yield an
// error wrapping apperrors.ErrNotFound.
type Catalog interface {
	GetProduct(ctx context.Context, id domain.ProductID) (domain.ProductRef, error)
}

// HTTPCatalog reads products from the backend's product API.
type HTTPCatalog struct {
	client  httpclient.Doer
	baseURL string
	logger  *slog.Logger
}

// NewHTTPCatalog creates a catalog client rooted at baseURL.
func NewHTTPCatalog(client httpclient.Doer, baseURL string, logger *slog.Logger) *HTTPCatalog {
	return &HTTPCatalog{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// productResponse accepts both a bare product and one wrapped in {"data": …}.
type productResponse struct {
	Data *domain.ProductRef `json:"data"`
	domain.ProductRef
}

// GetProduct fetches GET {baseURL}/api/products/{id}.
func (c *HTTPCatalog) GetProduct(ctx context.Context, id domain.ProductID) (domain.ProductRef, error) {
	if id == "" {
		return domain.ProductRef{}, apperrors.InvalidInput("product id is required")
	}

	req, err := httpclient.NewJSONRequest(ctx, http.MethodGet, c.baseURL+"/api/products/"+url.PathEscape(id.String()), nil)
	if err != nil {
		return domain.ProductRef{}, err
	}

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		if httpclient.IsUnavailable(err) {
			c.logger.WarnContext(ctx, "catalog unavailable",
				slog.String("product_id", id.String()),
				slog.String("error", err.Error()),
			)
			return domain.ProductRef{}, unavailable(err)
		}
		return domain.ProductRef{}, fmt.Errorf("call catalog: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_ = resp.Body.Close()
		return domain.ProductRef{}, apperrors.NotFound("product", id.String())
	case resp.StatusCode != http.StatusOK:
		err := httpclient.ParseResponseError(resp, "catalog")
		if httpclient.IsUnavailable(err) {
			return domain.ProductRef{}, unavailable(err)
		}
		return domain.ProductRef{}, err
	}

	var body productResponse
	if err := httpclient.DecodeJSON(resp, &body); err != nil {
		return domain.ProductRef{}, fmt.Errorf("decode product %s: %w", id, err)
	}

	product := body.ProductRef
	if body.Data != nil {
		product = *body.Data
	}
	if product.ID == "" {
		product.ID = id
	}
	if !product.Valid() {
		return domain.ProductRef{}, fmt.Errorf("catalog returned an invalid record for product %s", id)
	}
	return product, nil
}

func unavailable(cause error) error {
	return apperrors.ServiceUnavailable("the product catalog is temporarily unavailable").WithCause(cause)
}

// IsNotFound reports whether err means the product does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound)
}

// decodeProducts parses a JSON array of product records.
func decodeProducts(raw []byte) ([]domain.ProductRef, error) {
	var products []domain.ProductRef
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return products, nil
}
