// Package catalog reads products, search results and stock levels, and
// uploads product images.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ritikkatiyar/ecom-storefront/internal/apiclient"
)

// ErrNoFiles is returned by UploadProductImages when given nothing to upload
var ErrNoFiles = errors.New("catalog: no files selected for upload")

// Product is a catalog product
type Product struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category"`
	Brand       string   `json:"brand"`
	Price       float64  `json:"price"`
	Active      bool     `json:"active"`
	Colors      []string `json:"colors,omitempty"`
	Sizes       []string `json:"sizes,omitempty"`
	ImageURLs   []string `json:"imageUrls,omitempty"`
}

// ProductPage is one page of products
type ProductPage struct {
	Content       []Product `json:"content"`
	TotalElements int64     `json:"totalElements"`
	TotalPages    int       `json:"totalPages"`
	Size          int       `json:"size"`
	Number        int       `json:"number"`
	First         bool      `json:"first"`
	Last          bool      `json:"last"`
}

// SearchProduct is a product as indexed by the search service
type SearchProduct struct {
	ProductID   string   `json:"productId"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Brand       string   `json:"brand,omitempty"`
	Price       float64  `json:"price"`
	Colors      []string `json:"colors,omitempty"`
	Sizes       []string `json:"sizes,omitempty"`
	Active      *bool    `json:"active,omitempty"`
	UpdatedAt   string   `json:"updatedAt,omitempty"`
}

// SearchPage is one page of search results
type SearchPage struct {
	Content       []SearchProduct `json:"content"`
	TotalElements int64           `json:"totalElements"`
	Page          int             `json:"page"`
	Size          int             `json:"size"`
}

// Stock is the inventory level of one SKU
type Stock struct {
	SKU               string `json:"sku"`
	AvailableQuantity int    `json:"availableQuantity"`
	ReservedQuantity  int    `json:"reservedQuantity"`
}

// ListParams filters and pages the product listing. Zero values are omitted.
type ListParams struct {
	Page      *int
	Size      *int
	Category  string
	Brand     string
	Query     string
	SortBy    string
	Direction string
}

func (p ListParams) values() url.Values {
	q := url.Values{}
	setInt(q, "page", p.Page)
	setInt(q, "size", p.Size)
	setString(q, "category", p.Category)
	setString(q, "brand", p.Brand)
	setString(q, "q", p.Query)
	setString(q, "sortBy", p.SortBy)
	setString(q, "direction", p.Direction)
	return q
}

// SearchParams filters and pages a product search. Zero values are omitted.
type SearchParams struct {
	Query      string
	Category   string
	Brand      string
	Page       *int
	Size       *int
	ActiveOnly *bool
	SortBy     string
	Direction  string
}

func (p SearchParams) values() url.Values {
	q := url.Values{}
	setString(q, "q", p.Query)
	setString(q, "category", p.Category)
	setString(q, "brand", p.Brand)
	setInt(q, "page", p.Page)
	setInt(q, "size", p.Size)
	if p.ActiveOnly != nil {
		q.Set("activeOnly", strconv.FormatBool(*p.ActiveOnly))
	}
	setString(q, "sortBy", p.SortBy)
	setString(q, "direction", p.Direction)
	return q
}

// File is one image to upload
type File struct {
	Name    string
	Content io.Reader
}

// Client is the catalog boundary client
type Client struct {
	api *apiclient.Client
}

// New creates a catalog client on top of the request pipeline
func New(api *apiclient.Client) *Client {
	return &Client{api: api}
}

// ListProducts returns one page of products
func (c *Client) ListProducts(ctx context.Context, params ListParams) (*ProductPage, error) {
	var out ProductPage
	if err := c.api.Do(ctx, &apiclient.Request{
		Method: http.MethodGet,
		Path:   "/api/products",
		Query:  params.values(),
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProduct returns one product
func (c *Client) GetProduct(ctx context.Context, id string) (*Product, error) {
	var out Product
	if err := c.api.Do(ctx, &apiclient.Request{
		Method: http.MethodGet,
		Path:   "/api/products/" + url.PathEscape(id),
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchProducts queries the search service
func (c *Client) SearchProducts(ctx context.Context, params SearchParams) (*SearchPage, error) {
	var out SearchPage
	if err := c.api.Do(ctx, &apiclient.Request{
		Method: http.MethodGet,
		Path:   "/api/search/products",
		Query:  params.values(),
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetStock returns the inventory level of sku
func (c *Client) GetStock(ctx context.Context, sku string) (*Stock, error) {
	var out Stock
	if err := c.api.Do(ctx, &apiclient.Request{
		Method: http.MethodGet,
		Path:   "/api/inventory/stock/" + url.PathEscape(sku),
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadProductImages posts files as multipart form parts named "files" and
// returns the stored image URLs. A failed upload carries the correlation id
// the backend reported, to be shown to the user.
func (c *Client) UploadProductImages(ctx context.Context, files []File) ([]string, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := w.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", f.Name, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish upload body: %w", err)
	}

	var urls []string
	if err := c.api.Do(ctx, &apiclient.Request{
		Method:      http.MethodPost,
		Path:        "/api/products/images",
		RawBody:     buf.Bytes(),
		ContentType: w.FormDataContentType(),
	}, &urls); err != nil {
		return nil, err
	}
	return urls, nil
}

func setString(q url.Values, key, v string) {
	if v != "" {
		q.Set(key, v)
	}
}

func setInt(q url.Values, key string, v *int) {
	if v != nil {
		q.Set(key, strconv.Itoa(*v))
	}
}
