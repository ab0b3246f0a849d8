package handler

import (
	"fmt"
	"mime/multipart"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ritikkatiyar/ecom-storefront/internal/browser"
	"github.com/ritikkatiyar/ecom-storefront/internal/catalog"
	"github.com/ritikkatiyar/ecom-storefront/pkg/response"
)

const maxUploadMemory = 32 << 20

// CatalogHandler serves products, search, stock and image uploads
type CatalogHandler struct{}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler() *CatalogHandler {
	return &CatalogHandler{}
}

func optionalInt(c *gin.Context, key string) (*int, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return &v, nil
}

func pageParams(c *gin.Context) (page, size *int, err error) {
	if page, err = optionalInt(c, "page"); err != nil {
		return nil, nil, err
	}
	if size, err = optionalInt(c, "size"); err != nil {
		return nil, nil, err
	}
	return page, size, nil
}

// List returns a page of products
// GET /api/products
func (h *CatalogHandler) List(c *gin.Context) {
	page, size, err := pageParams(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	b := browser.MustFromContext(c)
	result, err := b.Catalog.ListProducts(c.Request.Context(), catalog.ListParams{
		Page:      page,
		Size:      size,
		Category:  c.Query("category"),
		Brand:     c.Query("brand"),
		Query:     c.Query("q"),
		SortBy:    c.Query("sortBy"),
		Direction: c.Query("direction"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, result)
}

// Get returns one product
// GET /api/products/:id
func (h *CatalogHandler) Get(c *gin.Context) {
	b := browser.MustFromContext(c)
	p, err := b.Catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, p)
}

// Search queries the search service
// GET /api/search
func (h *CatalogHandler) Search(c *gin.Context) {
	page, size, err := pageParams(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	params := catalog.SearchParams{
		Query:     c.Query("q"),
		Category:  c.Query("category"),
		Brand:     c.Query("brand"),
		Page:      page,
		Size:      size,
		SortBy:    c.Query("sortBy"),
		Direction: c.Query("direction"),
	}
	if raw := c.Query("activeOnly"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			response.BadRequest(c, "invalid activeOnly")
			return
		}
		params.ActiveOnly = &v
	}

	b := browser.MustFromContext(c)
	result, err := b.Catalog.SearchProducts(c.Request.Context(), params)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, result)
}

// Stock returns the inventory level of a SKU
// GET /api/stock/:sku
func (h *CatalogHandler) Stock(c *gin.Context) {
	b := browser.MustFromContext(c)
	s, err := b.Catalog.GetStock(c.Request.Context(), c.Param("sku"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, s)
}

// UploadImages forwards multipart "files" to the product service
// POST /admin/products/images
func (h *CatalogHandler) UploadImages(c *gin.Context) {
	var headers []*multipart.FileHeader
	if err := c.Request.ParseMultipartForm(maxUploadMemory); err == nil && c.Request.MultipartForm != nil {
		headers = c.Request.MultipartForm.File["files"]
	}

	files := make([]catalog.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			response.BadRequest(c, "unreadable upload: "+fh.Filename)
			return
		}
		defer f.Close()
		files = append(files, catalog.File{Name: fh.Filename, Content: f})
	}

	b := browser.MustFromContext(c)
	urls, err := b.Catalog.UploadProductImages(c.Request.Context(), files)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, gin.H{"urls": urls})
}
