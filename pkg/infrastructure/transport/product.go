package transport

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	catalogmodel "storefront/pkg/catalog/domain/model"
	catalogservice "storefront/pkg/catalog/domain/service"
	"storefront/pkg/common/domain"
)

type productRequest struct {
	Name             *string          `json:"name"`
	Price            *decimal.Decimal `json:"price"`
	ShortDescription *string          `json:"shortDescription"`
	FullDescription  *string          `json:"fullDescription"`
	StockQuantity    *int             `json:"stockQuantity"`
	Sold             *int             `json:"sold"`
	CategoryID       *string          `json:"category"`
	Discount         *int             `json:"discount"`
	HasDiscount      *bool            `json:"hasDiscount"`
	VideoLink        *string          `json:"videoLink"`
	Rating           *float64         `json:"rating"`
}

type rankedProduct struct {
	Rank int `json:"rank"`
	catalogmodel.Product
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	req, images, err := readProductRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	verr := domain.NewValidationError()
	if req.Price == nil {
		verr.Add("price", "price is required")
	}
	if err := verr.Err(); err != nil {
		writeError(w, r, err)
		return
	}

	input := catalogservice.ProductInput{
		Name:             deref(req.Name),
		Price:            *req.Price,
		ShortDescription: deref(req.ShortDescription),
		FullDescription:  deref(req.FullDescription),
		StockQuantity:    deref(req.StockQuantity),
		CategoryID:       deref(req.CategoryID),
		Discount:         deref(req.Discount),
		HasDiscount:      deref(req.HasDiscount),
		VideoLink:        deref(req.VideoLink),
		Rating:           req.Rating,
	}
	product, err := h.products.CreateProduct(r.Context(), input, images)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, images, err := readProductRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	patch := catalogservice.ProductPatch{
		Name:             req.Name,
		Price:            req.Price,
		ShortDescription: req.ShortDescription,
		FullDescription:  req.FullDescription,
		StockQuantity:    req.StockQuantity,
		Sold:             req.Sold,
		CategoryID:       req.CategoryID,
		Discount:         req.Discount,
		HasDiscount:      req.HasDiscount,
		VideoLink:        req.VideoLink,
		Rating:           req.Rating,
	}
	product, err := h.products.UpdateProduct(r.Context(), id, patch, images)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.products.DeleteProduct(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "product deleted"})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	product, err := h.products.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	h.writeProducts(w, r, catalogmodel.ProductFilter{})
}

func (h *Handler) discountedProducts(w http.ResponseWriter, r *http.Request) {
	h.writeProducts(w, r, catalogmodel.ProductFilter{Discount: catalogmodel.OnlyDiscounted})
}

func (h *Handler) fullPriceProducts(w http.ResponseWriter, r *http.Request) {
	h.writeProducts(w, r, catalogmodel.ProductFilter{Discount: catalogmodel.OnlyFullPrice})
}

func (h *Handler) productsByCategory(w http.ResponseWriter, r *http.Request) {
	h.writeProducts(w, r, catalogmodel.ProductFilter{CategoryID: mux.Vars(r)["categoryId"]})
}

func (h *Handler) writeProducts(w http.ResponseWriter, r *http.Request, filter catalogmodel.ProductFilter) {
	products, err := h.products.ListProducts(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(products))
}

func (h *Handler) bestSellers(w http.ResponseWriter, r *http.Request) {
	limit := catalogservice.DefaultBestSellersLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, r, errBadRequest("invalid limit"))
			return
		}
		limit = parsed
	}

	products, err := h.products.BestSellers(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ranked := make([]rankedProduct, 0, len(products))
	for i, product := range products {
		ranked = append(ranked, rankedProduct{Rank: i + 1, Product: product})
	}
	writeJSON(w, http.StatusOK, ranked)
}

// readProductRequest accepts a JSON body or a multipart form with "images" files.
func readProductRequest(r *http.Request) (productRequest, []domain.Upload, error) {
	var req productRequest
	if !isMultipart(r) {
		return req, nil, decodeJSON(r, &req)
	}
	if err := parseMultipart(r); err != nil {
		return req, nil, err
	}

	form := newFormReader(r)
	req.Name = form.optString("name")
	req.Price = form.optDecimal("price")
	req.ShortDescription = form.optString("shortDescription")
	req.FullDescription = form.optString("fullDescription")
	req.StockQuantity = form.optInt("stockQuantity")
	req.Sold = form.optInt("sold")
	req.CategoryID = form.optString("category")
	req.Discount = form.optInt("discount")
	req.HasDiscount = form.optBool("hasDiscount")
	req.VideoLink = form.optString("videoLink")
	req.Rating = form.optFloat("rating")
	if err := form.err(); err != nil {
		return req, nil, err
	}

	images, err := formFiles(r, "images")
	return req, images, err
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
