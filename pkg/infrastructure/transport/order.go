package transport

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"storefront/pkg/common/domain"
	"storefront/pkg/order/domain/model"
	orderservice "storefront/pkg/order/domain/service"
)

const paymentMethodCOD = "cod"

type lineItemRequest struct {
	ProductID    uuid.UUID        `json:"productId"`
	ProductName  string           `json:"product"`
	Quantity     int              `json:"quantity"`
	Price        *decimal.Decimal `json:"price"`
	ProductImage *domain.Image    `json:"productImage"`
}

type orderRequest struct {
	Name            string              `json:"name"`
	Avatar          string              `json:"avatar"`
	Amount          *decimal.Decimal    `json:"amount"`
	PhoneNumber     string              `json:"phoneNumber"`
	DeliveryAddress string              `json:"deliveryAddress"`
	PaymentImage    *model.PaymentProof `json:"paymentImage"`
	PaymentMethod   string              `json:"paymentMethod"`
	OrderDetails    []lineItemRequest   `json:"orderDetails"`
}

type orderPatchRequest struct {
	Status          *string             `json:"status"`
	Name            *string             `json:"name"`
	Avatar          *string             `json:"avatar"`
	Amount          *decimal.Decimal    `json:"amount"`
	PhoneNumber     *string             `json:"phoneNumber"`
	DeliveryAddress *string             `json:"deliveryAddress"`
	PaymentImage    *model.PaymentProof `json:"paymentImage"`
}

type orderResponse struct {
	*model.Order
	Reconciliation *model.ReconciliationReport `json:"reconciliation,omitempty"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	payment, err := readOrderBody(r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	input := orderservice.NewOrder{
		UserID:          claimsFrom(r).UserID,
		Name:            req.Name,
		Avatar:          req.Avatar,
		Amount:          req.Amount,
		PhoneNumber:     req.PhoneNumber,
		DeliveryAddress: req.DeliveryAddress,
		PaymentProof:    req.PaymentImage,
		PaymentUpload:   payment,
		Items:           make([]orderservice.NewLineItem, 0, len(req.OrderDetails)),
	}
	if strings.EqualFold(req.PaymentMethod, paymentMethodCOD) {
		cod := model.CashOnDelivery()
		input.PaymentProof = &cod
		input.PaymentUpload = nil
	}
	for _, item := range req.OrderDetails {
		input.Items = append(input.Items, orderservice.NewLineItem{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			Quantity:     item.Quantity,
			Price:        item.Price,
			ProductImage: item.ProductImage,
		})
	}

	order, err := h.orders.CreateOrder(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, orderResponse{Order: order})
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	number, err := pathNumber(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req orderPatchRequest
	payment, err := readOrderBody(r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	patch := orderservice.OrderPatch{
		Name:            req.Name,
		Avatar:          req.Avatar,
		Amount:          req.Amount,
		PhoneNumber:     req.PhoneNumber,
		DeliveryAddress: req.DeliveryAddress,
		PaymentProof:    req.PaymentImage,
	}
	if req.Status != nil {
		status, err := model.ParseStatus(*req.Status)
		if err != nil {
			verr := domain.NewValidationError()
			verr.Add("status", err.Error())
			writeError(w, r, verr)
			return
		}
		patch.Status = &status
	}

	result, err := h.orders.UpdateOrder(r.Context(), number, patch, payment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Order: result.Order, Reconciliation: result.Reconciliation})
}

func (h *Handler) reconcileOrder(w http.ResponseWriter, r *http.Request) {
	number, err := pathNumber(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.orders.RetryReconciliation(r.Context(), number)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Order: result.Order, Reconciliation: result.Reconciliation})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.GetOrders(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(orders))
}

func (h *Handler) myOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.GetUserOrders(r.Context(), claimsFrom(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(orders))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	number, err := pathNumber(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	order, err := h.orders.GetOrder(r.Context(), number)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) getOrderForUser(w http.ResponseWriter, r *http.Request) {
	number, err := pathNumber(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	userID := mux.Vars(r)["userId"]
	if !canAccess(r, userID) {
		writeMessage(w, http.StatusForbidden, "access denied")
		return
	}
	order, err := h.orders.GetOrderForUser(r.Context(), number, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	number, err := pathNumber(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.orders.DeleteOrder(r.Context(), number); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "order deleted"})
}

func (h *Handler) deleteAllOrders(w http.ResponseWriter, r *http.Request) {
	count, err := h.orders.DeleteAllOrders(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": count})
}

// formDecoder fills a request from flat multipart fields.
type formDecoder interface {
	readForm(form *formReader)
}

func (req *orderRequest) readForm(form *formReader) {
	req.Name = deref(form.optString("name"))
	req.Avatar = deref(form.optString("avatar"))
	req.Amount = form.optDecimal("amount")
	req.PhoneNumber = deref(form.optString("phoneNumber"))
	req.DeliveryAddress = deref(form.optString("deliveryAddress"))
	req.PaymentMethod = deref(form.optString("paymentMethod"))
	form.optJSON("orderDetails", &req.OrderDetails)
	req.PaymentImage = paymentProofField(form)
}

func (req *orderPatchRequest) readForm(form *formReader) {
	req.Status = form.optString("status")
	req.Name = form.optString("name")
	req.Avatar = form.optString("avatar")
	req.Amount = form.optDecimal("amount")
	req.PhoneNumber = form.optString("phoneNumber")
	req.DeliveryAddress = form.optString("deliveryAddress")
	req.PaymentImage = paymentProofField(form)
}

// paymentProofField reads a text "paymentImage" field: an image object as JSON, the
// cash on delivery marker, or a bare receipt URL.
func paymentProofField(form *formReader) *model.PaymentProof {
	value, ok := form.raw("paymentImage")
	if !ok || value == "" {
		return nil
	}
	if !strings.HasPrefix(value, "{") {
		quoted, _ := json.Marshal(value)
		value = string(quoted)
	}
	var proof model.PaymentProof
	if err := json.Unmarshal([]byte(value), &proof); err != nil {
		form.verr.Add("paymentImage", "must be an image object or a URL")
		return nil
	}
	return &proof
}

// readOrderBody decodes a JSON body or a multipart form. A multipart form carries
// either the whole JSON under "order" or flat fields with "orderDetails" as JSON text;
// its "paymentImage" file is the payment receipt.
func readOrderBody(r *http.Request, target formDecoder) (*domain.Upload, error) {
	if !isMultipart(r) {
		return nil, decodeJSON(r, target)
	}
	if err := parseMultipart(r); err != nil {
		return nil, err
	}
	if raw := r.FormValue("order"); raw != "" {
		if err := json.Unmarshal([]byte(raw), target); err != nil {
			return nil, errBadRequest("malformed order field: %v", err)
		}
	} else {
		form := newFormReader(r)
		target.readForm(form)
		if err := form.err(); err != nil {
			return nil, err
		}
	}
	return formFile(r, "paymentImage")
}
