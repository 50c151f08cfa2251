package transport

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type cartItemRequest struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.GetCart(r.Context(), claimsFrom(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cart, err := h.carts.AddItem(r.Context(), claimsFrom(r).UserID, req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathUUID(r, "productId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req cartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cart, err := h.carts.UpdateItemQuantity(r.Context(), claimsFrom(r).UserID, productID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathUUID(r, "productId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	cart, err := h.carts.RemoveItem(r.Context(), claimsFrom(r).UserID, productID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	if !canAccess(r, userID) {
		writeMessage(w, http.StatusForbidden, "access denied")
		return
	}
	if err := h.carts.ClearCart(r.Context(), userID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "cart cleared"})
}
