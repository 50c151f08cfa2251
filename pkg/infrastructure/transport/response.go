package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	cartmodel "storefront/pkg/cart/domain/model"
	catalogmodel "storefront/pkg/catalog/domain/model"
	"storefront/pkg/common/domain"
	ordermodel "storefront/pkg/order/domain/model"
	orderservice "storefront/pkg/order/domain/service"
)

// badRequest is a malformed request that never reached a service.
type badRequest struct {
	message string
}

func (e badRequest) Error() string { return e.message }

func errBadRequest(format string, args ...interface{}) error {
	return badRequest{message: fmt.Sprintf(format, args...)}
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Error("write response body")
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *domain.ValidationError
		malformed  badRequest
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: validation.Fields})
	case errors.As(err, &malformed):
		writeMessage(w, http.StatusBadRequest, malformed.message)
	case errors.Is(err, ordermodel.ErrOrderNotFound),
		errors.Is(err, catalogmodel.ErrProductNotFound),
		errors.Is(err, cartmodel.ErrItemNotInCart),
		errors.Is(err, cartmodel.ErrCartNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ordermodel.ErrOptimisticLock),
		errors.Is(err, orderservice.ErrOrderNotDelivered),
		errors.Is(err, catalogmodel.ErrInsufficientStock),
		errors.Is(err, catalogmodel.ErrSoldCannotDecrease):
		writeMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		log.WithError(err).WithField("url", r.URL.String()).Warn("request timed out")
		writeMessage(w, http.StatusGatewayTimeout, "request timed out")
	default:
		log.WithError(err).WithField("url", r.URL.String()).Error("request failed")
		writeMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, errBadRequest("invalid %s", name)
	}
	return id, nil
}

func pathNumber(r *http.Request, name string) (int64, error) {
	number, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || number < 1 {
		return 0, errBadRequest("invalid %s", name)
	}
	return number, nil
}

func decodeJSON(r *http.Request, target interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return errBadRequest("malformed request body: %v", err)
	}
	return nil
}
