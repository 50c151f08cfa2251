package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	cartservice "storefront/pkg/cart/domain/service"
	catalogservice "storefront/pkg/catalog/domain/service"
	"storefront/pkg/infrastructure/auth"
	notificationservice "storefront/pkg/notification/domain/service"
	orderservice "storefront/pkg/order/domain/service"
)

type Services struct {
	Products      catalogservice.ProductService
	Orders        orderservice.OrderService
	Carts         cartservice.CartService
	Notifications notificationservice.NotificationService
}

type Authenticator interface {
	Verify(token string) (*auth.Claims, error)
}

type Handler struct {
	products      catalogservice.ProductService
	orders        orderservice.OrderService
	carts         cartservice.CartService
	notifications notificationservice.NotificationService
}

func Router(services Services, authenticator Authenticator, ioTimeout time.Duration) http.Handler {
	h := &Handler{
		products:      services.Products,
		orders:        services.Orders,
		carts:         services.Carts,
		notifications: services.Notifications,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)

	r.HandleFunc("/products", h.listProducts).Methods(http.MethodGet)
	r.HandleFunc("/products/bestsellers", h.bestSellers).Methods(http.MethodGet)
	r.HandleFunc("/products/discounted", h.discountedProducts).Methods(http.MethodGet)
	r.HandleFunc("/products/non-discounted", h.fullPriceProducts).Methods(http.MethodGet)
	r.HandleFunc("/products/category/{categoryId}", h.productsByCategory).Methods(http.MethodGet)
	r.HandleFunc("/products/{id}", h.getProduct).Methods(http.MethodGet)

	user := func(handler http.HandlerFunc) http.Handler {
		return authMiddleware(authenticator)(handler)
	}
	admin := func(handler http.HandlerFunc) http.Handler {
		return authMiddleware(authenticator)(adminMiddleware(handler))
	}

	r.Handle("/products", admin(h.createProduct)).Methods(http.MethodPost)
	r.Handle("/products/{id}", admin(h.updateProduct)).Methods(http.MethodPut)
	r.Handle("/products/{id}", admin(h.deleteProduct)).Methods(http.MethodDelete)

	r.Handle("/orders", user(h.createOrder)).Methods(http.MethodPost)
	r.Handle("/orders", admin(h.listOrders)).Methods(http.MethodGet)
	r.Handle("/orders", admin(h.deleteAllOrders)).Methods(http.MethodDelete)
	r.Handle("/orders/{id}", admin(h.getOrder)).Methods(http.MethodGet)
	r.Handle("/orders/{id}", admin(h.updateOrder)).Methods(http.MethodPut)
	r.Handle("/orders/{id}", admin(h.deleteOrder)).Methods(http.MethodDelete)
	r.Handle("/orders/{id}/reconcile", admin(h.reconcileOrder)).Methods(http.MethodPost)
	r.Handle("/orders/{id}/{userId}", user(h.getOrderForUser)).Methods(http.MethodGet)
	r.Handle("/users/me/orders", user(h.myOrders)).Methods(http.MethodGet)

	r.Handle("/cart", user(h.getCart)).Methods(http.MethodGet)
	r.Handle("/cart", user(h.addToCart)).Methods(http.MethodPost)
	r.Handle("/cart/user/{userId}", user(h.clearCart)).Methods(http.MethodDelete)
	r.Handle("/cart/{productId}", user(h.updateCartItem)).Methods(http.MethodPut)
	r.Handle("/cart/{productId}", user(h.removeCartItem)).Methods(http.MethodDelete)

	r.Handle("/notifications", user(h.listNotifications)).Methods(http.MethodGet)

	return logMiddleware(corsMiddleware(timeoutMiddleware(ioTimeout, r)))
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func logMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(recorder, r)
		log.WithFields(log.Fields{
			"method":     r.Method,
			"url":        r.URL,
			"remoteAddr": r.RemoteAddr,
			"userAgent":  r.UserAgent(),
			"status":     recorder.status,
			"duration":   time.Since(start).String(),
		}).Info("got a new request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func corsMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// timeoutMiddleware bounds every storage and network call made while serving a request.
func timeoutMiddleware(timeout time.Duration, h http.Handler) http.Handler {
	if timeout <= 0 {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}
