package controllers

import (
	"net/http"

	"github.com/shoptrace/shoptrace-api/api/responses"
	"github.com/shoptrace/shoptrace-api/api/validators"
	ordersvc "github.com/shoptrace/shoptrace-api/internal/orders"
	pkgerrors "github.com/shoptrace/shoptrace-api/pkg/errors"
	"github.com/shoptrace/shoptrace-api/pkg/logger"
)

// CreateOrder handles POST /orders.
func CreateOrder(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		var payload ordersvc.CreateOrderInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.CreateOrder(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

type getOrderResponse struct {
	Order  *ordersvc.OrderDTO `json:"order"`
	Cached bool               `json:"cached"`
}

// GetOrder handles GET /orders/{orderID}.
func GetOrder(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		id, err := validators.ParseIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, cached, err := svc.GetOrder(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, getOrderResponse{Order: order, Cached: cached})
	}
}

type userOrdersResponse struct {
	Orders []ordersvc.OrderSummaryDTO `json:"orders"`
}

// ListUserOrders handles GET /orders/user/{userID}.
func ListUserOrders(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		userID, err := validators.ParseIDParam(r, "userID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summaries, err := svc.ListUserOrders(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if summaries == nil {
			summaries = []ordersvc.OrderSummaryDTO{}
		}

		responses.WriteSuccess(w, userOrdersResponse{Orders: summaries})
	}
}
