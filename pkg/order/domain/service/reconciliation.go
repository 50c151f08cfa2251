package service

import (
	"context"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"storefront/pkg/common/domain"
	"storefront/pkg/order/domain/model"
)

func (s *orderService) RetryReconciliation(ctx context.Context, number int64) (*UpdateResult, error) {
	order, err := s.repo.Find(ctx, number)
	if err != nil {
		return nil, err
	}
	if order.Status != model.Delivered {
		return nil, ErrOrderNotDelivered
	}
	return &UpdateResult{Order: order, Reconciliation: s.reconcile(ctx, order)}, nil
}

func (s *orderService) ReconcilePending(ctx context.Context) (int, error) {
	orders, err := s.repo.FindUnreconciled(ctx, s.sweepBatch)
	if err != nil {
		return 0, err
	}

	completed := 0
	for i := range orders {
		if ctx.Err() != nil {
			return completed, ctx.Err()
		}
		if report := s.reconcile(ctx, &orders[i]); report.Complete {
			completed++
		}
	}
	return completed, nil
}

// reconcile moves stock to sold for every pending line item of a delivered order.
// Each item is applied at most once by the reconciler; failures of one item are
// reported and do not stop the others. The order is flagged reconciled only when
// no item is left pending.
func (s *orderService) reconcile(ctx context.Context, order *model.Order) *model.ReconciliationReport {
	report := &model.ReconciliationReport{OrderNumber: order.Number}
	var events []domain.Event

	for i := range order.Items {
		item := &order.Items[i]
		entry := model.ItemReconciliation{Line: item.Line, ProductID: item.ProductID, Quantity: item.Quantity}
		logger := log.WithFields(log.Fields{
			"order":    order.Number,
			"line":     item.Line,
			"product":  item.ProductID,
			"quantity": item.Quantity,
		})

		if item.ReconcileState.Done() {
			entry.Outcome = model.OutcomeSkipped
			report.Items = append(report.Items, entry)
			continue
		}

		movement, err := s.reconcileItem(ctx, order.ID, *item)
		switch {
		case err == nil:
			item.ReconcileState = model.LineItemApplied
			item.Shortfall = movement.Shortfall
			entry.Outcome = model.OutcomeApplied
			entry.Shortfall = movement.Shortfall
			logger.WithFields(log.Fields{
				"outcome": entry.Outcome,
				"stock":   movement.StockQuantity,
				"sold":    movement.Sold,
			}).Info("line item reconciled")
			events = append(events, model.StockReconciled{
				OrderID:     order.ID,
				OrderNumber: order.Number,
				ProductID:   item.ProductID,
				Quantity:    item.Quantity,
				NewQuantity: movement.StockQuantity,
				NewSold:     movement.Sold,
			})
			if movement.Shortfall > 0 {
				logger.WithField("shortfall", movement.Shortfall).Warn("stock clamped at zero")
				events = append(events, model.StockShortfallDetected{
					OrderNumber: order.Number,
					ProductID:   item.ProductID,
					Requested:   item.Quantity,
					Shortfall:   movement.Shortfall,
				})
			}
		case errors.Is(err, model.ErrLineItemAlreadyReconciled):
			if stored, ok := s.storedItem(ctx, order.Number, item.Line); ok {
				item.ReconcileState = stored.ReconcileState
				item.Shortfall = stored.Shortfall
			}
			entry.Outcome = model.OutcomeSkipped
			logger.WithField("outcome", entry.Outcome).Info("line item already reconciled")
		case errors.Is(err, model.ErrProductNotFound):
			item.ReconcileState = model.LineItemProductNotFound
			entry.Outcome = model.OutcomeProductNotFound
			entry.Error = err.Error()
			logger.WithField("outcome", entry.Outcome).Error("product not found for line item")
			events = append(events, model.ReconciliationFailed{
				OrderNumber: order.Number,
				ProductID:   item.ProductID,
				Reason:      err.Error(),
			})
		default:
			entry.Outcome = model.OutcomeFailed
			entry.Error = err.Error()
			logger.WithError(err).WithField("outcome", entry.Outcome).Error("failed to reconcile line item")
			events = append(events, model.ReconciliationFailed{
				OrderNumber: order.Number,
				ProductID:   item.ProductID,
				Reason:      err.Error(),
			})
		}
		report.Items = append(report.Items, entry)
	}

	if order.AllItemsDone() {
		if err := s.repo.MarkReconciled(ctx, order.ID); err != nil {
			log.WithError(err).WithField("order", order.Number).Error("failed to mark order reconciled")
		} else {
			order.StockReconciled = true
			report.Complete = true
		}
	}

	s.dispatchEvents(events...)
	return report
}

// storedItem re-reads a line item processed by another reconciler. On failure the
// in-memory item stays pending, so the order is left for the next sweep.
func (s *orderService) storedItem(ctx context.Context, number int64, line int) (model.LineItem, bool) {
	order, err := s.repo.Find(ctx, number)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"order": number, "line": line}).Warn("failed to re-read line item")
		return model.LineItem{}, false
	}
	for _, item := range order.Items {
		if item.Line == line {
			return item, true
		}
	}
	return model.LineItem{}, false
}

func (s *orderService) reconcileItem(ctx context.Context, orderID uuid.UUID, item model.LineItem) (model.StockMovement, error) {
	var (
		movement model.StockMovement
		final    error
	)
	operation := func() error {
		m, err := s.reconciler.ReconcileLineItem(ctx, orderID, item)
		if errors.Is(err, model.ErrLineItemAlreadyReconciled) || errors.Is(err, model.ErrProductNotFound) {
			final = err
			return nil
		}
		if err != nil {
			return err
		}
		movement = m
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryInterval
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, s.retries), ctx)); err != nil {
		return model.StockMovement{}, err
	}
	return movement, final
}
