package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmehra2102/marketplace-orders/internal/order/domain"
)

// QueryService serves order history and vendor status changes.
type QueryService struct {
	log    *slog.Logger
	reader OrderReader
	tx     Transactor
	now    func() time.Time
}

func NewQueryService(log *slog.Logger, reader OrderReader, tx Transactor) *QueryService {
	return &QueryService{log: log, reader: reader, tx: tx, now: time.Now}
}

// ListForCustomer returns the customer's lines in status (any status when
// empty) with totals. No lines is a valid empty History.
func (q *QueryService) ListForCustomer(ctx context.Context, customerID string, status domain.Status) (domain.History, error) {
	lines, err := q.reader.ListByCustomer(ctx, customerID, status)
	if err != nil {
		return domain.History{}, err
	}
	return domain.NewHistory(lines), nil
}

func (q *QueryService) Get(ctx context.Context, lineID, customerID string) (domain.LineView, error) {
	return q.reader.GetForCustomer(ctx, lineID, customerID)
}

// ListForVendor only ever returns lines owned by vendorID. Status defaults to created.
func (q *QueryService) ListForVendor(ctx context.Context, vendorID string, status domain.Status) ([]domain.LineView, error) {
	if status == "" {
		status = domain.StatusCreated
	}
	return q.reader.ListByVendor(ctx, vendorID, status)
}

// ChangeStatus sets the status of a line owned by vendorID. A missing line
// and another vendor's line both yield domain.ErrNotFound.
func (q *QueryService) ChangeStatus(ctx context.Context, lineID, vendorID string, status domain.Status) (domain.Line, error) {
	if _, err := domain.ParseStatus(string(status)); err != nil {
		return domain.Line{}, err
	}

	var updated domain.Line
	err := q.tx.Within(ctx, func(ctx context.Context, uow UnitOfWork) error {
		now := q.now().UTC()
		l, err := uow.Orders().UpdateStatus(ctx, lineID, vendorID, status, now)
		if err != nil {
			return err
		}
		ev, err := orderEvents.New(ctx, l.CustomerID, domain.EventOrderStatusChanged, domain.OrderStatusChanged{
			OrderLineID: l.ID,
			CustomerID:  l.CustomerID,
			VendorID:    l.VendorID,
			ProductID:   l.ProductID,
			Status:      l.Status,
			ChangedAt:   now,
		}, now)
		if err != nil {
			return err
		}
		if err := uow.Outbox().Append(ctx, ev); err != nil {
			return fmt.Errorf("append status event: %w", err)
		}
		updated = l
		return nil
	})
	if err != nil {
		return domain.Line{}, err
	}
	q.log.Info("order status changed", "order_line_id", lineID, "vendor_id", vendorID, "status", status)
	return updated, nil
}
