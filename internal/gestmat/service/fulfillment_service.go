package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/entity"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FulfillmentService turns a finally approved request into stock
// deductions and a delivery.
type FulfillmentService struct {
	deliveryRepo *repository.DeliveryRepository
	db           *gorm.DB
}

func NewFulfillmentService(deliveryRepo *repository.DeliveryRepository, db *gorm.DB) *FulfillmentService {
	return &FulfillmentService{
		deliveryRepo: deliveryRepo,
		db:           db,
	}
}

// Fulfill deducts stock for every approved line and creates the
// delivery, all in one transaction. Any insufficient stock aborts the
// whole thing: no partial deduction, the request stays approved_final
// and Fulfill can be retried once the shortage is resolved. Codes come
// from MAX(code), so a concurrent creation can collide on the unique
// index; the transaction is retried with a fresh code.
func (s *FulfillmentService) Fulfill(ctx context.Context, requestID, actorID string) (*entity.Delivery, error) {
	for attempt := 0; attempt < 3; attempt++ {
		code, err := s.deliveryRepo.GenerateCode(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to generate delivery code: %w", err)
		}

		delivery, err := s.fulfillTx(ctx, requestID, actorID, code)
		if err == nil {
			return delivery, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("failed to create delivery: code conflicts persisted")
}

func (s *FulfillmentService) fulfillTx(ctx context.Context, requestID, actorID, code string) (*entity.Delivery, error) {
	var delivery *entity.Delivery
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req entity.Request
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", requestID).
			First(&req).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return &NotFoundError{Resource: "request", ID: requestID}
			}
			return err
		}

		if req.Status != entity.RequestStatusApprovedFinal {
			return &InvalidStateError{Status: req.Status, Action: "fulfill"}
		}

		var lines []entity.RequestLine
		if err := tx.Where("request_id = ? AND status = ? AND approved_qty > 0",
			requestID, entity.LineStatusApproved).
			Order("created_at ASC").
			Find(&lines).Error; err != nil {
			return err
		}
		if len(lines) == 0 {
			return &InvalidStateError{Status: req.Status, Action: "fulfill (no approved lines)"}
		}

		now := time.Now()
		delivery = &entity.Delivery{
			ID:        uuid.New().String()[:32],
			Code:      code,
			RequestID: req.ID,
			HandlerID: actorID,
			Status:    entity.DeliveryStatusInProgress,
			CreatedAt: now,
			UpdatedAt: now,
		}

		for _, line := range lines {
			// Locked stock-out; an InsufficientStockError here rolls
			// back every deduction made so far.
			if _, err := adjustStockTx(tx, line.MaterialID, line.ApprovedQty,
				entity.MovementOut, actorID, req.Code); err != nil {
				return err
			}
			delivery.Items = append(delivery.Items, entity.DeliveryItem{
				ID:           uuid.New().String()[:32],
				DeliveryID:   delivery.ID,
				MaterialID:   line.MaterialID,
				RequestedQty: line.RequestedQty,
				DeliveredQty: line.ApprovedQty,
				CreatedAt:    now,
			})
		}

		if err := tx.Create(delivery).Error; err != nil {
			return err
		}

		req.Status = entity.RequestStatusFulfillment
		req.UpdatedAt = now
		return tx.Save(&req).Error
	})
	if err != nil {
		return nil, err
	}
	return delivery, nil
}

// ConfirmDelivery marks a delivery as delivered and stamps the date.
// Confirming an already-delivered delivery is a no-op; stock was
// deducted at fulfillment and is never touched again here.
func (s *FulfillmentService) ConfirmDelivery(ctx context.Context, deliveryID string) (*entity.Delivery, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var delivery entity.Delivery
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", deliveryID).
			First(&delivery).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return &NotFoundError{Resource: "delivery", ID: deliveryID}
			}
			return err
		}

		if delivery.Status == entity.DeliveryStatusDelivered {
			return nil
		}
		if delivery.Status == entity.DeliveryStatusCanceled {
			return &InvalidStateError{Status: delivery.Status, Action: "confirm delivery"}
		}

		now := time.Now()
		delivery.Status = entity.DeliveryStatusDelivered
		delivery.DeliveredAt = &now
		delivery.UpdatedAt = now
		if err := tx.Save(&delivery).Error; err != nil {
			return err
		}

		return tx.Model(&entity.Request{}).
			Where("id = ?", delivery.RequestID).
			Updates(map[string]interface{}{
				"status":     entity.RequestStatusDelivered,
				"updated_at": now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetDelivery(ctx, deliveryID)
}

// CancelDelivery aborts an in-progress delivery: the deducted stock is
// restored with compensating "in" movements and the request returns to
// approved_final.
func (s *FulfillmentService) CancelDelivery(ctx context.Context, deliveryID, actorID, comment string) (*entity.Delivery, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var delivery entity.Delivery
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Items").
			Where("id = ?", deliveryID).
			First(&delivery).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return &NotFoundError{Resource: "delivery", ID: deliveryID}
			}
			return err
		}

		if delivery.Status != entity.DeliveryStatusInProgress {
			return &InvalidStateError{Status: delivery.Status, Action: "cancel delivery"}
		}

		for _, item := range delivery.Items {
			if _, err := adjustStockTx(tx, item.MaterialID, item.DeliveredQty,
				entity.MovementIn, actorID, delivery.Code+" canceled"); err != nil {
				return err
			}
		}

		now := time.Now()
		delivery.Status = entity.DeliveryStatusCanceled
		delivery.Comment = comment
		delivery.UpdatedAt = now
		if err := tx.Save(&delivery).Error; err != nil {
			return err
		}

		return tx.Model(&entity.Request{}).
			Where("id = ?", delivery.RequestID).
			Updates(map[string]interface{}{
				"status":     entity.RequestStatusApprovedFinal,
				"updated_at": now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetDelivery(ctx, deliveryID)
}

func (s *FulfillmentService) GetDelivery(ctx context.Context, id string) (*entity.Delivery, error) {
	delivery, err := s.deliveryRepo.FindByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, &NotFoundError{Resource: "delivery", ID: id}
		}
		return nil, err
	}
	return delivery, nil
}

func (s *FulfillmentService) ListDeliveries(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Delivery, int64, error) {
	return s.deliveryRepo.FindAll(ctx, page, pageSize, filters)
}
