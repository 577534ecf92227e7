package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/entity"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventoryService is the single writer for stock counts. Every change
// to a material's available quantity goes through a locked transaction
// and leaves a ledger entry.
type InventoryService struct {
	materialRepo *repository.MaterialRepository
	movementRepo *repository.MovementRepository
	db           *gorm.DB
}

func NewInventoryService(materialRepo *repository.MaterialRepository, movementRepo *repository.MovementRepository, db *gorm.DB) *InventoryService {
	return &InventoryService{
		materialRepo: materialRepo,
		movementRepo: movementRepo,
		db:           db,
	}
}

// CreateMaterialInput is the creation payload.
type CreateMaterialInput struct {
	Name      string `json:"name"`
	Category  string `json:"category"`
	TotalQty  int    `json:"total_qty"`
	Condition string `json:"condition"`
}

// CreateMaterial registers a material with available = total and writes
// the initial "in" movement. Name collisions are checked
// case-insensitively.
func (s *InventoryService) CreateMaterial(ctx context.Context, input CreateMaterialInput, actorID string) (*entity.Material, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, newValidationError("name", "name is required")
	}
	if input.TotalQty < 0 {
		return nil, newValidationError("total_qty", "quantity cannot be negative")
	}

	existing, err := s.materialRepo.FindByNameFold(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to check material name: %w", err)
	}
	if existing != nil {
		return nil, &DuplicateNameError{Name: name}
	}

	code, err := s.materialRepo.GenerateCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate material code: %w", err)
	}

	condition := input.Condition
	if condition == "" {
		condition = entity.ConditionNew
	}

	material := &entity.Material{
		ID:           uuid.New().String()[:32],
		Code:         code,
		Name:         name,
		Category:     input.Category,
		TotalQty:     input.TotalQty,
		AvailableQty: input.TotalQty,
		Condition:    condition,
		CreatedBy:    actorID,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(material).Error; err != nil {
			return err
		}
		if material.TotalQty > 0 {
			movement := &entity.StockMovement{
				ID:         uuid.New().String()[:32],
				MaterialID: material.ID,
				Direction:  entity.MovementIn,
				Quantity:   material.TotalQty,
				ActorID:    actorID,
				Reference:  "initial stock",
				CreatedAt:  time.Now(),
			}
			if err := tx.Create(movement).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create material: %w", err)
	}

	return material, nil
}

// AdjustStock applies one stock movement atomically. The material row
// is locked for the duration of the transaction so concurrent
// adjustments serialize; an "out" larger than the available quantity
// fails without writing anything.
func (s *InventoryService) AdjustStock(ctx context.Context, materialID string, quantity int, direction, actorID, reference string) (*entity.StockMovement, error) {
	if quantity <= 0 {
		return nil, newValidationError("quantity", "quantity must be positive")
	}
	if direction != entity.MovementIn && direction != entity.MovementOut {
		return nil, newValidationError("direction", "direction must be in or out")
	}

	var movement *entity.StockMovement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		movement, err = adjustStockTx(tx, materialID, quantity, direction, actorID, reference)
		return err
	})
	if err != nil {
		return nil, err
	}
	return movement, nil
}

// adjustStockTx is the locked read-modify-write shared with
// fulfillment, which runs several adjustments in one transaction.
func adjustStockTx(tx *gorm.DB, materialID string, quantity int, direction, actorID, reference string) (*entity.StockMovement, error) {
	var material entity.Material
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", materialID).
		First(&material).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &NotFoundError{Resource: "material", ID: materialID}
		}
		return nil, err
	}

	switch direction {
	case entity.MovementOut:
		if quantity > material.AvailableQty {
			return nil, &InsufficientStockError{
				MaterialID:   material.ID,
				MaterialName: material.Name,
				Requested:    quantity,
				Available:    material.AvailableQty,
			}
		}
		material.AvailableQty -= quantity
	case entity.MovementIn:
		material.AvailableQty += quantity
		if material.AvailableQty > material.TotalQty {
			material.TotalQty = material.AvailableQty
		}
	}
	material.UpdatedAt = time.Now()

	if err := tx.Save(&material).Error; err != nil {
		return nil, err
	}

	movement := &entity.StockMovement{
		ID:         uuid.New().String()[:32],
		MaterialID: material.ID,
		Direction:  direction,
		Quantity:   quantity,
		ActorID:    actorID,
		Reference:  reference,
		CreatedAt:  time.Now(),
	}
	if err := tx.Create(movement).Error; err != nil {
		return nil, err
	}
	return movement, nil
}

// UpdateMaterialInput carries the editable fields. Quantities are not
// editable here; stock only moves through AdjustStock and ResyncStock.
type UpdateMaterialInput struct {
	Name      *string `json:"name"`
	Category  *string `json:"category"`
	Condition *string `json:"condition"`
	TotalQty  *int    `json:"total_qty"`
}

// UpdateMaterial edits descriptive fields. Raising or lowering TotalQty
// does not touch AvailableQty; use ResyncStock for that, explicitly.
func (s *InventoryService) UpdateMaterial(ctx context.Context, id string, input UpdateMaterialInput) (*entity.Material, error) {
	material, err := s.materialRepo.FindByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, &NotFoundError{Resource: "material", ID: id}
		}
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, newValidationError("name", "name cannot be empty")
		}
		if !strings.EqualFold(name, material.Name) {
			existing, err := s.materialRepo.FindByNameFold(ctx, name)
			if err != nil {
				return nil, err
			}
			if existing != nil && existing.ID != material.ID {
				return nil, &DuplicateNameError{Name: name}
			}
		}
		material.Name = name
	}
	if input.Category != nil {
		material.Category = *input.Category
	}
	if input.Condition != nil {
		material.Condition = *input.Condition
	}
	if input.TotalQty != nil {
		if *input.TotalQty < material.AvailableQty {
			return nil, newValidationError("total_qty",
				fmt.Sprintf("total cannot drop below available quantity (%d)", material.AvailableQty))
		}
		material.TotalQty = *input.TotalQty
	}
	material.UpdatedAt = time.Now()

	if err := s.materialRepo.Update(ctx, material); err != nil {
		return nil, fmt.Errorf("failed to update material: %w", err)
	}
	return material, nil
}

// ResyncStock sets available back to total, recording the difference as
// a compensating movement. Destructive, so the caller must confirm.
func (s *InventoryService) ResyncStock(ctx context.Context, id string, confirm bool, actorID string) (*entity.Material, error) {
	if !confirm {
		return nil, newValidationError("confirm", "stock resync must be explicitly confirmed")
	}

	var material entity.Material
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&material).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return &NotFoundError{Resource: "material", ID: id}
			}
			return err
		}

		diff := material.TotalQty - material.AvailableQty
		if diff == 0 {
			return nil
		}

		direction := entity.MovementIn
		qty := diff
		if diff < 0 {
			direction = entity.MovementOut
			qty = -diff
		}

		material.AvailableQty = material.TotalQty
		material.UpdatedAt = time.Now()
		if err := tx.Save(&material).Error; err != nil {
			return err
		}

		movement := &entity.StockMovement{
			ID:         uuid.New().String()[:32],
			MaterialID: material.ID,
			Direction:  direction,
			Quantity:   qty,
			ActorID:    actorID,
			Reference:  "stock resync",
			CreatedAt:  time.Now(),
		}
		return tx.Create(movement).Error
	})
	if err != nil {
		return nil, err
	}
	return &material, nil
}

// DeleteMaterial removes a material unless open request lines still
// reference it.
func (s *InventoryService) DeleteMaterial(ctx context.Context, id string) error {
	if _, err := s.materialRepo.FindByID(ctx, id); err != nil {
		if err == repository.ErrNotFound {
			return &NotFoundError{Resource: "material", ID: id}
		}
		return err
	}

	refs, err := s.materialRepo.CountOpenLineRefs(ctx, id)
	if err != nil {
		return err
	}
	if refs > 0 {
		return newValidationError("material",
			fmt.Sprintf("material is referenced by %d open request line(s)", refs))
	}

	return s.materialRepo.Delete(ctx, id)
}

func (s *InventoryService) GetMaterial(ctx context.Context, id string) (*entity.Material, error) {
	material, err := s.materialRepo.FindByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, &NotFoundError{Resource: "material", ID: id}
		}
		return nil, err
	}
	return material, nil
}

func (s *InventoryService) ListMaterials(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Material, int64, error) {
	return s.materialRepo.FindAll(ctx, page, pageSize, filters)
}

func (s *InventoryService) ListMovements(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.StockMovement, int64, error) {
	return s.movementRepo.FindAll(ctx, page, pageSize, filters)
}
