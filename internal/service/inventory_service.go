package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/policy"
	"go-inventory-ledger/internal/repository"
	"go-inventory-ledger/pkg/validator"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CreateItemRequest struct {
	Name         string     `json:"name" validate:"required,notblank,max=255"`
	Unit         string     `json:"unit" validate:"max=20"`
	MinimumStock int64      `json:"minimum_stock" validate:"gte=0"`
	CategoryID   *uuid.UUID `json:"category_id"`
	// CategoryName is resolved case-insensitively when CategoryID is empty.
	CategoryName string     `json:"category_name"`
	InitialStock int64      `json:"initial_stock" validate:"gte=0"`
	LocationID   *uuid.UUID `json:"location_id"`
}

type CreateLocationRequest struct {
	Name     string     `json:"name" validate:"required,notblank,max=255"`
	Type     string     `json:"type" validate:"required"`
	ParentID *uuid.UUID `json:"parent_id"`
	// ParentRef is a parent code or name, used when ParentID is empty.
	ParentRef string `json:"parent"`
}

type CreateCategoryRequest struct {
	Name string `json:"name" validate:"required,notblank,max=100"`
}

// StockRequest is a ledger action as a user submits it.
type StockRequest struct {
	ItemID     uuid.UUID  `json:"item_id" validate:"uuid_required"`
	Action     string     `json:"action" validate:"required"`
	Quantity   int64      `json:"quantity"`
	Purpose    string     `json:"purpose"`
	LocationID *uuid.UUID `json:"location_id"`
	Reason     string     `json:"reason"`
	Notes      string     `json:"notes"`
	Recipient  string     `json:"recipient"`
	// ConfirmNegative acknowledges a permitted negative balance.
	ConfirmNegative bool `json:"confirm_negative"`
	// ExpectedVersion is the item version the user saw, if the client tracks it.
	ExpectedVersion *int64 `json:"expected_version"`
}

const (
	StockApplied         = "applied"
	StockPendingApproval = "pending_approval"
)

type StockResult struct {
	Status      string                  `json:"status"`
	Transaction *model.StockTransaction `json:"transaction,omitempty"`
	Approval    *model.ApprovalRequest  `json:"approval,omitempty"`
	Message     string                  `json:"message"`
}

type InventoryService interface {
	CreateItem(ctx context.Context, req *CreateItemRequest, actor Actor) (*model.Item, error)
	CreateLocation(ctx context.Context, req *CreateLocationRequest, actor Actor) (*model.Location, error)
	CreateCategory(ctx context.Context, req *CreateCategoryRequest, actor Actor) (*model.Category, error)
	RecordStock(ctx context.Context, req *StockRequest, actor Actor) (*StockResult, error)
	PreviewStock(ctx context.Context, req *StockRequest) (*policy.Decision, error)
	GetItems(ctx context.Context, filter repository.ItemFilter) ([]model.Item, error)
	GetItem(ctx context.Context, id uuid.UUID) (*model.Item, error)
	GetLocations(ctx context.Context) ([]model.Location, error)
	GetCategories(ctx context.Context) ([]model.Category, error)
}

type inventoryService struct {
	itemRepo     repository.ItemRepository
	locationRepo repository.LocationRepository
	categoryRepo repository.CategoryRepository
	ledger       LedgerService
	approvals    ApprovalService
	policies     policy.Provider
	issuer       *CodeIssuer
	audit        AuditSink
	pub          Publisher
	log          *zap.Logger
}

type InventoryDeps struct {
	ItemRepo     repository.ItemRepository
	LocationRepo repository.LocationRepository
	CategoryRepo repository.CategoryRepository
	Ledger       LedgerService
	Approvals    ApprovalService
	Policies     policy.Provider
	Issuer       *CodeIssuer
	Audit        AuditSink
	Publisher    Publisher
	Log          *zap.Logger
}

func NewInventoryService(d InventoryDeps) InventoryService {
	pub := d.Publisher
	if pub == nil {
		pub = nopPublisher{}
	}
	return &inventoryService{
		itemRepo:     d.ItemRepo,
		locationRepo: d.LocationRepo,
		categoryRepo: d.CategoryRepo,
		ledger:       d.Ledger,
		approvals:    d.Approvals,
		policies:     d.Policies,
		issuer:       d.Issuer,
		audit:        d.Audit,
		pub:          pub,
		log:          d.Log,
	}
}

func validate(req interface{}) error {
	if errs := validator.ValidateStruct(req); len(errs) > 0 {
		first := errs[0]
		return &model.ValidationError{Field: first.FailedField, Message: first.String()}
	}
	return nil
}

// CreateItem issues a code, inserts the item at zero and, when asked,
// receives the initial stock through the ledger so the balance has a
// transaction behind it.
func (s *inventoryService) CreateItem(ctx context.Context, req *CreateItemRequest, actor Actor) (*model.Item, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	categoryID := req.CategoryID
	if categoryID != nil {
		if _, err := s.categoryRepo.FindByID(ctx, *categoryID); err != nil {
			return nil, err
		}
	} else if name := strings.TrimSpace(req.CategoryName); name != "" {
		category, err := s.categoryRepo.FindByName(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", name, err)
		}
		categoryID = &category.ID
	}
	if req.LocationID != nil {
		if _, err := s.locationRepo.FindByID(ctx, *req.LocationID); err != nil {
			return nil, err
		}
	}

	var item *model.Item
	_, err := s.issuer.IssueWith(ctx, EntityItem, func(code string) error {
		item = &model.Item{
			Code:         code,
			Name:         strings.TrimSpace(req.Name),
			MinimumStock: req.MinimumStock,
			Unit:         strings.TrimSpace(req.Unit),
			CategoryID:   categoryID,
			IsActive:     true,
		}
		item.Stamp(actor.ID)
		return s.itemRepo.Create(ctx, nil, item)
	})
	if err != nil {
		return nil, err
	}

	s.audit.RecordEvent(ctx, model.EventItemCreated,
		fmt.Sprintf("item %s (%s) created", item.Code, item.Name),
		map[string]interface{}{"item_id": item.ID, "code": item.Code, "actor_id": actor.ID})
	s.pub.Publish("", "item_created", item)

	if req.InitialStock > 0 {
		entry, err := s.ledger.Apply(ctx, ApplyInput{
			ItemID:     item.ID,
			Action:     model.ActionStockIn,
			Quantity:   req.InitialStock,
			LocationID: req.LocationID,
			Notes:      "initial stock",
			Actor:      actor,
		})
		if err != nil {
			return item, fmt.Errorf("item %s created but initial stock failed: %w", item.Code, err)
		}
		item = entry.Item
	}
	return item, nil
}

func (s *inventoryService) CreateLocation(ctx context.Context, req *CreateLocationRequest, actor Actor) (*model.Location, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	locType, ok := model.ParseLocationType(req.Type)
	if !ok {
		return nil, &model.ValidationError{Field: "type", Message: fmt.Sprintf("unknown location type %q", req.Type)}
	}

	var parent *model.Location
	var err error
	switch {
	case req.ParentID != nil:
		parent, err = s.locationRepo.FindByID(ctx, *req.ParentID)
	case strings.TrimSpace(req.ParentRef) != "":
		parent, err = s.resolveLocation(ctx, req.ParentRef)
	}
	if err != nil {
		return nil, fmt.Errorf("parent: %w", err)
	}
	if parent != nil && parent.Type.Depth() >= locType.Depth() {
		return nil, &model.ValidationError{
			Field:   "parent",
			Message: fmt.Sprintf("a %s cannot be placed inside a %s", locType, parent.Type),
		}
	}

	var location *model.Location
	_, err = s.issuer.IssueWith(ctx, EntityLocation, func(code string) error {
		location = &model.Location{Code: code, Name: strings.TrimSpace(req.Name), Type: locType}
		if parent != nil {
			location.ParentID = &parent.ID
		}
		location.Stamp(actor.ID)
		return s.locationRepo.Create(ctx, location)
	})
	if err != nil {
		return nil, err
	}

	s.audit.RecordEvent(ctx, model.EventLocationCreated,
		fmt.Sprintf("location %s (%s %s) created", location.Code, location.Type, location.Name),
		map[string]interface{}{"location_id": location.ID, "code": location.Code, "actor_id": actor.ID})
	return location, nil
}

// resolveLocation accepts a location code or, failing that, a name.
func (s *inventoryService) resolveLocation(ctx context.Context, ref string) (*model.Location, error) {
	location, err := s.locationRepo.FindByCode(ctx, ref)
	if err == nil {
		return location, nil
	}
	if !errors.Is(err, model.ErrLocationNotFound) {
		return nil, err
	}
	return s.locationRepo.FindByName(ctx, ref)
}

// categoryNameFree returns a ValidationError when name is already in use.
func (s *inventoryService) categoryNameFree(ctx context.Context, name string) error {
	_, err := s.categoryRepo.FindByName(ctx, name)
	switch {
	case err == nil:
		return &model.ValidationError{Field: "name", Message: fmt.Sprintf("category %q already exists", name)}
	case errors.Is(err, model.ErrCategoryNotFound):
		return nil
	}
	return err
}

func (s *inventoryService) CreateCategory(ctx context.Context, req *CreateCategoryRequest, actor Actor) (*model.Category, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if err := s.categoryNameFree(ctx, name); err != nil {
		return nil, err
	}

	var category *model.Category
	_, err := s.issuer.IssueWith(ctx, EntityCategory, func(code string) error {
		category = &model.Category{Code: code, Name: name}
		category.Stamp(actor.ID)
		err := s.categoryRepo.Create(ctx, category)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// A concurrent create may have taken the name; only a code
			// collision is worth another attempt.
			if taken := s.categoryNameFree(ctx, name); taken != nil {
				return taken
			}
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

// RecordStock is the single entry point for user-initiated ledger actions.
// It evaluates the policy against the current item, enforces the hard
// stops, and then either applies directly or files an approval request.
func (s *inventoryService) RecordStock(ctx context.Context, req *StockRequest, actor Actor) (*StockResult, error) {
	action, item, decision, err := s.evaluate(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := decision.Check(item.Code, strings.TrimSpace(req.Reason)); err != nil {
		return nil, err
	}
	if decision.WouldGoNegative && !req.ConfirmNegative {
		return nil, fmt.Errorf("stock for %s would become %d (currently %d): %w",
			item.Code, decision.BalanceAfter, decision.BalanceBefore, model.ErrNegativeStockUnconfirmed)
	}

	if decision.RequiresApproval {
		outcome, err := s.approvals.Submit(ctx, CreateApprovalInput{
			ItemID:     item.ID,
			Action:     action,
			Quantity:   req.Quantity,
			Threshold:  decision.Threshold,
			Reason:     strings.TrimSpace(req.Reason),
			Purpose:    decision.Purpose,
			LocationID: req.LocationID,
			Recipient:  req.Recipient,
			Notes:      req.Notes,
			Requester:  actor,
		})
		if err != nil {
			return nil, err
		}
		if outcome.Transaction != nil {
			return &StockResult{
				Status:      StockApplied,
				Transaction: outcome.Transaction,
				Approval:    outcome.Request,
				Message:     "approved and applied",
			}, nil
		}
		return &StockResult{
			Status:   StockPendingApproval,
			Approval: outcome.Request,
			Message:  decision.ApprovalError().Error() + "; request sent for approval",
		}, nil
	}

	expected := item.Version
	if req.ExpectedVersion != nil {
		expected = *req.ExpectedVersion
	}
	entry, err := s.ledger.Apply(ctx, ApplyInput{
		ItemID:          item.ID,
		Action:          action,
		Quantity:        req.Quantity,
		LocationID:      req.LocationID,
		Reason:          strings.TrimSpace(req.Reason),
		Notes:           req.Notes,
		Recipient:       req.Recipient,
		ExpectedVersion: &expected,
		Actor:           actor,
	})
	if err != nil {
		return nil, err
	}
	return &StockResult{Status: StockApplied, Transaction: entry, Message: "applied"}, nil
}

// PreviewStock returns the policy decision without acting on it, so a
// client can ask for a reason or a negative-stock confirmation first.
func (s *inventoryService) PreviewStock(ctx context.Context, req *StockRequest) (*policy.Decision, error) {
	_, _, decision, err := s.evaluate(ctx, req)
	if err != nil {
		return nil, err
	}
	return &decision, nil
}

func (s *inventoryService) evaluate(ctx context.Context, req *StockRequest) (model.ActionClass, *model.Item, policy.Decision, error) {
	if err := validate(req); err != nil {
		return "", nil, policy.Decision{}, err
	}
	action, ok := model.ParseActionClass(req.Action)
	if !ok {
		return "", nil, policy.Decision{}, fmt.Errorf("%q: %w", req.Action, model.ErrInvalidAction)
	}
	if action != model.ActionAdjustment && req.Quantity < 0 {
		return "", nil, policy.Decision{}, fmt.Errorf("%s quantity %d: %w", action, req.Quantity, model.ErrInvalidQuantity)
	}
	if req.LocationID != nil {
		if _, err := s.locationRepo.FindByID(ctx, *req.LocationID); err != nil {
			return "", nil, policy.Decision{}, err
		}
	}
	item, err := s.itemRepo.FindByID(ctx, nil, req.ItemID)
	if err != nil {
		return "", nil, policy.Decision{}, err
	}
	if !item.IsActive {
		return "", nil, policy.Decision{}, fmt.Errorf("%s is inactive: %w", item.Code, model.ErrItemNotFound)
	}

	decision := s.policies.Current().Evaluate(policy.Proposal{
		Action:   action,
		Quantity: req.Quantity,
		Purpose:  policy.Purpose(strings.ToLower(strings.TrimSpace(req.Purpose))),
	}, *item)
	if decision.PurposeMismatch {
		return "", nil, policy.Decision{}, decision.Check(item.Code, req.Reason)
	}
	return action, item, decision, nil
}

func (s *inventoryService) GetItems(ctx context.Context, filter repository.ItemFilter) ([]model.Item, error) {
	return s.itemRepo.FindAll(ctx, filter)
}

func (s *inventoryService) GetItem(ctx context.Context, id uuid.UUID) (*model.Item, error) {
	return s.itemRepo.FindByID(ctx, nil, id)
}

func (s *inventoryService) GetLocations(ctx context.Context) ([]model.Location, error) {
	return s.locationRepo.FindAll(ctx)
}

func (s *inventoryService) GetCategories(ctx context.Context) ([]model.Category, error) {
	return s.categoryRepo.FindAll(ctx)
}
