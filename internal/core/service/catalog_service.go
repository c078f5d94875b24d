package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/vrd2140/storefront/internal/core/domain"
	"github.com/vrd2140/storefront/internal/port"
)

// ProductListing pairs a product with its live availability from the ledger.
type ProductListing struct {
	Product   *domain.Product
	Available int
}

// CatalogService manages products and keeps the durable stock rows and the
// in-memory ledger in step.
type CatalogService struct {
	products port.ProductStore
	ledger   port.InventoryLedger
	logger   zerolog.Logger
}

func NewCatalogService(products port.ProductStore, ledger port.InventoryLedger, logger zerolog.Logger) *CatalogService {
	return &CatalogService{
		products: products,
		ledger:   ledger,
		logger:   logger.With().Str("component", "catalog_service").Logger(),
	}
}

func (s *CatalogService) CreateProduct(ctx context.Context, name, description string, unitPrice decimal.Decimal, initialStock int) (*domain.Product, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &domain.InvalidInputError{Reason: "product name is empty"}
	}
	if unitPrice.IsNegative() {
		return nil, &domain.InvalidInputError{Reason: "unit price must not be negative"}
	}
	if initialStock < 0 {
		return nil, &domain.InvalidInputError{Reason: "initial stock must not be negative"}
	}

	now := time.Now()
	product := &domain.Product{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		UnitPrice:   unitPrice,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.products.Create(ctx, product, initialStock); err != nil {
		return nil, &domain.StorageError{Op: "create product", Err: err}
	}
	if err := s.ledger.Provision(product.ID, initialStock); err != nil {
		return nil, err
	}

	s.logger.Info().Str("product_id", product.ID).Int("stock", initialStock).Msg("product created")
	return product, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, productID string) (*ProductListing, error) {
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &ProductListing{Product: product, Available: s.available(product.ID)}, nil
}

func (s *CatalogService) ListProducts(ctx context.Context) ([]*ProductListing, error) {
	products, err := s.products.List(ctx)
	if err != nil {
		return nil, &domain.StorageError{Op: "list products", Err: err}
	}

	listings := make([]*ProductListing, 0, len(products))
	for _, p := range products {
		listings = append(listings, &ProductListing{Product: p, Available: s.available(p.ID)})
	}
	return listings, nil
}

// SetStock restocks a product: the durable row and the ledger both move to
// the new total. Totals below the currently reserved quantity are rejected
// before anything is written. The durable row is written first so a storage
// failure leaves the ledger untouched.
func (s *CatalogService) SetStock(ctx context.Context, productID string, totalStock int) (domain.Availability, error) {
	if _, err := s.products.Get(ctx, productID); err != nil {
		return domain.Availability{}, err
	}
	if totalStock < 0 {
		return domain.Availability{}, &domain.InvalidInputError{Reason: "total stock must not be negative"}
	}

	avail, err := s.ledger.Stock(productID)
	if err != nil && !errors.Is(err, domain.ErrProductNotFound) {
		return domain.Availability{}, err
	}
	if totalStock < avail.Reserved {
		return domain.Availability{}, &domain.InvalidInputError{
			Reason: fmt.Sprintf("total stock %d for %s is below reserved %d", totalStock, productID, avail.Reserved),
		}
	}

	if err := s.products.SetStock(ctx, productID, totalStock); err != nil {
		return domain.Availability{}, &domain.StorageError{Op: "set stock", Err: err}
	}
	if err := s.ledger.Provision(productID, totalStock); err != nil {
		// Reservations raced in between the check and the provision. The
		// durable row already moved; surface the conflict to the caller.
		s.logger.Warn().Err(err).Str("product_id", productID).Msg("ledger resize rejected after durable restock")
		return domain.Availability{}, err
	}
	return s.ledger.Stock(productID)
}

func (s *CatalogService) Stock(ctx context.Context, productID string) (domain.Availability, error) {
	if _, err := s.products.Get(ctx, productID); err != nil {
		return domain.Availability{}, err
	}
	return s.ledger.Stock(productID)
}

func (s *CatalogService) available(productID string) int {
	avail, err := s.ledger.Stock(productID)
	if err != nil {
		if !errors.Is(err, domain.ErrProductNotFound) {
			s.logger.Warn().Err(err).Str("product_id", productID).Msg("availability lookup failed")
		}
		return 0
	}
	return avail.Available()
}
