package service

import (
	"context"
	"fmt"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

type CreateProductRequest struct {
	SKU   string `json:"sku" binding:"required"`
	Name  string `json:"name" binding:"required"`
	Price string `json:"price" binding:"required"`
}

type UpdateProductRequest struct {
	SKU      *string `json:"sku"`
	Name     *string `json:"name"`
	Price    *string `json:"price"`
	IsActive *bool   `json:"is_active"`
}

type ProductResponse struct {
	ID       string `json:"id"`
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	IsActive bool   `json:"is_active"`
}

// --- Interface ---

type ProductService interface {
	CreateProduct(ctx context.Context, req CreateProductRequest) (ProductResponse, error)
	GetProduct(ctx context.Context, id string) (ProductResponse, error)
	ListProducts(ctx context.Context, page, limit int) ([]ProductResponse, int64, error)
	UpdateProduct(ctx context.Context, id string, req UpdateProductRequest) (ProductResponse, error)
	DeleteProduct(ctx context.Context, id string) error
}

type productService struct {
	productRepo repository.ProductRepository
}

func NewProductService(productRepo repository.ProductRepository) ProductService {
	return &productService{productRepo: productRepo}
}

// --- Implementation ---

func (s *productService) CreateProduct(ctx context.Context, req CreateProductRequest) (ProductResponse, error) {
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return ProductResponse{}, fmt.Errorf("invalid price: %w", err)
	}
	if price.IsNegative() {
		return ProductResponse{}, fmt.Errorf("price must not be negative")
	}

	product := model.Product{
		SKU:      req.SKU,
		Name:     req.Name,
		Price:    price,
		IsActive: true,
	}
	if err := s.productRepo.Create(ctx, &product); err != nil {
		return ProductResponse{}, fmt.Errorf("failed to create product: %w", err)
	}
	return toProductResponse(product), nil
}

func (s *productService) GetProduct(ctx context.Context, id string) (ProductResponse, error) {
	productID, err := uuid.Parse(id)
	if err != nil {
		return ProductResponse{}, fmt.Errorf("invalid product id: %w", err)
	}
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return ProductResponse{}, fmt.Errorf("product not found: %w", err)
	}
	return toProductResponse(*product), nil
}

func (s *productService) ListProducts(ctx context.Context, page, limit int) ([]ProductResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	products, total, err := s.productRepo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch products: %w", err)
	}

	result := make([]ProductResponse, 0, len(products))
	for _, product := range products {
		result = append(result, toProductResponse(product))
	}
	return result, total, nil
}

func (s *productService) UpdateProduct(ctx context.Context, id string, req UpdateProductRequest) (ProductResponse, error) {
	productID, err := uuid.Parse(id)
	if err != nil {
		return ProductResponse{}, fmt.Errorf("invalid product id: %w", err)
	}
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return ProductResponse{}, fmt.Errorf("product not found: %w", err)
	}

	if req.SKU != nil {
		product.SKU = *req.SKU
	}
	if req.Name != nil {
		product.Name = *req.Name
	}
	if req.Price != nil {
		price, parseErr := decimal.NewFromString(*req.Price)
		if parseErr != nil {
			return ProductResponse{}, fmt.Errorf("invalid price: %w", parseErr)
		}
		product.Price = price
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}

	if err := s.productRepo.Update(ctx, product); err != nil {
		return ProductResponse{}, fmt.Errorf("failed to update product: %w", err)
	}
	return toProductResponse(*product), nil
}

func (s *productService) DeleteProduct(ctx context.Context, id string) error {
	productID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid product id: %w", err)
	}
	return s.productRepo.Delete(ctx, productID)
}

// --- Mapping ---

func toProductResponse(product model.Product) ProductResponse {
	return ProductResponse{
		ID:       product.ID.String(),
		SKU:      product.SKU,
		Name:     product.Name,
		Price:    product.Price.StringFixed(2),
		IsActive: product.IsActive,
	}
}
