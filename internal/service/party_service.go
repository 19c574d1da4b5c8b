package service

import (
	"context"
	"fmt"
	"time"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
)

// --- DTOs ---

type CreatePartyRequest struct {
	Name          string `json:"name" binding:"required"`
	Kind          string `json:"kind" binding:"required,oneof=CUSTOMER SUPPLIER BOTH"`
	TaxCode       string `json:"tax_code"`
	CompanyName   string `json:"company_name"`
	ContactPerson string `json:"contact_person"`
	Phone         string `json:"phone"`
	Email         string `json:"email" binding:"omitempty,email"`
	Address       string `json:"address"`
}

type UpdatePartyRequest struct {
	Name          *string `json:"name"`
	TaxCode       *string `json:"tax_code"`
	CompanyName   *string `json:"company_name"`
	ContactPerson *string `json:"contact_person"`
	Phone         *string `json:"phone"`
	Email         *string `json:"email"`
	Address       *string `json:"address"`
	IsActive      *bool   `json:"is_active"`
}

type PartyFilter struct {
	Kind   string
	Search string
	Page   int
	Limit  int
}

type PartyResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Kind          string `json:"kind"`
	SystemKey     string `json:"system_key,omitempty"`
	TaxCode       string `json:"tax_code"`
	CompanyName   string `json:"company_name"`
	ContactPerson string `json:"contact_person"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	Address       string `json:"address"`
	IsActive      bool   `json:"is_active"`
	CreatedAt     string `json:"created_at"`
}

// --- Interface ---

type PartyService interface {
	CreateParty(ctx context.Context, req CreatePartyRequest) (PartyResponse, error)
	GetParty(ctx context.Context, id string) (PartyResponse, error)
	ListParties(ctx context.Context, filter PartyFilter) ([]PartyResponse, int64, error)
	UpdateParty(ctx context.Context, id string, req UpdatePartyRequest) (PartyResponse, error)
	DeleteParty(ctx context.Context, id string) error
	// WalkInParty resolves (creating if needed) the singleton anonymous
	// customer.
	WalkInParty(ctx context.Context) (PartyResponse, error)
}

type partyService struct {
	partyRepo repository.PartyRepository
}

func NewPartyService(partyRepo repository.PartyRepository) PartyService {
	return &partyService{partyRepo: partyRepo}
}

// --- Implementation ---

// EnsureWalkInParty upserts the walk-in singleton keyed by its stable system
// key. Concurrent first-time creation resolves to a single row because the
// write is ON CONFLICT DO NOTHING, never check-then-create.
func EnsureWalkInParty(ctx context.Context, repo repository.PartyRepository) (*model.Party, error) {
	key := model.SystemKeyWalkIn
	party := &model.Party{
		Name:      "Público en general",
		Kind:      model.PartyKindCustomer,
		SystemKey: &key,
		IsActive:  true,
	}
	if err := repo.UpsertBySystemKey(ctx, party); err != nil {
		return nil, err
	}
	return party, nil
}

func (s *partyService) CreateParty(ctx context.Context, req CreatePartyRequest) (PartyResponse, error) {
	party := model.Party{
		Name:          req.Name,
		Kind:          req.Kind,
		TaxCode:       req.TaxCode,
		CompanyName:   req.CompanyName,
		ContactPerson: req.ContactPerson,
		Phone:         req.Phone,
		Email:         req.Email,
		Address:       req.Address,
		IsActive:      true,
	}
	if err := s.partyRepo.Create(ctx, &party); err != nil {
		return PartyResponse{}, fmt.Errorf("failed to create party: %w", err)
	}
	return toPartyResponse(party), nil
}

func (s *partyService) GetParty(ctx context.Context, id string) (PartyResponse, error) {
	partyID, err := uuid.Parse(id)
	if err != nil {
		return PartyResponse{}, fmt.Errorf("invalid party id: %w", err)
	}
	party, err := s.partyRepo.FindByID(ctx, partyID)
	if err != nil {
		return PartyResponse{}, fmt.Errorf("party not found: %w", err)
	}
	return toPartyResponse(*party), nil
}

func (s *partyService) ListParties(ctx context.Context, filter PartyFilter) ([]PartyResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	parties, total, err := s.partyRepo.List(ctx, repository.PartyListFilter{
		Kind:   filter.Kind,
		Search: filter.Search,
		Page:   filter.Page,
		Limit:  filter.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch parties: %w", err)
	}

	result := make([]PartyResponse, 0, len(parties))
	for _, party := range parties {
		result = append(result, toPartyResponse(party))
	}
	return result, total, nil
}

func (s *partyService) UpdateParty(ctx context.Context, id string, req UpdatePartyRequest) (PartyResponse, error) {
	partyID, err := uuid.Parse(id)
	if err != nil {
		return PartyResponse{}, fmt.Errorf("invalid party id: %w", err)
	}
	party, err := s.partyRepo.FindByID(ctx, partyID)
	if err != nil {
		return PartyResponse{}, fmt.Errorf("party not found: %w", err)
	}
	if party.SystemKey != nil {
		return PartyResponse{}, fmt.Errorf("system parties cannot be edited")
	}

	if req.Name != nil {
		party.Name = *req.Name
	}
	if req.TaxCode != nil {
		party.TaxCode = *req.TaxCode
	}
	if req.CompanyName != nil {
		party.CompanyName = *req.CompanyName
	}
	if req.ContactPerson != nil {
		party.ContactPerson = *req.ContactPerson
	}
	if req.Phone != nil {
		party.Phone = *req.Phone
	}
	if req.Email != nil {
		party.Email = *req.Email
	}
	if req.Address != nil {
		party.Address = *req.Address
	}
	if req.IsActive != nil {
		party.IsActive = *req.IsActive
	}

	if err := s.partyRepo.Update(ctx, party); err != nil {
		return PartyResponse{}, fmt.Errorf("failed to update party: %w", err)
	}
	return toPartyResponse(*party), nil
}

func (s *partyService) DeleteParty(ctx context.Context, id string) error {
	partyID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid party id: %w", err)
	}
	party, err := s.partyRepo.FindByID(ctx, partyID)
	if err != nil {
		return fmt.Errorf("party not found: %w", err)
	}
	if party.SystemKey != nil {
		return fmt.Errorf("system parties cannot be deleted")
	}
	return s.partyRepo.Delete(ctx, partyID)
}

func (s *partyService) WalkInParty(ctx context.Context) (PartyResponse, error) {
	party, err := EnsureWalkInParty(ctx, s.partyRepo)
	if err != nil {
		return PartyResponse{}, fmt.Errorf("failed to resolve walk-in party: %w", err)
	}
	return toPartyResponse(*party), nil
}

// --- Mapping ---

func toPartyResponse(party model.Party) PartyResponse {
	resp := PartyResponse{
		ID:            party.ID.String(),
		Name:          party.Name,
		Kind:          party.Kind,
		TaxCode:       party.TaxCode,
		CompanyName:   party.CompanyName,
		ContactPerson: party.ContactPerson,
		Phone:         party.Phone,
		Email:         party.Email,
		Address:       party.Address,
		IsActive:      party.IsActive,
		CreatedAt:     party.CreatedAt.Format(time.RFC3339),
	}
	if party.SystemKey != nil {
		resp.SystemKey = *party.SystemKey
	}
	return resp
}
