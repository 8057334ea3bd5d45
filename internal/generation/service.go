// Package generation runs single-shot generations outside of a chat. Credits are deducted before
// the provider is called and refunded when it fails.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creditstudio/CreditStudio/internal/ledger"
	"github.com/creditstudio/CreditStudio/internal/metrics"
	"github.com/creditstudio/CreditStudio/internal/models"
	"github.com/creditstudio/CreditStudio/internal/pricing"
	"github.com/creditstudio/CreditStudio/internal/provider"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrInvalidRequest indicates a malformed generation request.
	ErrInvalidRequest = errors.New("generation: invalid request")
	// ErrInsufficientCredits indicates the user cannot afford the generation.
	ErrInsufficientCredits = errors.New("generation: insufficient credits")
	// ErrNotFound indicates the generation does not exist for the user.
	ErrNotFound = errors.New("generation: not found")
	// ErrProviderUnavailable indicates no generator is registered for the provider.
	ErrProviderUnavailable = errors.New("generation: provider unavailable")
	// ErrDuplicateRequest indicates the request id belongs to another user.
	ErrDuplicateRequest = errors.New("generation: duplicate request id")
)

// CostResolver prices a generation. *pricing.Resolver satisfies it.
type CostResolver interface {
	Resolve(ctx context.Context, serviceType string, providerID uint64, params map[string]any) (int64, error)
}

// Request describes one generation.
type Request struct {
	// RequestID makes the call idempotent per user; generated when empty.
	RequestID  string
	UserID     uint64
	ProviderID uint64
	Kind       models.GenerationKind
	Prompt     string
	Parameters map[string]any
}

// Service runs generations.
type Service struct {
	db        *gorm.DB
	pricing   CostResolver
	ledger    *ledger.Ledger
	providers *provider.Registry
	timeout   time.Duration
	metrics   *metrics.Metrics
}

// NewService wires a Service. timeout bounds each provider call.
func NewService(db *gorm.DB, resolver CostResolver, l *ledger.Ledger, providers *provider.Registry, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Service{
		db:        db,
		pricing:   resolver,
		ledger:    l,
		providers: providers,
		timeout:   timeout,
		metrics:   metrics.Get(),
	}
}

// Generate charges, invokes the provider and records the outcome. A provider failure refunds the
// charge and returns the stored generation (status refunded) together with the provider error.
func (s *Service) Generate(ctx context.Context, req Request) (*models.Generation, error) {
	if errValidate := validate(&req); errValidate != nil {
		return nil, errValidate
	}

	existing, errExisting := s.byRequestID(ctx, req.RequestID)
	if errExisting != nil {
		return nil, errExisting
	}
	if existing != nil {
		if existing.UserID != req.UserID {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRequest, req.RequestID)
		}
		return existing, nil
	}

	generator, errGen := s.generatorFor(ctx, req.ProviderID)
	if errGen != nil {
		return nil, errGen
	}

	params := make(map[string]any, len(req.Parameters)+1)
	params["prompt"] = req.Prompt
	for k, v := range req.Parameters {
		params[k] = v
	}
	cost, errCost := s.pricing.Resolve(ctx, string(req.Kind), req.ProviderID, params)
	if errCost != nil {
		s.metrics.GenerationTotal.WithLabelValues(string(req.Kind), "unpriced").Inc()
		return nil, errCost
	}

	gen := &models.Generation{
		RequestID:    req.RequestID,
		UserID:       req.UserID,
		ProviderID:   req.ProviderID,
		Kind:         req.Kind,
		Prompt:       req.Prompt,
		Parameters:   datatypes.JSONMap(req.Parameters),
		Status:       models.GenerationStatusPending,
		CreditsSpent: cost,
	}
	errCharge := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(gen).Error; errCreate != nil {
			return fmt.Errorf("generation: create: %w", errCreate)
		}
		if cost == 0 {
			return nil
		}
		ok, errDeduct := s.ledger.WithTx(tx).Deduct(ctx, req.UserID, cost,
			fmt.Sprintf("%s generation %s", req.Kind, gen.RequestID),
			&ledger.Reference{Type: ledger.ReferenceGeneration, ID: gen.ID})
		if errDeduct != nil {
			return errDeduct
		}
		if !ok {
			return fmt.Errorf("%w: required %d", ErrInsufficientCredits, cost)
		}
		return nil
	})
	if errCharge != nil {
		s.metrics.GenerationTotal.WithLabelValues(string(req.Kind), "rejected").Inc()
		return nil, errCharge
	}

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	result, errGenerate := generator.Generate(genCtx, renderPrompt(req.Kind, req.Prompt), provider.Context{}, req.Parameters)
	if errGenerate == nil && (result == nil || result.Output == nil) {
		errGenerate = errors.New("provider returned no output")
	}
	if errGenerate != nil {
		errGenerate = fmt.Errorf("generation: provider %s: %w", generator.ProviderName(), errGenerate)
		s.metrics.GenerationTotal.WithLabelValues(string(req.Kind), "refunded").Inc()
		if errRefund := s.refund(context.WithoutCancel(ctx), gen, errGenerate); errRefund != nil {
			return nil, errors.Join(errGenerate, errRefund)
		}
		return gen, errGenerate
	}

	fields := result.Output.Fields()
	fields["content"] = result.Output.Content()
	if result.Model != "" {
		fields["model"] = result.Model
	}
	fields["input_tokens"] = result.Usage.InputTokens
	fields["output_tokens"] = result.Usage.OutputTokens
	updates := map[string]any{
		"status": models.GenerationStatusCompleted,
		"result": datatypes.JSONMap(fields),
	}
	if errUpdate := s.db.WithContext(context.WithoutCancel(ctx)).Model(gen).Updates(updates).Error; errUpdate != nil {
		return nil, fmt.Errorf("generation: store result: %w", errUpdate)
	}
	gen.Status = models.GenerationStatusCompleted
	gen.Result = fields
	s.metrics.GenerationTotal.WithLabelValues(string(req.Kind), "completed").Inc()
	return gen, nil
}

// refund returns the charge and marks the generation refunded (failed when nothing was charged).
func (s *Service) refund(ctx context.Context, gen *models.Generation, cause error) error {
	status := models.GenerationStatusFailed
	if gen.CreditsSpent > 0 {
		status = models.GenerationStatusRefunded
	}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if gen.CreditsSpent > 0 {
			ok, errRefund := s.ledger.WithTx(tx).Refund(ctx, gen.UserID, gen.CreditsSpent,
				fmt.Sprintf("refund %s generation %s", gen.Kind, gen.RequestID),
				&ledger.Reference{Type: ledger.ReferenceGeneration, ID: gen.ID})
			if errRefund != nil {
				return errRefund
			}
			if !ok {
				return errors.New("refund rejected")
			}
		}
		return tx.Model(gen).Updates(map[string]any{
			"status":        status,
			"error":         cause.Error(),
			"credits_spent": 0,
		}).Error
	})
	if errTx != nil {
		log.WithFields(log.Fields{
			"generation_id": gen.ID,
			"user_id":       gen.UserID,
			"credits":       gen.CreditsSpent,
			"integrity":     true,
		}).WithError(errTx).Error("generation: refund failed")
		return fmt.Errorf("generation: refund: %w", errTx)
	}
	gen.Status = status
	gen.Error = cause.Error()
	gen.CreditsSpent = 0
	return nil
}

// Get returns the user's generation by id.
func (s *Service) Get(ctx context.Context, userID, id uint64) (*models.Generation, error) {
	var gen models.Generation
	errFind := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&gen).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if errFind != nil {
		return nil, fmt.Errorf("generation: load: %w", errFind)
	}
	return &gen, nil
}

func (s *Service) byRequestID(ctx context.Context, requestID string) (*models.Generation, error) {
	var gen models.Generation
	errFind := s.db.WithContext(ctx).Where("request_id = ?", requestID).First(&gen).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if errFind != nil {
		return nil, fmt.Errorf("generation: lookup request: %w", errFind)
	}
	return &gen, nil
}

func (s *Service) generatorFor(ctx context.Context, providerID uint64) (provider.Generator, error) {
	var p models.Provider
	if errFind := s.db.WithContext(ctx).First(&p, providerID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: provider %d not found", pricing.ErrProviderInactive, providerID)
		}
		return nil, fmt.Errorf("generation: load provider: %w", errFind)
	}
	if !p.IsActive {
		return nil, fmt.Errorf("%w: %s", pricing.ErrProviderInactive, p.Name)
	}
	generator, ok := s.providers.Get(p.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, p.Name)
	}
	return generator, nil
}

func validate(req *Request) error {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	if req.UserID == 0 || req.ProviderID == 0 {
		return fmt.Errorf("%w: user and provider are required", ErrInvalidRequest)
	}
	switch req.Kind {
	case models.GenerationKindText, models.GenerationKindImage, models.GenerationKindInfographic:
	case "":
		req.Kind = models.GenerationKindImage
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, req.Kind)
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if len(req.RequestID) > 64 {
		return fmt.Errorf("%w: request id too long", ErrInvalidRequest)
	}
	return nil
}

// renderPrompt asks infographic-capable models for a structured layout.
func renderPrompt(kind models.GenerationKind, prompt string) string {
	if kind != models.GenerationKindInfographic {
		return prompt
	}
	return "Create an infographic with a title and sections (heading, body) about: " + prompt
}
