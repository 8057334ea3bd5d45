// Package workflow drives multi-step chats: each step resolves a price, calls a provider and
// charges the chat owner only when the provider succeeded.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creditstudio/CreditStudio/internal/config"
	"github.com/creditstudio/CreditStudio/internal/ledger"
	"github.com/creditstudio/CreditStudio/internal/metrics"
	"github.com/creditstudio/CreditStudio/internal/models"
	"github.com/creditstudio/CreditStudio/internal/pricing"
	"github.com/creditstudio/CreditStudio/internal/provider"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const inputPlaceholder = "{input}"

// CostResolver prices a step. *pricing.Resolver satisfies it.
type CostResolver interface {
	Resolve(ctx context.Context, serviceType string, providerID uint64, params map[string]any) (int64, error)
}

// Engine executes workflow steps.
type Engine struct {
	db        *gorm.DB
	pricing   CostResolver
	ledger    *ledger.Ledger
	providers *provider.Registry
	locker    Locker
	cfg       config.WorkflowConfig
	metrics   *metrics.Metrics
}

// NewEngine wires an Engine. A nil locker defaults to a LocalLocker.
func NewEngine(db *gorm.DB, resolver CostResolver, l *ledger.Ledger, providers *provider.Registry, locker Locker, cfg config.WorkflowConfig) *Engine {
	cfg.ApplyDefaults()
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Engine{
		db:        db,
		pricing:   resolver,
		ledger:    l,
		providers: providers,
		locker:    locker,
		cfg:       cfg,
		metrics:   metrics.Get(),
	}
}

// StepResult is the outcome of a successful ExecuteStep.
type StepResult struct {
	Chat             *models.Chat
	Step             *models.WorkflowStep
	UserMessage      *models.Message
	AssistantMessage *models.Message
	Cost             int64
	CostEstimated    bool
	// Advance is set when the step auto-advanced the chat.
	Advance *Advance
}

// CreateChat starts a chat for userID on an active service at step 1.
func (e *Engine) CreateChat(ctx context.Context, userID, serviceID uint64, title string) (*models.Chat, error) {
	var svc models.Service
	if errFind := e.db.WithContext(ctx).First(&svc, serviceID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: service %d not found", ErrServiceUnavailable, serviceID)
		}
		return nil, fmt.Errorf("workflow: load service: %w", errFind)
	}
	if !svc.IsActive {
		return nil, fmt.Errorf("%w: service %s is inactive", ErrServiceUnavailable, svc.Slug)
	}
	var steps int64
	if errCount := e.db.WithContext(ctx).Model(&models.WorkflowStep{}).Where("service_id = ?", svc.ID).Count(&steps).Error; errCount != nil {
		return nil, fmt.Errorf("workflow: count steps: %w", errCount)
	}
	if steps == 0 {
		return nil, fmt.Errorf("%w: service %s has no steps", ErrServiceUnavailable, svc.Slug)
	}

	chat := &models.Chat{
		UserID:           userID,
		ServiceID:        svc.ID,
		Title:            strings.TrimSpace(title),
		Status:           models.ChatStatusActive,
		CurrentStepOrder: 1,
	}
	if errCreate := e.db.WithContext(ctx).Create(chat).Error; errCreate != nil {
		return nil, fmt.Errorf("workflow: create chat: %w", errCreate)
	}
	return chat, nil
}

// Chat loads a chat by id.
func (e *Engine) Chat(ctx context.Context, chatID uint64) (*models.Chat, error) {
	return loadChat(e.db.WithContext(ctx), chatID, false)
}

// Messages lists a chat's messages oldest first.
func (e *Engine) Messages(ctx context.Context, chatID uint64) ([]models.Message, error) {
	var msgs []models.Message
	if errFind := e.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("id ASC").Find(&msgs).Error; errFind != nil {
		return nil, fmt.Errorf("workflow: list messages: %w", errFind)
	}
	return msgs, nil
}

// ExecuteStep runs the chat's current step with input. On any failure the chat, the balance
// and the ledger are left as they were, and the only trace is the user message marked failed.
func (e *Engine) ExecuteStep(ctx context.Context, chatID uint64, input string) (*StepResult, error) {
	unlock, errLock := e.locker.Lock(ctx, chatID)
	if errLock != nil {
		return nil, errLock
	}
	defer unlock()

	chat, errChat := loadChat(e.db.WithContext(ctx), chatID, false)
	if errChat != nil {
		return nil, errChat
	}
	if chat.Status != models.ChatStatusActive {
		return nil, fmt.Errorf("%w: chat %d is %s", ErrChatNotActive, chat.ID, chat.Status)
	}
	step, errStep := currentStep(e.db.WithContext(ctx), chat)
	if errStep != nil {
		return nil, errStep
	}

	start := time.Now()
	modelType := string(provider.ParseModelType(step.ModelType))

	stepID := step.ID
	userMsg := &models.Message{
		ChatID:         chat.ID,
		WorkflowStepID: &stepID,
		Role:           models.MessageRoleUser,
		Content:        input,
		Status:         models.MessageStatusPending,
	}
	if errCreate := e.db.WithContext(ctx).Create(userMsg).Error; errCreate != nil {
		return nil, fmt.Errorf("workflow: create user message: %w", errCreate)
	}

	res, errRun := e.runStep(ctx, chat, step, userMsg, input)
	e.metrics.WorkflowStepDuration.WithLabelValues(modelType).Observe(time.Since(start).Seconds())
	if errRun != nil {
		e.metrics.WorkflowStepTotal.WithLabelValues(modelType, "failed").Inc()
		e.failMessage(ctx, userMsg, errRun)
		log.WithFields(log.Fields{
			"chat_id":    chat.ID,
			"step_order": step.Order,
			"model_type": modelType,
		}).WithError(errRun).Warn("workflow: step failed")
		return nil, errRun
	}
	e.metrics.WorkflowStepTotal.WithLabelValues(modelType, "completed").Inc()

	res.Chat = chat
	if e.cfg.AutoAdvance && !step.RequiresConfirmation {
		adv, errAdvance := e.moveToNextStep(ctx, chat.ID)
		if errAdvance != nil {
			// The step itself is committed; report it and let the caller advance manually.
			log.WithError(errAdvance).WithField("chat_id", chat.ID).Warn("workflow: auto-advance failed")
		} else {
			res.Advance = adv
			chat.CurrentStepOrder = adv.StepOrder
			chat.Status = adv.Status
		}
	}
	return res, nil
}

func (e *Engine) runStep(ctx context.Context, chat *models.Chat, step *models.WorkflowStep, userMsg *models.Message, input string) (*StepResult, error) {
	params := mergeParams(input, step.Config)
	cost, estimated := e.estimateCost(ctx, step, params)

	generator, errGen := e.generatorFor(ctx, step)
	if errGen != nil {
		return nil, errGen
	}
	history, errHistory := e.history(ctx, chat.ID, userMsg.ID)
	if errHistory != nil {
		return nil, errHistory
	}
	conversation := generator.BuildContext(history)
	prompt := renderPrompt(step.PromptTemplate, input)

	if errMark := e.db.WithContext(ctx).Model(userMsg).Update("status", models.MessageStatusProcessing).Error; errMark != nil {
		return nil, fmt.Errorf("workflow: mark message processing: %w", errMark)
	}

	var assistant *models.Message
	errTx := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txLedger := e.ledger.WithTx(tx)
		available, errAvail := txLedger.LockAvailable(ctx, chat.UserID)
		if errAvail != nil {
			return errAvail
		}
		if available < cost {
			return &InsufficientCreditsError{Required: cost, Available: available}
		}

		genCtx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
		defer cancel()
		result, errGenerate := generator.Generate(genCtx, prompt, conversation, step.Config)
		if errGenerate != nil {
			return fmt.Errorf("workflow: provider %s: %w", generator.ProviderName(), errGenerate)
		}
		if result == nil || result.Output == nil {
			return fmt.Errorf("workflow: provider %s returned no output", generator.ProviderName())
		}

		if cost > 0 {
			desc := fmt.Sprintf("chat %d step %d (%s)", chat.ID, step.Order, step.Name)
			ok, errDeduct := txLedger.Deduct(ctx, chat.UserID, cost, desc, &ledger.Reference{Type: ledger.ReferenceChatMessage, ID: userMsg.ID})
			if errDeduct != nil || !ok {
				e.metrics.WorkflowChargeFailTotal.Inc()
				log.WithFields(log.Fields{
					"chat_id":   chat.ID,
					"user_id":   chat.UserID,
					"credits":   cost,
					"integrity": true,
				}).WithError(errDeduct).Error("workflow: generated content could not be charged")
				if errDeduct == nil {
					errDeduct = errors.New("deduction rejected")
				}
				return fmt.Errorf("%w: %v", ErrChargeFailed, errDeduct)
			}
		}

		model := result.Model
		if model == "" {
			model = generator.ModelName()
		}
		stepID := step.ID
		assistant = &models.Message{
			ChatID:         chat.ID,
			WorkflowStepID: &stepID,
			Role:           models.MessageRoleAssistant,
			Content:        result.Output.Content(),
			Status:         models.MessageStatusCompleted,
			CreditsSpent:   cost,
			Metadata: datatypes.JSONMap{
				"provider":       generator.ProviderName(),
				"model":          model,
				"model_type":     string(generator.ModelType()),
				"output":         result.Output.Fields(),
				"input_tokens":   result.Usage.InputTokens,
				"output_tokens":  result.Usage.OutputTokens,
				"cost_estimated": estimated,
			},
		}
		if errCreate := tx.Create(assistant).Error; errCreate != nil {
			return fmt.Errorf("workflow: create assistant message: %w", errCreate)
		}
		if errUpdate := tx.Model(userMsg).Update("status", models.MessageStatusCompleted).Error; errUpdate != nil {
			return fmt.Errorf("workflow: complete user message: %w", errUpdate)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}

	userMsg.Status = models.MessageStatusCompleted
	return &StepResult{
		Step:             step,
		UserMessage:      userMsg,
		AssistantMessage: assistant,
		Cost:             cost,
		CostEstimated:    estimated,
	}, nil
}

// estimateCost resolves the step price, falling back to the configured flat estimate when
// pricing cannot answer.
func (e *Engine) estimateCost(ctx context.Context, step *models.WorkflowStep, params map[string]any) (int64, bool) {
	modelType := string(provider.ParseModelType(step.ModelType))
	if e.pricing != nil {
		cost, errResolve := e.pricing.Resolve(ctx, modelType, step.ProviderID, params)
		if errResolve == nil {
			return cost, false
		}
		log.WithFields(log.Fields{
			"model_type":  modelType,
			"provider_id": step.ProviderID,
		}).WithError(errResolve).Warn("workflow: pricing unavailable, using estimate")
	}
	e.metrics.WorkflowEstimateTotal.WithLabelValues(modelType).Inc()
	estimate, ok := e.cfg.EstimateCredits[modelType]
	if !ok {
		estimate = e.cfg.EstimateCredits[string(provider.ModelTypeText)]
	}
	// Costs are never negative.
	return max(estimate, 0), true
}

func (e *Engine) generatorFor(ctx context.Context, step *models.WorkflowStep) (provider.Generator, error) {
	var p models.Provider
	if errFind := e.db.WithContext(ctx).First(&p, step.ProviderID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: provider %d not found", ErrProviderUnavailable, step.ProviderID)
		}
		return nil, fmt.Errorf("workflow: load provider: %w", errFind)
	}
	if !p.IsActive {
		return nil, fmt.Errorf("%w: %s", pricing.ErrProviderInactive, p.Name)
	}
	generator, ok := e.providers.Get(p.Name)
	if !ok {
		return nil, fmt.Errorf("%w: no adapter registered for %s", ErrProviderUnavailable, p.Name)
	}
	return generator, nil
}

func (e *Engine) history(ctx context.Context, chatID, excludeID uint64) ([]models.Message, error) {
	var msgs []models.Message
	errFind := e.db.WithContext(ctx).
		Where("chat_id = ? AND status = ? AND id <> ?", chatID, models.MessageStatusCompleted, excludeID).
		Order("id DESC").
		Limit(e.cfg.HistoryLimit).
		Find(&msgs).Error
	if errFind != nil {
		return nil, fmt.Errorf("workflow: load history: %w", errFind)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (e *Engine) failMessage(ctx context.Context, msg *models.Message, cause error) {
	ctx = context.WithoutCancel(ctx)
	errUpdate := e.db.WithContext(ctx).Model(msg).Updates(map[string]any{
		"status": models.MessageStatusFailed,
		"error":  cause.Error(),
	}).Error
	if errUpdate != nil {
		log.WithError(errUpdate).WithField("message_id", msg.ID).Error("workflow: mark message failed")
		return
	}
	msg.Status = models.MessageStatusFailed
	msg.Error = cause.Error()
}

// Archive closes an active or completed chat at the user's request.
func (e *Engine) Archive(ctx context.Context, chatID uint64) (*models.Chat, error) {
	return e.transition(ctx, chatID, models.ChatStatusArchived, "", models.ChatStatusActive, models.ChatStatusCompleted)
}

// MarkFailed moves an active chat to failed and records reason in its metadata.
func (e *Engine) MarkFailed(ctx context.Context, chatID uint64, reason string) (*models.Chat, error) {
	return e.transition(ctx, chatID, models.ChatStatusFailed, reason, models.ChatStatusActive)
}

func (e *Engine) transition(ctx context.Context, chatID uint64, to models.ChatStatus, reason string, from ...models.ChatStatus) (*models.Chat, error) {
	var chat *models.Chat
	errTx := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, errLoad := loadChat(tx, chatID, true)
		if errLoad != nil {
			return errLoad
		}
		allowed := false
		for _, s := range from {
			if loaded.Status == s {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: chat %d is %s", ErrChatNotActive, loaded.ID, loaded.Status)
		}
		updates := map[string]any{"status": to}
		if reason != "" {
			meta := datatypes.JSONMap{}
			for k, v := range loaded.Metadata {
				meta[k] = v
			}
			meta["failure_reason"] = reason
			updates["metadata"] = meta
			loaded.Metadata = meta
		}
		if errUpdate := tx.Model(loaded).Updates(updates).Error; errUpdate != nil {
			return fmt.Errorf("workflow: update chat: %w", errUpdate)
		}
		loaded.Status = to
		chat = loaded
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return chat, nil
}

func loadChat(db *gorm.DB, chatID uint64, forUpdate bool) (*models.Chat, error) {
	if forUpdate {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var chat models.Chat
	if errFind := db.First(&chat, chatID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrChatNotFound, chatID)
		}
		return nil, fmt.Errorf("workflow: load chat: %w", errFind)
	}
	return &chat, nil
}

func currentStep(db *gorm.DB, chat *models.Chat) (*models.WorkflowStep, error) {
	var step models.WorkflowStep
	errFind := db.Where("service_id = ? AND step_order = ?", chat.ServiceID, chat.CurrentStepOrder).First(&step).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: chat %d at step %d", ErrNoWorkflowStep, chat.ID, chat.CurrentStepOrder)
		}
		return nil, fmt.Errorf("workflow: load step: %w", errFind)
	}
	return &step, nil
}

// mergeParams builds pricing parameters; step config wins over the raw prompt.
func mergeParams(input string, stepConfig map[string]any) map[string]any {
	params := make(map[string]any, len(stepConfig)+1)
	params["prompt"] = input
	for k, v := range stepConfig {
		params[k] = v
	}
	return params
}

func renderPrompt(template, input string) string {
	template = strings.TrimSpace(template)
	switch {
	case template == "":
		return input
	case strings.Contains(template, inputPlaceholder):
		return strings.ReplaceAll(template, inputPlaceholder, input)
	default:
		return template + "\n\n" + input
	}
}
