package workflow

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/creditstudio/CreditStudio/internal/models"
	"gorm.io/gorm"
)

// AdvanceOutcome reports what MoveToNextStep did.
type AdvanceOutcome string

// Advance outcomes.
const (
	Advanced AdvanceOutcome = "advanced"
	Finished AdvanceOutcome = "finished"
)

// Advance is the result of MoveToNextStep.
type Advance struct {
	Outcome   AdvanceOutcome    `json:"outcome"`
	StepOrder int               `json:"current_step_order"`
	Status    models.ChatStatus `json:"status"`
}

// Progress summarizes where a chat is within its service.
type Progress struct {
	TotalSteps     int     `json:"total_steps"`
	CurrentStep    int     `json:"current_step"`
	CompletedSteps int     `json:"completed_steps"`
	Percentage     float64 `json:"percentage"`
	IsCompleted    bool    `json:"is_completed"`
}

// MoveToNextStep advances the chat pointer, or completes the chat when it is on the last step.
// Completed chats report Finished without change.
func (e *Engine) MoveToNextStep(ctx context.Context, chatID uint64) (*Advance, error) {
	unlock, errLock := e.locker.Lock(ctx, chatID)
	if errLock != nil {
		return nil, errLock
	}
	defer unlock()
	return e.moveToNextStep(ctx, chatID)
}

func (e *Engine) moveToNextStep(ctx context.Context, chatID uint64) (*Advance, error) {
	var adv *Advance
	errTx := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		chat, errLoad := loadChat(tx, chatID, true)
		if errLoad != nil {
			return errLoad
		}
		switch chat.Status {
		case models.ChatStatusCompleted:
			adv = &Advance{Outcome: Finished, StepOrder: chat.CurrentStepOrder, Status: chat.Status}
			return nil
		case models.ChatStatusActive:
		default:
			return fmt.Errorf("%w: chat %d is %s", ErrChatNotActive, chat.ID, chat.Status)
		}

		var next models.WorkflowStep
		errNext := tx.Where("service_id = ? AND step_order = ?", chat.ServiceID, chat.CurrentStepOrder+1).First(&next).Error
		switch {
		case errNext == nil:
			if errUpdate := tx.Model(chat).Update("current_step_order", next.Order).Error; errUpdate != nil {
				return fmt.Errorf("workflow: advance chat: %w", errUpdate)
			}
			adv = &Advance{Outcome: Advanced, StepOrder: next.Order, Status: models.ChatStatusActive}
		case errors.Is(errNext, gorm.ErrRecordNotFound):
			if errUpdate := tx.Model(chat).Update("status", models.ChatStatusCompleted).Error; errUpdate != nil {
				return fmt.Errorf("workflow: complete chat: %w", errUpdate)
			}
			adv = &Advance{Outcome: Finished, StepOrder: chat.CurrentStepOrder, Status: models.ChatStatusCompleted}
		default:
			return fmt.Errorf("workflow: load next step: %w", errNext)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return adv, nil
}

// GetProgress reports the chat's position. It does not modify anything.
func (e *Engine) GetProgress(ctx context.Context, chatID uint64) (*Progress, error) {
	db := e.db.WithContext(ctx)
	chat, errLoad := loadChat(db, chatID, false)
	if errLoad != nil {
		return nil, errLoad
	}
	var total int64
	if errCount := db.Model(&models.WorkflowStep{}).Where("service_id = ?", chat.ServiceID).Count(&total).Error; errCount != nil {
		return nil, fmt.Errorf("workflow: count steps: %w", errCount)
	}
	return computeProgress(int(total), chat.CurrentStepOrder, chat.Status), nil
}

func computeProgress(total, current int, status models.ChatStatus) *Progress {
	completed := current - 1
	if completed < 0 {
		completed = 0
	}
	if completed > total {
		completed = total
	}
	p := &Progress{
		TotalSteps:     total,
		CurrentStep:    current,
		CompletedSteps: completed,
		IsCompleted:    status == models.ChatStatusCompleted,
	}
	if total > 0 {
		p.Percentage = math.Round(float64(completed)/float64(total)*10000) / 100
	}
	return p
}
