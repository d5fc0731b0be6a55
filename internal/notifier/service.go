package notifier

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/multierr"

	"github.com/dkoroteev/genbot-backend/pkg/config"
	"github.com/dkoroteev/genbot-backend/pkg/logger"
)

// BotAPI is the slice of the Telegram client the notifier uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Service delivers user-facing and operator-facing Telegram messages. The
// operator chat list comes from configuration, injected at construction.
type Service interface {
	NotifyUser(ctx context.Context, chatID int64, text string) error
	NotifyOperators(ctx context.Context, text string) error
	DeleteMessages(ctx context.Context, chatID int64, messageIDs []int64) error
}

type service struct {
	api       BotAPI
	operators []int64
	logger    *logger.Logger
}

// ServiceParams wires notifier dependencies.
type ServiceParams struct {
	API    BotAPI
	Config config.TelegramConfig
	Logger *logger.Logger
}

// NewService builds the notifier.
func NewService(params ServiceParams) (Service, error) {
	if params.API == nil {
		return nil, fmt.Errorf("telegram api required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		api:       params.API,
		operators: params.Config.OperatorChatIDs,
		logger:    params.Logger,
	}, nil
}

// NewBotAPI dials Telegram with the configured token.
func NewBotAPI(cfg config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("initializing telegram bot: %w", err)
	}
	return api, nil
}

func (s *service) NotifyUser(ctx context.Context, chatID int64, text string) error {
	if chatID == 0 {
		return fmt.Errorf("chat id is required")
	}
	if text == "" {
		return nil
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("sending message to chat %d: %w", chatID, err)
	}
	return nil
}

// NotifyOperators broadcasts to every configured operator chat. One failed
// chat does not block the rest.
func (s *service) NotifyOperators(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	var errs error
	for _, chatID := range s.operators {
		if _, err := s.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("operator chat %d: %w", chatID, err))
		}
	}
	return errs
}

// DeleteMessages removes processing placeholders. Missing messages are not
// an error: Telegram already dropped them.
func (s *service) DeleteMessages(ctx context.Context, chatID int64, messageIDs []int64) error {
	for _, messageID := range messageIDs {
		del := tgbotapi.NewDeleteMessage(chatID, int(messageID))
		if _, err := s.api.Request(del); err != nil {
			s.logger.Error(s.logger.WithFields(ctx, map[string]any{
				"chat_id":    chatID,
				"message_id": messageID,
			}), "deleting processing message", err)
		}
	}
	return nil
}
