package submission

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"plantwatch/internal/config"
	"plantwatch/internal/model"
)

// TelegramSink sends a photo alert to a chat when the status is worth attention.
type TelegramSink struct {
	token    string
	chatID   int64
	endpoint string
	alertOn  map[model.Status]bool
	client   *http.Client

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

func NewTelegramSink(cfg config.TelegramSinkConfig) *TelegramSink {
	alertOn := make(map[model.Status]bool)
	for _, name := range cfg.AlertOn {
		if st, err := model.ParseStatus(strings.TrimSpace(name)); err == nil {
			alertOn[st] = true
		}
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	return &TelegramSink{
		token:    cfg.Token,
		chatID:   cfg.ChatID,
		endpoint: endpoint,
		alertOn:  alertOn,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

func (s *TelegramSink) Name() string { return TelegramSinkName }

func (s *TelegramSink) Durable() bool { return false }

func (s *TelegramSink) Enabled() bool {
	return s.token != "" && s.chatID != 0
}

// botAPI connects lazily so a missing network at boot does not disable alerts.
func (s *TelegramSink) botAPI() (*tgbotapi.BotAPI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bot != nil {
		return s.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(s.token, s.endpoint, s.client)
	if err != nil {
		return nil, fmt.Errorf("failed to connect telegram bot: %w", err)
	}
	s.bot = bot
	return bot, nil
}

func (s *TelegramSink) Send(ctx context.Context, sub *Submission) (map[string]any, error) {
	if !s.Enabled() {
		return nil, ErrSinkDisabled
	}
	status := sub.Payload.Status
	if !s.alertOn[status] {
		return map[string]any{"skipped": true, "status": status.String()}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bot, err := s.botAPI()
	if err != nil {
		return nil, err
	}

	caption := alertCaption(sub.Payload)
	var msg tgbotapi.Message
	if len(sub.Image) > 0 {
		photo := tgbotapi.NewPhoto(s.chatID, tgbotapi.FileBytes{Name: sub.Filename, Bytes: sub.Image})
		photo.Caption = caption
		msg, err = bot.Send(photo)
	} else {
		msg, err = bot.Send(tgbotapi.NewMessage(s.chatID, caption))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to send telegram alert: %w", err)
	}
	return map[string]any{"message_id": msg.MessageID}, nil
}

func alertCaption(p model.SubmissionPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Device %s: %s", p.DeviceID, p.Status)
	if p.Confidence != nil {
		fmt.Fprintf(&b, " (%.2f%%)", *p.Confidence)
	}
	if count, ok := p.Metadata["objectCount"]; ok {
		fmt.Fprintf(&b, "\nObjects: %v", count)
	}
	if statuses, ok := p.Metadata["plant_statuses"].([]model.PlantAssessment); ok {
		for _, plant := range statuses {
			fmt.Fprintf(&b, "\nPlant %d: %s %.2f%%", plant.OrderNum, plant.Status, plant.Confidence)
		}
	}
	return b.String()
}
