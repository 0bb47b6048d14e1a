package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/example/cyclebees/internal/logger"
)

// TelegramService handles sending notifications to Telegram.
type TelegramService struct {
	botToken    string
	adminChatID string
	client      *http.Client
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// Enabled reports whether both the bot token and admin chat are configured.
func (s *TelegramService) Enabled() bool {
	return s != nil && s.botToken != "" && s.adminChatID != ""
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(chatID, text string) error {
	if s.botToken == "" {
		return nil
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.botToken)

	body, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	resp, err := s.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(text string) error {
	if s.adminChatID == "" {
		return nil
	}
	return s.SendMessage(s.adminChatID, text)
}

// RequestNotification contains the data shown to admins for a new booking.
type RequestNotification struct {
	RequestType   RequestType
	RequestID     string
	CustomerPhone string
	Lines         []string
	TotalAmount   float64
	Discount      float64
	NetAmount     float64
	CouponCode    string
	ExpiresAt     time.Time
}

// FormatPrice formats an amount in rupees with thousand separators.
func FormatPrice(amount float64) string {
	whole := int64(amount)
	paise := int64((amount-float64(whole))*100 + 0.5)
	if paise >= 100 {
		whole++
		paise -= 100
	}
	str := fmt.Sprintf("%d", whole)

	var result strings.Builder
	length := len(str)
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}

	if paise > 0 {
		return fmt.Sprintf("₹%s.%02d", result.String(), paise)
	}
	return "₹" + result.String()
}

// NotifyNewRequest tells admins a booking is waiting for approval.
func (s *TelegramService) NotifyNewRequest(n RequestNotification) error {
	if !s.Enabled() {
		return nil
	}

	var lines strings.Builder
	for i, l := range n.Lines {
		lines.WriteString(fmt.Sprintf("%d. %s\n", i+1, l))
	}

	title := "🔧 NEW REPAIR REQUEST"
	if n.RequestType == RequestRental {
		title = "🚲 NEW RENTAL REQUEST"
	}

	coupon := "-"
	if n.CouponCode != "" {
		coupon = fmt.Sprintf("%s (−%s)", n.CouponCode, FormatPrice(n.Discount))
	}

	message := fmt.Sprintf(`<b>%s</b>
<b>ID:</b> %s
<b>Phone:</b> %s
%s
<b>Total:</b> %s
<b>Coupon:</b> %s
<b>Payable:</b> %s
<b>Approve before:</b> %s`,
		title,
		n.RequestID,
		n.CustomerPhone,
		lines.String(),
		FormatPrice(n.TotalAmount),
		coupon,
		FormatPrice(n.NetAmount),
		n.ExpiresAt.Format("15:04 02 Jan"),
	)

	return s.SendToAdmin(strings.TrimSpace(message))
}

// sendAsync delivers n in the background, logging failures.
func (s *TelegramService) sendAsync(n RequestNotification) {
	if !s.Enabled() {
		return
	}
	go func() {
		if err := s.NotifyNewRequest(n); err != nil {
			logger.Log.Warn().Err(err).Str("request_id", n.RequestID).Msg("telegram notification failed")
		}
	}()
}
