package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const telegramAPIBase = "https://api.telegram.org"

// Telegram posts notifications to a Telegram chat through the Bot API.
type Telegram struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
	logger  *zap.Logger
}

// NewTelegram creates a Telegram notifier.
func NewTelegram(token, chatID string, logger *zap.Logger) *Telegram {
	return &Telegram{
		baseURL: telegramAPIBase,
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// NewTelegramWithBaseURL points the notifier at a test server.
func NewTelegramWithBaseURL(baseURL, token, chatID string, logger *zap.Logger) *Telegram {
	t := NewTelegram(token, chatID, logger)
	t.baseURL = baseURL
	return t
}

// NotifyOpportunity reports a profitable path.
func (t *Telegram) NotifyOpportunity(ctx context.Context, e OpportunityEvent) error {
	var b strings.Builder
	fmt.Fprintf(&b, "💡 <b>Arbitrage Opportunity Detected</b>\n\n")
	fmt.Fprintf(&b, "📊 <b>Trade Details:</b>\n")
	fmt.Fprintf(&b, "• Token: %s\n", e.TokenSymbol)
	fmt.Fprintf(&b, "• Route: %s\n", strings.Join(e.Path, " → "))
	fmt.Fprintf(&b, "• Input: %s\n", e.InputAmount)
	fmt.Fprintf(&b, "• Expected Output: %s\n\n", e.FinalAmount)
	fmt.Fprintf(&b, "💰 <b>Profit Analysis:</b>\n")
	fmt.Fprintf(&b, "• Gas Cost: %s ETH ($%s)\n", e.GasCostEth.StringFixed(6), e.GasCostUsd.StringFixed(2))
	fmt.Fprintf(&b, "• Net Profit: $%s\n", e.NetProfitUsd.StringFixed(2))
	fmt.Fprintf(&b, "• ROI: %s%%\n\n", e.RoiPercent.StringFixed(2))
	fmt.Fprintf(&b, "📈 <b>Market Conditions:</b>\n")
	fmt.Fprintf(&b, "• ETH Price: $%s\n", e.EthPriceUsd.StringFixed(2))
	fmt.Fprintf(&b, "• Gas Price: %s gwei\n", e.GasPriceGwei.StringFixed(1))
	fmt.Fprintf(&b, "• Block: %d\n", e.BlockNumber)
	return t.send(ctx, b.String())
}

// NotifyExecutionResult reports a completed or failed execution attempt.
func (t *Telegram) NotifyExecutionResult(ctx context.Context, e ExecutionEvent) error {
	var b strings.Builder
	if e.Success {
		fmt.Fprintf(&b, "✅ <b>Arbitrage Trade Successful</b>\n\n")
		fmt.Fprintf(&b, "• Token: %s\n", e.TokenSymbol)
		fmt.Fprintf(&b, "• Profit: $%s\n", e.ProfitUsd.StringFixed(2))
		fmt.Fprintf(&b, "• ROI: %s%%\n", e.RoiPercent.StringFixed(2))
	} else {
		fmt.Fprintf(&b, "❌ <b>Arbitrage Trade Failed</b>\n\n")
		fmt.Fprintf(&b, "• Token: %s\n", e.TokenSymbol)
		fmt.Fprintf(&b, "• Hops Completed: %d\n", e.HopsCompleted)
		if e.Partial {
			fmt.Fprintf(&b, "⚠️ Partial execution: earlier hops already settled on-chain\n")
		}
		fmt.Fprintf(&b, "Error: %s\n", e.Detail)
	}
	return t.send(ctx, b.String())
}

// NotifyStatus reports the periodic health summary.
func (t *Telegram) NotifyStatus(ctx context.Context, e StatusEvent) error {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>Bot Status Update</b>\n\n")
	fmt.Fprintf(&b, "📈 <b>Market Conditions:</b>\n")
	fmt.Fprintf(&b, "• ETH Price: $%s\n", e.EthPriceUsd.StringFixed(2))
	fmt.Fprintf(&b, "• Gas Price: %s gwei\n", e.GasPriceGwei.StringFixed(1))
	fmt.Fprintf(&b, "• Block: %d\n\n", e.BlockNumber)
	fmt.Fprintf(&b, "🤖 <b>Bot Statistics:</b>\n")
	fmt.Fprintf(&b, "• Opportunities Found: %d\n", e.OpportunitiesFound)
	fmt.Fprintf(&b, "• Successful Trades: %d\n", e.SuccessfulTrades)
	fmt.Fprintf(&b, "• Failed Trades: %d\n", e.FailedTrades)
	fmt.Fprintf(&b, "• Total Profit: %s ETH ($%s)\n", e.TotalProfitEth.StringFixed(6), e.TotalProfitUsd.StringFixed(2))
	fmt.Fprintf(&b, "• Runtime: %s hours\n", e.RuntimeHours.StringFixed(2))
	return t.send(ctx, b.String())
}

func (t *Telegram) send(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)

	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	t.logger.Debug("Telegram notification sent")
	return nil
}
