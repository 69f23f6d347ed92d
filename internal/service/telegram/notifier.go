package telegram

import (
	"context"
	"fmt"
	"strings"

	"SMCScan/internal/domain/models"
	"SMCScan/internal/domain/service"
	"SMCScan/internal/services/analytics"
	"SMCScan/internal/services/risk"
	"SMCScan/pkg/logger"
)

type Config struct {
	BotToken string
	ChatID   string
}

// Notifier posts setup alerts through the Bot API sendMessage method.
type Notifier struct {
	cfg   Config
	base  *analytics.HTTPServiceBase
	sizer *risk.Sizer
	log   *logger.Logger
}

// NewNotifier builds a notifier. base must point at <api>/bot<token>. sizer
// may be nil to omit the risk block.
func NewNotifier(cfg Config, base *analytics.HTTPServiceBase, sizer *risk.Sizer, log *logger.Logger) *Notifier {
	if log == nil {
		log = logger.Nop()
	}
	return &Notifier{cfg: cfg, base: base, sizer: sizer, log: log.With("telegram")}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (n *Notifier) Notify(ctx context.Context, setup models.Setup, score float64) error {
	if n.cfg.BotToken == "" || n.cfg.ChatID == "" {
		n.log.Warn("credentials missing, alert skipped", logger.String("symbol", setup.Symbol))
		return nil
	}

	var pos *risk.Position
	if n.sizer != nil {
		p, err := n.sizer.Size(ctx, setup)
		if err != nil {
			n.log.Warn("sizing failed", logger.String("symbol", setup.Symbol), logger.Error(err))
		} else {
			pos = &p
		}
	}

	var resp sendMessageResponse
	err := n.base.PostJSON(ctx, "/sendMessage", sendMessageRequest{
		ChatID:                n.cfg.ChatID,
		Text:                  FormatAlert(setup, score, pos),
		ParseMode:             "Markdown",
		DisableWebPagePreview: true,
	}, &resp)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("telegram api: %s", resp.Description)
	}
	n.log.Info("alert sent",
		logger.String("symbol", setup.Symbol),
		logger.Float64("score", score))
	return nil
}

// Tier names the alert by score.
func Tier(score float64) string {
	switch {
	case score >= 8.5:
		return "UNICORN SETUP"
	case score >= 7.5:
		return "HIGH ALPHA ALERT"
	default:
		return "MED ALPHA ALERT"
	}
}

// FormatAlert renders the Markdown alert body.
func FormatAlert(s models.Setup, score float64, pos *risk.Position) string {
	var b strings.Builder
	marker := "🟢"
	if s.Direction == models.Short {
		marker = "🔴"
	}
	fmt.Fprintf(&b, "%s *%s*\n\n", marker, Tier(score))
	fmt.Fprintf(&b, "*Symbol:* `%s`\n", s.Symbol)
	fmt.Fprintf(&b, "*Timeframe:* `%s`\n", s.Timeframe)
	fmt.Fprintf(&b, "*Pattern:* %s\n", s.Pattern)
	fmt.Fprintf(&b, "*Score:* `%.1f/10`\n", score)
	fmt.Fprintf(&b, "*Session:* %s\n\n", s.Meta.TimeQuartile)

	fmt.Fprintf(&b, "*Entry:* `%.2f`\n", s.Entry)
	fmt.Fprintf(&b, "*Stop:* `%.2f`\n", s.Stop)
	for i, t := range s.Targets {
		fmt.Fprintf(&b, "*TP%d (%.1fR, %.0f%%):* `%.2f`\n", i+1, t.RMultiple, t.Fraction*100, t.Price)
	}
	if s.DrawTarget != 0 {
		fmt.Fprintf(&b, "*Draw:* `%.2f` (%s)\n", s.DrawTarget, s.DrawSource)
	}
	b.WriteString("\n")

	if pos != nil {
		b.WriteString("*Risk:*\n")
		fmt.Fprintf(&b, "• Risk amount: `$%s`\n", pos.RiskAmount.StringFixed(2))
		fmt.Fprintf(&b, "• Position size: `%s %s`\n", pos.Size.String(), baseAsset(s.Symbol))
		fmt.Fprintf(&b, "• Position value: `$%s`\n\n", pos.Notional.StringFixed(2))
	}

	fmt.Fprintf(&b, "[View on TradingView](https://www.tradingview.com/chart/?symbol=BINANCE:%s)", strings.ReplaceAll(s.Symbol, "/", ""))
	return b.String()
}

func baseAsset(symbol string) string {
	if i := strings.Index(symbol, "/"); i > 0 {
		return symbol[:i]
	}
	for _, quote := range []string{"USDT", "USDC", "BUSD", "USD"} {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			return strings.TrimSuffix(symbol, quote)
		}
	}
	return symbol
}

var _ service.Notifier = (*Notifier)(nil)
