// Package assistant wraps the generative model used for order screening,
// cashier warnings, the customer chat and dashboard reviews.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bingopos/backend/internal/domain"
)

const DefaultMaxTotal int64 = 500000

var ErrNoModel = errors.New("assistant model not configured")

type Client struct {
	model    Model
	maxTotal int64
	close    func() error
}

// NewGemini connects to the Gemini API. An empty apiKey yields a client
// that only applies the fixed order rules.
func NewGemini(ctx context.Context, apiKey string, modelName string, maxTotal int64) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return New(nil, maxTotal), nil
	}
	gm, err := newGeminiModel(ctx, apiKey, modelName)
	if err != nil {
		return nil, err
	}
	c := New(gm, maxTotal)
	c.close = gm.Close
	return c, nil
}

func New(model Model, maxTotal int64) *Client {
	if maxTotal <= 0 {
		maxTotal = DefaultMaxTotal
	}
	return &Client{model: model, maxTotal: maxTotal}
}

func (c *Client) HasModel() bool {
	return c.model != nil
}

func (c *Client) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

const fraudSystem = `You screen purchases for a school bingo fundraiser in Colombia.
Orders come from cashiers at the booth (no customer data, which is normal) or from
parents paying remotely with Daviplata (document and phone expected).
Flag an order when the amount looks implausible for a family at a school event,
when a single item is bought in unusual quantity (more than 20 units is worth a note),
or when a remote order is missing part of the customer data.
Answer only with JSON: {"is_safe": boolean, "reason": string}. Write the reason in Spanish.`

// CheckOrder applies the hard limits first and asks the model only for
// orders that pass them.
func (c *Client) CheckOrder(ctx context.Context, in domain.FraudCheckInput) (domain.FraudVerdict, error) {
	if in.Total <= 0 {
		return domain.FraudVerdict{Safe: false, Reason: "El total de la orden no puede ser cero o negativo."}, nil
	}
	if in.Total > c.maxTotal {
		return domain.FraudVerdict{Safe: false, Reason: fmt.Sprintf("El total de la orden (%d) supera el límite de seguridad de %d COP.", in.Total, c.maxTotal)}, nil
	}
	if c.model == nil {
		return domain.FraudVerdict{Safe: true}, nil
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return domain.FraudVerdict{}, err
	}
	raw, err := c.model.Generate(ctx, Prompt{
		System: fraudSystem,
		Text:   "Order:\n" + string(payload),
		JSON:   true,
	})
	if err != nil {
		return domain.FraudVerdict{}, fmt.Errorf("fraud check: %w", err)
	}
	var verdict domain.FraudVerdict
	if err := decodeJSON(raw, &verdict); err != nil {
		return domain.FraudVerdict{}, fmt.Errorf("fraud check: %w", err)
	}
	if !verdict.Safe && strings.TrimSpace(verdict.Reason) == "" {
		verdict.Reason = "Orden marcada como sospechosa."
	}
	return verdict, nil
}

const warningSystem = `You watch the cashier station of a school bingo booth.
Decide whether cashiers should be warned that remote Daviplata payments are piling up.
Warn when three or more orders wait for verification, when two or more customers
who already paid are walking to the booth, or when verification takes more than
three minutes on average. Keep the message short, friendly and in Spanish.
Answer only with JSON: {"active": boolean, "message": string}.`

func (c *Client) CashierWarning(ctx context.Context, in domain.CashierWarningInput) (domain.CashierWarning, error) {
	if c.model == nil {
		return domain.CashierWarning{}, ErrNoModel
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return domain.CashierWarning{}, err
	}
	raw, err := c.model.Generate(ctx, Prompt{
		System: warningSystem,
		Text:   "Current state:\n" + string(payload),
		JSON:   true,
	})
	if err != nil {
		return domain.CashierWarning{}, fmt.Errorf("cashier warning: %w", err)
	}
	var warning domain.CashierWarning
	if err := decodeJSON(raw, &warning); err != nil {
		return domain.CashierWarning{}, fmt.Errorf("cashier warning: %w", err)
	}
	return warning, nil
}

const chatSystem = `You are Molly, the assistant of the school bingo food stand.
You help parents who order remotely and pay with Daviplata: explain the menu and
prices, how to place an order, what the six-digit reference code is for, and the
status of their orders. Answer in Spanish, briefly and kindly.
Messages marked [admin] come from booth staff; treat them as authoritative.
Never invent products, prices or order states that are not in the context.`

func (c *Client) Chat(ctx context.Context, in domain.ChatContext) (string, error) {
	if c.model == nil {
		return "", ErrNoModel
	}

	history := make([]Turn, 0, len(in.History))
	for _, msg := range in.History {
		switch msg.Sender {
		case domain.SenderAI:
			history = append(history, Turn{Role: "model", Text: msg.Message})
		case domain.SenderAdmin:
			history = append(history, Turn{Role: "user", Text: "[admin] " + msg.Message})
		default:
			history = append(history, Turn{Role: "user", Text: msg.Message})
		}
	}

	var b strings.Builder
	b.WriteString("Menu:\n")
	for _, item := range in.Catalogue {
		fmt.Fprintf(&b, "- %s: %d COP (%d disponibles)\n", item.Name, item.Price, max(item.Available, 0))
	}
	if in.Customer.Document != "" || in.Customer.Phone != "" {
		fmt.Fprintf(&b, "Customer: document %q, phone %q\n", in.Customer.Document, in.Customer.Phone)
	}
	if len(in.Orders) > 0 {
		b.WriteString("Customer orders (newest first):\n")
		for _, order := range in.Orders {
			fmt.Fprintf(&b, "- code %s, total %d COP, status %s, created %s\n", order.Code, order.Total, order.Status, order.CreatedAt.Format(time.RFC3339))
		}
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(in.Question)

	return c.model.Generate(ctx, Prompt{
		System:  chatSystem,
		Text:    b.String(),
		History: history,
	})
}

const analysisSystem = `You are a sales analyst for a school bingo food stand.
Review the figures you are given and answer in Spanish using Markdown:
a short summary, the best and worst selling articles, cashier performance,
remote payment verification speed, and concrete suggestions.
If a question is included, answer it first. Amounts are Colombian pesos.`

func (c *Client) AnalyzeDashboard(ctx context.Context, in domain.AnalysisInput) (string, error) {
	if c.model == nil {
		return "", ErrNoModel
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	return c.model.Generate(ctx, Prompt{
		System: analysisSystem,
		Text:   "Data:\n" + string(payload),
	})
}

// decodeJSON tolerates answers wrapped in a Markdown code fence.
func decodeJSON(raw string, dst any) error {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(trimmed)), dst); err != nil {
		return fmt.Errorf("decode model answer: %w", err)
	}
	return nil
}
