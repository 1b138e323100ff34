package service

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/google/uuid"

	"bingopos/backend/internal/domain"
	"bingopos/backend/internal/xid"
)

const conversationScanLimit = 1000

// Chat answers a customer question. Messages are stored best effort: a
// failed write is logged and the reply is still returned.
func (s *Service) Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	question := strings.TrimSpace(req.Message)
	if question == "" {
		return domain.ChatResponse{}, invalid(ErrInvalidRequest, "message is required")
	}
	sessionID, err := chatSession(req.SessionID)
	if err != nil {
		return domain.ChatResponse{}, err
	}
	if s.assistant == nil {
		return domain.ChatResponse{}, ErrAssistantUnavailable
	}
	customer := customerInfo(req.Customer)

	history, err := s.repo.ListConversationMessages(ctx, sessionID)
	if err != nil {
		log.Printf("[chat] WARN: failed to load history session=%s: %v", sessionID, err)
		history = nil
	}
	catalogue, err := s.ListCustomerArticles(ctx)
	if err != nil {
		log.Printf("[chat] WARN: failed to load catalogue: %v", err)
		catalogue = nil
	}
	orders := s.customerOrders(ctx, customer)

	s.saveMessage(ctx, sessionID, domain.SenderUser, question, customer)

	reply, err := s.assistant.Chat(ctx, domain.ChatContext{
		Question:  question,
		History:   history,
		Customer:  customer,
		Catalogue: catalogue,
		Orders:    orders,
	})
	if err != nil {
		return domain.ChatResponse{}, fmt.Errorf("%w: %w", ErrAssistantUnavailable, err)
	}

	s.saveMessage(ctx, sessionID, domain.SenderAI, reply, customer)
	return domain.ChatResponse{SessionID: sessionID, Reply: reply}, nil
}

func chatSession(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.NewString(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", invalid(ErrInvalidRequest, "session id %q is not valid", raw)
	}
	return id.String(), nil
}

func (s *Service) customerOrders(ctx context.Context, customer domain.CustomerInfo) []domain.RemoteOrder {
	seen := make(map[string]bool)
	var out []domain.RemoteOrder
	for _, key := range []string{customer.Document, customer.Phone} {
		if key == "" {
			continue
		}
		orders, err := s.repo.FindRemoteOrdersByCustomer(ctx, key)
		if err != nil {
			log.Printf("[chat] WARN: failed to load customer orders: %v", err)
			continue
		}
		for _, o := range orders {
			if !seen[o.ID] {
				seen[o.ID] = true
				out = append(out, o)
			}
		}
	}
	slices.SortStableFunc(out, func(a, b domain.RemoteOrder) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out
}

func (s *Service) saveMessage(ctx context.Context, sessionID string, sender string, text string, customer domain.CustomerInfo) {
	if err := s.repo.AppendConversationMessage(ctx, domain.ConversationMessage{
		ID:               xid.New("msg"),
		SessionID:        sessionID,
		Sender:           sender,
		Message:          text,
		CustomerDocument: customer.Document,
		CustomerPhone:    customer.Phone,
		CreatedAt:        s.clock(),
	}); err != nil {
		log.Printf("[chat] WARN: failed to store %s message session=%s: %v", sender, sessionID, err)
	}
}

// ListConversations groups the most recent messages by session. Sessions are
// newest first, messages inside a session oldest first.
func (s *Service) ListConversations(ctx context.Context, actor domain.Actor) ([]domain.Conversation, error) {
	if err := require(actor, domain.PermVerifyRemote); err != nil {
		return nil, err
	}
	recent, err := s.repo.ListRecentConversationMessages(ctx, conversationScanLimit)
	if err != nil {
		return nil, storageFailure("list conversation messages", err)
	}
	// stores return newest first
	slices.Reverse(recent)

	index := make(map[string]int)
	out := make([]domain.Conversation, 0)
	for _, msg := range recent {
		i, ok := index[msg.SessionID]
		if !ok {
			i = len(out)
			index[msg.SessionID] = i
			out = append(out, domain.Conversation{SessionID: msg.SessionID})
		}
		conv := &out[i]
		conv.Messages = append(conv.Messages, msg)
		if msg.CreatedAt.After(conv.LastMessageAt) {
			conv.LastMessageAt = msg.CreatedAt
		}
	}
	for i := range out {
		conv := &out[i]
		slices.SortStableFunc(conv.Messages, func(a, b domain.ConversationMessage) int { return a.CreatedAt.Compare(b.CreatedAt) })
		customer := latestCustomer(conv.Messages)
		conv.CustomerDocument = customer.Document
		conv.CustomerPhone = customer.Phone
	}
	slices.SortStableFunc(out, func(a, b domain.Conversation) int { return b.LastMessageAt.Compare(a.LastMessageAt) })
	return out, nil
}

// SendAdminMessage lets booth staff answer inside a customer's chat.
func (s *Service) SendAdminMessage(ctx context.Context, sessionID string, req domain.AdminMessageRequest, actor domain.Actor) (domain.ConversationMessage, error) {
	if err := require(actor, domain.PermVerifyRemote); err != nil {
		return domain.ConversationMessage{}, err
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return domain.ConversationMessage{}, invalid(ErrInvalidRequest, "message is required")
	}
	history, err := s.repo.ListConversationMessages(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		return domain.ConversationMessage{}, storageFailure("list conversation messages", err)
	}
	if len(history) == 0 {
		return domain.ConversationMessage{}, fmt.Errorf("%w: conversation %s", ErrNotFound, sessionID)
	}

	customer := latestCustomer(history)
	msg := domain.ConversationMessage{
		ID:               xid.New("msg"),
		SessionID:        history[len(history)-1].SessionID,
		Sender:           domain.SenderAdmin,
		Message:          text,
		CustomerDocument: customer.Document,
		CustomerPhone:    customer.Phone,
		CreatedAt:        s.clock(),
	}
	if err := s.repo.AppendConversationMessage(ctx, msg); err != nil {
		return domain.ConversationMessage{}, storageFailure("store admin message", err)
	}

	s.logAudit(ctx, actor, "chat_intervention", "conversation", msg.SessionID, truncate(text, 200))
	return msg, nil
}


// latestCustomer returns the most recent non-empty document and phone of a
// conversation. msgs must be oldest first; later turns often omit them.
func latestCustomer(msgs []domain.ConversationMessage) domain.CustomerInfo {
	var c domain.CustomerInfo
	for _, msg := range msgs {
		if msg.CustomerDocument != "" {
			c.Document = msg.CustomerDocument
		}
		if msg.CustomerPhone != "" {
			c.Phone = msg.CustomerPhone
		}
	}
	return c
}
