package usecase

import (
	"fmt"
	"strings"

	"line-relay/internal/domain"
)

// AssembleText builds the request for a text turn: prior context oldest
// first, then the new user message.
func AssembleText(h domain.History, text, model string, maxTokens int) domain.ModelRequest {
	messages := HistoryMessages(h)
	messages = append(messages, domain.TextMessage(domain.RoleUser, text))
	return domain.ModelRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  messages,
	}
}

// AssembleImage builds a one-shot request describing img. Prior text history
// is never merged into image requests.
func AssembleImage(img domain.ImagePayload, language, model string, maxTokens int) domain.ModelRequest {
	return domain.ModelRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []domain.Message{{
			Role: domain.RoleUser,
			Content: []domain.ContentBlock{
				{Type: domain.BlockImage, Image: &img},
				{Type: domain.BlockText, Text: imageInstruction(language)},
			},
		}},
	}
}

// HistoryMessages projects stored history into chronological model messages.
func HistoryMessages(h domain.History) []domain.Message {
	switch h.Policy {
	case domain.PolicyCacheTTL:
		return cachedTurnMessages(h.Turns)
	default:
		return exchangeMessages(h.Exchanges)
	}
}

// cachedTurnMessages appends the cached context as stored; it is already
// oldest first.
func cachedTurnMessages(turns []domain.Turn) []domain.Message {
	messages := make([]domain.Message, 0, len(turns)+1)
	for _, t := range turns {
		content := strings.TrimSpace(t.Content)
		if content == "" {
			continue
		}
		if t.Role != domain.RoleUser && t.Role != domain.RoleAssistant {
			continue
		}
		messages = append(messages, domain.TextMessage(t.Role, content))
	}
	return messages
}

// exchangeMessages walks newest-first records backwards so the result is
// oldest first.
func exchangeMessages(exchanges []domain.Exchange) []domain.Message {
	messages := make([]domain.Message, 0, 2*len(exchanges)+1)
	for i := len(exchanges) - 1; i >= 0; i-- {
		messages = append(messages, exchangeToMessages(exchanges[i])...)
	}
	return messages
}

func exchangeToMessages(ex domain.Exchange) []domain.Message {
	question := strings.TrimSpace(ex.UserMessage)
	answer := strings.TrimSpace(ex.AIMessage)
	if question == "" || answer == "" {
		return nil
	}
	return []domain.Message{
		domain.TextMessage(domain.RoleUser, question),
		domain.TextMessage(domain.RoleAssistant, answer),
	}
}

func imageInstruction(language string) string {
	language = strings.TrimSpace(language)
	if language == "" {
		language = "ja"
	}
	return fmt.Sprintf(
		"Describe what this image shows in a few sentences. Write the answer in the language with code %q.",
		language,
	)
}
