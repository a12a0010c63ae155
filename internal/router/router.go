// Package router classifies an incoming message as a data query (route
// to the tool-calling orchestrator) or a chat query (answer directly),
// using a fast, low-token LLM call with a deterministic keyword
// fallback when the call fails or is unavailable.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
)

const dataSentinel = `{"route":"data"}`

type turn struct {
	Query string
	Type  string // "data" or "chat"
}

// Router holds its own per-tenant conversation context, distinct from
// the orchestrator's full chat history ring: the classifier only ever
// needs to know whether the last few turns were data or chat.
type Router struct {
	client *openai.Client
	log    *slog.Logger

	mu       sync.Mutex
	contexts map[string][]turn
}

// New builds a Router. client may be nil, in which case every
// classification falls back to the keyword heuristic.
func New(client *openai.Client, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{client: client, log: log, contexts: make(map[string][]turn)}
}

// Classify decides whether query should be routed to data tools. A
// non-empty chatReply is returned when the classifier produced (or
// fell back to) a direct conversational answer instead of the data
// sentinel.
func (r *Router) Classify(ctx context.Context, tenantID, query string) (isData bool, chatReply string) {
	reply := r.classifyWithRetry(ctx, tenantID, query, 2)
	if reply == dataSentinel || strings.Contains(reply, `"route":"data"`) {
		return true, ""
	}
	return false, reply
}

func (r *Router) classifyWithRetry(ctx context.Context, tenantID, query string, maxRetries int) string {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		reply, err := r.classifyOnce(ctx, tenantID, query)
		if err == nil {
			return reply
		}
		r.log.Error("router classification attempt failed", "attempt", attempt, "tenant", tenantID, "error", err)
		if attempt == maxRetries {
			return r.fallback(tenantID, query)
		}
		select {
		case <-ctx.Done():
			return r.fallback(tenantID, query)
		case <-time.After(time.Duration(attempt+1) * 500 * time.Millisecond):
		}
	}
	return r.fallback(tenantID, query)
}

func (r *Router) classifyOnce(ctx context.Context, tenantID, query string) (string, error) {
	if r.client == nil {
		return r.fallback(tenantID, query), nil
	}

	recent := r.recentContext(tenantID)
	prompt := buildSystemPrompt(recent)

	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := r.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: openai.GPT4oMini,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
		Temperature: 0.1,
		MaxTokens:   150,
		TopP:        0.9,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("router: empty completion")
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == dataSentinel || strings.Contains(reply, `"route":"data"`) {
		r.updateContext(tenantID, query, "data")
		return dataSentinel, nil
	}
	r.updateContext(tenantID, query, "chat")
	return reply, nil
}

func (r *Router) recentContext(tenantID string) []turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	hist := r.contexts[tenantID]
	if len(hist) > 3 {
		hist = hist[len(hist)-3:]
	}
	out := make([]turn, len(hist))
	copy(out, hist)
	return out
}

func (r *Router) updateContext(tenantID, query, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hist := append(r.contexts[tenantID], turn{Query: query, Type: kind})
	if len(hist) > 10 {
		hist = hist[len(hist)-10:]
	}
	r.contexts[tenantID] = hist
}

func buildSystemPrompt(recent []turn) string {
	var ctxBlock strings.Builder
	if len(recent) > 0 {
		ctxBlock.WriteString("\n\nRECENT CONVERSATION CONTEXT:\n")
		for i, t := range recent {
			fmt.Fprintf(&ctxBlock, "%d. User: '%s' (was: %s)\n", i+1, t.Query, t.Type)
		}
		ctxBlock.WriteString("\nUse this context to understand follow-up questions.\n")
	}

	return "You are HomeLead AI, a smart assistant for real estate companies.\n\n" +
		"ROUTING DECISION:\n" +
		"If the user wants DATA/INFORMATION from HomeLead system, respond EXACTLY:\n" +
		`{"route":"data"}` + "\n\n" +
		"DATA QUERIES include:\n" +
		"- Numbers/counts: 'how many leads', 'total properties', 'lead count', 'kitne', 'count'\n" +
		"- Listings: 'show properties', 'list leads', 'display bookings'\n" +
		"- Status checks: 'converted leads', 'ongoing bookings', 'active tenants'\n" +
		"- Searches: 'find property', 'search leads', 'get contact details'\n" +
		"- Analytics: 'sales report', 'conversion rate', 'statistics'\n" +
		"- Follow-ups: 'and converted?', 'what about ongoing?', 'pending ones?'\n" +
		"- ANY business data request in ANY language\n\n" +
		"CHAT QUERIES (respond naturally as HomeLead AI):\n" +
		"- Greetings: 'hi', 'hello', 'namaste', 'ram ram', 'sat sri akal'\n" +
		"- Small talk: 'how are you', 'what can you do', 'tell me about yourself'\n" +
		"- Acknowledgments: 'ok', 'okay', 'fine', 'good', 'thanks'\n" +
		"- General questions about HomeLead capabilities\n\n" +
		"IMPORTANT RULES:\n" +
		"1. Be VERY generous with data routing - when in doubt, route to data\n" +
		"2. Short queries after data questions are usually follow-ups, route to data\n" +
		"3. Support multiple languages (English, Hindi, Punjabi, etc.)\n" +
		"4. Context matters, use conversation history to understand intent\n" +
		"5. For natural chat, be helpful and friendly, mention HomeLead capabilities\n" +
		ctxBlock.String()
}

var strongDataKeywords = []string{
	"count", "how many", "kitne", "total", "number", "ginti",
	"list", "show", "display", "batao", "dikhao",
	"converted", "ongoing", "active", "pending", "completed",
	"lead", "property", "tenant", "booking", "contact", "sale",
}

var followupPatterns = []string{"and", "what about", "how about", "pending", "active", "converted"}

var greetings = []string{"hi", "hello", "hey", "namaste", "ram", "how are"}

// fallback is the deterministic keyword classifier used when the LLM
// call is unavailable or exhausts its retries.
func (r *Router) fallback(tenantID, query string) string {
	recent := r.recentContext(tenantID)
	queryLower := strings.ToLower(strings.TrimSpace(query))

	for _, kw := range strongDataKeywords {
		if strings.Contains(queryLower, kw) {
			r.updateContext(tenantID, query, "data")
			return dataSentinel
		}
	}

	lastWasData := len(recent) > 0 && recent[len(recent)-1].Type == "data"
	if lastWasData && len(strings.Fields(query)) <= 3 {
		for _, p := range followupPatterns {
			if strings.Contains(queryLower, p) {
				r.updateContext(tenantID, query, "data")
				return dataSentinel
			}
		}
	}

	for _, g := range greetings {
		if strings.Contains(queryLower, g) {
			r.updateContext(tenantID, query, "chat")
			return "Hello! I'm HomeLead AI, ready to help with your real estate data and queries. What would you like to know?"
		}
	}

	r.updateContext(tenantID, query, "chat")
	return "I'm here to help! You can ask me about leads, properties, bookings, or any HomeLead data. What do you need?"
}
