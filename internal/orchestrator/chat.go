package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/homelead/mcphost/internal/trim"
)

var tracer = otel.Tracer("github.com/homelead/mcphost/internal/orchestrator")

// runChat is the tool-calling loop: assemble messages, call OpenAI
// with function-calling enabled, dispatch whichever function the model
// picked, feed the (trimmed, enriched) result back as a function
// message, and repeat until the model answers in plain text or the
// retry budget for an empty result is exhausted.
func (o *Orchestrator) runChat(ctx context.Context, tenantID, query string) (string, error) {
	if err := o.session.SetTenantID(tenantID); err != nil {
		return "", err
	}

	o.log.Info("chat start", "tenant", tenantID, "query", query)

	messages := o.openingMessages(tenantID, query)
	found := false
	retries := initialRetries

	for {
		msg, err := o.chatCompletion(ctx, messages, o.functions)
		if err != nil {
			return "", err
		}

		if msg.FunctionCall != nil {
			var cont bool
			messages, found, cont, err = o.dispatchCall(ctx, tenantID, messages, msg.FunctionCall, found, &retries)
			if err != nil {
				return "", err
			}
			if cont {
				continue
			}
		}

		if !found && retries > 0 {
			retries--
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: stillNoDataNudge,
			})
			continue
		}

		summary := o.summarize(ctx, query, msg.Content)
		o.appendHistory(tenantID, query, summary)
		return summary, nil
	}
}

func (o *Orchestrator) openingMessages(tenantID, query string) []openai.ChatCompletionMessage {
	today := time.Now().UTC().Format("2006-01-02")
	dateMsg := openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleSystem,
		Content: fmt.Sprintf(
			`Current UTC date: %s. Use ["%sT00:00:00Z","%sT23:59:59Z"] for "today".`,
			today, today, today),
	}
	sysMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt}

	messages := make([]openai.ChatCompletionMessage, 0, len(o.historyFor(tenantID))+5)
	messages = append(messages, dateMsg, sysMsg)
	messages = append(messages, o.historyFor(tenantID)...)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: query})

	messages = append(messages,
		openai.ChatCompletionMessage{
			Role:         openai.ChatMessageRoleAssistant,
			FunctionCall: &openai.FunctionCall{Name: "list_collections", Arguments: "{}"},
		},
		openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleFunction,
			Name:    "list_collections",
			Content: o.collectionsJSON,
		},
	)
	return messages
}

// dispatchCall runs the function the model asked for and returns the
// updated message slice, the updated found flag, and whether the
// caller should go straight back to the top of the loop for a fresh
// completion call (true on every branch, including the one that
// appends the "no data" nudge).
func (o *Orchestrator) dispatchCall(ctx context.Context, tenantID string, messages []openai.ChatCompletionMessage, call *openai.FunctionCall, found bool, retries *int) ([]openai.ChatCompletionMessage, bool, bool, error) {
	name := call.Name
	var args map[string]any
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			args = map[string]any{}
		}
	} else {
		args = map[string]any{}
	}

	if name == "search" {
		return o.dispatchSearch(ctx, messages, args, found)
	}

	if collectionEnumTools[name] && name != "collection_schema" {
		if coll, ok := args["collection"].(string); ok && coll != "" {
			messages = o.prefetch(ctx, messages, coll)
		}
	}

	out, empty := o.callTool(ctx, name, args)
	body, _ := json.Marshal(out)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleFunction,
		Name:    name,
		Content: string(body),
	})

	found = found || !empty
	if !found && *retries > 0 {
		*retries--
		return messages, found, true, nil
	}
	if !found {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: noDataNudge,
		})
		found = true
	}
	return messages, found, true, nil
}

// dispatchSearch runs the search tool and, on a hit, appends a
// synthesized assistant find call (top hit's collection, {_id}, limit
// 1) to the conversation. The find itself is not run here: the call
// message is left for the next completion to act on, and found is
// returned unchanged.
func (o *Orchestrator) dispatchSearch(ctx context.Context, messages []openai.ChatCompletionMessage, args map[string]any, found bool) ([]openai.ChatCompletionMessage, bool, bool, error) {
	out, empty := o.callTool(ctx, "search", args)
	body, _ := json.Marshal(out)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleFunction,
		Name:    "search",
		Content: string(body),
	})
	if empty {
		return messages, true, true, nil
	}

	results, _ := out["results"].([]any)
	if len(results) == 0 {
		return messages, true, true, nil
	}
	top, _ := results[0].(map[string]any)
	hits, _ := top["hits"].([]any)
	if top == nil || len(hits) == 0 {
		return messages, true, true, nil
	}
	hit, _ := hits[0].(map[string]any)
	findArgs := map[string]any{
		"collection": top["collection"],
		"filter":     map[string]any{"_id": hit["_id"]},
		"limit":      1,
	}
	findArgsJSON, _ := json.Marshal(findArgs)
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleAssistant,
		FunctionCall: &openai.FunctionCall{
			Name:      "find",
			Arguments: string(findArgsJSON),
		},
	})
	return messages, found, true, nil
}

// prefetch injects a collection_schema then count call ahead of the
// model's requested count/find/aggregate, giving it field names and a
// row count before it sees the data itself, exactly as the original
// primes the model's context before handing it a collection.
func (o *Orchestrator) prefetch(ctx context.Context, messages []openai.ChatCompletionMessage, collection string) []openai.ChatCompletionMessage {
	schemaArgs := map[string]any{"collection": collection, "maxValues": 10}
	schemaOut, _ := o.callTool(ctx, "collection_schema", schemaArgs)
	schemaArgsJSON, _ := json.Marshal(schemaArgs)
	schemaOutJSON, _ := json.Marshal(schemaOut)

	countArgs := map[string]any{"collection": collection, "filter": map[string]any{}}
	countOut, _ := o.callTool(ctx, "count", countArgs)
	countArgsJSON, _ := json.Marshal(countArgs)
	countOutJSON, _ := json.Marshal(countOut)

	return append(messages,
		openai.ChatCompletionMessage{
			Role:         openai.ChatMessageRoleAssistant,
			FunctionCall: &openai.FunctionCall{Name: "collection_schema", Arguments: string(schemaArgsJSON)},
		},
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleFunction, Name: "collection_schema", Content: string(schemaOutJSON)},
		openai.ChatCompletionMessage{
			Role:         openai.ChatMessageRoleAssistant,
			FunctionCall: &openai.FunctionCall{Name: "count", Arguments: string(countArgsJSON)},
		},
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleFunction, Name: "count", Content: string(countOutJSON)},
	)
}

// callTool runs a tool through the runner, trims and enriches a
// successful result, and reports whether the trimmed result counts as
// empty. A tool error is folded into the returned payload as an
// "error" field rather than aborting the chat turn, matching the
// original surfacing tool failures to the model instead of to the
// caller.
func (o *Orchestrator) callTool(ctx context.Context, name string, args map[string]any) (map[string]any, bool) {
	if name == "find" {
		coerceFindIDFilter(args)
	}

	raw, err := o.runner.Run(ctx, name, args)
	if err != nil {
		o.log.Warn("tool call failed", "tool", name, "error", err)
		return map[string]any{"error": err.Error()}, false
	}

	shrunk := trim.Result(name, raw)
	if o.enricher != nil {
		enriched, err := o.enricher.Document(ctx, shrunk)
		if err != nil {
			o.log.Warn("enrichment failed for tool output", "tool", name, "error", err)
		} else {
			shrunk = enriched
		}
	}
	return shrunk, trim.IsEmpty(name, shrunk)
}

// coerceFindIDFilter converts a hex-string "_id" in a find filter to an
// ObjectId before the call reaches the tool base. Without this, the
// hex string would be wrapped by applyTenantScope's case-insensitive
// injection into a regex leaf, which can never match an ObjectId-typed
// _id field — breaking the search→find chain, since search hands back
// _id as a plain hex string.
func coerceFindIDFilter(args map[string]any) {
	filter, ok := args["filter"].(map[string]any)
	if !ok {
		return
	}
	idStr, ok := filter["_id"].(string)
	if !ok {
		return
	}
	if id, err := primitive.ObjectIDFromHex(idStr); err == nil {
		filter["_id"] = id
	}
}

func (o *Orchestrator) chatCompletion(ctx context.Context, messages []openai.ChatCompletionMessage, functions []openai.FunctionDefinition) (*openai.ChatCompletionMessage, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.chat_completion", trace.WithAttributes(
		attribute.Int("llm.message_count", len(messages)),
		attribute.Bool("llm.functions_enabled", len(functions) > 0),
	))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:        o.model,
		Messages:     messages,
		Functions:    functions,
		FunctionCall: "auto",
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("orchestrator: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("orchestrator: chat completion returned no choices")
	}
	return &resp.Choices[0].Message, nil
}

// summarize turns the model's raw final answer into a short, direct
// reply, falling back to the raw text if summarization itself fails.
func (o *Orchestrator) summarize(ctx context.Context, query, raw string) string {
	raw = strings.TrimSpace(raw)
	msg, err := o.chatCompletion(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: "Write a 4-6 line clear answer."},
		{Role: openai.ChatMessageRoleUser, Content: "Question: " + query},
		{Role: openai.ChatMessageRoleUser, Content: "Data: " + raw},
	}, nil)
	if err != nil {
		o.log.Warn("summarization failed, using raw output", "error", err)
		return raw
	}
	summary := strings.TrimSpace(msg.Content)
	if summary == "" {
		return raw
	}
	return summary
}

func (o *Orchestrator) historyFor(tenantID string) []openai.ChatCompletionMessage {
	o.histMu.Lock()
	defer o.histMu.Unlock()
	hist := o.history[tenantID]
	out := make([]openai.ChatCompletionMessage, len(hist))
	copy(out, hist)
	return out
}

func (o *Orchestrator) appendHistory(tenantID, query, reply string) {
	o.histMu.Lock()
	defer o.histMu.Unlock()
	hist := append(o.history[tenantID],
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: query},
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply},
	)
	if len(hist) > maxHistoryMessages {
		hist = hist[len(hist)-maxHistoryMessages:]
	}
	o.history[tenantID] = hist
}
