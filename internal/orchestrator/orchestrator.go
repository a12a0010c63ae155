// Package orchestrator drives one chat turn: classify the query as
// data-or-chat, assemble the tool-calling conversation, run the
// OpenAI function-calling loop against internal/tools, enrich and trim
// every tool result, and summarize the final answer. It is the Go
// shape of the original's app.py:_run_chat.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/homelead/mcphost/internal/enrich"
	"github.com/homelead/mcphost/internal/router"
	"github.com/homelead/mcphost/internal/session"
	"github.com/homelead/mcphost/internal/tools"
)

const (
	maxHistoryMessages = 10
	initialRetries     = 2
)

// collectionEnumTools is the fixed set of tool names whose "collection"
// argument gets a live enum populated from list_collections, matching
// the original's hardcoded {"collection_schema","count","aggregate","find"}.
var collectionEnumTools = map[string]bool{
	"collection_schema": true,
	"count":             true,
	"aggregate":         true,
	"find":              true,
}

const noDataNudge = "No data found—please refine your question."
const stillNoDataNudge = "Still no data—maybe try differently?"

const systemPrompt = "You are Homelead AI – a helpful, friendly assistant for real estate questions.\n\n" +
	"**Tools Available:**\n" +
	"- list_collections()\n" +
	"- collection_schema(collection, maxValues?)\n" +
	"- count(collection, filter)\n" +
	"- find(collection, filter, limit?)\n" +
	"- aggregate(collection, pipeline)\n" +
	"- search(term, fuzzy_threshold?)\n" +
	"- explain(collection, method)\n\n" +
	"**Guidelines:**\n" +
	"1. For sales query, use the property-booking collection.\n"

// Orchestrator holds everything one chat turn needs beyond the tool
// runner itself: the router, the id-to-name enricher, the OpenAI
// client, and the bounded per-tenant history ring.
type Orchestrator struct {
	runner   *tools.Runner
	session  *session.Session
	router   *router.Router
	enricher *enrich.Enricher
	client   *openai.Client
	model    string
	timeout  time.Duration
	log      *slog.Logger

	// mu serializes whole chat turns: Session's tenant id is a single
	// mutable field shared by every tool call, mirroring the original's
	// single global session.current_company_id. Running two tenants'
	// turns concurrently without this lock would let one tenant's tool
	// calls execute under another tenant's id.
	mu sync.Mutex

	histMu  sync.Mutex
	history map[string][]openai.ChatCompletionMessage

	primeOnce       sync.Once
	primeErr        error
	functions       []openai.FunctionDefinition
	collectionsJSON string
}

// New builds an Orchestrator. model falls back to "gpt-4o-mini" when
// empty, matching the original's default.
func New(runner *tools.Runner, sess *session.Session, rtr *router.Router, enricher *enrich.Enricher, client *openai.Client, model string, timeout time.Duration, log *slog.Logger) *Orchestrator {
	if model == "" {
		model = openai.GPT4oMini
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		runner:   runner,
		session:  sess,
		router:   rtr,
		enricher: enricher,
		client:   client,
		model:    model,
		timeout:  timeout,
		log:      log,
		history:  make(map[string][]openai.ChatCompletionMessage),
	}
}

// Prime fetches the tool list and builds the function-calling
// declarations once. It must be called (and succeed) before Reply;
// cmd/mcphost calls it during startup, matching the original fetching
// list_collections_cache in on_startup.
func (o *Orchestrator) Prime(ctx context.Context) error {
	o.primeOnce.Do(func() {
		o.primeErr = o.prime(ctx)
	})
	return o.primeErr
}

func (o *Orchestrator) prime(ctx context.Context) error {
	raw, err := o.runner.Run(ctx, "list_collections", map[string]any{})
	if err != nil {
		return fmt.Errorf("orchestrator: priming list_collections: %w", err)
	}
	names, _ := raw["result"].([]string)

	body, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("orchestrator: marshaling list_collections cache: %w", err)
	}
	o.collectionsJSON = string(body)

	funcs := make([]openai.FunctionDefinition, 0, len(o.runner.All()))
	for _, t := range o.runner.All() {
		params := cloneSchema(t.RawSchema())
		if collectionEnumTools[t.Name()] {
			injectCollectionEnum(params, names)
		}
		funcs = append(funcs, openai.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  params,
		})
	}
	o.functions = funcs
	return nil
}

// Reply drives one full chat turn for tenantID and returns the final
// user-facing answer.
func (o *Orchestrator) Reply(ctx context.Context, tenantID, query string) (string, error) {
	if o.functions == nil {
		return "", fmt.Errorf("orchestrator: Prime must succeed before Reply")
	}

	isData, chatReply := o.router.Classify(ctx, tenantID, query)
	if !isData {
		o.appendHistory(tenantID, query, chatReply)
		return chatReply, nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	return o.runChat(ctx, tenantID, query)
}

func cloneSchema(in map[string]any) map[string]any {
	body, err := json.Marshal(in)
	if err != nil {
		return in
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return in
	}
	return out
}

func injectCollectionEnum(schema map[string]any, names []string) {
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return
	}
	coll, ok := props["collection"].(map[string]any)
	if !ok {
		return
	}
	enum := make([]any, len(names))
	for i, n := range names {
		enum[i] = n
	}
	coll["enum"] = enum
}
