package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/use-agent/retriever/llm"
	"github.com/use-agent/retriever/models"
)

// maxPlannedActions caps what the model may ask for.
const maxPlannedActions = 12

// checkAction rejects actions the browser would refuse to run.
func checkAction(a models.Action) error {
	switch a.Type {
	case "click_center", "mute_autoplay":
		return nil
	case "wait":
		if a.Selector == "" && a.Milliseconds <= 0 {
			return fmt.Errorf("wait needs a selector or milliseconds")
		}
	case "click":
		if a.Selector == "" {
			return fmt.Errorf("click needs a selector")
		}
	case "execute_js":
		if a.Code == "" {
			return fmt.Errorf("execute_js needs code")
		}
	case "scroll":
		if a.Direction != "" && a.Direction != "up" && a.Direction != "down" {
			return fmt.Errorf("scroll direction %q", a.Direction)
		}
	default:
		return fmt.Errorf("unsupported type %q", a.Type)
	}
	return nil
}

const systemPrompt = `You drive a real browser to make a short-video page start streaming.
Reply with a JSON object {"actions": [...]} and nothing else.
Each action is one of:
  {"type":"wait","milliseconds":N} | {"type":"wait","selector":"css"}
  {"type":"click","selector":"css"} | {"type":"click_center"}
  {"type":"scroll","amount":N,"direction":"down"|"up"}
  {"type":"mute_autoplay"} | {"type":"execute_js","code":"() => {...}"}
Prefer muting and clicking the player over scripts. Use at most 12 actions.`

// Chatter is the subset of llm.Client the planner needs.
type Chatter interface {
	Chat(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (*llm.ChatResult, error)
}

// LLM asks a chat model for the sequence and falls back to a static plan
// whenever the model fails or answers with something unusable.
type LLM struct {
	client   Chatter
	fallback *Static
}

// NewLLM creates an LLM planner. fallback may be nil for DefaultActions.
func NewLLM(client Chatter, fallback *Static) *LLM {
	if fallback == nil {
		fallback = NewStatic()
	}
	return &LLM{client: client, fallback: fallback}
}

func (p *LLM) Plan(ctx context.Context, state models.PageState) ([]models.Action, error) {
	actions, err := p.ask(ctx, state)
	if err != nil {
		if ctx.Err() != nil {
			return nil, models.NewRetrievalError(models.ErrCodeCanceled, "planning canceled", ctx.Err())
		}
		slog.Warn("planner: falling back to static plan",
			"url", state.URL, "platform", state.Platform, "error", err,
		)
		return p.fallback.Plan(ctx, state)
	}
	return actions, nil
}

func (p *LLM) ask(ctx context.Context, state models.PageState) ([]models.Action, error) {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	res, err := p.client.Chat(ctx, []llm.Message{
		llm.System(systemPrompt),
		llm.User("Page state:\n" + string(stateJSON)),
	}, llm.ChatOptions{JSON: true})
	if err != nil {
		return nil, err
	}

	var reply struct {
		Actions []models.Action `json:"actions"`
	}
	if err := json.Unmarshal([]byte(llm.StripFences(res.Content)), &reply); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if len(reply.Actions) == 0 {
		return nil, fmt.Errorf("empty plan")
	}
	if len(reply.Actions) > maxPlannedActions {
		reply.Actions = reply.Actions[:maxPlannedActions]
	}
	for i, a := range reply.Actions {
		if err := checkAction(a); err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
	}
	return reply.Actions, nil
}
