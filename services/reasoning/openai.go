package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/harborstay/concierge/services/agent/datatypes"
)

const interpretSystemPrompt = `You extract hotel booking intent from one user message.
Respond with a single JSON object and nothing else:
{"intent":"provide_info|select_offer|cancel|reset|other",
 "constraint_delta":{"city":...,"check_in":"YYYY-MM-DD","check_out":"YYYY-MM-DD",
  "adults":N,"children":N,"rooms":N,"max_price":N,"min_star":N,
  "amenities":[...],"refundable_only":bool,"clear":[...]},
 "offer_ref":"offer id or hotel name if the user picked an offer",
 "reply_hint":"optional short phrasing suggestion"}
Only include fields the user actually stated. Never invent prices or dates.`

// OpenAIConfig configures the OpenAI-compatible interpreter backend.
type OpenAIConfig struct {
	// Model is the chat model name. Default: gpt-4o-mini.
	Model string

	// BaseURL overrides the API endpoint, for local OpenAI-compatible
	// servers. Empty uses the default.
	BaseURL string

	// APIKey is the API key. Falls back to OPENAI_API_KEY.
	APIKey string

	// Timeout bounds one interpret round trip. Default: 10s.
	Timeout time.Duration
}

// OpenAIInterpreter implements Interpreter over an OpenAI-compatible chat
// completion endpoint.
type OpenAIInterpreter struct {
	client *openai.Client
	model  string
}

// NewOpenAIInterpreter creates an interpreter client.
func NewOpenAIInterpreter(cfg OpenAIConfig) (*OpenAIInterpreter, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is missing")
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	return &OpenAIInterpreter{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

// Interpret asks the model to classify the message and extract a constraint
// delta. Whatever comes back, the result is structurally valid: transport
// errors and unparseable completions both degrade to IntentOther with an
// empty delta.
func (i *OpenAIInterpreter) Interpret(ctx context.Context, message string, current datatypes.Constraints) (Interpretation, error) {
	currentJSON, err := json.Marshal(current)
	if err != nil {
		return Interpretation{Intent: IntentOther}, nil
	}

	resp, err := i.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       i.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: interpretSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(
				"Current constraints: %s\nUser message: %s", currentJSON, message)},
		},
	})
	if err != nil {
		slog.Warn("Interpret call failed, degrading to other intent", "error", err)
		return Interpretation{Intent: IntentOther}, err
	}
	if len(resp.Choices) == 0 {
		return Interpretation{Intent: IntentOther}, nil
	}

	return ParseInterpretation(resp.Choices[0].Message.Content), nil
}

// ParseInterpretation extracts the first JSON object from model output and
// decodes it. Anything unparseable degrades to IntentOther with an empty
// delta, never an error.
func ParseInterpretation(text string) Interpretation {
	raw := extractFirstJSONObject(text)
	if raw == "" {
		return Interpretation{Intent: IntentOther}
	}

	var interp Interpretation
	if err := json.Unmarshal([]byte(raw), &interp); err != nil {
		return Interpretation{Intent: IntentOther}
	}
	switch interp.Intent {
	case IntentProvideInfo, IntentSelectOffer, IntentCancel, IntentReset, IntentOther:
	default:
		interp.Intent = IntentOther
		interp.Delta = datatypes.ConstraintDelta{}
	}
	return interp
}

// extractFirstJSONObject returns the first balanced {...} block in text,
// tolerating fenced code blocks and prose around it.
func extractFirstJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

var _ Interpreter = (*OpenAIInterpreter)(nil)
