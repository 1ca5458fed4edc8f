package reasoning

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborstay/concierge/services/agent/datatypes"
)

func TestExtractFirstJSONObject(t *testing.T) {
	t.Run("bare object", func(t *testing.T) {
		assert.Equal(t, `{"intent":"cancel"}`, extractFirstJSONObject(`{"intent":"cancel"}`))
	})

	t.Run("fenced code block", func(t *testing.T) {
		text := "```json\n{\"intent\":\"reset\"}\n```"
		assert.Equal(t, `{"intent":"reset"}`, extractFirstJSONObject(text))
	})

	t.Run("prose around the object", func(t *testing.T) {
		text := `Sure! Here is the result: {"intent":"other"} hope that helps`
		assert.Equal(t, `{"intent":"other"}`, extractFirstJSONObject(text))
	})

	t.Run("nested objects stay balanced", func(t *testing.T) {
		text := `{"intent":"provide_info","constraint_delta":{"city":"Lisbon","adults":2}}`
		assert.Equal(t, text, extractFirstJSONObject(text))
	})

	t.Run("braces inside strings do not close the object", func(t *testing.T) {
		text := `{"reply_hint":"use {curly} braces \" quoted"}`
		assert.Equal(t, text, extractFirstJSONObject(text))
	})

	t.Run("no object", func(t *testing.T) {
		assert.Empty(t, extractFirstJSONObject("no json here"))
		assert.Empty(t, extractFirstJSONObject("{unclosed"))
	})
}

func TestParseInterpretation(t *testing.T) {
	t.Run("full interpretation", func(t *testing.T) {
		interp := ParseInterpretation(`{
			"intent": "provide_info",
			"constraint_delta": {"city": "Lisbon", "adults": 2, "amenities": ["wifi"]},
			"reply_hint": "Lisbon in October is lovely."
		}`)

		assert.Equal(t, IntentProvideInfo, interp.Intent)
		require.NotNil(t, interp.Delta.City)
		assert.Equal(t, "Lisbon", *interp.Delta.City)
		require.NotNil(t, interp.Delta.Adults)
		assert.Equal(t, 2, *interp.Delta.Adults)
		assert.Equal(t, "Lisbon in October is lovely.", interp.ReplyHint)
	})

	t.Run("selection carries the offer ref", func(t *testing.T) {
		interp := ParseInterpretation(`{"intent":"select_offer","offer_ref":"of-123"}`)
		assert.Equal(t, IntentSelectOffer, interp.Intent)
		assert.Equal(t, "of-123", interp.OfferRef)
	})

	t.Run("unknown intent degrades with an empty delta", func(t *testing.T) {
		interp := ParseInterpretation(`{"intent":"teleport","constraint_delta":{"city":"Mars"}}`)
		assert.Equal(t, IntentOther, interp.Intent)
		assert.True(t, interp.Delta.IsEmpty())
	})

	t.Run("garbage degrades to other", func(t *testing.T) {
		assert.Equal(t, IntentOther, ParseInterpretation("I cannot answer that.").Intent)
		assert.Equal(t, IntentOther, ParseInterpretation(`{"intent": 42}`).Intent)
		assert.Equal(t, IntentOther, ParseInterpretation("").Intent)
	})
}

func TestNewOpenAIInterpreterRequiresCredentials(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := NewOpenAIInterpreter(OpenAIConfig{})
	assert.Error(t, err)

	// A local endpoint override needs no key.
	_, err = NewOpenAIInterpreter(OpenAIConfig{BaseURL: "http://localhost:8000/v1"})
	assert.NoError(t, err)
}

func TestInterpretHonorsConfiguredTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		server.Close()
	}()

	interp, err := NewOpenAIInterpreter(OpenAIConfig{
		BaseURL: server.URL + "/v1",
		Timeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	started := time.Now()
	result, err := interp.Interpret(context.Background(), "hotel in Lisbon", datatypes.Constraints{})
	assert.Error(t, err)
	assert.Equal(t, IntentOther, result.Intent)
	assert.Less(t, time.Since(started), 5*time.Second, "call did not time out")
}
