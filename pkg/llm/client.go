package llm

import "context"

// Turn is one message in the conversation log (§3 conversation log).
type Turn struct {
	Role    string // "user" | "assistant"
	Content string
}

// Provider streams a chat completion for the next user turn given the
// accumulated history. onChunk is called with each incremental text
// fragment as it arrives; the full reply is also returned once streaming
// completes.
type Provider interface {
	GetResponse(ctx context.Context, history []Turn, userText string, onChunk func(string)) (string, error)
}

// Client wraps a Provider with conversation history and the
// summarize-after-threshold policy described in §4.3.
type Client struct {
	provider      Provider
	history       []Turn
	historyLimit  int
	retainedTurns int
	summarizer    func(ctx context.Context, older []Turn) (string, error)

	registry *Registry
	callID   string
}

// NewClient builds a Client. historyLimit is the turn count above which
// older history is summarized; retainedTurns is how many of the most recent
// turns survive a summarization pass verbatim.
func NewClient(provider Provider, historyLimit, retainedTurns int) *Client {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	if retainedTurns <= 0 {
		retainedTurns = 5
	}
	return &Client{
		provider:      provider,
		historyLimit:  historyLimit,
		retainedTurns: retainedTurns,
	}
}

// SetSummarizer overrides how older history is condensed; by default a
// single assistant "note" turn is built from a short listing of the dropped
// turns (see summarizeDefault).
func (c *Client) SetSummarizer(fn func(ctx context.Context, older []Turn) (string, error)) {
	c.summarizer = fn
}

// Bind attaches a process-wide Registry to this Client, keyed by callID, so
// each summarization note this call produces is also retained there (§4.3).
func (c *Client) Bind(registry *Registry, callID string) {
	c.registry = registry
	c.callID = callID
}

// Forget drops this call's entry from the bound Registry, if any. Called
// once the call ends.
func (c *Client) Forget() {
	if c.registry != nil {
		c.registry.Remove(c.callID)
	}
}

// History returns a copy of the current conversation log.
func (c *Client) History() []Turn {
	out := make([]Turn, len(c.history))
	copy(out, c.history)
	return out
}

// GetResponse appends the user turn, streams the provider's reply via
// onChunk, appends the assistant turn, and summarizes older history once
// the threshold is exceeded.
func (c *Client) GetResponse(ctx context.Context, userText string, onChunk func(string)) (string, error) {
	c.history = append(c.history, Turn{Role: "user", Content: userText})

	reply, err := c.provider.GetResponse(ctx, c.History(), userText, onChunk)
	if err != nil {
		return "", err
	}

	c.history = append(c.history, Turn{Role: "assistant", Content: reply})
	c.maybeSummarize(ctx)
	return reply, nil
}

func (c *Client) maybeSummarize(ctx context.Context) {
	if len(c.history) <= c.historyLimit {
		return
	}
	keep := c.retainedTurns
	if keep >= len(c.history) {
		return
	}
	older := c.history[:len(c.history)-keep]
	recent := c.history[len(c.history)-keep:]

	summarize := c.summarizer
	if summarize == nil {
		summarize = summarizeDefault
	}
	note, err := summarize(ctx, older)
	if err != nil {
		return
	}
	c.history = append([]Turn{{Role: "assistant", Content: note}}, recent...)
	if c.registry != nil {
		c.registry.Put(c.callID, note)
	}
}

func summarizeDefault(_ context.Context, older []Turn) (string, error) {
	summary := "Earlier in this call: "
	for i, t := range older {
		if i > 0 {
			summary += " "
		}
		summary += t.Role + " said \"" + t.Content + "\"."
	}
	return summary, nil
}
