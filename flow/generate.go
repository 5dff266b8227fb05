package flow

import (
	"strings"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/model"
)

// Generate performs one model call. With emit set, streamed deltas are
// forwarded as text-chunk notices; when the provider streamed nothing the
// final text is forwarded as a single chunk, so the chunks of a turn always
// add up to its text.
func Generate(runCtx *core.RunContext, m model.Model, req model.Request, emit bool) (model.Response, error) {
	req.Stream = emit

	respCh, errCh := m.Generate(runCtx.Context, req)

	streamed := false
	var onChunk func(string) error
	if emit {
		onChunk = func(delta string) error {
			streamed = true
			return runCtx.Notify(core.Notice{Kind: core.NoticeTextChunk, Text: delta})
		}
	}

	resp, err := model.Collect(runCtx.Context, respCh, errCh, onChunk)
	if err != nil {
		return model.Response{}, err
	}

	if emit && !streamed && resp.Text != "" {
		if err := runCtx.Notify(core.Notice{Kind: core.NoticeTextChunk, Text: resp.Text}); err != nil {
			return model.Response{}, err
		}
	}

	return resp, nil
}

// Held is the text of one generation kept back from the stream until the
// caller decides the reply is valid.
type Held struct {
	chunks []string
}

// Text returns the held text.
func (h Held) Text() string { return strings.Join(h.chunks, "") }

// Empty reports whether nothing was held.
func (h Held) Empty() bool { return len(h.chunks) == 0 }

// Release forwards the held chunks as text-chunk notices in order.
func (h Held) Release(runCtx *core.RunContext) error {
	for _, c := range h.chunks {
		if err := runCtx.Notify(core.Notice{Kind: core.NoticeTextChunk, Text: c}); err != nil {
			return err
		}
	}
	return nil
}

// GenerateHeld performs one streaming model call like Generate but keeps the
// deltas instead of forwarding them. Dropping the result discards the text.
func GenerateHeld(runCtx *core.RunContext, m model.Model, req model.Request) (model.Response, Held, error) {
	req.Stream = true

	var held Held
	respCh, errCh := m.Generate(runCtx.Context, req)
	resp, err := model.Collect(runCtx.Context, respCh, errCh, func(delta string) error {
		held.chunks = append(held.chunks, delta)
		return nil
	})
	if err != nil {
		return model.Response{}, Held{}, err
	}

	if held.Empty() && resp.Text != "" {
		held.chunks = []string{resp.Text}
	}
	return resp, held, nil
}
