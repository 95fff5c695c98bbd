package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/vessellink/veddy/internal/core/domain"
	"github.com/vessellink/veddy/internal/core/ports"
)

const defaultGenerationTimeout = 120 * time.Second

// Streamer turns a prepared prompt into a token stream and a final answer.
// Every delta is NFC-normalized before it is accumulated or delivered, so
// Korean output is stable however the provider splits its tokens.
type Streamer struct {
	model   ports.ChatModel
	prompts *PromptLibrary
	timeout time.Duration
}

func NewStreamer(model ports.ChatModel, prompts *PromptLibrary, timeout time.Duration) *Streamer {
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}
	return &Streamer{
		model:   model,
		prompts: prompts,
		timeout: timeout,
	}
}

// Generate produces the answer for one request. onToken, when non-nil, sees
// every normalized token in order; returning an error from it aborts the
// stream and Generate returns that error wrapped as a client-gone failure.
// With a nil onToken the model is invoked without streaming. The returned
// text has the reformat pass applied; it is never persisted or returned on
// error.
func (s *Streamer) Generate(ctx context.Context, mode domain.GenerationMode, vars PromptVars, onToken func(token string) error) (string, error) {
	messages, err := s.prompts.Messages(mode, vars)
	if err != nil {
		return "", err
	}

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if onToken == nil {
		raw, invokeErr := s.model.Invoke(genCtx, messages)
		if invokeErr != nil {
			return "", s.classify(ctx, genCtx, invokeErr)
		}
		return Reformat(norm.NFC.String(raw)), nil
	}

	var acc strings.Builder
	streamErr := s.model.Stream(genCtx, messages, func(delta string) error {
		token := norm.NFC.String(delta)
		acc.WriteString(token)
		return onToken(token)
	})
	if streamErr != nil {
		return "", s.classify(ctx, genCtx, streamErr)
	}
	return Reformat(acc.String()), nil
}

func (s *Streamer) classify(ctx, genCtx context.Context, err error) error {
	switch {
	case domain.IsKind(err, domain.ErrClientGone):
		return err
	case ctx.Err() != nil:
		return domain.WrapError(domain.ErrClientGone, "generate answer", err)
	case errors.Is(err, context.DeadlineExceeded) || genCtx.Err() != nil:
		return domain.WrapError(domain.ErrGenerationTimeout, "generate answer", err)
	default:
		return fmt.Errorf("generate answer: %w", err)
	}
}

var (
	numberedItemRe = regexp.MustCompile(`(\d+\.)\s+`)
	headingLineRe  = regexp.MustCompile(`(#{1,3})[ \t]+([^\n]+)`)
	bulletLineRe   = regexp.MustCompile(`(- [^\n]+)`)
	extraBlankRe   = regexp.MustCompile(`\n{3,}`)
)

// Reformat applies the deterministic post-generation cleanup: a paragraph
// break after every numbered marker and heading line, a line break after
// every bullet item, at most one blank line in a row, and a references
// section when the model forgot one.
func Reformat(text string) string {
	out := strings.TrimSpace(text)
	out = numberedItemRe.ReplaceAllString(out, "$1\n\n")
	out = headingLineRe.ReplaceAllString(out, "$1 $2\n\n")
	out = bulletLineRe.ReplaceAllString(out, "$1\n")
	if out != "" && !strings.Contains(out, "참고 문서") && !strings.Contains(out, "📚") {
		out += "\n\n📚 참고 문서:\n(검색 결과 없음)"
	}
	out = extraBlankRe.ReplaceAllString(out, "\n\n")
	return out
}
