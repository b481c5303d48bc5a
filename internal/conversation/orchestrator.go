// Package conversation answers one chat turn: translate the user's text to
// English, ask the model, translate the reply back.
package conversation

import (
	"context"
	"log/slog"
	"strings"

	"github.com/calmly-app/calmly/internal/language"
	"github.com/calmly-app/calmly/internal/logging"
	"github.com/calmly-app/calmly/internal/metrics"
	"github.com/calmly-app/calmly/internal/translation"
)

const (
	// PlaceholderReply answers an empty message without calling anything.
	PlaceholderReply = "I’m here with you 💙 Take your time."
	// FallbackReply answers any turn whose pipeline failed.
	FallbackReply = "I’m having a little trouble right now, but I’m still here 💙"
)

// Pipeline stages reported when a turn falls back.
const (
	StageTranslateIn  = "translate_in"
	StageInference    = "inference"
	StageTranslateOut = "translate_out"
)

// Completer produces an assistant reply for one English user message.
type Completer interface {
	Complete(ctx context.Context, userMessage string) (string, error)
}

// Options tunes failure handling.
type Options struct {
	// FallbackToEnglish returns the untranslated completion when only the
	// return translation fails.
	FallbackToEnglish bool
}

// Orchestrator composes the language mapper, translator and model.
type Orchestrator struct {
	translator translation.Translator
	llm        Completer
	opts       Options
	logger     *slog.Logger
}

// NewOrchestrator builds an Orchestrator.
func NewOrchestrator(translator translation.Translator, llm Completer, opts Options, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{translator: translator, llm: llm, opts: opts, logger: logging.OrDiscard(logger)}
}

// Respond answers rawText written in the language of localeTag. It never
// returns an error: failures are logged and answered with FallbackReply.
func (o *Orchestrator) Respond(ctx context.Context, rawText, localeTag string) string {
	text := strings.TrimSpace(rawText)
	if text == "" {
		return PlaceholderReply
	}

	source := language.MapLocale(localeTag)
	logger := logging.FromContext(ctx, o.logger).With(slog.String("locale", localeTag), slog.String("language", source.String()))

	englishText := text
	if !source.IsEnglish() {
		translated, err := o.translator.Translate(ctx, text, source, language.English)
		if err != nil {
			return o.fail(logger, StageTranslateIn, err)
		}
		englishText = translated
	}

	reply, err := o.llm.Complete(ctx, englishText)
	if err != nil {
		return o.fail(logger, StageInference, err)
	}

	if source.IsEnglish() {
		return reply
	}

	localized, err := o.translator.Translate(ctx, reply, language.English, source)
	if err != nil {
		if o.opts.FallbackToEnglish {
			metrics.ChatFailures.WithLabelValues(StageTranslateOut).Inc()
			logger.Warn("chat reply translation failed, answering in english", slog.Any("error", err))
			return reply
		}
		return o.fail(logger, StageTranslateOut, err)
	}
	return localized
}

func (o *Orchestrator) fail(logger *slog.Logger, stage string, err error) string {
	metrics.ChatFailures.WithLabelValues(stage).Inc()
	logger.Error("chat turn failed", slog.String("stage", stage), slog.Any("error", err))
	return FallbackReply
}
