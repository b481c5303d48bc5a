// Package translation wraps the external machine translation provider.
package translation

import (
	"context"
	"errors"

	"github.com/calmly-app/calmly/internal/language"
)

// ErrTranslation is wrapped by every failure of a translation backend.
var ErrTranslation = errors.New("translation failed")

// Translator translates text between two language codes. Implementations
// perform exactly one outbound call per Translate and never retry.
type Translator interface {
	Translate(ctx context.Context, text string, source, target language.Code) (string, error)
}
