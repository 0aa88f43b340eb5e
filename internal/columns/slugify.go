package columns

import (
	"fmt"
	"regexp"
	"strings"

	"surveyboard/internal/util"
)

// MaxTechnicalNameLen bounds every generated technical name.
const MaxTechnicalNameLen = 120

var (
	reSlugQuotes     = regexp.MustCompile(`["“”’‘']`)
	reSlugNonAlnum   = regexp.MustCompile(`[^a-z0-9]+`)
	reSlugUnderscore = regexp.MustCompile(`_+`)
	slugSeparators   = strings.NewReplacer("(", " ", ")", " ", "/", " ", "\\", " ")
)

// Slugify turns any header into a technical name matching ^[a-z0-9_]{0,120}$.
// It is idempotent. Distinct headers may collide; Apply resolves collisions.
func Slugify(v any) string {
	var text string
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		text = t
	default:
		text = fmt.Sprint(t)
	}

	text = strings.TrimSpace(strings.ReplaceAll(text, "\ufeff", ""))
	text = util.StripAccents(text)
	text = strings.ToLower(text)
	text = reSlugQuotes.ReplaceAllString(text, "")
	text = slugSeparators.Replace(text)
	text = reSlugNonAlnum.ReplaceAllString(text, "_")
	text = reSlugUnderscore.ReplaceAllString(text, "_")
	text = strings.Trim(text, "_")
	if len(text) > MaxTechnicalNameLen {
		// a cut can land right after a separator
		text = strings.TrimRight(text[:MaxTechnicalNameLen], "_")
	}
	return text
}
