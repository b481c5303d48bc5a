// Package language maps caller locale tags to the two-letter codes used by
// the translation backend.
package language

// Code is an ISO 639-1 language code such as "en" or "hi".
type Code string

// English is the pivot language the model is prompted in.
const English Code = "en"

var localeCodes = map[string]Code{
	"en-US": English,
	"hi-IN": "hi",
	"mr-IN": "mr",
}

// MapLocale returns the language code for a supported locale tag. Unknown
// tags map to English.
func MapLocale(tag string) Code {
	if code, ok := localeCodes[tag]; ok {
		return code
	}
	return English
}

// IsEnglish reports whether no translation is needed around the model call.
func (c Code) IsEnglish() bool { return c == English }

func (c Code) String() string { return string(c) }
