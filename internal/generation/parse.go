package generation

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fenceRe         = regexp.MustCompile("```(?:json|JSON)?")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// Clean applies the single cleanup pass made before parsing: code fences are
// stripped, trailing commas before a closing brace or bracket are removed and
// runs of whitespace (newlines included) collapse to one space.
func Clean(text string) string {
	s := fenceRe.ReplaceAllString(text, "")
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// decode cleans raw and unmarshals it into a generic JSON value.
func decode(raw string) (any, error) {
	cleaned := Clean(raw)

	var v any
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return nil, &ParseError{Raw: raw, Cleaned: cleaned, Err: err}
	}
	return v, nil
}

// decodeObject decodes raw and returns the top-level object, taking the first
// element when the model wrapped it in a list.
func decodeObject(raw string) (map[string]any, error) {
	v, err := decode(raw)
	if err != nil {
		return nil, err
	}

	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return nil, shapeError("empty top-level list")
		}
		v = list[0]
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, shapeError("top-level value is %T, want object", v)
	}
	return obj, nil
}

// stringList keeps the non-empty trimmed strings of a JSON list, dropping
// duplicates and anything that is not a string.
func stringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}

	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}
	return out
}
