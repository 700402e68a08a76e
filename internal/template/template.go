// Package template implements {{var}} placeholder interpolation for prompt
// text and judge prompts.
package template

import "regexp"

var placeholderRe = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Interpolate replaces every {{key}} placeholder in s with vars[key].
// Placeholders whose key is not present in vars are left verbatim, so a
// template run against a row missing a column still renders deterministically.
func Interpolate(s string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]
		if v, ok := vars[key]; ok {
			return v
		}
		return match
	})
}
