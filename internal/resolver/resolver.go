// Package resolver interpolates {{input.path.to.field}} templates
// against an accumulated workflow context (§4.2).
package resolver

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var templatePattern = regexp.MustCompile(`\{\{\s*input\.([a-zA-Z0-9_.\[\]]+)\s*\}\}`)

// Resolve replaces every {{input.PATH}} occurrence in str with the
// stringified value at PATH in input. Missing paths resolve to the
// literal substring "undefined", never an error. Pure and side-effect-free.
func Resolve(str string, input map[string]interface{}) string {
	if !strings.Contains(str, "{{") {
		return str
	}

	inputJSON, err := json.Marshal(input)
	if err != nil {
		inputJSON = []byte("{}")
	}

	return templatePattern.ReplaceAllStringFunc(str, func(match string) string {
		sub := templatePattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return "undefined"
		}
		return stringify(gjson.GetBytes(inputJSON, sub[1]))
	})
}

func stringify(r gjson.Result) string {
	if !r.Exists() {
		return "undefined"
	}
	switch r.Type {
	case gjson.String:
		return r.String()
	default:
		return r.Raw
	}
}

// AsNumber reports whether s parses as an integer or float literal, and
// its value if so. Used by if_else's numeric-vs-string comparison rule.
func AsNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
