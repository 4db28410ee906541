// Package validate is the whitelist-based sanitizer between client
// payloads and the state store. Validation rejects unknown fields and
// type errors outright; the sanitizer afterwards forces every value
// into its legal range so nothing out-of-bounds ever reaches disk.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ValidationError carries an itemized list of issues for a 400 reply.
type ValidationError struct {
	Msg    string
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return e.Msg
	}
	return e.Msg + ": " + strings.Join(e.Issues, "; ")
}

// Invalid builds a ValidationError.
func Invalid(msg string, issues ...string) *ValidationError {
	return &ValidationError{Msg: msg, Issues: issues}
}

var unknownField = regexp.MustCompile(`unknown field "([^"]+)"`)

// decodeStrict parses JSON into v, flagging unknown fields by name.
func decodeStrict(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if m := unknownField.FindStringSubmatch(err.Error()); m != nil {
			return Invalid("invalid JSON: " + m[1] + " unknown")
		}
		return Invalid("invalid JSON: " + err.Error())
	}
	return nil
}

func assertRange(issues *[]string, name string, v, min, max int) {
	if v < min || v > max {
		*issues = append(*issues, fmt.Sprintf("%s %d out of range %d..%d", name, v, min, max))
	}
}

func assertMatch(issues *[]string, name, v string, re *regexp.Regexp) {
	if !re.MatchString(v) {
		*issues = append(*issues, name+" does not match "+re.String())
	}
}
