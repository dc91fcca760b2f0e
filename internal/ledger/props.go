package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PropsDelim separates the visible memo text from the JSON side-channel that
// carries structured properties the upstream schema has no fields for.
const PropsDelim = "<M|>"

// Props is the structured side-channel smuggled inside a memo field.
type Props struct {
	// Pending set to "ignore" opts a row out of pending-state display even
	// when upstream reports it as pending.
	Pending string `json:"pending,omitempty"`
	// Balance records the account balance on a reconcile record.
	Balance float64 `json:"balance,omitempty"`
}

// ExtractProps splits a memo into visible text and the raw props JSON after
// PropsDelim. The JSON is parsed best-effort: garbage after the delimiter is
// kept verbatim in propsJSON but yields a nil Props.
func ExtractProps(memo string) (text string, props *Props, propsJSON string) {
	i := strings.Index(memo, PropsDelim)
	if i < 0 {
		return memo, nil, ""
	}
	text = strings.TrimSpace(memo[:i])
	propsJSON = memo[i+len(PropsDelim):]
	var p Props
	if err := json.Unmarshal([]byte(propsJSON), &p); err == nil {
		props = &p
	}
	return text, props, propsJSON
}

// AppendProps re-embeds a props JSON blob into a memo for upload.
func AppendProps(memo, propsJSON string) string {
	return fmt.Sprintf("%s\n\n\n%s%s", memo, PropsDelim, propsJSON)
}

// ParsePropsJSON best-effort parses a raw side-channel blob. Nil when the
// blob is empty or not valid JSON.
func ParsePropsJSON(propsJSON string) *Props {
	if propsJSON == "" {
		return nil
	}
	var p Props
	if err := json.Unmarshal([]byte(propsJSON), &p); err != nil {
		return nil
	}
	return &p
}

// MarshalProps renders props for embedding. Only used for rows we create
// ourselves, so a marshal failure is a programming error.
func MarshalProps(p Props) string {
	b, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(b)
}
