package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractProps(t *testing.T) {
	t.Parallel()

	text, props, raw := ExtractProps("lunch with sam\n\n\n" + PropsDelim + `{"pending":"ignore"}`)
	require.Equal(t, "lunch with sam", text)
	require.NotNil(t, props)
	require.Equal(t, "ignore", props.Pending)
	require.Equal(t, `{"pending":"ignore"}`, raw)
}

func TestExtractPropsNoDelimiter(t *testing.T) {
	t.Parallel()

	text, props, raw := ExtractProps("just a memo")
	require.Equal(t, "just a memo", text)
	require.Nil(t, props)
	require.Empty(t, raw)
}

func TestExtractPropsGarbageAfterDelimiter(t *testing.T) {
	t.Parallel()

	// the raw blob is preserved verbatim even when it fails to parse, so a
	// round-trip through upload never loses it
	text, props, raw := ExtractProps("memo" + PropsDelim + "not json")
	require.Equal(t, "memo", text)
	require.Nil(t, props)
	require.Equal(t, "not json", raw)
}

func TestAppendPropsRoundTrip(t *testing.T) {
	t.Parallel()

	raw := MarshalProps(Props{Balance: 1234.56})
	memo := AppendProps("statement memo", raw)

	text, props, gotRaw := ExtractProps(memo)
	require.Equal(t, "statement memo", text)
	require.Equal(t, raw, gotRaw)
	require.NotNil(t, props)
	require.Equal(t, 1234.56, props.Balance)
}

func TestParsePropsJSON(t *testing.T) {
	t.Parallel()

	require.Nil(t, ParsePropsJSON(""))
	require.Nil(t, ParsePropsJSON("{broken"))
	p := ParsePropsJSON(`{"balance":10.5}`)
	require.NotNil(t, p)
	require.Equal(t, 10.5, p.Balance)
}
