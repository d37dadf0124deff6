package ipc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeHibernateRoundTrips(t *testing.T) {
	wake := "2026-03-08T09:00:00Z"
	summary := "done"
	req := Hibernate{Wake: &wake, Complete: false, ExitCode: 0, Summary: &summary}

	data, err := EncodeRequest(req)
	require.NoError(t, err)
	require.Contains(t, string(data), `"cmd":"hibernate"`)

	decoded, err := DecodeRequest(data)
	require.NoError(t, err)
	h, ok := decoded.(Hibernate)
	require.True(t, ok)
	require.Equal(t, wake, *h.Wake)
	require.Equal(t, summary, *h.Summary)
}

func TestDecodeAllCommandKinds(t *testing.T) {
	cases := []Request{
		Note{Text: "progress"},
		Send{Text: "hi"},
		Reply{Text: "ack"},
		Receive{},
		Alert{Action: "notify", Target: "me", Message: "stuck"},
		Time{},
	}
	for _, want := range cases {
		data, err := EncodeRequest(want)
		require.NoError(t, err)
		got, err := DecodeRequest(data)
		require.NoError(t, err)
		require.Equal(t, want.Cmd(), got.Cmd())
	}
}

func TestDecodeUnknownCmd(t *testing.T) {
	_, err := DecodeRequest([]byte(`{"cmd":"bogus"}`))
	require.Error(t, err)
}

func TestDecodeMalformedJSON(t *testing.T) {
	_, err := DecodeRequest([]byte(`not json`))
	require.Error(t, err)
}

func TestOKResponseCarriesData(t *testing.T) {
	resp := OKResponse("fine", map[string]int{"count": 2})
	require.True(t, resp.OK)
	require.Contains(t, string(resp.Data), `"count":2`)
}

func TestErrResponse(t *testing.T) {
	resp := ErrResponse("bad")
	require.False(t, resp.OK)
	require.Equal(t, "bad", resp.Message)
}
