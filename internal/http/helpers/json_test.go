package helpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/dtva/internal/codec"
)

func TestNegotiate(t *testing.T) {
	cases := []struct {
		accept string
		want   string
		ok     bool
	}{
		{"", ContentTypeJSON, true},
		{"application/json", ContentTypeJSON, true},
		{"application/cbor", ContentTypeCBOR, true},
		{"application/cbor, application/json", ContentTypeJSON, true},
		{"application/json;q=0.5, application/cbor", ContentTypeCBOR, true},
		{"application/cbor;q=0.5, */*", ContentTypeJSON, true},
		{"application/cbor, */*;q=0.1", ContentTypeCBOR, true},
		{"text/html,application/xhtml+xml,*/*;q=0.8", ContentTypeJSON, true},
		{"application/*", ContentTypeJSON, true},
		{"text/html", "", false},
		{"application/json;q=0, application/cbor;q=0", "", false},
		{"*/*;q=0.9, application/json;q=0", ContentTypeCBOR, true},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.accept != "" {
			r.Header.Set("Accept", tc.accept)
		}
		mt, ok := Negotiate(r)
		assert.Equal(t, tc.ok, ok, tc.accept)
		assert.Equal(t, tc.want, mt, tc.accept)
		assert.Equal(t, tc.want == ContentTypeCBOR, WantsCBOR(r), tc.accept)
	}
}

func TestWrite_NotAcceptable(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()

	Write(rec, r, http.StatusOK, map[string]string{"a": "b"})

	require.Equal(t, http.StatusNotAcceptable, rec.Code)
	var body struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NOT_ACCEPTABLE", body.Code)
	assert.Equal(t, "text/html", body.Detail)
}

func TestWrite_CBOR(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Accept", ContentTypeCBOR)
	rec := httptest.NewRecorder()

	Write(rec, r, http.StatusAccepted, map[string]string{"sid": "abc"})

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, ContentTypeCBOR, rec.Header().Get("Content-Type"))
	var got map[string]string
	require.NoError(t, codec.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "abc", got["sid"])
}
