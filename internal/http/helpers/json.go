package helpers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/dropDatabas3/dtva/internal/codec"
	httperrors "github.com/dropDatabas3/dtva/internal/http/errors"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"

	maxBodyBytes = 1 << 20
)

// ReadBody decodifica JSON o CBOR según Content-Type (sin Content-Type se
// asume JSON). Limita el body a 1MB. Devuelve false si ya escribió error HTTP.
func ReadBody(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := ContentTypeJSON
	if raw := strings.TrimSpace(r.Header.Get("Content-Type")); raw != "" {
		mt, _, err := mime.ParseMediaType(raw)
		if err != nil {
			httperrors.WriteError(w, httperrors.ErrUnsupportedMediaType.WithDetail(raw))
			return false
		}
		ct = mt
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	var err error
	switch ct {
	case ContentTypeJSON:
		err = json.NewDecoder(r.Body).Decode(v)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	case ContentTypeCBOR:
		var data []byte
		data, err = io.ReadAll(r.Body)
		if err == nil && len(data) > 0 {
			err = codec.Unmarshal(data, v)
		}
	default:
		httperrors.WriteError(w, httperrors.ErrUnsupportedMediaType.WithDetail(ct))
		return false
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httperrors.WriteError(w, httperrors.ErrBodyTooLarge)
			return false
		}
		httperrors.WriteError(w, httperrors.ErrInvalidJSON.WithDetail(err.Error()))
		return false
	}
	return true
}

// Negotiate elige JSON o CBOR según Accept. Cada tipo toma la q del rango más
// específico que lo cubre (exacto, application/*, */*). Ante empate gana JSON.
// Sin Accept es JSON; ok es false si ninguno de los dos es aceptable.
func Negotiate(r *http.Request) (mediaType string, ok bool) {
	header := strings.TrimSpace(r.Header.Get("Accept"))
	if header == "" {
		return ContentTypeJSON, true
	}
	jsonQ, cborQ := acceptQ(header, ContentTypeJSON), acceptQ(header, ContentTypeCBOR)
	switch {
	case jsonQ <= 0 && cborQ <= 0:
		return "", false
	case cborQ > jsonQ:
		return ContentTypeCBOR, true
	default:
		return ContentTypeJSON, true
	}
}

// acceptQ devuelve la q que Accept le da a mt (0 si no lo cubre).
func acceptQ(header, mt string) float64 {
	q, rank := 0.0, -1
	for _, part := range strings.Split(header, ",") {
		rangeType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		r := -1
		switch rangeType {
		case mt:
			r = 2
		case "application/*":
			r = 1
		case "*/*":
			r = 0
		}
		if r <= rank {
			continue
		}
		pq := 1.0
		if s, ok := params["q"]; ok {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				continue
			}
			pq = f
		}
		q, rank = pq, r
	}
	return q
}

// WantsCBOR reporta si el cliente prefiere application/cbor en Accept.
func WantsCBOR(r *http.Request) bool {
	mt, ok := Negotiate(r)
	return ok && mt == ContentTypeCBOR
}

// Write serializa v como JSON o CBOR según Accept; 406 si no acepta ninguno.
func Write(w http.ResponseWriter, r *http.Request, status int, v any) {
	mt, ok := Negotiate(r)
	if !ok {
		httperrors.WriteError(w, httperrors.ErrNotAcceptable.WithDetail(r.Header.Get("Accept")))
		return
	}
	if mt == ContentTypeCBOR {
		data, err := codec.Marshal(v)
		if err != nil {
			httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
			return
		}
		w.Header().Set("Content-Type", ContentTypeCBOR)
		w.WriteHeader(status)
		_, _ = w.Write(data)
		return
	}
	WriteJSON(w, status, v)
}

// WriteJSON escribe una respuesta JSON estándar.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
