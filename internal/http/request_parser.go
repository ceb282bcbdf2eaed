package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"ledger/internal/core"
)

// maxBodyBytes caps request bodies at 1 MiB.
const maxBodyBytes = 1 << 20

var (
	errRequired             = errors.New("required")
	errExpectedString       = errors.New("expected string")
	errExpectedNumber       = errors.New("expected number")
	errMalformedBody        = errors.New("body must be a JSON object")
	errInvalidUUID          = errors.New("invalid uuid")
	errUnsupportedMediaType = errors.New("unsupported media type")
)

// createTransactionRequest keeps every field raw so that a wrong JSON type
// is reported per field instead of failing the whole decode.
type createTransactionRequest struct {
	Title  json.RawMessage `json:"title"`
	Amount json.RawMessage `json:"amount"`
	Type   json.RawMessage `json:"type"`
}

// decodeCreateTransaction reads a JSON creation body and reports every
// field problem at once as a *core.ValidationError.
func decodeCreateTransaction(w http.ResponseWriter, r *http.Request) (core.NewTransaction, error) {
	if err := requireJSON(r); err != nil {
		return core.NewTransaction{}, err
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return core.NewTransaction{}, err
	}

	var req createTransactionRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&req); err != nil || dec.More() {
		return core.NewTransaction{}, &core.ValidationError{Issues: []core.Issue{{Field: "body", Err: errMalformedBody}}}
	}

	verr := &core.ValidationError{}
	var in core.NewTransaction

	if title, err := rawString(req.Title); err != nil {
		verr.Add("title", err)
	} else if in.Title = sanitizeInput(title); in.Title == "" {
		verr.Add("title", core.ErrEmptyTitle)
	}

	if lit, err := rawNumber(req.Amount); err != nil {
		verr.Add("amount", err)
	} else if cents, err := core.CentsFromNumber(lit); err != nil {
		verr.Add("amount", core.ErrInvalidAmount)
	} else {
		in.Amount = core.Money{Cents: cents}
	}

	if typ, err := rawString(req.Type); err != nil {
		verr.Add("type", err)
	} else if in.Type, err = core.ParseTransactionType(typ); err != nil {
		verr.Add("type", err)
	}

	return in, verr.OrNil()
}

// requireJSON accepts a missing Content-Type or any JSON media type.
func requireJSON(r *http.Request) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return nil
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil || (mt != "application/json" && !strings.HasSuffix(mt, "+json")) {
		return errUnsupportedMediaType
	}
	return nil
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func rawString(raw json.RawMessage) (string, error) {
	if isAbsent(raw) {
		return "", errRequired
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errExpectedString
	}
	return s, nil
}

// rawNumber returns the literal text of a JSON number.
func rawNumber(raw json.RawMessage) (string, error) {
	if isAbsent(raw) {
		return "", errRequired
	}
	var n json.Number
	if raw[0] == '"' || json.Unmarshal(raw, &n) != nil {
		return "", errExpectedNumber
	}
	return n.String(), nil
}

// parseTransactionID accepts the canonical hyphenated UUID form only.
func parseTransactionID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil || len(s) != 36 {
		return uuid.Nil, &core.ValidationError{Issues: []core.Issue{{Field: "id", Err: errInvalidUUID}}}
	}
	return id, nil
}

// sanitizeInput removes control characters other than tab, LF and CR, and
// trims surrounding whitespace.
func sanitizeInput(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 || r == 127 {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
