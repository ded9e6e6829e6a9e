package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// decodeObject reads a JSON object body and calls field for every key.
// Unknown keys must be skipped by field.
func decodeObject(r *http.Request, field func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return invalidRequest("read body: %v", err)
	}
	d := jx.DecodeBytes(body)
	err = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return field(d, string(key))
	})
	if err != nil {
		var re *requestError
		if errors.As(err, &re) {
			return re
		}
		return invalidRequest("malformed JSON body: %v", err)
	}
	return nil
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder, name string) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = n.String()
	default:
		return decimal.Decimal{}, invalidRequest("%s must be a number", name)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, invalidRequest("%s must be a number", name)
	}
	return v, nil
}

func decodeInt64(d *jx.Decoder, name string) (int64, error) {
	if d.Next() != jx.Number {
		return 0, invalidRequest("%s must be an integer", name)
	}
	v, err := d.Int64()
	if err != nil {
		return 0, invalidRequest("%s must be an integer", name)
	}
	return v, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || v <= 0 {
		return 0, invalidRequest("%s must be a positive integer", name)
	}
	return v, nil
}

func encodeMoney(e *jx.Encoder, field string, v decimal.Decimal) {
	e.FieldStart(field)
	e.Str(v.StringFixed(2))
}

func encodePercent(e *jx.Encoder, field string, v decimal.Decimal) {
	e.FieldStart(field)
	e.Str(v.String())
}

func encodeTime(e *jx.Encoder, field string, t time.Time) {
	e.FieldStart(field)
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeOptTime(e *jx.Encoder, field string, t *time.Time) {
	if t == nil {
		e.FieldStart(field)
		e.Null()
		return
	}
	encodeTime(e, field, *t)
}

func encodeArray[T any](e *jx.Encoder, field string, items []T, encode func(e *jx.Encoder, v *T)) {
	e.FieldStart(field)
	e.ArrStart()
	for i := range items {
		encode(e, &items[i])
	}
	e.ArrEnd()
}
