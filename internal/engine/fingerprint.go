package engine

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/dynq/internal/ir"
)

// Fingerprint returns the content hash of a request DTO. Requests that
// differ only in key order or number spelling ("1.50" vs "1.5") share a
// fingerprint.
func Fingerprint(dto any) (string, error) {
	raw, err := json.Marshal(dto)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	v, err := toIR(generic)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return "", fmt.Errorf("fingerprint: request is a %T, not an object", v)
	}
	return ir.RequestHash(obj)
}

// toIR converts decoded JSON into IR values. Integral numbers become
// IRInt and the rest IRDecimal, so no float reaches the canonical form.
func toIR(v any) (ir.IRValue, error) {
	switch val := v.(type) {
	case nil:
		return ir.IRNull{}, nil
	case string:
		return ir.IRString(val), nil
	case bool:
		return ir.IRBool(val), nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return ir.IRInt(n), nil
		}
		d, err := decimal.NewFromString(val.String())
		if err != nil {
			return nil, err
		}
		return ir.NewIRDecimal(d), nil
	case []any:
		arr := make(ir.IRArray, len(val))
		for i, item := range val {
			iv, err := toIR(item)
			if err != nil {
				return nil, err
			}
			arr[i] = iv
		}
		return arr, nil
	case map[string]any:
		obj := make(ir.IRObject, len(val))
		for k, item := range val {
			iv, err := toIR(item)
			if err != nil {
				return nil, err
			}
			obj[k] = iv
		}
		return obj, nil
	}
	return nil, fmt.Errorf("unsupported JSON value %T", v)
}
