// Package postgres implements the repository interfaces over database/sql.
// Collection-valued columns (tags, attributes, audit context, threat lists)
// are stored as jsonb and marshalled here.
package postgres

import (
	"encoding/json"
	"time"
)

func nowUTC() time.Time { return time.Now().UTC() }

// nullable maps the empty string to SQL NULL for optional FK columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// jsonb marshals v for a jsonb column. A nil collection is stored as SQL NULL
// so COALESCE-based partial updates can tell "unset" from "empty".
func jsonb(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []string:
		if t == nil {
			return nil, nil
		}
	case map[string]string:
		if t == nil {
			return nil, nil
		}
	case map[string]any:
		if t == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// unjsonb decodes a jsonb column into dest. NULL leaves dest untouched.
func unjsonb(raw []byte, dest any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
