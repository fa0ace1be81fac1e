package api

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// object validates data as a JSON object and returns it parsed. A JSON null
// reports ok=false without error so value receivers stay zero.
func object(kind string, data []byte) (gjson.Result, bool, error) {
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, false, fmt.Errorf("decode %s: invalid json", kind)
	}
	result := gjson.ParseBytes(data)
	if result.Type == gjson.Null {
		return result, false, nil
	}
	if !result.IsObject() {
		return gjson.Result{}, false, fmt.Errorf("decode %s: expected object", kind)
	}
	return result, true, nil
}

// pick returns the first present, non-null field among keys.
func pick(r gjson.Result, keys ...string) gjson.Result {
	for _, key := range keys {
		value := r.Get(key)
		if value.Exists() && value.Type != gjson.Null {
			return value
		}
	}
	return gjson.Result{}
}

func decodeRaw(r gjson.Result, target any) error {
	if !r.Exists() {
		return nil
	}
	return json.Unmarshal([]byte(r.Raw), target)
}
