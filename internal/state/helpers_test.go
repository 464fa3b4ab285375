package state_test

import "encoding/json"

func decodeInto(value any, v any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
