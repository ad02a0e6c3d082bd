package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"hivetrust/internal/normalize"
)

var ErrEmptyPayload = errors.New("empty payload")

// ParseJSONBytes decodes a single measurement object or an array of them.
func ParseJSONBytes(data []byte) ([]normalize.Fields, error) {
	trim := bytes.TrimSpace(data)
	if len(trim) == 0 {
		return nil, ErrEmptyPayload
	}
	dec := json.NewDecoder(bytes.NewReader(trim))
	dec.UseNumber()
	if trim[0] == '[' {
		var list []map[string]any
		if err := dec.Decode(&list); err != nil {
			return nil, err
		}
		out := make([]normalize.Fields, 0, len(list))
		for _, obj := range list {
			out = append(out, ParseJSONMap(obj))
		}
		return out, nil
	}
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	return []normalize.Fields{ParseJSONMap(obj)}, nil
}

// ParseJSONMap maps a decoded object onto measurement fields, accepting the
// common spellings of each key.
func ParseJSONMap(obj map[string]any) normalize.Fields {
	flat := make(map[string]string, len(obj))
	for key, val := range obj {
		flat[canonicalKey(key)] = stringify(val)
	}
	return normalize.Fields{
		Kind:        firstNonEmpty(flat, "kind", "type"),
		RegionID:    firstNonEmpty(flat, "regionid", "region", "area"),
		BreederID:   firstNonEmpty(flat, "breederid", "breeder"),
		QueenID:     firstNonEmpty(flat, "queenid", "queen"),
		BeekeeperID: firstNonEmpty(flat, "beekeeperid", "beekeeper", "keeper"),
		Date:        firstNonEmpty(flat, "date", "timestamp", "ts", "measuredat"),
		SI:          firstNonEmpty(flat, "si", "selectionindex"),
		BV:          firstNonEmpty(flat, "bv", "breedingvalue"),
		Weight:      firstNonEmpty(flat, "weight", "w"),
		HoneyKg:     firstNonEmpty(flat, "honeykg", "honey"),
		EggDay:      firstNonEmpty(flat, "eggday", "eggs", "eggsperday"),
	}
}

// canonicalKey folds breederId, breeder_id and breeder-id to one spelling.
func canonicalKey(key string) string {
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(key))
}

func stringify(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func firstNonEmpty(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(m[k]); v != "" {
			return v
		}
	}
	return ""
}
