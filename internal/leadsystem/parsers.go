package leadsystem

import (
	"sort"
	"strconv"
)

// page is the typed result every parser strategy produces.
type page struct {
	rows []map[string]interface{}
	next string
}

// parser recognises one response envelope shape.
type parser struct {
	name  string
	parse func(doc interface{}) (page, bool)
}

// parsers are probed in order; the first that recognises the document wins.
var parsers = []parser{
	{name: "envelope_array", parse: parseEnvelopeArray},
	{name: "row_array", parse: parseRowArray},
	{name: "results_object", parse: parseResultsObject},
	{name: "response_array", parse: parseResponseArray},
	{name: "response_results", parse: parseResponseResults},
	{name: "data_array", parse: parseDataArray},
	{name: "response_data", parse: parseResponseData},
	{name: "keyed_rows", parse: parseKeyedRows},
}

const strategyNone = "unrecognised"

// parsePage normalises one search response. Unknown shapes give an empty page.
func parsePage(body []byte) (page, string) {
	doc, ok := decodeJSON(body)
	if !ok {
		return page{}, strategyNone
	}
	for _, p := range parsers {
		if pg, ok := p.parse(doc); ok {
			return pg, p.name
		}
	}
	return page{}, strategyNone
}

// [ { results: [...], navigate: { next } } ]
func parseEnvelopeArray(doc interface{}) (page, bool) {
	arr, ok := doc.([]interface{})
	if !ok || len(arr) == 0 {
		return page{}, false
	}
	env, ok := arr[0].(map[string]interface{})
	if !ok {
		return page{}, false
	}
	results, ok := env["results"].([]interface{})
	if !ok {
		return page{}, false
	}
	return page{rows: objects(results), next: navigateNext(env)}, true
}

// [ {lead_id, ...}, ... ]
func parseRowArray(doc interface{}) (page, bool) {
	arr, ok := doc.([]interface{})
	if !ok || len(arr) == 0 || !isRow(arr[0]) {
		return page{}, false
	}
	return page{rows: objects(arr)}, true
}

// { results: [...], navigate: { next } }
func parseResultsObject(doc interface{}) (page, bool) {
	obj, ok := doc.(map[string]interface{})
	if !ok {
		return page{}, false
	}
	results, ok := obj["results"].([]interface{})
	if !ok {
		return page{}, false
	}
	return page{rows: objects(results), next: navigateNext(obj)}, true
}

// { response: [...] }
func parseResponseArray(doc interface{}) (page, bool) {
	obj, ok := doc.(map[string]interface{})
	if !ok {
		return page{}, false
	}
	rows, ok := obj["response"].([]interface{})
	if !ok {
		return page{}, false
	}
	return page{rows: objects(rows)}, true
}

// { response: { results: [...], navigate: { next } } }
func parseResponseResults(doc interface{}) (page, bool) {
	inner, ok := nestedObject(doc, "response")
	if !ok {
		return page{}, false
	}
	results, ok := inner["results"].([]interface{})
	if !ok {
		return page{}, false
	}
	return page{rows: objects(results), next: navigateNext(inner)}, true
}

// { data: [...] }
func parseDataArray(doc interface{}) (page, bool) {
	obj, ok := doc.(map[string]interface{})
	if !ok {
		return page{}, false
	}
	rows, ok := obj["data"].([]interface{})
	if !ok {
		return page{}, false
	}
	return page{rows: objects(rows)}, true
}

// { response: { data: [...] } }
func parseResponseData(doc interface{}) (page, bool) {
	inner, ok := nestedObject(doc, "response")
	if !ok {
		return page{}, false
	}
	rows, ok := inner["data"].([]interface{})
	if !ok {
		return page{}, false
	}
	return page{rows: objects(rows)}, true
}

// { "<any>": {lead_id, ...}, ... } ordered by key, see sortRowKeys.
func parseKeyedRows(doc interface{}) (page, bool) {
	obj, ok := doc.(map[string]interface{})
	if !ok || len(obj) == 0 {
		return page{}, false
	}
	keys := make([]string, 0, len(obj))
	for k, v := range obj {
		if _, isObj := v.(map[string]interface{}); isObj {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return page{}, false
	}
	sortRowKeys(keys)
	if !isRow(obj[keys[0]]) {
		return page{}, false
	}
	rows := make([]map[string]interface{}, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, obj[k].(map[string]interface{}))
	}
	return page{rows: rows}, true
}

// sortRowKeys puts integer keys first in ascending numeric order, then the
// remaining keys lexicographically.
func sortRowKeys(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		ni, iok := rowIndex(keys[i])
		nj, jok := rowIndex(keys[j])
		switch {
		case iok && jok:
			return ni < nj
		case iok != jok:
			return iok
		default:
			return keys[i] < keys[j]
		}
	})
}

// rowIndex reports whether k is a canonical non-negative integer ("7", not "07").
func rowIndex(k string) (uint64, bool) {
	n, err := strconv.ParseUint(k, 10, 64)
	if err != nil || strconv.FormatUint(n, 10) != k {
		return 0, false
	}
	return n, true
}

func nestedObject(doc interface{}, key string) (map[string]interface{}, bool) {
	obj, ok := doc.(map[string]interface{})
	if !ok {
		return nil, false
	}
	inner, ok := obj[key].(map[string]interface{})
	return inner, ok
}

func navigateNext(obj map[string]interface{}) string {
	nav, ok := obj["navigate"].(map[string]interface{})
	if !ok {
		return ""
	}
	next, _ := nav["next"].(string)
	return next
}

func isRow(v interface{}) bool {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return false
	}
	for _, k := range []string{"lead_id", "id", "first_name", "last_name"} {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

// objects keeps the object elements of arr.
func objects(arr []interface{}) []map[string]interface{} {
	rows := make([]map[string]interface{}, 0, len(arr))
	for _, v := range arr {
		if obj, ok := v.(map[string]interface{}); ok {
			rows = append(rows, obj)
		}
	}
	return rows
}
