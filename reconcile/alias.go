/*
alias.go - Flexible input field name resolution for bulk import

PURPOSE:
  Bulk import rows arrive with inconsistent key spellings: "po_number",
  "PO_Number", "PO", "PO#", "PO Number" all mean the same logical field.
  One declarative alias table, consulted by a single normalization pass,
  keeps the accepted set auditable and extensible.

MATCHING:
  Keys are canonicalized before lookup: lowercased, with spaces,
  underscores, '#', '-' and '.' stripped. "PO Number" and "po_number"
  therefore collapse to the same lookup key.

SEE ALSO:
  - engine.go: BulkUpsert runs every row through NormalizeRow
*/
package reconcile

import (
	"strconv"
	"strings"
)

// fieldAliases maps each logical field to its accepted spellings.
// Spellings are matched after canonicalization, so case, spacing and
// separator variants need not be enumerated.
var fieldAliases = map[string][]string{
	"date_local":   {"date_local", "date", "scan_date", "log_date"},
	"mobile_bin":   {"mobile_bin", "bin", "box", "mobile bin (box)"},
	"sscc_label":   {"sscc_label", "sscc", "sscc label (box)", "label"},
	"po_number":    {"po_number", "po", "po#", "purchase_order"},
	"sku_code":     {"sku_code", "sku", "sku#", "item_code"},
	"uid":          {"uid", "unit_id", "serial"},
	"status":       {"status"},
	"completed_at": {"completed_at", "completed"},
	"id":           {"id", "record_id"},
}

var aliasLookup = buildAliasLookup()

func buildAliasLookup() map[string]string {
	lookup := make(map[string]string)
	for logical, spellings := range fieldAliases {
		for _, s := range spellings {
			lookup[canonKey(s)] = logical
		}
	}
	return lookup
}

func canonKey(s string) string {
	s = strings.ToLower(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '#', '-', '.', '(', ')':
			return -1
		}
		return r
	}, s)
}

// ResolveField maps an incoming key spelling to its logical field name.
func ResolveField(name string) (string, bool) {
	logical, ok := aliasLookup[canonKey(name)]
	return logical, ok
}

// NormalizeRow resolves aliased keys and stringifies values for one
// incoming import row. Unrecognized keys are dropped. When two spellings
// of the same field collide, the last non-blank value wins.
func NormalizeRow(row map[string]any) map[string]string {
	out := make(map[string]string, len(row))
	for k, v := range row {
		logical, ok := ResolveField(k)
		if !ok {
			continue
		}
		val := strings.TrimSpace(stringify(v))
		if val == "" && out[logical] != "" {
			continue
		}
		out[logical] = val
	}
	return out
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}
