package service

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MUKTHARS/clmprod-sub000/model"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	DefaultCurrency  = "USD"
	DefaultGrantName = "Unnamed Contract"
)

// RawShape identifies the richest layout present in an upstream payload
type RawShape int

const (
	ShapeFlat RawShape = iota
	ShapeWithBasicData
	ShapeWithComprehensiveData
)

func (s RawShape) String() string {
	switch s {
	case ShapeWithBasicData:
		return "basic"
	case ShapeWithComprehensiveData:
		return "comprehensive"
	}
	return "flat"
}

// ComprehensiveData holds the structured sections produced by extraction.
// Raw keeps the whole object so it can be carried through untouched.
type ComprehensiveData struct {
	ContractDetails  map[string]any
	Parties          map[string]any
	FinancialDetails map[string]any
	Deliverables     map[string]any
	TermsConditions  map[string]any
	Compliance       map[string]any
	Summary          map[string]any
	Raw              map[string]any
}

// RawRecord is an upstream payload split into its known shapes.
// Basic and Comprehensive are nil when absent.
type RawRecord struct {
	Shape         RawShape
	Flat          map[string]any
	Basic         map[string]any
	Comprehensive *ComprehensiveData
}

// section names inside comprehensive data
const (
	secContractDetails  = "contract_details"
	secParties          = "parties"
	secFinancialDetails = "financial_details"
	secTermsConditions  = "terms_conditions"
	secSummary          = "summary"
)

type sectionKey struct {
	section string
	key     string
}

// fieldRule lists, per canonical field, the structured locations (highest
// precedence) and the flat keys searched at top level and then in basic data.
type fieldRule struct {
	structured []sectionKey
	flat       []string
}

var (
	ruleGrantName = fieldRule{
		structured: []sectionKey{{secContractDetails, "grant_name"}, {secContractDetails, "contract_name"}, {secContractDetails, "title"}},
		flat:       []string{"grant_name", "contract_name", "title"},
	}
	ruleGrantor = fieldRule{
		structured: []sectionKey{{secParties, "grantor"}, {secParties, "grantor_name"}},
		flat:       []string{"grantor", "grantor_name"},
	}
	ruleGrantee = fieldRule{
		structured: []sectionKey{{secParties, "grantee"}, {secParties, "grantee_name"}},
		flat:       []string{"grantee", "grantee_name"},
	}
	ruleContractNumber = fieldRule{
		structured: []sectionKey{{secContractDetails, "contract_number"}, {secContractDetails, "grant_number"}},
		flat:       []string{"contract_number", "grant_number"},
	}
	ruleTotalAmount = fieldRule{
		structured: []sectionKey{{secFinancialDetails, "total_grant_amount"}, {secFinancialDetails, "total_amount"}},
		flat:       []string{"total_amount", "total_grant_amount", "amount"},
	}
	ruleCurrency = fieldRule{
		structured: []sectionKey{{secFinancialDetails, "currency"}},
		flat:       []string{"currency"},
	}
	ruleStartDate = fieldRule{
		structured: []sectionKey{{secContractDetails, "start_date"}, {secTermsConditions, "start_date"}},
		flat:       []string{"start_date"},
	}
	ruleEndDate = fieldRule{
		structured: []sectionKey{{secContractDetails, "end_date"}, {secTermsConditions, "end_date"}},
		flat:       []string{"end_date"},
	}
	rulePurpose = fieldRule{
		structured: []sectionKey{{secContractDetails, "purpose"}, {secSummary, "purpose"}},
		flat:       []string{"purpose"},
	}
)

// ParseRaw decodes a JSON payload into its known shapes
func ParseRaw(data []byte) (RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return RawRecord{}, &Error{Kind: KindNormalization, Message: "payload is not a JSON object", Err: err}
	}
	return SplitRaw(m), nil
}

// SplitRaw classifies an already decoded payload
func SplitRaw(m map[string]any) RawRecord {
	rec := RawRecord{Shape: ShapeFlat, Flat: m}
	if m == nil {
		rec.Flat = map[string]any{}
		return rec
	}
	if basic, ok := lookup(m, "basic_data").(map[string]any); ok {
		rec.Basic = basic
		rec.Shape = ShapeWithBasicData
	}
	comp, ok := lookup(m, "comprehensive_data").(map[string]any)
	if !ok {
		// canonical output re-fed as input
		comp, ok = lookup(m, "extracted_detail").(map[string]any)
	}
	if ok {
		rec.Comprehensive = &ComprehensiveData{
			ContractDetails:  asMap(lookup(comp, secContractDetails)),
			Parties:          asMap(lookup(comp, secParties)),
			FinancialDetails: asMap(lookup(comp, secFinancialDetails)),
			Deliverables:     asMap(lookup(comp, "deliverables")),
			TermsConditions:  asMap(lookup(comp, secTermsConditions)),
			Compliance:       asMap(lookup(comp, "compliance")),
			Summary:          asMap(lookup(comp, secSummary)),
			Raw:              comp,
		}
		rec.Shape = ShapeWithComprehensiveData
	}
	return rec
}

// NormalizeJSON parses and normalizes a JSON payload
func NormalizeJSON(data []byte) (*model.Contract, error) {
	rec, err := ParseRaw(data)
	if err != nil {
		return nil, err
	}
	return rec.Normalize()
}

// Normalize reconciles a decoded payload into the canonical record
func Normalize(raw map[string]any) (*model.Contract, error) {
	return SplitRaw(raw).Normalize()
}

// Normalize never fails on missing or malformed sections; only a payload
// without a resolvable id is rejected.
func (r RawRecord) Normalize() (*model.Contract, error) {
	id, ok := r.resolveID()
	if !ok {
		return nil, newError(KindNormalization, "record has no resolvable id")
	}

	c := &model.Contract{
		ID:             id,
		Status:         model.StatusDraft,
		ReferenceTag:   r.resolveReference(),
		Filename:       r.flatString("filename", "file_name"),
		GrantName:      r.resolveString(ruleGrantName),
		Grantor:        r.resolveString(ruleGrantor),
		Grantee:        r.resolveString(ruleGrantee),
		ContractNumber: r.resolveString(ruleContractNumber),
		TotalAmount:    r.resolveAmount(),
		Currency:       strings.ToUpper(r.resolveString(ruleCurrency)),
		StartDate:      normalizeDate(r.resolveString(ruleStartDate)),
		EndDate:        normalizeDate(r.resolveString(ruleEndDate)),
		Purpose:        r.resolveString(rulePurpose),
		History:        r.resolveHistory(),
	}
	if s, ok := asString(lookup(r.Flat, "status")); ok {
		if st, valid := model.ParseStatus(s); valid {
			c.Status = st
		}
	}
	if c.GrantName == "" {
		c.GrantName = c.Filename
	}
	if c.GrantName == "" {
		c.GrantName = DefaultGrantName
	}
	if c.Currency == "" {
		c.Currency = DefaultCurrency
	}
	if r.Comprehensive != nil {
		c.ExtractedDetail = datatypes.JSONMap(r.Comprehensive.Raw)
	}
	return c, nil
}

func (r RawRecord) resolveID() (string, bool) {
	candidates := []any{lookup(r.Flat, "id"), lookup(r.Flat, "contract_id")}
	if r.Basic != nil {
		candidates = append(candidates, lookup(r.Basic, "id"), lookup(r.Basic, "contract_id"))
	}
	if r.Comprehensive != nil {
		candidates = append(candidates,
			lookup(r.Comprehensive.ContractDetails, "contract_id"),
			lookup(r.Comprehensive.ContractDetails, "id"),
			lookup(r.Comprehensive.Raw, "contract_id"),
			lookup(r.Comprehensive.Raw, "id"),
		)
	}
	for _, v := range candidates {
		if id, ok := asID(v); ok && !model.IsPlaceholderID(id) {
			return id, true
		}
	}
	return "", false
}

// candidates returns the values of rule in precedence order
func (r RawRecord) candidates(rule fieldRule) []any {
	var out []any
	if r.Comprehensive != nil {
		for _, sk := range rule.structured {
			out = append(out, lookup(r.Comprehensive.section(sk.section), sk.key))
		}
	}
	for _, k := range rule.flat {
		out = append(out, lookup(r.Flat, k))
	}
	if r.Basic != nil {
		for _, k := range rule.flat {
			out = append(out, lookup(r.Basic, k))
		}
	}
	return out
}

func (r RawRecord) resolveString(rule fieldRule) string {
	for _, v := range r.candidates(rule) {
		if s, ok := asString(v); ok {
			return s
		}
	}
	return ""
}

func (r RawRecord) resolveAmount() decimal.Decimal {
	for _, v := range r.candidates(ruleTotalAmount) {
		if d, ok := asAmount(v); ok {
			return d
		}
	}
	return decimal.Zero
}

func (r RawRecord) flatString(keys ...string) string {
	for _, k := range keys {
		if s, ok := asString(lookup(r.Flat, k)); ok {
			return s
		}
	}
	if r.Basic != nil {
		for _, k := range keys {
			if s, ok := asString(lookup(r.Basic, k)); ok {
				return s
			}
		}
	}
	return ""
}

func (r RawRecord) resolveReference() model.ReferenceTag {
	kinds := []struct {
		kind model.ReferenceKind
		key  string
	}{
		{model.ReferenceInvestment, "investment_id"},
		{model.ReferenceProject, "project_id"},
		{model.ReferenceGrant, "grant_id"},
	}
	// an already canonical tag is authoritative
	if tag, ok := lookup(r.Flat, "reference_tag").(map[string]any); ok {
		kind := model.ReferenceKind(strings.ToLower(stringOrEmpty(lookup(tag, "kind"))))
		switch kind {
		case model.ReferenceInvestment, model.ReferenceProject, model.ReferenceGrant:
			// zero is a valid value and may have been omitted
			n, _ := asInt64(lookup(tag, "value"))
			return model.ReferenceTag{Kind: kind, Value: n}
		}
	}
	maps := []map[string]any{r.Flat, r.Basic}
	if r.Comprehensive != nil {
		maps = append(maps, r.Comprehensive.ContractDetails)
	}
	for _, k := range kinds {
		for _, m := range maps {
			if n, ok := asInt64(lookup(m, k.key)); ok {
				return model.ReferenceTag{Kind: k.kind, Value: n}
			}
		}
	}
	return model.ReferenceTag{Kind: model.ReferenceNone}
}

func (r RawRecord) resolveHistory() []model.HistoryEntry {
	v := lookup(r.Flat, "history")
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var entries []model.HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil
	}
	return entries
}

func (c *ComprehensiveData) section(name string) map[string]any {
	switch name {
	case secContractDetails:
		return c.ContractDetails
	case secParties:
		return c.Parties
	case secFinancialDetails:
		return c.FinancialDetails
	case secTermsConditions:
		return c.TermsConditions
	case secSummary:
		return c.Summary
	}
	return asMap(lookup(c.Raw, name))
}

// lookup finds name in m under snake_case, camelCase or any other casing.
// Exact matches win; otherwise the first folded match in key order.
func lookup(m map[string]any, name string) any {
	if m == nil {
		return nil
	}
	if v, ok := m[name]; ok {
		return v
	}
	want := foldKey(name)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if foldKey(k) == want {
			return m[k]
		}
	}
	return nil
}

func foldKey(k string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(k))
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func stringOrEmpty(v any) string {
	s, _ := asString(v)
	return s
}

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case map[string]any:
		// parties are often objects with a name
		return asString(lookup(t, "name"))
	}
	return "", false
}

// maxExactInt is the largest magnitude a float64 holds without losing integers
const maxExactInt = 1 << 53

func asID(v any) (string, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return strconv.FormatInt(n, 10), true
		}
		if f, err := t.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) <= maxExactInt {
			return strconv.FormatInt(int64(f), 10), true
		}
		// large or exponent forms keep every digit
		if d, err := decimal.NewFromString(t.String()); err == nil {
			return d.String(), true
		}
		return t.String(), true
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return "", false
		}
		if math.Abs(t) <= maxExactInt {
			return strconv.FormatInt(int64(t), 10), true
		}
		return decimal.NewFromFloat(t).String(), true
	case map[string]any:
		return "", false
	}
	return asString(v)
}

func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		n, err := t.Int64()
		return n, err == nil
	case float64:
		if t == math.Trunc(t) && math.Abs(t) <= maxExactInt {
			return int64(t), true
		}
	case int:
		return int64(t), true
	case int64:
		return t, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	}
	return 0, false
}

var amountCleaner = strings.NewReplacer(",", "", "$", "", "€", "", "£", "", " ", "")

// asAmount accepts numbers, numeric strings with currency symbols and
// {"amount": ...} objects. Negative values are treated as unspecified.
func asAmount(v any) (decimal.Decimal, bool) {
	var d decimal.Decimal
	var err error
	switch t := v.(type) {
	case json.Number:
		d, err = decimal.NewFromString(t.String())
	case float64:
		d = decimal.NewFromFloat(t)
	case int:
		d = decimal.NewFromInt(int64(t))
	case int64:
		d = decimal.NewFromInt(t)
	case string:
		s := strings.TrimSpace(t)
		for _, code := range []string{"USD", "EUR", "GBP"} {
			s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSuffix(s, code), code))
		}
		s = amountCleaner.Replace(s)
		if s == "" {
			return decimal.Zero, false
		}
		d, err = decimal.NewFromString(s)
	case map[string]any:
		if inner := lookup(t, "amount"); inner != nil {
			return asAmount(inner)
		}
		return asAmount(lookup(t, "value"))
	default:
		return decimal.Zero, false
	}
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

// normalizeDate rewrites recognised dates as YYYY-MM-DD and keeps anything
// else verbatim.
func normalizeDate(s string) string {
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}
