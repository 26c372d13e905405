package contactsync

import (
	"context"

	"github.com/tidwall/gjson"
)

// quoteField ties a form key to its custom field title and body path
type quoteField struct {
	key   string
	title string
	path  string
}

// quoteFields lists the quote form values copied onto the contact, in order
var quoteFields = []quoteField{
	{key: "garmentType", title: "Garment Type", path: "garmentType"},
	{key: "garmentColor", title: "Garment Color", path: "garmentColor"},
	{key: "garmentQuality", title: "Garment Quality", path: "garmentQuality"},
	{key: "garmentSource", title: "Garment Source", path: "garmentSource"},
	{key: "printType", title: "Print Type", path: "printType"},
	{key: "screenColors", title: "Screen Color Count", path: "screenColors"},
	{key: "stitches", title: "Embroidery Stitch Count", path: "stitches"},
	{key: "printSize", title: "Print Size", path: "printSize"},
	{key: "artW", title: "Artwork Width (in)", path: "artW"},
	{key: "artH", title: "Artwork Height (in)", path: "artH"},
	{key: "locations", title: "Print Locations", path: "locations"},
	{key: "rushFee", title: "Rush Fee", path: "rushFee"},
	{key: "ship_pickup", title: "Pickup or Shipping", path: "ship_pickup"},
	{key: "tax_exempt", title: "Tax Exempt", path: "tax_exempt"},
	{key: "notes", title: "Project Notes", path: "notes"},
	{key: "total_per", title: "Quote – Per Shirt", path: "totals.per"},
	{key: "total_sub", title: "Quote – Subtotal", path: "totals.sub"},
	{key: "total_tax", title: "Quote – Tax", path: "totals.tax"},
	{key: "total_total", title: "Quote – Total", path: "totals.total"},
}

// FieldValue is one custom field on a contact
type FieldValue struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Resolver finds the provider field id for a form key
type Resolver struct {
	static map[string]string
	titles map[string]string
	cache  *FieldCache
}

// NewResolver prefers static ids over cached title lookups
func NewResolver(static map[string]string, cache *FieldCache) *Resolver {
	titles := make(map[string]string, len(quoteFields))
	for _, f := range quoteFields {
		titles[f.key] = f.title
	}
	return &Resolver{static: static, titles: titles, cache: cache}
}

// Resolve returns the field id for key. ok is false when the key has no
// known title or the provider has no field with that title.
func (r *Resolver) Resolve(ctx context.Context, key string) (id string, ok bool, err error) {

	if id := r.static[key]; id != "" {
		return id, true, nil
	}

	title, ok := r.titles[key]
	if !ok {
		return "", false, nil
	}

	return r.cache.Lookup(ctx, title)
}

// fieldValues collects the custom field values present in body.
// Absent, null and empty values are skipped before any lookup.
func (r *Resolver) fieldValues(ctx context.Context, body string) ([]FieldValue, error) {

	fvs := []FieldValue{}
	for _, f := range quoteFields {

		v := gjson.Get(body, f.path)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		s := v.String()
		if s == "" {
			continue
		}

		id, ok, err := r.Resolve(ctx, f.key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		fvs = append(fvs, FieldValue{Field: id, Value: s})
	}

	return fvs, nil
}
