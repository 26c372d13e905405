package contactsync

import (
	"context"
	"strings"
	"sync"
	"time"
)

// FieldTTL is how long a field listing is trusted
const FieldTTL = 10 * time.Minute

// FieldLoader lists custom fields as normalised title to id
type FieldLoader func(context.Context) (map[string]string, error)

// FieldCache maps custom field titles to provider ids.
// It is shared by every invocation of a warm function and only ever
// expires by age.
type FieldCache struct {
	TTL time.Duration
	Now func() time.Time

	load FieldLoader

	mu     sync.Mutex
	fields map[string]string
	at     time.Time
}

// NewFieldCache returns an empty cache filled by load on first use
func NewFieldCache(load FieldLoader) *FieldCache {
	return &FieldCache{TTL: FieldTTL, Now: time.Now, load: load}
}

// Lookup returns the id of the field titled title.
// ok is false when the provider has no such field.
func (c *FieldCache) Lookup(ctx context.Context, title string) (id string, ok bool, err error) {

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.Now()
	if c.fields == nil || now.Sub(c.at) >= c.TTL {
		fields, err := c.load(ctx)
		if err != nil {
			return "", false, err
		}
		if fields == nil {
			fields = map[string]string{}
		}
		c.fields, c.at = fields, now
	}

	id, ok = c.fields[normaliseTitle(title)]
	return id, ok, nil
}

func normaliseTitle(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
