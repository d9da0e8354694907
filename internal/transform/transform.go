// Package transform implements a declarative lookup table mapping a
// client-provided stream-identifier plus method to a substituted query,
// optionally advertising the frontend under a different delivery-system
// family than its physical capability.
package transform

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/mpostema/dvbstreamer/internal/dvbxml"
	"github.com/mpostema/dvbstreamer/internal/frontenddata"
)

// Key identifies one mapping table entry.
type Key struct {
	Query  string
	Method frontenddata.Method
}

// Transform holds the per-frontend mapping table plus the advertise-as
// override flags. Reset by teardown.
type Transform struct {
	mu             sync.RWMutex
	table          map[Key]string
	advertiseDVBS2 bool
	advertiseDVBC  bool
}

// New builds an empty transform table.
func New() *Transform {
	return &Transform{table: make(map[Key]string)}
}

// Load replaces the mapping table, typically read once from the
// configuration's transformation block.
func (t *Transform) Load(entries map[Key]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.table = make(map[Key]string, len(entries))
	for k, v := range entries {
		t.table[k] = v
	}
}

// TransformStreamString returns the mapped equivalent of msg for feID if one
// is registered, or msg unchanged otherwise. feID is accepted for parity
// with a table keyed per-frontend in a multi-tuner deployment even though
// this single table instance already belongs to one frontend.
func (t *Transform) TransformStreamString(feID int, msg string, method frontenddata.Method) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if mapped, ok := t.table[Key{Query: normalizeQuery(msg), Method: method}]; ok {
		return mapped
	}
	return msg
}

// AdvertiseAsDVBS2 sets or clears the DVB-S2 masquerade flag.
func (t *Transform) AdvertiseAsDVBS2(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advertiseDVBS2 = on
}

// AdvertiseAsDVBC sets or clears the DVB-C masquerade flag.
func (t *Transform) AdvertiseAsDVBC(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advertiseDVBC = on
}

// AdvertisedAsDVBS2 reports the current masquerade state.
func (t *Transform) AdvertisedAsDVBS2() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.advertiseDVBS2
}

// AdvertisedAsDVBC reports the current masquerade state.
func (t *Transform) AdvertisedAsDVBC() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.advertiseDVBC
}

// Reset clears the masquerade flags, called by teardown. The mapping table
// itself survives teardown — it is configuration, not tuning state.
func (t *Transform) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advertiseDVBS2 = false
	t.advertiseDVBC = false
}

// ToXML adds the masquerade flags and the full mapping table, flattened as
// "transformation.N.query"/"transformation.N.method"/"transformation.N.value"
// triples, the Go shape of the original's _transform.toXML() blob.
func (t *Transform) ToXML(doc *dvbxml.Document) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	doc.AddElement("transformation.advertiseAsDVBS2", strconv.FormatBool(t.advertiseDVBS2))
	doc.AddElement("transformation.advertiseAsDVBC", strconv.FormatBool(t.advertiseDVBC))

	i := 0
	for k, v := range t.table {
		prefix := fmt.Sprintf("transformation.%d", i)
		doc.AddElement(prefix+".query", k.Query)
		doc.AddElement(prefix+".method", strconv.Itoa(int(k.Method)))
		doc.AddElement(prefix+".value", v)
		i++
	}
	doc.AddElement("transformation.count", strconv.Itoa(i))
}

// FromXML restores the masquerade flags and mapping table written by ToXML.
func (t *Transform) FromXML(doc *dvbxml.Document) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if v, ok := doc.FindElement("transformation.advertiseAsDVBS2"); ok {
		t.advertiseDVBS2, _ = strconv.ParseBool(v)
	}
	if v, ok := doc.FindElement("transformation.advertiseAsDVBC"); ok {
		t.advertiseDVBC, _ = strconv.ParseBool(v)
	}

	count := doc.FindNumber("transformation.count", 0)
	table := make(map[Key]string, count)
	for i := 0; i < count; i++ {
		prefix := fmt.Sprintf("transformation.%d", i)
		query, ok := doc.FindElement(prefix + ".query")
		if !ok {
			continue
		}
		method := frontenddata.Method(doc.FindNumber(prefix+".method", int(frontenddata.MethodPlay)))
		value, _ := doc.FindElement(prefix + ".value")
		table[Key{Query: query, Method: method}] = value
	}
	t.table = table
}

// normalizeQuery strips whitespace so lookups are resilient to incidental
// formatting differences in the incoming request string.
func normalizeQuery(msg string) string {
	return strings.TrimSpace(msg)
}
