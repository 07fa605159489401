// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package transport

// Overlay tracks cookie writes made during a request so that later reads in
// the same request see them instead of the inbound request cookies.
type Overlay struct {
	values  map[string]string
	deleted map[string]struct{}
}

// Set records a write.
func (o *Overlay) Set(name, value string) {
	if o.values == nil {
		o.values = make(map[string]string)
	}
	delete(o.deleted, name)
	o.values[name] = value
}

// Delete records a deletion.
func (o *Overlay) Delete(name string) {
	if o.deleted == nil {
		o.deleted = make(map[string]struct{})
	}
	delete(o.values, name)
	o.deleted[name] = struct{}{}
}

// Lookup reports the overlaid state. When known is false the caller should
// fall back to the inbound request.
func (o *Overlay) Lookup(name string) (value string, present, known bool) {
	if v, ok := o.values[name]; ok {
		return v, true, true
	}
	if _, ok := o.deleted[name]; ok {
		return "", false, true
	}
	return "", false, false
}
