package api

// Context is the key/value store shared by all steps of one workflow run.
//
// It is intentionally NOT synchronized. Steps running concurrently must
// partition keys by convention (each step writes its own keys) or accept
// last-write-wins races on shared keys. Making the store an explicit type
// rather than a bare map is meant to make that caveat visible at the API
// boundary, not to hide it.
type Context struct {
	values map[string]any
}

// NewContext returns an empty Context.
func NewContext() *Context {
	return &Context{values: make(map[string]any)}
}

// Set stores value under key, replacing any previous value.
func (c *Context) Set(key string, value any) {
	c.values[key] = value
}

// Get returns the value stored under key and whether it was present.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Value returns the value stored under key, or nil if absent.
func (c *Context) Value(key string) any {
	return c.values[key]
}

// Keys returns the keys currently present, in no particular order.
func (c *Context) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of stored keys.
func (c *Context) Len() int {
	return len(c.values)
}
