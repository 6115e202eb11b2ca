package httpx

// Method is an HTTP request method: a well-known verb or a custom string
// escape hatch (spec component table row "Header & method types").
type Method struct {
	known bool
	name  string // canonical uppercase form, always set
}

// Well-known methods.
var (
	MethodGet     = Method{known: true, name: "GET"}
	MethodHead    = Method{known: true, name: "HEAD"}
	MethodPost    = Method{known: true, name: "POST"}
	MethodPut     = Method{known: true, name: "PUT"}
	MethodDelete  = Method{known: true, name: "DELETE"}
	MethodOptions = Method{known: true, name: "OPTIONS"}
	MethodTrace   = Method{known: true, name: "TRACE"}
	MethodPatch   = Method{known: true, name: "PATCH"}
)

// WellKnownMethods lists every well-known method in declaration order.
func WellKnownMethods() []Method {
	return []Method{MethodGet, MethodHead, MethodPost, MethodPut, MethodDelete, MethodOptions, MethodTrace, MethodPatch}
}

// ParseMethod converts a request-line verb into a Method, falling back to
// a custom method for anything not well-known. Per spec §4.2 step 2, the
// caller is responsible for validating that name is uppercase A-Z first;
// ParseMethod itself never rejects input.
func ParseMethod(name string) Method {
	for _, m := range WellKnownMethods() {
		if m.name == name {
			return m
		}
	}
	return Method{known: false, name: name}
}

// String returns the wire form of the method.
func (m Method) String() string { return m.name }

// IsWellKnown reports whether m is one of the eight well-known verbs.
func (m Method) IsWellKnown() bool { return m.known }

// Equal compares two methods by their wire form.
func (m Method) Equal(other Method) bool { return m.name == other.name }
