package tpm2

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Structures describe their wire layout with a `tpm` struct tag. The first
// element is the field's 1-based position on the wire; wire order never
// follows Go declaration order. The remaining elements are options:
//
//	handle      the field belongs in the handle area of a command or response
//	auth        the handle needs an authorization session (implies handle)
//	list[=N]    N-byte element count (1, 2 or 4; default 4) then the elements
//	max=N       protocol maximum element count of a list
//	sized       2-byte size then a nested structure
//	sized8      1-byte size then a nested structure
//	optional    a zero sized structure is encoded as size 0 (and vice versa)
//	reserved    bytes left inside a sized structure after decoding are ignored
//	union=F     tagged union selected by the value of sibling field F
const tagKey = "tpm"

const (
	// Chosen based on MAX_CAP_BUFFER, the largest list the reference
	// implementation returns.
	maxListLength = 4096
)

type fieldKind int

const (
	kindPlain fieldKind = iota + 1
	kindList
	kindSized
	kindUnion
	kindSelector
)

func (k fieldKind) String() string {
	switch k {
	case kindPlain:
		return "plain"
	case kindList:
		return "list"
	case kindSized:
		return "sized"
	case kindUnion:
		return "union"
	case kindSelector:
		return "selector"
	default:
		return fmt.Sprintf("fieldKind(%d)", int(k))
	}
}

// fieldDesc is the wire description of one struct field.
type fieldDesc struct {
	name    string
	index   int // Go field index
	ordinal int
	kind    fieldKind
	// width of the element count (list) or of the size (sized), in bytes.
	width    int
	max      int
	optional bool
	reserved bool
	// selector is the position in structDesc.fields of the field selecting
	// this union.
	selector int
	resolve  resolver
	handle   bool
	auth     bool
}

// structDesc lists a struct type's fields in wire order.
type structDesc struct {
	typ    reflect.Type
	fields []fieldDesc
}

// handles returns the handle-area fields, in wire order.
func (d *structDesc) handles() []fieldDesc {
	var out []fieldDesc
	for _, f := range d.fields {
		if f.handle {
			out = append(out, f)
		}
	}
	return out
}

// UnknownFieldKindError reports a struct whose tags do not describe a wire
// layout. It is raised with panic: it is a bug in the type definition, not in
// any input.
type UnknownFieldKindError struct {
	Type   reflect.Type
	Field  string
	Reason string
}

func (e *UnknownFieldKindError) Error() string {
	return fmt.Sprintf("unknown field kind: %v.%s: %s", e.Type, e.Field, e.Reason)
}

var descriptors sync.Map // reflect.Type -> *structDesc

// describe returns the wire description of struct type t, building and
// caching it on first use. The result is shared and must not be modified.
func describe(t reflect.Type) *structDesc {
	if d, ok := descriptors.Load(t); ok {
		return d.(*structDesc)
	}
	d, _ := descriptors.LoadOrStore(t, buildDesc(t))
	return d.(*structDesc)
}

func buildDesc(t reflect.Type) *structDesc {
	if t.Kind() != reflect.Struct {
		panic(&UnknownFieldKindError{Type: t, Reason: "not a struct"})
	}
	desc := &structDesc{typ: t}
	selectorNames := make(map[string]string)
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		f := parseField(t, sf)
		f.index = i
		if f.kind == kindUnion {
			selectorNames[f.name] = sf.Tag.Get(tagKey)
		}
		desc.fields = append(desc.fields, f)
	}
	sort.Slice(desc.fields, func(i, j int) bool {
		return desc.fields[i].ordinal < desc.fields[j].ordinal
	})
	for pos, f := range desc.fields {
		if f.ordinal != pos+1 {
			panic(&UnknownFieldKindError{Type: t, Field: f.name,
				Reason: fmt.Sprintf("wire ordinals must be 1..%d without gaps or duplicates, found %d at position %d", len(desc.fields), f.ordinal, pos+1)})
		}
	}
	for pos := range desc.fields {
		f := &desc.fields[pos]
		if f.kind != kindUnion {
			continue
		}
		target := unionSelectorName(selectorNames[f.name])
		sel := -1
		for j, g := range desc.fields {
			if g.name == target {
				sel = j
			}
		}
		if sel < 0 {
			panic(&UnknownFieldKindError{Type: t, Field: f.name, Reason: fmt.Sprintf("union selector %q is not a field", target)})
		}
		if sel >= pos {
			panic(&UnknownFieldKindError{Type: t, Field: f.name, Reason: fmt.Sprintf("union selector %q must precede the union on the wire", target)})
		}
		switch t.Field(desc.fields[sel].index).Type.Kind() {
		case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		default:
			panic(&UnknownFieldKindError{Type: t, Field: f.name, Reason: fmt.Sprintf("union selector %q is not an unsigned integer of at most 32 bits", target)})
		}
		if desc.fields[sel].kind == kindPlain {
			desc.fields[sel].kind = kindSelector
		}
		f.selector = sel
	}
	return desc
}

func unionSelectorName(tag string) string {
	for _, opt := range strings.Split(tag, ",")[1:] {
		if v, ok := strings.CutPrefix(opt, "union="); ok {
			return v
		}
	}
	return ""
}

// parseField reads the tag of one field and checks it against the field's Go
// type.
func parseField(t reflect.Type, sf reflect.StructField) fieldDesc {
	bad := func(format string, args ...interface{}) {
		panic(&UnknownFieldKindError{Type: t, Field: sf.Name, Reason: fmt.Sprintf(format, args...)})
	}
	tag, ok := sf.Tag.Lookup(tagKey)
	if !ok {
		bad("missing %q tag", tagKey)
	}
	opts := strings.Split(tag, ",")
	ord, err := strconv.Atoi(opts[0])
	if err != nil || ord < 1 {
		bad("wire ordinal %q is not a positive integer", opts[0])
	}
	f := fieldDesc{name: sf.Name, ordinal: ord, kind: kindPlain}
	for _, opt := range opts[1:] {
		key, val, hasVal := strings.Cut(opt, "=")
		switch key {
		case "handle":
			f.handle = true
		case "auth":
			f.handle = true
			f.auth = true
		case "list":
			f.kind = kindList
			f.width = 4
			if hasVal {
				f.width, err = strconv.Atoi(val)
				if err != nil || (f.width != 1 && f.width != 2 && f.width != 4) {
					bad("list width %q must be 1, 2 or 4", val)
				}
			}
		case "max":
			f.max, err = strconv.Atoi(val)
			if err != nil || f.max < 0 {
				bad("max %q is not a count", val)
			}
		case "sized":
			f.kind = kindSized
			f.width = 2
		case "sized8":
			f.kind = kindSized
			f.width = 1
		case "optional":
			f.optional = true
		case "reserved":
			f.reserved = true
		case "union":
			f.kind = kindUnion
			if val == "" {
				bad("union needs a selector field")
			}
		default:
			bad("unknown option %q", opt)
		}
	}
	if f.handle {
		// Handle fields are encoded by the dispatcher, which only needs
		// the handle value.
		return f
	}
	ft := sf.Type
	switch f.kind {
	case kindList:
		if ft.Kind() != reflect.Slice {
			bad("list option on %v, want a slice", ft)
		}
		limit := 1<<(8*f.width) - 1
		if f.width == 4 {
			limit = maxListLength
		}
		if f.max == 0 || f.max > limit {
			f.max = limit
		}
	case kindSized:
		if ft.Kind() != reflect.Struct {
			bad("sized option on %v, want a struct", ft)
		}
	case kindUnion:
		if ft.Kind() != reflect.Interface {
			bad("union option on %v, want a union interface", ft)
		}
		res, ok := unionResolvers[ft]
		if !ok {
			bad("%v is not a known union", ft)
		}
		f.resolve = res
	case kindPlain:
		if !plainKind(ft) {
			bad("%v has no plain wire encoding", ft)
		}
	}
	if (f.optional || f.reserved) && f.kind != kindSized {
		bad("optional and reserved only apply to sized fields")
	}
	return f
}

func plainKind(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Struct:
		return true
	case reflect.Array:
		return plainKind(t.Elem())
	default:
		return false
	}
}
