package tpm2

import (
	"fmt"
	"reflect"

	"github.com/tpmwire/go-tpmwire/tpmutil"
)

// Marshal serializes v, which must be a struct, a pointer to a struct or a
// plain value, into its TPM wire form. Handle-area fields are not part of a
// structure's wire form and are skipped. Nothing is returned on error.
func Marshal(v interface{}) ([]byte, error) {
	w := tpmutil.NewWriter(64)
	if err := marshal(w, reflect.ValueOf(v)); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Unmarshal deserializes data into a new T. All of data must be consumed.
func Unmarshal[T any](data []byte) (*T, error) {
	var t T
	r := tpmutil.NewReader(data)
	if err := unmarshal(r, reflect.ValueOf(&t).Elem()); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d bytes left after decoding %T", ErrSizeMismatch, r.Len(), t)
	}
	return &t, nil
}

// Decode deserializes a prefix of data into the value v points to and returns
// the number of bytes consumed. On error, *v is left untouched.
func Decode(data []byte, v interface{}) (int, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return 0, fmt.Errorf("decode target must be a non-nil pointer, got %T", v)
	}
	tmp := reflect.New(rv.Elem().Type())
	r := tpmutil.NewReader(data)
	if err := unmarshal(r, tmp.Elem()); err != nil {
		return 0, err
	}
	rv.Elem().Set(tmp.Elem())
	return r.Offset(), nil
}

// marshal appends the wire form of v to w.
func marshal(w *tpmutil.Writer, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			w.WriteU8(1)
		} else {
			w.WriteU8(0)
		}
	case reflect.Uint8:
		w.WriteU8(uint8(v.Uint()))
	case reflect.Uint16:
		w.WriteU16(uint16(v.Uint()))
	case reflect.Uint32:
		w.WriteU32(uint32(v.Uint()))
	case reflect.Uint64:
		w.WriteU64(v.Uint())
	case reflect.Int8:
		w.WriteU8(uint8(v.Int()))
	case reflect.Int16:
		w.WriteU16(uint16(v.Int()))
	case reflect.Int32:
		w.WriteU32(uint32(v.Int()))
	case reflect.Int64:
		w.WriteU64(uint64(v.Int()))
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := marshal(w, v.Index(i)); err != nil {
				return fmt.Errorf("marshalling element %d of %v: %w", i, v.Type(), err)
			}
		}
	case reflect.Struct:
		return marshalStruct(w, v)
	case reflect.Ptr:
		if v.IsNil() {
			return fmt.Errorf("not marshallable: nil %v", v.Type())
		}
		return marshal(w, v.Elem())
	default:
		return fmt.Errorf("not marshallable: %v", v.Type())
	}
	return nil
}

// marshalStruct appends the non-handle fields of v in wire order.
func marshalStruct(w *tpmutil.Writer, v reflect.Value) error {
	d := describe(v.Type())
	for _, f := range d.fields {
		if f.handle {
			continue
		}
		if err := marshalField(w, v, d, f); err != nil {
			return fmt.Errorf("marshalling field %v of %v: %w", f.name, v.Type(), err)
		}
	}
	return nil
}

func marshalField(w *tpmutil.Writer, v reflect.Value, d *structDesc, f fieldDesc) error {
	fv := v.Field(f.index)
	switch f.kind {
	case kindList:
		n := fv.Len()
		if n > f.max {
			return fmt.Errorf("%w: %d elements, at most %d allowed", ErrArrayTooLong, n, f.max)
		}
		writeCount(w, f.width, n)
		if fv.Type().Elem().Kind() == reflect.Uint8 {
			w.WriteBytes(fv.Bytes())
			return nil
		}
		for i := 0; i < n; i++ {
			if err := marshal(w, fv.Index(i)); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
	case kindSized:
		if f.optional && fv.IsZero() {
			writeCount(w, f.width, 0)
			return nil
		}
		inner := tpmutil.NewWriter(64)
		if err := marshal(inner, fv); err != nil {
			return err
		}
		if limit := 1<<(8*f.width) - 1; inner.Len() > limit {
			return fmt.Errorf("%w: sized structure is %d bytes, at most %d fit", ErrSizeMismatch, inner.Len(), limit)
		}
		writeCount(w, f.width, inner.Len())
		w.WriteBytes(inner.Bytes())
	case kindUnion:
		sel := uint32(v.Field(d.fields[f.selector].index).Uint())
		want, err := f.resolve(sel)
		if err != nil {
			return err
		}
		if want == nil {
			if !fv.IsNil() {
				return fmt.Errorf("%w: %v given for NULL selector", ErrSelectorMismatch, fv.Elem().Type())
			}
			return nil
		}
		if fv.IsNil() {
			return fmt.Errorf("%w: no variant for selector 0x%x", ErrSelectorMismatch, sel)
		}
		// Unmarshal always produces value variants.
		if fv.Elem().Kind() == reflect.Ptr {
			return fmt.Errorf("%w: variant %v is a pointer", ErrSelectorMismatch, fv.Elem().Type())
		}
		got := fv.Interface().(Union)
		if SelectorOf(got) != sel {
			return fmt.Errorf("%w: %T belongs to selector 0x%x, not 0x%x", ErrSelectorMismatch, got, SelectorOf(got), sel)
		}
		return marshal(w, fv.Elem())
	default:
		return marshal(w, fv)
	}
	return nil
}

func writeCount(w *tpmutil.Writer, width, n int) {
	switch width {
	case 1:
		w.WriteU8(uint8(n))
	case 2:
		w.WriteU16(uint16(n))
	default:
		w.WriteU32(uint32(n))
	}
}

func readCount(r *tpmutil.Reader, width int) (int, error) {
	switch width {
	case 1:
		n, err := r.ReadU8()
		return int(n), err
	case 2:
		n, err := r.ReadU16()
		return int(n), err
	default:
		n, err := r.ReadU32()
		return int(n), err
	}
}

// unmarshal decodes the wire form of v's type from r into v, which must be
// settable.
func unmarshal(r *tpmutil.Reader, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Bool:
		b, err := r.ReadU8()
		if err != nil {
			return err
		}
		if b > 1 {
			return fmt.Errorf("invalid boolean value %d", b)
		}
		v.SetBool(b == 1)
	case reflect.Uint8, reflect.Int8:
		n, err := r.ReadU8()
		if err != nil {
			return err
		}
		setInt(v, uint64(n))
	case reflect.Uint16, reflect.Int16:
		n, err := r.ReadU16()
		if err != nil {
			return err
		}
		setInt(v, uint64(n))
	case reflect.Uint32, reflect.Int32:
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		setInt(v, uint64(n))
	case reflect.Uint64, reflect.Int64:
		n, err := r.ReadU64()
		if err != nil {
			return err
		}
		setInt(v, n)
	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b, err := r.ReadBytes(v.Len())
			if err != nil {
				return err
			}
			reflect.Copy(v, reflect.ValueOf(b))
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			if err := unmarshal(r, v.Index(i)); err != nil {
				return fmt.Errorf("unmarshalling element %d of %v: %w", i, v.Type(), err)
			}
		}
	case reflect.Struct:
		return unmarshalStruct(r, v)
	default:
		return fmt.Errorf("not unmarshallable: %v", v.Type())
	}
	return nil
}

func setInt(v reflect.Value, n uint64) {
	switch v.Kind() {
	case reflect.Int8:
		v.SetInt(int64(int8(n)))
	case reflect.Int16:
		v.SetInt(int64(int16(n)))
	case reflect.Int32:
		v.SetInt(int64(int32(n)))
	case reflect.Int64:
		v.SetInt(int64(n))
	default:
		v.SetUint(n)
	}
}

// unmarshalStruct decodes the non-handle fields of v in wire order.
func unmarshalStruct(r *tpmutil.Reader, v reflect.Value) error {
	d := describe(v.Type())
	for _, f := range d.fields {
		if f.handle {
			continue
		}
		if err := unmarshalField(r, v, d, f); err != nil {
			return fmt.Errorf("unmarshalling field %v of %v: %w", f.name, v.Type(), err)
		}
	}
	return nil
}

func unmarshalField(r *tpmutil.Reader, v reflect.Value, d *structDesc, f fieldDesc) error {
	fv := v.Field(f.index)
	switch f.kind {
	case kindList:
		n, err := readCount(r, f.width)
		if err != nil {
			return err
		}
		if n > f.max {
			return fmt.Errorf("%w: %d elements, at most %d allowed", ErrArrayTooLong, n, f.max)
		}
		if n == 0 {
			return nil
		}
		if fv.Type().Elem().Kind() == reflect.Uint8 {
			b, err := r.ReadBytes(n)
			if err != nil {
				return err
			}
			fv.SetBytes(b)
			return nil
		}
		tmp := reflect.MakeSlice(fv.Type(), n, n)
		for i := 0; i < n; i++ {
			if err := unmarshal(r, tmp.Index(i)); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		fv.Set(tmp)
	case kindSized:
		n, err := readCount(r, f.width)
		if err != nil {
			return err
		}
		if n == 0 && f.optional {
			return nil
		}
		sub, err := r.Sub(n)
		if err != nil {
			return err
		}
		if err := unmarshal(sub, fv); err != nil {
			return err
		}
		if sub.Len() != 0 && !f.reserved {
			return fmt.Errorf("%w: %d of %d declared bytes unused", ErrSizeMismatch, sub.Len(), n)
		}
	case kindUnion:
		sel := uint32(v.Field(d.fields[f.selector].index).Uint())
		variant, err := f.resolve(sel)
		if err != nil || variant == nil {
			return err
		}
		nv := reflect.New(reflect.TypeOf(variant)).Elem()
		if err := unmarshal(r, nv); err != nil {
			return err
		}
		fv.Set(nv)
	default:
		return unmarshal(r, fv)
	}
	return nil
}

// isTPM2B reports whether values of t are encoded as a 2-byte size followed by
// that many bytes, which is the shape parameter encryption applies to.
func isTPM2B(t reflect.Type) bool {
	if t.Kind() != reflect.Struct {
		return false
	}
	d := describe(t)
	if len(d.fields) != 1 || d.fields[0].width != 2 {
		return false
	}
	f := d.fields[0]
	switch f.kind {
	case kindList:
		return t.Field(f.index).Type.Elem().Kind() == reflect.Uint8
	case kindSized:
		return true
	}
	return false
}
