package routable

import "path/filepath"

// Kind tags a Value variant.
type Kind uint8

const (
	KindNil Kind = iota
	KindString
	KindBytes
	KindPath
)

// Value is a tagged scalar: string, bytes, path, or nil. Rule expressions
// evaluate to Values; the environment stores them.
type Value struct {
	kind Kind
	str  string
	data []byte
}

// Nil is the nil-kind Value. The zero Value is Nil.
var Nil = Value{}

// String wraps a plain string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Path wraps a filesystem path. Paths render with the OS-native separator.
func Path(p string) Value { return Value{kind: KindPath, str: filepath.FromSlash(p)} }

// Bytes wraps a byte payload.
func Bytes(b []byte) Value { return Value{kind: KindBytes, data: b} }

// Kind reports the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNil reports whether the value is the nil variant.
func (v Value) IsNil() bool { return v.kind == KindNil }

// Str coerces to a string. The second return is false only for nil values,
// mirroring the optional-string coercion the evaluators rely on: path values
// render in OS-native form, byte payloads convert directly.
func (v Value) Str() (string, bool) {
	switch v.kind {
	case KindNil:
		return "", false
	case KindBytes:
		return string(v.data), true
	default:
		return v.str, true
	}
}

// StrOr coerces to a string, substituting def for nil.
func (v Value) StrOr(def string) string {
	if s, ok := v.Str(); ok {
		return s
	}
	return def
}

// AsPath reinterprets the value as a path. Nil stays nil.
func (v Value) AsPath() Value {
	if v.IsNil() {
		return Nil
	}
	s, _ := v.Str()
	return Path(s)
}
