package ldaphelpers

import (
	"fmt"
	"strings"
)

type Filter interface {
	String() string
}

type rawFilter string

func (f rawFilter) String() string {
	return string(f)
}

// Logical operators
type andFilter struct {
	parts []Filter
}

func And(filters ...Filter) Filter {
	return andFilter{parts: filters}
}
func (f andFilter) String() string {
	var parts []string
	for _, p := range f.parts {
		parts = append(parts, p.String())
	}
	return "(&" + strings.Join(parts, "") + ")"
}

type orFilter struct {
	parts []Filter
}

func Or(filters ...Filter) Filter {
	return orFilter{parts: filters}
}
func (f orFilter) String() string {
	var parts []string
	for _, p := range f.parts {
		parts = append(parts, p.String())
	}
	return "(|" + strings.Join(parts, "") + ")"
}

type notFilter struct {
	part Filter
}

func Not(f Filter) Filter {
	return notFilter{part: f}
}
func (f notFilter) String() string {
	return "(!" + f.part.String() + ")"
}

func Eq(attr, value string) Filter {
	return rawFilter("(" + attr + "=" + EscapeValue(value) + ")")
}

func Present(attr string) Filter {
	return rawFilter("(" + attr + "=*)")
}

// EqRaw builds an equality filter without escaping the value. Used for
// pre-escaped values such as binary GUID encodings.
func EqRaw(attr, value string) Filter {
	return rawFilter("(" + attr + "=" + value + ")")
}

// EscapeValue escapes the RFC 4515 special characters in a filter value.
func EscapeValue(value string) string {
	var b strings.Builder
	for _, r := range []byte(value) {
		switch r {
		case '(', ')', '*', '\\', 0:
			fmt.Fprintf(&b, "\\%02x", r)
		default:
			b.WriteByte(r)
		}
	}
	return b.String()
}

// EscapeBinary encodes raw bytes as an LDAP filter value (\xx per byte).
func EscapeBinary(value []byte) string {
	var b strings.Builder
	for _, r := range value {
		fmt.Fprintf(&b, "\\%02x", r)
	}
	return b.String()
}

const (
	AllGroupObjects = "(objectClass=group)"
	AllUserObjects  = "(&(objectCategory=person)(objectClass=user))"
)
