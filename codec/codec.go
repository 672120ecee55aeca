// Package codec converts values to and from a tagged JSON representation.
//
// Three node kinds exist on the wire:
//
//	{"format_version":1,"kind":"constructor","type_id":[...],"fields":{...}}
//	{"format_version":1,"kind":"secret","secret_id":"NAME"}
//	{"format_version":1,"kind":"not_implemented","type_id":[...],"text_repr":"..."}
//
// Serialization never fails on value content: anything that cannot be
// reconstructed degrades to a not_implemented node. Deserialization resolves
// nodes bottom-up against an explicit Registry.
package codec

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"reflect"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// FormatVersion is written into every node.
const FormatVersion = 1

// Node kinds.
const (
	KindConstructor    = "constructor"
	KindSecret         = "secret"
	KindNotImplemented = "not_implemented"
)

const (
	keyFormatVersion = "format_version"
	keyKind          = "kind"
	keyTypeID        = "type_id"
	keyFields        = "fields"
	keySecretID      = "secret_id"
	keyTextRepr      = "text_repr"
)

// Serializable is implemented by types that opt into the constructor form.
//
// Fields are the exported struct fields, named by their json tag. A field
// tagged `codec:"-"` (or `json:"-"`) is never written.
type Serializable interface {
	// IsSerializable reports whether the value can be fully reconstructed.
	IsSerializable() bool
	// TypeID is the stable type path, root namespace first.
	TypeID() []string
	// Secrets maps field names (dotted paths allowed) to secret ids.
	Secrets() map[string]string
	// Attributes are extra computed values written alongside the fields.
	Attributes() map[string]any
}

// Defaulter declares field defaults. Fields equal to their default are
// omitted from the constructor form and restored on revival.
type Defaulter interface {
	FieldDefaults() map[string]any
}

var serializableType = reflect.TypeOf((*Serializable)(nil)).Elem()

// Codec serializes values against a registry and secret sources.
type Codec struct {
	registry  *Registry
	secrets   map[string]string
	lookupEnv func(string) (string, bool)
	json      jsoniter.API
}

// Option configures a Codec.
type Option func(*Codec)

// WithSecrets sets the secret table consulted before the environment.
func WithSecrets(secrets map[string]string) Option {
	return func(c *Codec) {
		c.secrets = make(map[string]string, len(secrets))
		for k, v := range secrets {
			c.secrets[k] = v
		}
	}
}

// WithEnv replaces the environment lookup. A nil lookup disables it.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(c *Codec) {
		c.lookupEnv = lookup
	}
}

// New creates a codec bound to the given registry.
// Secrets fall back to os.LookupEnv unless WithEnv overrides it.
func New(registry *Registry, opts ...Option) *Codec {
	c := &Codec{
		registry:  registry,
		lookupEnv: os.LookupEnv,
		json:      jsoniter.ConfigCompatibleWithStandardLibrary,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the registry the codec resolves against.
func (c *Codec) Registry() *Registry {
	return c.registry
}

// Serialize encodes v as JSON text.
func (c *Codec) Serialize(v any) ([]byte, error) {
	return c.json.Marshal(c.Dump(v))
}

// Deserialize decodes JSON text and revives every node in it.
func (c *Codec) Deserialize(data []byte) (any, error) {
	var tree any
	if err := c.json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return c.Load(tree)
}

// Dump converts v into a JSON-compatible tree of maps, slices and scalars.
func (c *Codec) Dump(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case Serializable:
		if isNilPointer(x) {
			return nil
		}
		if !x.IsSerializable() {
			return c.notImplemented(v)
		}
		return c.Represent(x)
	case string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return x
	case float32:
		return c.dumpFloat(v, float64(x))
	case float64:
		return c.dumpFloat(v, x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case []byte:
		return x
	case encoding.TextMarshaler:
		if isNilPointer(x) {
			return nil
		}
		text, err := x.MarshalText()
		if err != nil {
			return c.notImplemented(v)
		}
		return string(text)
	case json.Marshaler:
		if isNilPointer(x) {
			return nil
		}
		raw, err := x.MarshalJSON()
		if err != nil {
			return c.notImplemented(v)
		}
		var tree any
		if err := c.json.Unmarshal(raw, &tree); err != nil {
			return c.notImplemented(v)
		}
		return tree
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return c.Dump(rv.Elem().Interface())
	case reflect.Struct:
		// Value receivers of pointer-implemented types take the constructor form.
		if reflect.PointerTo(rv.Type()).Implements(serializableType) {
			p := reflect.New(rv.Type())
			p.Elem().Set(rv)
			return c.Dump(p.Interface())
		}
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return c.notImplemented(v)
		}
		if rv.IsNil() {
			return nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = c.Dump(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = c.Dump(rv.Index(i).Interface())
		}
		return out
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return c.dumpFloat(v, rv.Float())
	}

	return c.notImplemented(v)
}

func (c *Codec) dumpFloat(v any, f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return c.notImplemented(v)
	}
	return f
}

// Represent returns the constructor node for s regardless of eligibility.
func (c *Codec) Represent(s Serializable) map[string]any {
	fields := c.fields(s)
	for k, v := range s.Attributes() {
		fields[k] = c.Dump(v)
	}
	replaceSecrets(fields, s.Secrets())

	return map[string]any{
		keyFormatVersion: FormatVersion,
		keyKind:          KindConstructor,
		keyTypeID:        copyID(s.TypeID()),
		keyFields:        fields,
	}
}

// Revive reconstructs a Serializable from its constructor node.
func (c *Codec) Revive(node map[string]any) (Serializable, error) {
	v, err := c.Load(node)
	if err != nil {
		return nil, err
	}
	s, ok := v.(Serializable)
	if !ok {
		return nil, fmt.Errorf("node revived to %T, not a serializable type", v)
	}
	return s, nil
}

// Load revives every node in tree, leaves first.
func (c *Codec) Load(tree any) (any, error) {
	switch x := tree.(type) {
	case map[string]any:
		revived := make(map[string]any, len(x))
		for k, v := range x {
			r, err := c.Load(v)
			if err != nil {
				return nil, err
			}
			revived[k] = r
		}
		if !isNode(revived) {
			return revived, nil
		}
		return c.revive(revived)
	case []any:
		out := make([]any, len(x))
		for i, v := range x {
			r, err := c.Load(v)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return tree, nil
	}
}

func (c *Codec) revive(node map[string]any) (any, error) {
	switch node[keyKind] {
	case KindSecret:
		id, _ := node[keySecretID].(string)
		return c.secret(id)
	case KindNotImplemented:
		return nil, notReconstructible(toID(node[keyTypeID]))
	case KindConstructor:
		id := toID(node[keyTypeID])
		obj, err := c.registry.Resolve(id)
		if err != nil {
			return nil, err
		}
		if d, ok := obj.(Defaulter); ok {
			if err := c.assign(obj, d.FieldDefaults()); err != nil {
				return nil, fmt.Errorf("construct %s: %w", strings.Join(id, "."), err)
			}
		}
		fields, _ := node[keyFields].(map[string]any)
		if err := c.assign(obj, fields); err != nil {
			return nil, fmt.Errorf("construct %s: %w", strings.Join(id, "."), err)
		}
		return obj, nil
	default:
		return node, nil
	}
}

func (c *Codec) secret(id string) (string, error) {
	if v, ok := c.secrets[id]; ok {
		return v, nil
	}
	if c.lookupEnv != nil {
		if v, ok := c.lookupEnv(id); ok && v != "" {
			return v, nil
		}
	}
	return "", missingSecret(id)
}

// fields collects the exported struct fields of s, skipping defaults.
func (c *Codec) fields(s Serializable) map[string]any {
	out := make(map[string]any)
	rv := reflect.ValueOf(s)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return out
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return out
	}

	var defaults map[string]any
	if d, ok := s.(Defaulter); ok {
		defaults = d.FieldDefaults()
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		name, ok := fieldName(rt.Field(i))
		if !ok {
			continue
		}
		fv := rv.Field(i)
		if def, has := defaults[name]; has && equalsDefault(fv, def) {
			continue
		}
		out[name] = c.Dump(fv.Interface())
	}
	return out
}

// assign sets fields on obj, which must be a pointer to a struct.
// Names without a matching field are computed attributes and are ignored.
func (c *Codec) assign(obj Serializable, fields map[string]any) error {
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return errors.New("factory must return a pointer to a struct")
	}
	rv = rv.Elem()

	index := make(map[string]int, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		if name, ok := fieldName(rv.Type().Field(i)); ok {
			index[name] = i
		}
	}

	for name, val := range fields {
		i, ok := index[name]
		if !ok {
			continue
		}
		fv := rv.Field(i)
		if val == nil {
			fv.Set(reflect.Zero(fv.Type()))
			continue
		}
		vv := reflect.ValueOf(val)
		if vv.Type().AssignableTo(fv.Type()) {
			fv.Set(vv)
			continue
		}
		if vv.Kind() == reflect.Pointer && !vv.IsNil() && vv.Elem().Type().AssignableTo(fv.Type()) {
			fv.Set(vv.Elem())
			continue
		}
		raw, err := c.json.Marshal(val)
		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		if err := c.json.Unmarshal(raw, fv.Addr().Interface()); err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
	}
	return nil
}

func (c *Codec) notImplemented(v any) map[string]any {
	return map[string]any{
		keyFormatVersion: FormatVersion,
		keyKind:          KindNotImplemented,
		keyTypeID:        typePath(v),
		keyTextRepr:      textRepr(v),
	}
}

// IsNode reports whether v is a tagged node of any kind.
func IsNode(v any) bool {
	m, ok := v.(map[string]any)
	return ok && isNode(m)
}

func isNode(m map[string]any) bool {
	if _, ok := m[keyFormatVersion]; !ok {
		return false
	}
	_, ok := m[keyKind].(string)
	return ok
}

func secretNode(id string) map[string]any {
	return map[string]any{
		keyFormatVersion: FormatVersion,
		keyKind:          KindSecret,
		keySecretID:      id,
	}
}

// replaceSecrets swaps every declared secret path present in fields for a
// secret node. Paths descend through nested maps and constructor fields.
func replaceSecrets(fields map[string]any, secrets map[string]string) {
	for path, id := range secrets {
		parts := strings.Split(path, ".")
		cur := fields
		for _, p := range parts[:len(parts)-1] {
			next, ok := cur[p].(map[string]any)
			if !ok {
				cur = nil
				break
			}
			if isNode(next) {
				if inner, ok := next[keyFields].(map[string]any); ok {
					next = inner
				}
			}
			cur = next
		}
		if cur == nil {
			continue
		}
		last := parts[len(parts)-1]
		if _, ok := cur[last]; ok {
			cur[last] = secretNode(id)
		}
	}
}

func fieldName(sf reflect.StructField) (string, bool) {
	if !sf.IsExported() || sf.Tag.Get("codec") == "-" {
		return "", false
	}
	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
	if name == "-" {
		return "", false
	}
	if name == "" {
		name = sf.Name
	}
	return name, true
}

// equalsDefault reports whether v equals def. When comparison is undefined
// for the value the field is treated as non-default.
func equalsDefault(v reflect.Value, def any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()

	if !v.Type().Comparable() {
		return false
	}
	dv := reflect.ValueOf(def)
	if !dv.IsValid() {
		switch v.Kind() {
		case reflect.Pointer, reflect.Interface:
			return v.IsNil()
		}
		return false
	}
	if dv.Type() != v.Type() {
		if !sameKindFamily(dv.Kind(), v.Kind()) || !dv.Type().ConvertibleTo(v.Type()) {
			return false
		}
		dv = dv.Convert(v.Type())
	}
	return v.Equal(dv)
}

func sameKindFamily(a, b reflect.Kind) bool {
	family := func(k reflect.Kind) int {
		switch k {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			return 1
		case reflect.String:
			return 2
		case reflect.Bool:
			return 3
		}
		return 0
	}
	fa := family(a)
	return fa != 0 && fa == family(b)
}

func typePath(v any) []string {
	if s, ok := v.(Serializable); ok && !isNilPointer(s) {
		if id := s.TypeID(); len(id) > 0 {
			return copyID(id)
		}
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" || t.Name() == "" {
		return []string{t.String()}
	}
	return append(strings.Split(t.PkgPath(), "/"), t.Name())
}

// textRepr describes v for a not_implemented node. Composite values are
// described by type only, since their contents may hold secrets.
func textRepr(v any) string {
	if _, ok := v.(Serializable); ok {
		return fmt.Sprintf("%T", v)
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array,
		reflect.Pointer, reflect.Interface:
		return fmt.Sprintf("%T", v)
	}
	return fmt.Sprintf("%#v", v)
}

func toID(v any) []string {
	switch x := v.(type) {
	case []string:
		return copyID(x)
	case []any:
		out := make([]string, 0, len(x))
		for _, p := range x {
			s, _ := p.(string)
			out = append(out, s)
		}
		return out
	}
	return nil
}

func copyID(id []string) []string {
	out := make([]string, len(id))
	copy(out, id)
	return out
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
