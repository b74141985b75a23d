package apispec

import (
	"encoding/json"
	"math"
	"os"

	"github.com/wasmbind/wasmbind/errors"
)

// rawBinding and friends mirror the JSON wire shape exactly, with pointer
// fields so that absent and present-but-empty can be told apart. Conversion
// into the typed representation happens in a separate, strict pass.
type rawBinding struct {
	Name  *string   `json:"name"`
	CName *string   `json:"cname"`
	Ret   *rawCType `json:"ret"`
	Args  []rawArg  `json:"args"`
}

type rawCType struct {
	Name *string `json:"name"`
	Tag  *string `json:"tag"`
}

type rawArg struct {
	Name *string    `json:"name"`
	Type *rawCType  `json:"type"`
	Len  *rawLength `json:"len"`
}

type rawLength struct {
	Proc       *string  `json:"proc"`
	Args       []string `json:"args"`
	Count      *string  `json:"count"`
	Components *int64   `json:"components"`
}

// ParseFile reads and parses an API spec file.
func ParseFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.IO(errors.PhaseParse, "read spec file", err)
	}
	return Parse(data)
}

// Parse decodes a JSON spec document: a top-level array of binding entries.
// Parsing is all-or-nothing; the first invalid entry fails the whole spec.
func Parse(data []byte) (*Spec, error) {
	var raw []rawBinding
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.BadJSON(err)
	}

	spec := &Spec{Bindings: make([]Binding, 0, len(raw))}
	seen := make(map[string]bool, len(raw))

	for i := range raw {
		b, err := convertBinding(&raw[i])
		if err != nil {
			return nil, err
		}
		if seen[b.Name] {
			return nil, errors.DuplicateBinding(b.Name)
		}
		seen[b.Name] = true
		spec.Bindings = append(spec.Bindings, *b)
	}

	return spec, nil
}

func convertBinding(raw *rawBinding) (*Binding, error) {
	if raw.Name == nil || *raw.Name == "" {
		return nil, errors.FieldMissing([]string{"bindings"}, "name")
	}
	name := *raw.Name
	path := []string{"bindings", name}

	if raw.CName == nil || *raw.CName == "" {
		return nil, errors.FieldMissing(path, "cname")
	}
	if raw.Ret == nil {
		return nil, errors.FieldMissing(path, "ret")
	}

	ret, err := convertCType(raw.Ret, append(path, "ret"))
	if err != nil {
		return nil, err
	}

	b := &Binding{
		Name:  name,
		CName: *raw.CName,
		Ret:   ret,
		Args:  make([]Arg, 0, len(raw.Args)),
	}

	argNames := make(map[string]bool, len(raw.Args))
	for i := range raw.Args {
		arg, err := convertArg(&raw.Args[i], path)
		if err != nil {
			return nil, err
		}
		argNames[arg.Name] = true
		b.Args = append(b.Args, arg)
	}

	// Count and proc strategies reference sibling arguments; resolve the
	// references now so a dangling name fails the parse, not a guest call.
	for i := range b.Args {
		if err := checkLengthRefs(b, &b.Args[i], argNames, path); err != nil {
			return nil, err
		}
	}

	return b, nil
}

func convertCType(raw *rawCType, path []string) (CType, error) {
	if raw.Tag == nil {
		return CType{}, errors.FieldMissing(path, "tag")
	}
	tag, err := TagFromString(*raw.Tag, append(path, "tag"))
	if err != nil {
		return CType{}, err
	}
	ct := CType{Tag: tag}
	if raw.Name != nil {
		ct.Name = *raw.Name
	}
	return ct, nil
}

func convertArg(raw *rawArg, bindingPath []string) (Arg, error) {
	if raw.Name == nil || *raw.Name == "" {
		return Arg{}, errors.FieldMissing(append(bindingPath, "args"), "name")
	}
	path := append(bindingPath, "args", *raw.Name)

	if raw.Type == nil {
		return Arg{}, errors.FieldMissing(path, "type")
	}
	typ, err := convertCType(raw.Type, append(path, "type"))
	if err != nil {
		return Arg{}, err
	}

	arg := Arg{Name: *raw.Name, Type: typ}
	if raw.Len != nil {
		l, err := convertLength(raw.Len, &arg, append(path, "len"))
		if err != nil {
			return Arg{}, err
		}
		arg.Len = l
	}
	return arg, nil
}

// convertLength resolves exactly one of proc, count or components. More than
// one is a spec error: the length-derivation strategy must be unambiguous.
func convertLength(raw *rawLength, arg *Arg, path []string) (*Length, error) {
	set := 0
	if raw.Proc != nil {
		set++
	}
	if raw.Count != nil {
		set++
	}
	if raw.Components != nil {
		set++
	}
	if set > 1 {
		return nil, errors.InvalidArgLength(path, "more than one of proc, count, components is set")
	}
	if set == 0 {
		return nil, errors.InvalidArgLength(path, "len must set one of proc, count, components")
	}

	switch {
	case raw.Proc != nil:
		if *raw.Proc == "" {
			return nil, errors.InvalidArgLength(path, "proc name is empty")
		}
		return &Length{Kind: LengthProc, Proc: *raw.Proc, ProcArgs: raw.Args}, nil

	case raw.Count != nil:
		if *raw.Count == "" {
			return nil, errors.InvalidArgLength(path, "count argument name is empty")
		}
		return &Length{Kind: LengthCount, CountArg: *raw.Count}, nil

	default:
		n := *raw.Components
		if n <= 0 {
			return nil, errors.InvalidArgLength(path, "components must be a positive integer")
		}
		if n > math.MaxUint32 {
			return nil, errors.InvalidArgLength(path, "components %d exceeds the 32-bit address space", n)
		}
		if _, ok := ElementSize(arg.Type.Name); !ok {
			return nil, errors.InvalidArgLength(path,
				"components needs a scalar pointee with a known size, got %q", arg.Type.Name)
		}
		return &Length{Kind: LengthComponents, Components: uint32(n)}, nil
	}
}

func checkLengthRefs(b *Binding, arg *Arg, argNames map[string]bool, bindingPath []string) error {
	if arg.Len == nil {
		return nil
	}
	path := append(bindingPath, "args", arg.Name, "len")

	switch arg.Len.Kind {
	case LengthCount:
		ref := b.lookupArg(arg.Len.CountArg)
		if ref == nil {
			return errors.InvalidArgLength(path, "count references unknown argument %q", arg.Len.CountArg)
		}
		if ref.Type.Tag != TagInt32 && ref.Type.Tag != TagInt64 {
			return errors.InvalidArgLength(path, "count argument %q must be an integer", arg.Len.CountArg)
		}
	case LengthProc:
		for _, name := range arg.Len.ProcArgs {
			if !argNames[name] {
				return errors.InvalidArgLength(path, "proc references unknown argument %q", name)
			}
		}
	}
	return nil
}

func (b *Binding) lookupArg(name string) *Arg {
	for i := range b.Args {
		if b.Args[i].Name == name {
			return &b.Args[i]
		}
	}
	return nil
}
