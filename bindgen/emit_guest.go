package bindgen

import (
	"fmt"
	"strings"

	"github.com/wasmbind/wasmbind/apispec"
)

// EmitGuestStubs renders the guest-side C stubs for the spec. Scalar-only
// bindings are plain extern declarations carrying the import attributes; the
// import itself is the native-looking function. Bindings that pass or return
// aggregates get a raw import plus a wrapper that hides the pointer
// indirection, so guest application code keeps a by-value signature.
func EmitGuestStubs(spec *apispec.Spec, apiName, includePath string) ([]byte, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "// Code generated by bindgen --api-name=%s. DO NOT EDIT.\n\n", apiName)
	if includePath != "" {
		fmt.Fprintf(&b, "#include\"%s\"\n\n", includePath)
	}

	for i := range spec.Bindings {
		if i > 0 {
			b.WriteString("\n")
		}
		emitGuestBinding(&b, &spec.Bindings[i], apiName)
	}

	return []byte(b.String()), nil
}

func emitGuestBinding(b *strings.Builder, decl *apispec.Binding, apiName string) {
	if !decl.NeedsArgPtrStub() {
		fmt.Fprintf(b, "__attribute__((import_module(\"%s\"), import_name(\"%s\")))\n", apiName, decl.Name)
		fmt.Fprintf(b, "%s %s(%s);\n", cTypeName(decl.Ret), decl.Name, nativeParams(decl))
		return
	}

	// Raw import: struct return becomes a leading out-pointer, struct
	// arguments become pointers. The wrapper below restores the native
	// by-value signature.
	rawName := fmt.Sprintf("__%s_argptr", decl.Name)
	fmt.Fprintf(b, "__attribute__((import_module(\"%s\"), import_name(\"%s\")))\n", apiName, decl.Name)
	fmt.Fprintf(b, "%s %s(%s);\n\n", rawReturn(decl), rawName, rawParams(decl))

	fmt.Fprintf(b, "%s %s(%s)\n", cTypeName(decl.Ret), decl.Name, nativeParams(decl))
	b.WriteString("{\n")

	callArgs := make([]string, 0, len(decl.Args)+1)
	if decl.Ret.Tag == apispec.TagStruct {
		fmt.Fprintf(b, "\t%s __ret;\n", cTypeName(decl.Ret))
		callArgs = append(callArgs, "&__ret")
	}
	for i := range decl.Args {
		arg := &decl.Args[i]
		if arg.Type.Tag == apispec.TagStruct {
			callArgs = append(callArgs, "&"+arg.Name)
		} else {
			callArgs = append(callArgs, arg.Name)
		}
	}

	if decl.Ret.Tag == apispec.TagStruct {
		fmt.Fprintf(b, "\t%s(%s);\n", rawName, strings.Join(callArgs, ", "))
		b.WriteString("\treturn(__ret);\n")
	} else {
		fmt.Fprintf(b, "\treturn(%s(%s));\n", rawName, strings.Join(callArgs, ", "))
	}
	b.WriteString("}\n")
}

// nativeParams renders the by-value signature guest code sees.
func nativeParams(decl *apispec.Binding) string {
	if len(decl.Args) == 0 {
		return "void"
	}
	parts := make([]string, len(decl.Args))
	for i := range decl.Args {
		arg := &decl.Args[i]
		parts[i] = fmt.Sprintf("%s %s", cTypeName(arg.Type), arg.Name)
	}
	return strings.Join(parts, ", ")
}

// rawParams renders the import-level signature: aggregates by pointer, with
// the return slot prepended when the return type is an aggregate.
func rawParams(decl *apispec.Binding) string {
	var parts []string
	if decl.Ret.Tag == apispec.TagStruct {
		parts = append(parts, fmt.Sprintf("%s* __ret", cTypeName(decl.Ret)))
	}
	for i := range decl.Args {
		arg := &decl.Args[i]
		if arg.Type.Tag == apispec.TagStruct {
			parts = append(parts, fmt.Sprintf("%s* %s", cTypeName(arg.Type), arg.Name))
		} else {
			parts = append(parts, fmt.Sprintf("%s %s", cTypeName(arg.Type), arg.Name))
		}
	}
	if len(parts) == 0 {
		return "void"
	}
	return strings.Join(parts, ", ")
}

func rawReturn(decl *apispec.Binding) string {
	if decl.Ret.Tag == apispec.TagStruct {
		return "void"
	}
	return cTypeName(decl.Ret)
}

// cTypeName falls back to the WASM value type when the spec omits a native
// name.
func cTypeName(t apispec.CType) string {
	if t.Name != "" {
		return t.Name
	}
	switch t.Tag {
	case apispec.TagInt64:
		return "long long"
	case apispec.TagFloat32:
		return "float"
	case apispec.TagFloat64:
		return "double"
	default:
		return "int"
	}
}
