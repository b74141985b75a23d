package bindgen

import (
	"fmt"
	"go/format"
	"strings"

	"github.com/wasmbind/wasmbind/apispec"
	"github.com/wasmbind/wasmbind/errors"
)

const modulePath = "github.com/wasmbind/wasmbind"

// EmitHost renders the host-side Go registration unit for the spec.
func EmitHost(spec *apispec.Spec, apiName string) ([]byte, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "// Code generated by bindgen --api-name=%s. DO NOT EDIT.\n\n", apiName)
	fmt.Fprintf(&b, "package %s\n\n", goPackageName(apiName))

	procs := lengthProcs(spec)

	b.WriteString("import (\n")
	b.WriteString("\t\"context\"\n\n")
	if len(procs) > 0 {
		fmt.Fprintf(&b, "\twasmbind %q\n", modulePath)
	}
	fmt.Fprintf(&b, "\t%q\n", modulePath+"/apispec")
	fmt.Fprintf(&b, "\t%q\n", modulePath+"/dispatch")
	b.WriteString(")\n\n")

	emitInterface(&b, spec, apiName, procs)
	emitSpecLiteral(&b, spec)
	emitRegister(&b, spec, apiName, procs)

	src, err := format.Source([]byte(b.String()))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseGenerate, errors.KindInvalidInput, err,
			"generated host unit does not parse")
	}
	return src, nil
}

// lengthProcs returns the unique length proc names in first-use order.
func lengthProcs(spec *apispec.Spec) []string {
	var names []string
	seen := make(map[string]bool)
	for i := range spec.Bindings {
		for j := range spec.Bindings[i].Args {
			l := spec.Bindings[i].Args[j].Len
			if l != nil && l.Kind == apispec.LengthProc && !seen[l.Proc] {
				seen[l.Proc] = true
				names = append(names, l.Proc)
			}
		}
	}
	return names
}

func emitInterface(b *strings.Builder, spec *apispec.Spec, apiName string, procs []string) {
	fmt.Fprintf(b, "// API is implemented by the host to back the %s bindings.\n", apiName)
	b.WriteString("// Buffer arguments are validated against guest memory before a method\n")
	b.WriteString("// runs and alias guest memory only for the duration of the call.\n")
	b.WriteString("// Aggregate-returning methods write their result through\n")
	b.WriteString("// call.StructReturn().\n")
	b.WriteString("type API interface {\n")

	for i := range spec.Bindings {
		decl := &spec.Bindings[i]
		fmt.Fprintf(b, "\t// %s handles the %q import.\n", toPascalCase(decl.CName), decl.Name)
		fmt.Fprintf(b, "\t%s(ctx context.Context, call *dispatch.Call%s) %s\n",
			toPascalCase(decl.CName), methodParams(decl), methodResults(decl))
	}

	for _, proc := range procs {
		fmt.Fprintf(b, "\n\t// %s computes the byte length declared by the %q proc.\n",
			toPascalCase(proc), proc)
		fmt.Fprintf(b, "\t%s(ctx context.Context, mem wasmbind.Memory, args []uint64) (uint32, error)\n",
			toPascalCase(proc))
	}

	b.WriteString("}\n\n")
}

func methodParams(decl *apispec.Binding) string {
	var b strings.Builder
	for i := range decl.Args {
		arg := &decl.Args[i]
		fmt.Fprintf(&b, ", %s %s", goParamName(arg.Name), goArgType(arg))
	}
	return b.String()
}

func methodResults(decl *apispec.Binding) string {
	if decl.Ret.Tag == apispec.TagStruct {
		return "error"
	}
	return fmt.Sprintf("(%s, error)", goScalarType(decl.Ret.Tag))
}

func goArgType(arg *apispec.Arg) string {
	if arg.Len != nil {
		return "[]byte"
	}
	if arg.Type.Tag == apispec.TagStruct {
		return "dispatch.StructRef"
	}
	return goScalarType(arg.Type.Tag)
}

func goScalarType(tag apispec.Tag) string {
	switch tag {
	case apispec.TagInt64:
		return "int64"
	case apispec.TagFloat32:
		return "float32"
	case apispec.TagFloat64:
		return "float64"
	default:
		return "int32"
	}
}

func emitSpecLiteral(b *strings.Builder, spec *apispec.Spec) {
	b.WriteString("// Spec returns the binding declarations this unit was generated from.\n")
	b.WriteString("func Spec() *apispec.Spec {\n")
	b.WriteString("\treturn &apispec.Spec{Bindings: []apispec.Binding{\n")

	for i := range spec.Bindings {
		decl := &spec.Bindings[i]
		b.WriteString("\t\t{\n")
		fmt.Fprintf(b, "\t\t\tName:  %q,\n", decl.Name)
		fmt.Fprintf(b, "\t\t\tCName: %q,\n", decl.CName)
		fmt.Fprintf(b, "\t\t\tRet:   %s,\n", ctypeLiteral(decl.Ret))
		if len(decl.Args) > 0 {
			b.WriteString("\t\t\tArgs: []apispec.Arg{\n")
			for j := range decl.Args {
				arg := &decl.Args[j]
				fmt.Fprintf(b, "\t\t\t\t{Name: %q, Type: %s%s},\n",
					arg.Name, ctypeLiteral(arg.Type), lengthLiteral(arg.Len))
			}
			b.WriteString("\t\t\t},\n")
		}
		b.WriteString("\t\t},\n")
	}

	b.WriteString("\t}}\n")
	b.WriteString("}\n\n")
}

func ctypeLiteral(t apispec.CType) string {
	return fmt.Sprintf("apispec.CType{Name: %q, Tag: %s}", t.Name, tagLiteral(t.Tag))
}

func tagLiteral(t apispec.Tag) string {
	switch t {
	case apispec.TagInt32:
		return "apispec.TagInt32"
	case apispec.TagInt64:
		return "apispec.TagInt64"
	case apispec.TagFloat32:
		return "apispec.TagFloat32"
	case apispec.TagFloat64:
		return "apispec.TagFloat64"
	default:
		return "apispec.TagStruct"
	}
}

func lengthLiteral(l *apispec.Length) string {
	if l == nil {
		return ""
	}
	switch l.Kind {
	case apispec.LengthProc:
		args := "nil"
		if len(l.ProcArgs) > 0 {
			quoted := make([]string, len(l.ProcArgs))
			for i, a := range l.ProcArgs {
				quoted[i] = fmt.Sprintf("%q", a)
			}
			args = "[]string{" + strings.Join(quoted, ", ") + "}"
		}
		return fmt.Sprintf(", Len: &apispec.Length{Kind: apispec.LengthProc, Proc: %q, ProcArgs: %s}", l.Proc, args)
	case apispec.LengthCount:
		return fmt.Sprintf(", Len: &apispec.Length{Kind: apispec.LengthCount, CountArg: %q}", l.CountArg)
	default:
		return fmt.Sprintf(", Len: &apispec.Length{Kind: apispec.LengthComponents, Components: %d}", l.Components)
	}
}

func emitRegister(b *strings.Builder, spec *apispec.Spec, apiName string, procs []string) {
	fmt.Fprintf(b, "// Register binds every %s trampoline against host.\n", apiName)
	b.WriteString("func Register(reg *dispatch.Registry, host API) error {\n")
	b.WriteString("\ttable := dispatch.NewHostTable()\n")

	for i := range spec.Bindings {
		decl := &spec.Bindings[i]
		fmt.Fprintf(b, "\tif err := table.RegisterFunc(%q, func(ctx context.Context, call *dispatch.Call) error {\n", decl.CName)
		emitTrampolineBody(b, decl)
		b.WriteString("\t}); err != nil {\n\t\treturn err\n\t}\n")
	}

	for _, proc := range procs {
		fmt.Fprintf(b, "\tif err := table.RegisterLengthProc(%q, host.%s); err != nil {\n\t\treturn err\n\t}\n",
			proc, toPascalCase(proc))
	}

	b.WriteString("\treturn reg.Bind(Spec(), table)\n")
	b.WriteString("}\n")
}

// emitTrampolineBody lowers the raw call into natively-typed arguments,
// invokes the host method, and marshals the result back.
func emitTrampolineBody(b *strings.Builder, decl *apispec.Binding) {
	args := make([]string, 0, len(decl.Args))
	for i := range decl.Args {
		args = append(args, argAccessor(&decl.Args[i], i))
	}
	callExpr := fmt.Sprintf("host.%s(ctx, call%s)", toPascalCase(decl.CName), joinArgs(args))

	if decl.Ret.Tag == apispec.TagStruct {
		fmt.Fprintf(b, "\t\treturn %s\n", callExpr)
		return
	}

	fmt.Fprintf(b, "\t\tret, err := %s\n", callExpr)
	b.WriteString("\t\tif err != nil {\n\t\t\treturn err\n\t\t}\n")
	fmt.Fprintf(b, "\t\tcall.%s(ret)\n", returnSetter(decl.Ret.Tag))
	b.WriteString("\t\treturn nil\n")
}

func joinArgs(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return ", " + strings.Join(args, ", ")
}

func argAccessor(arg *apispec.Arg, i int) string {
	if arg.Len != nil {
		return fmt.Sprintf("call.Bytes(%d)", i)
	}
	if arg.Type.Tag == apispec.TagStruct {
		return fmt.Sprintf("call.StructArg(%d)", i)
	}
	switch arg.Type.Tag {
	case apispec.TagInt64:
		return fmt.Sprintf("call.I64(%d)", i)
	case apispec.TagFloat32:
		return fmt.Sprintf("call.F32(%d)", i)
	case apispec.TagFloat64:
		return fmt.Sprintf("call.F64(%d)", i)
	default:
		return fmt.Sprintf("call.I32(%d)", i)
	}
}

func returnSetter(tag apispec.Tag) string {
	switch tag {
	case apispec.TagInt64:
		return "ReturnI64"
	case apispec.TagFloat32:
		return "ReturnF32"
	case apispec.TagFloat64:
		return "ReturnF64"
	default:
		return "ReturnI32"
	}
}
