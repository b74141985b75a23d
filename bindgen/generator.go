package bindgen

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/wasmbind/wasmbind/apispec"
	"github.com/wasmbind/wasmbind/errors"
)

// Options configures one generator invocation.
type Options struct {
	// APIName is the import module name guests link against, e.g.
	// "surface_api". It also names the generated Go package.
	APIName string
	// SpecPath is the JSON spec file to read.
	SpecPath string
	// BindingsPath is the host-side Go output file.
	BindingsPath string
	// GuestStubsPath, when set, is the guest-side C output file.
	GuestStubsPath string
	// GuestIncludePath, when set, is a header included at the top of the
	// guest stubs (type definitions for aggregates, handle typedefs).
	GuestIncludePath string
}

func (o *Options) validate() error {
	if o.APIName == "" {
		return errors.InvalidInput(errors.PhaseGenerate, "api name is required")
	}
	if o.SpecPath == "" {
		return errors.InvalidInput(errors.PhaseGenerate, "spec path is required")
	}
	if o.BindingsPath == "" {
		return errors.InvalidInput(errors.PhaseGenerate, "bindings output path is required")
	}
	return nil
}

// Generate runs the full transform: parse the spec, emit every requested
// unit in memory, then write the outputs atomically. If anything fails, no
// output file is created or overwritten.
func Generate(opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}

	spec, err := apispec.ParseFile(opts.SpecPath)
	if err != nil {
		return err
	}

	host, err := EmitHost(spec, opts.APIName)
	if err != nil {
		return err
	}

	outputs := []output{{path: opts.BindingsPath, data: host}}

	if opts.GuestStubsPath != "" {
		stubs, err := EmitGuestStubs(spec, opts.APIName, opts.GuestIncludePath)
		if err != nil {
			return err
		}
		outputs = append(outputs, output{path: opts.GuestStubsPath, data: stubs})
	}

	return writeAtomic(outputs)
}

type output struct {
	path string
	data []byte
}

// writeAtomic stages every output as a temp file in its target directory and
// renames them into place only once all of them are staged. A failure at any
// point removes the staged files and leaves existing outputs untouched.
func writeAtomic(outputs []output) error {
	staged := make([]string, 0, len(outputs))
	cleanup := func() {
		for _, tmp := range staged {
			_ = os.Remove(tmp)
		}
	}

	for _, out := range outputs {
		tmp, err := os.CreateTemp(filepath.Dir(out.path), "."+filepath.Base(out.path)+".tmp*")
		if err != nil {
			cleanup()
			return errors.IO(errors.PhaseGenerate, "stage output file", err)
		}
		staged = append(staged, tmp.Name())

		if _, err := tmp.Write(out.data); err != nil {
			tmp.Close()
			cleanup()
			return errors.IO(errors.PhaseGenerate, "write output file", err)
		}
		if err := tmp.Close(); err != nil {
			cleanup()
			return errors.IO(errors.PhaseGenerate, "close output file", err)
		}
	}

	for i, out := range outputs {
		if err := os.Rename(staged[i], out.path); err != nil {
			cleanup()
			return errors.IO(errors.PhaseGenerate, "publish output file", err)
		}
	}
	return nil
}

// goPackageName derives a valid Go package name from the api name.
func goPackageName(apiName string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(apiName) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 || unicode.IsDigit(rune(b.String()[0])) {
		return "bindings"
	}
	return b.String()
}

// toPascalCase converts snake_case to PascalCase: oc_write_region ->
// OcWriteRegion.
func toPascalCase(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		if r == '_' || r == '-' {
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// goKeywords are identifiers that need renaming when a spec argument name
// collides with them.
var goKeywords = map[string]bool{
	"break": true, "case": true, "chan": true, "const": true, "continue": true,
	"default": true, "defer": true, "else": true, "fallthrough": true,
	"for": true, "func": true, "go": true, "goto": true, "if": true,
	"import": true, "interface": true, "map": true, "package": true,
	"range": true, "return": true, "select": true, "struct": true,
	"switch": true, "type": true, "var": true,
	// predeclared names commonly used as spec arg names
	"len": true, "cap": true, "new": true, "make": true, "copy": true,
}

func goParamName(name string) string {
	if goKeywords[name] {
		return name + "_"
	}
	return name
}
