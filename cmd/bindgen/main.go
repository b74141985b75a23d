// Command bindgen generates host-side Go bindings and guest-side C stubs
// from an API spec JSON document.
//
// Usage:
//
//	bindgen --api-name surface_api --spec-path api.json \
//	        --bindings-path bindings_gen.go \
//	        --guest-stubs-path stubs.c --guest-include-path graphics.h
//
// On success both outputs are written atomically and the process exits 0.
// On any failure nothing is written and the process exits nonzero with the
// reason on stderr.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/wasmbind/wasmbind/bindgen"
)

func main() {
	var opts bindgen.Options
	flag.StringVar(&opts.APIName, "api-name", "", "Import module name guests link against")
	flag.StringVar(&opts.SpecPath, "spec-path", "", "Path to the API spec JSON file")
	flag.StringVar(&opts.BindingsPath, "bindings-path", "", "Host-side Go output file")
	flag.StringVar(&opts.GuestStubsPath, "guest-stubs-path", "", "Guest-side C stubs output file (optional)")
	flag.StringVar(&opts.GuestIncludePath, "guest-include-path", "", "Header to #include at the top of the guest stubs (optional)")
	flag.Parse()

	if err := bindgen.Generate(opts); err != nil {
		fmt.Fprintf(os.Stderr, "bindgen: %v\n", err)
		os.Exit(1)
	}
}
