// Package errors provides structured error types for the wasmbind library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type carries a field path into the offending spec
// entry, the offending value, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseParse, errors.KindUnknownTag).
//		Path("bindings", "oc_write_region", "ret", "tag").
//		Value("x").
//		Detail("tag must be one of i, I, f, F, S").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.UnknownTag(path, "x")
//	err := errors.OutOfBounds("oc_write_region", "ptr", 1000, 50, 1024)
//
// All errors implement the standard error interface and support errors.Is,
// which matches on Phase and Kind.
package errors
