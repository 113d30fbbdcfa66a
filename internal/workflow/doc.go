// Package workflow owns the named-step model lab commands are built from.
//
// Ownership boundary:
// - workflow metadata shape
// - step selection and sequential execution
// - workflow registry primitives
package workflow
