// Package rules evaluates zone test rules against device values.
//
// An Evaluator resolves each rule's device through a Registry, reads the
// relevant metric (level, or change for directional remote values) and applies
// the configured operator. Broken rules never abort an evaluation pass: they
// are reported through the error handler and count as non-matching.
package rules
