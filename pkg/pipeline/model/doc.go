// Package model holds the types shared by the pipeline and its options:
// the step handles passed between stages and the hooks an option can implement.
package model
