// Package thermal implements the per-zone thermal response model: a
// first-order fit of how indoor temperature reacts to heating level and
// outdoor temperature. Parameters are learned from retained observation
// history and fall back to conservative defaults when the data is too thin
// to trust.
package thermal
