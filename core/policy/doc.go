// Package policy holds the passes applied to a merged schedule after solving:
// the priority zero bump cascade, periodic maintenance insertion and the
// overlap checks guarding what gets persisted.
package policy
