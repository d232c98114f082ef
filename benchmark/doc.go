// Package benchmark serves pre-compiled startup benchmark reports behind a
// short-lived Redis cache. Report compilation itself lives upstream; this
// package only caches and serves.
package benchmark
