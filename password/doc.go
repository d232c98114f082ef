// Package password implements password hashing and verification with
// bcrypt at a fixed work factor.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. It never stores or
// retrieves credentials, and it must not import any other authcore
// package.
package password
