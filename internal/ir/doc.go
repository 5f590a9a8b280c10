// Package ir provides the constrained value types shared by the query model,
// the FetchXML compiler and the record layer.
//
// This package contains value definitions only. All other internal packages
// may import ir; ir imports nothing internal. This keeps it the foundational
// layer with no circular dependencies.
//
// Key design constraints:
//   - IRValue is a sealed interface; only the types in this package implement it
//   - Scalars are string, int64, decimal, bool and GUID; lists hold scalars
//   - Decimals must be finite (NaN and Inf are rejected at conversion)
//   - FormatScalar is the single rendering rule for values placed on the wire
//   - MarshalCanonical is the single serialization used for fingerprints
package ir
