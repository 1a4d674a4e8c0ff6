// Package bcs implements Binary Canonical Serialization, the encoding Sui and the Seal key
// servers use for signed messages, transactions and key-server payloads.
//
// Encoding rules:
//   - unsigned and signed integers are little-endian with their declared width
//   - bool is one byte, 0 or 1
//   - strings and []byte are a ULEB128 length followed by the raw bytes
//   - slices are a ULEB128 length followed by each element
//   - arrays and structs are their elements/fields in order, with no prefix
//   - pointers are Option<T>: a 0 tag for nil, or a 1 tag followed by the value
//
// Enums and other hand-laid-out types implement Marshaler and Unmarshaler.
// Struct fields tagged `bcs:"-"` are skipped.
package bcs
