// Package samples persists the latest network snapshot and the rolling list of
// measurement samples as a single JSON record in a storage.KV.
//
// Every mutation is a read-modify-write of the whole record, serialized by a
// mutex inside Store. Retention limits are applied on each write.
package samples
