// Package zstd wraps github.com/DataDog/zstd and github.com/klauspost/compress/zstd
// behind a single API. It uses DataDog/zstd (cgo, libzstd) in cgo builds and
// klauspost/compress/zstd (pure Go) otherwise, so the storage engine's zstd
// value compression works the same way regardless of build mode.
package zstd
