// Package keystore is the durable string-keyed storage layer backing account
// records and session recovery flags. The device keeps very little: a handful
// of keys, each a small JSON or plain-string value, written through
// synchronously on every mutation.
//
// The only shipped implementation is Redis-backed ([RedisStore]); callers that
// need a different medium implement [Store].
package keystore
