// Package blacklist stores revoked access tokens until their own expiry.
//
// An entry lives exactly as long as the token it revokes: the TTL is the
// token's exp minus now, never a fixed window. Reads check the stored expiry
// as well as key presence, so an entry is never honoured after exp even if the
// backend is late to evict it.
//
// Two backends are provided. [Redis] relies on native key expiry. [Memory]
// has no native expiry and runs a sweep that removes entries at or after
// their expiry, never before.
package blacklist
