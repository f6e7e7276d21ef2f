// Package event holds the storage-facing view of a Nostr event.
//
// Events themselves are go-nostr values; this package adds the rules the
// store needs around them:
//   - Kind classification (regular, replaceable, addressable, ephemeral)
//   - Replacement keys and the addressable "d" identifier
//   - The tags column codec and the indexed-tag projection
//   - Structural and cryptographic validation
//
// Nothing in here touches the database. Every function is pure so the rules
// can be tested without a store.
package event
