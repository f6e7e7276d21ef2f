// Package filter defines the subscription filter the store answers.
//
// A Filter is the NIP-01 REQ filter extended with two things the node's
// clients rely on: "&x" tag keys, which require every listed value to be
// present (the "#x" form needs any one of them), and an "order" hint that
// chooses between search rank and recency when "search" is used.
//
// Filters arrive as JSON from callers, so decoding is strict about the shape
// of the keys it understands and silent about keys it does not.
package filter
