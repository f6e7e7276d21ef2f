package event

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

var (
	ErrMalformed    = errors.New("malformed event")
	ErrIDMismatch   = errors.New("event id does not match its content")
	ErrBadSignature = errors.New("invalid event signature")
)

// CheckShape verifies the fields the store depends on: a 32-byte hex id and
// pubkey, a non-negative kind and non-empty tag arrays.
func CheckShape(evt *nostr.Event) error {
	if !isHex32(evt.ID) {
		return fmt.Errorf("%w: id %q is not 64-char hex", ErrMalformed, evt.ID)
	}
	if !isHex32(evt.PubKey) {
		return fmt.Errorf("%w: pubkey %q is not 64-char hex", ErrMalformed, evt.PubKey)
	}
	if evt.Kind < 0 {
		return fmt.Errorf("%w: negative kind %d", ErrMalformed, evt.Kind)
	}
	for i, tag := range evt.Tags {
		if len(tag) == 0 {
			return fmt.Errorf("%w: tag %d is empty", ErrMalformed, i)
		}
	}
	return nil
}

// Verify checks shape, id and signature. The store itself never calls it;
// loaders decide whether untrusted input needs verification.
func Verify(evt *nostr.Event) error {
	if err := CheckShape(evt); err != nil {
		return err
	}
	if evt.GetID() != evt.ID {
		return fmt.Errorf("%w: %s", ErrIDMismatch, evt.ID)
	}
	ok, err := evt.CheckSignature()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrBadSignature, evt.ID)
	}
	return nil
}

func isHex32(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
