package atproto

import (
	"errors"
	"fmt"
	"strings"
)

const scheme = "at://"

var (
	// ErrMalformedLocator is returned for input that is not an at:// record locator.
	ErrMalformedLocator = errors.New("invalid URI format")

	// ErrWrongCollection is returned for a well-formed locator that does not
	// address an app.bsky.graph.list record.
	ErrWrongCollection = errors.New("invalid collection in URI")
)

// Locator addresses a single record: at://<authority>/<collection>/<rkey>.
type Locator struct {
	Authority  Authority
	Collection NSID
	RecordKey  string
}

// NewLocator builds a locator from already validated parts.
func NewLocator(authority Authority, collection NSID, rkey string) Locator {
	return Locator{Authority: authority, Collection: collection, RecordKey: rkey}
}

// String renders the canonical at:// form.
func (l Locator) String() string {
	var authority string
	if l.Authority != nil {
		authority = l.Authority.String()
	}
	return scheme + authority + "/" + string(l.Collection) + "/" + l.RecordKey
}

// ParseLocator decomposes an at:// record locator. Query strings, fragments,
// and locators that stop at the repo or collection level are rejected.
func ParseLocator(s string) (Locator, error) {
	rest, ok := strings.CutPrefix(s, scheme)
	if !ok {
		return Locator{}, fmt.Errorf("%w: missing %s scheme", ErrMalformedLocator, scheme)
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 3 {
		return Locator{}, fmt.Errorf("%w: expected authority/collection/rkey, got %d segments",
			ErrMalformedLocator, len(parts))
	}

	authority, err := ParseAuthority(parts[0])
	if err != nil {
		return Locator{}, err
	}
	collection, err := ParseNSID(parts[1])
	if err != nil {
		return Locator{}, err
	}
	rkey, err := ParseRecordKey(parts[2])
	if err != nil {
		return Locator{}, err
	}

	return Locator{Authority: authority, Collection: collection, RecordKey: rkey}, nil
}

// ParseListLocator is ParseLocator restricted to app.bsky.graph.list records.
func ParseListLocator(s string) (Locator, error) {
	loc, err := ParseLocator(s)
	if err != nil {
		return Locator{}, err
	}
	if loc.Collection != CollectionList {
		return Locator{}, fmt.Errorf("%w: %s", ErrWrongCollection, loc.Collection)
	}
	return loc, nil
}
