package atproto

import (
	"fmt"
	"regexp"
	"strings"
)

// Collections this service reads.
const (
	CollectionList     NSID = "app.bsky.graph.list"
	CollectionListItem NSID = "app.bsky.graph.listitem"
)

const (
	maxHandleLen    = 253
	maxDIDLen       = 2048
	maxNSIDLen      = 317
	maxRecordKeyLen = 512
)

var (
	handleRegex    = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)
	didRegex       = regexp.MustCompile(`^did:[a-z]+:[a-zA-Z0-9._:%-]*[a-zA-Z0-9._-]$`)
	nsidRegex      = regexp.MustCompile(`^[a-zA-Z]([a-zA-Z0-9-]{0,62}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,62}[a-zA-Z0-9])?)+\.[a-zA-Z][a-zA-Z0-9]{0,62}$`)
	recordKeyRegex = regexp.MustCompile(`^[a-zA-Z0-9_~.:-]{1,512}$`)
)

// Authority is the repo segment of a locator. It is either a Handle or a DID;
// callers switch on the concrete type.
type Authority interface {
	fmt.Stringer
	isAuthority()
}

// Handle is a human-readable, mutable account name such as "alice.bsky.social".
type Handle string

// DID is a stable decentralized identifier such as "did:plc:abc123".
type DID string

// NSID is a namespaced collection identifier such as "app.bsky.graph.list".
type NSID string

func (h Handle) String() string { return string(h) }

func (Handle) isAuthority() {}

func (d DID) String() string { return string(d) }

func (DID) isAuthority() {}

func (n NSID) String() string { return string(n) }

// ParseHandle validates a handle and normalizes it to lower case.
func ParseHandle(s string) (Handle, error) {
	if len(s) > maxHandleLen || !handleRegex.MatchString(s) {
		return "", fmt.Errorf("%w: bad handle %q", ErrMalformedLocator, s)
	}
	return Handle(strings.ToLower(s)), nil
}

// ParseDID validates a DID.
func ParseDID(s string) (DID, error) {
	if len(s) > maxDIDLen || !didRegex.MatchString(s) {
		return "", fmt.Errorf("%w: bad did %q", ErrMalformedLocator, s)
	}
	return DID(s), nil
}

// ParseAuthority picks the DID grammar for "did:" prefixed input and the
// handle grammar for everything else.
func ParseAuthority(s string) (Authority, error) {
	if strings.HasPrefix(s, "did:") {
		return ParseDID(s)
	}
	return ParseHandle(s)
}

// ParseNSID validates a collection NSID.
func ParseNSID(s string) (NSID, error) {
	if len(s) > maxNSIDLen || !nsidRegex.MatchString(s) {
		return "", fmt.Errorf("%w: bad collection %q", ErrMalformedLocator, s)
	}
	return NSID(s), nil
}

// ParseRecordKey validates a record key.
func ParseRecordKey(s string) (string, error) {
	if len(s) > maxRecordKeyLen || s == "." || s == ".." || !recordKeyRegex.MatchString(s) {
		return "", fmt.Errorf("%w: bad record key %q", ErrMalformedLocator, s)
	}
	return s, nil
}
