package distro

import (
	"fmt"
	"sort"
	"strings"
)

// Default is the guest distribution used when none is configured.
const Default = Fedora

// providers is filled by init functions only and read-only afterwards.
var providers = map[ID]Provider{}

// Register makes p available under its ID. It panics on a duplicate ID and
// must only be called from init.
func Register(p Provider) {
	if _, dup := providers[p.ID()]; dup {
		panic(fmt.Sprintf("distro: provider %q registered twice", p.ID()))
	}
	providers[p.ID()] = p
}

// Get returns the provider registered under id.
func Get(id ID) (Provider, error) {
	if p, ok := providers[id]; ok {
		return p, nil
	}
	return nil, &ErrUnknownDistro{ID: id}
}

// ParseID turns a configured name into a registered ID. Case and
// surrounding blanks are ignored.
func ParseID(s string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := providers[id]; !ok {
		return "", &ErrUnknownDistro{ID: ID(s)}
	}
	return id, nil
}

// Lookup parses s and returns its provider.
func Lookup(s string) (Provider, error) {
	id, err := ParseID(s)
	if err != nil {
		return nil, err
	}
	return Get(id)
}

// List returns the registered IDs, sorted.
func List() []ID {
	ids := make([]ID, 0, len(providers))
	for id := range providers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Providers returns the registered providers ordered by ID.
func Providers() []Provider {
	ids := List()
	out := make([]Provider, len(ids))
	for i, id := range ids {
		out[i] = providers[id]
	}
	return out
}

// ErrUnknownDistro reports a distribution with no registered provider.
type ErrUnknownDistro struct {
	ID ID
}

func (e *ErrUnknownDistro) Error() string {
	return fmt.Sprintf("unknown guest distribution %q, available: %v", e.ID, List())
}
