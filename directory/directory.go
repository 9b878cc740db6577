// Package directory provides the account lookups used to enrich an
// authenticated session: user records, group membership and the identity of
// the process owner.
package directory

import (
	"context"
	"errors"
	"fmt"
	"os/user"
	"strings"
)

// ErrNotFound is returned when an account does not exist.
var ErrNotFound = errors.New("directory: account not found")

// Account names the principal to look up.
type Account struct {
	// User is the account name without the domain.
	User string

	// Domain is the NetBIOS domain or Kerberos realm, if any.
	Domain string

	// SID is the security identifier, if known.
	SID string
}

// String returns DOMAIN\user, or the bare user when there is no domain.
func (a Account) String() string {
	if a.Domain == "" {
		return a.User
	}
	return a.Domain + `\` + a.User
}

// User is a directory record.
type User struct {
	Name     string `json:"name"`
	FullName string `json:"full_name,omitempty"`
	UID      string `json:"uid,omitempty"`
	GID      string `json:"gid,omitempty"`
	HomeDir  string `json:"home_dir,omitempty"`
	SID      string `json:"sid,omitempty"`
}

// UserLookup returns the directory record of an account.
type UserLookup interface {
	LookupUser(ctx context.Context, acct Account) (*User, error)
}

// GroupLookup returns the group names of an account.
type GroupLookup interface {
	LookupGroups(ctx context.Context, acct Account) ([]string, error)
}

// OwnerLookup returns the account the current process runs as.
type OwnerLookup interface {
	CurrentOwner(ctx context.Context) (*User, error)
}

// GroupResolver turns provider group identifiers (SIDs) into names.
type GroupResolver interface {
	ResolveGroups(ctx context.Context, ids []string) ([]string, error)
}

// OS answers lookups from the operating system account database.
type OS struct{}

var (
	_ UserLookup    = OS{}
	_ GroupLookup   = OS{}
	_ OwnerLookup   = OS{}
	_ GroupResolver = OS{}
)

// LookupUser looks the account up by name.
func (OS) LookupUser(_ context.Context, acct Account) (*User, error) {
	u, err := lookup(acct)
	if err != nil {
		return nil, err
	}
	rec := fromOS(u)
	if sid, err := accountSID(acct); err == nil {
		rec.SID = sid
	}
	return rec, nil
}

// LookupGroups returns the names of every group the account belongs to.
// Groups whose ID cannot be resolved are reported by ID.
func (OS) LookupGroups(_ context.Context, acct Account) ([]string, error) {
	u, err := lookup(acct)
	if err != nil {
		return nil, err
	}
	ids, err := u.GroupIds()
	if err != nil {
		return nil, fmt.Errorf("list groups of %s: %w", acct, err)
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		g, err := user.LookupGroupId(id)
		if err != nil {
			names = append(names, id)
			continue
		}
		names = append(names, g.Name)
	}
	return names, nil
}

// CurrentOwner returns the account the process runs as.
func (OS) CurrentOwner(context.Context) (*User, error) {
	u, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}
	return fromOS(u), nil
}

// ResolveGroups maps group SIDs to account names where the platform can.
// Identifiers that do not resolve are returned unchanged.
func (OS) ResolveGroups(_ context.Context, ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		name, err := sidName(id)
		if err != nil || name == "" {
			out = append(out, id)
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

func lookup(acct Account) (*user.User, error) {
	u, err := user.Lookup(osName(acct))
	if err != nil {
		var unknown user.UnknownUserError
		if errors.As(err, &unknown) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, acct)
		}
		return nil, fmt.Errorf("lookup user %s: %w", acct, err)
	}
	return u, nil
}

func fromOS(u *user.User) *User {
	return &User{
		Name:     u.Username,
		FullName: u.Name,
		UID:      u.Uid,
		GID:      u.Gid,
		HomeDir:  u.HomeDir,
	}
}

// ShortName strips a realm suffix or domain prefix from a principal name.
func ShortName(principal string) string {
	if _, after, ok := strings.Cut(principal, `\`); ok {
		return after
	}
	if before, _, ok := strings.Cut(principal, "@"); ok {
		return before
	}
	return principal
}
