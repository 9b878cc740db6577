package negotiate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/smnsjas/go-negotiate/directory"
	"github.com/smnsjas/go-negotiate/secctx"
)

// Session describes an authenticated client. It lives in the request
// context and is never stored.
type Session struct {
	Principal       string          `json:"principal"`
	User            string          `json:"user"`
	Domain          string          `json:"domain,omitempty"`
	SID             string          `json:"sid,omitempty"`
	DisplayName     string          `json:"display_name,omitempty"`
	Mechanism       string          `json:"mechanism"`
	Groups          []string        `json:"groups,omitempty"`
	Directory       *directory.User `json:"directory,omitempty"`
	Owner           *directory.User `json:"owner,omitempty"`
	AuthenticatedAt time.Time       `json:"authenticated_at"`
}

// String returns a compact description for logs.
func (s *Session) String() string {
	if s == nil {
		return "<anonymous>"
	}
	return fmt.Sprintf("%s (%s, %d groups)", s.Principal, s.Mechanism, len(s.Groups))
}

type sessionKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session attached by the middleware.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}

// sessionAssembler builds the Session for a completed handshake.
type sessionAssembler struct {
	useGroups    bool
	groups       directory.GroupLookup
	groupNames   directory.GroupResolver
	groupFilter  *regexp.Regexp
	useDirectory bool
	directory    directory.UserLookup
	useOwner     bool
	owner        directory.OwnerLookup
	clock        Clock
	logger       *slog.Logger
}

func newSessionAssembler(cfg Config) *sessionAssembler {
	a := &sessionAssembler{
		useGroups:    cfg.UseGroups,
		groups:       cfg.Groups,
		groupNames:   cfg.GroupNames,
		useDirectory: cfg.UseDirectory,
		directory:    cfg.Directory,
		useOwner:     cfg.UseOwner,
		owner:        cfg.Owner,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
	}
	if cfg.GroupFilter != "" {
		a.groupFilter = regexp.MustCompile(cfg.GroupFilter)
	}
	return a
}

// assemble copies the identity and runs the enabled enrichments. A failed
// enrichment leaves its field empty.
func (a *sessionAssembler) assemble(ctx context.Context, id *secctx.Identity, mechanism string) *Session {
	s := &Session{
		Principal:       id.Principal,
		User:            id.User,
		Domain:          id.Domain,
		SID:             id.SID,
		DisplayName:     id.DisplayName,
		Mechanism:       mechanism,
		AuthenticatedAt: a.clock.Now(),
	}
	acct := directory.Account{User: id.User, Domain: id.Domain, SID: id.SID}

	if a.useGroups {
		groups, err := a.lookupGroups(ctx, acct, id.Groups)
		if err != nil {
			a.logger.Warn("Group lookup failed", "principal", id.Principal, "error", err)
		} else {
			s.Groups = a.filter(groups)
		}
	}
	if a.useDirectory {
		rec, err := a.directory.LookupUser(ctx, acct)
		if err != nil {
			a.logger.Warn("Directory lookup failed", "principal", id.Principal, "error", err)
		} else {
			s.Directory = rec
		}
	}
	if a.useOwner {
		owner, err := a.owner.CurrentOwner(ctx)
		if err != nil {
			a.logger.Warn("Owner lookup failed", "error", err)
		} else {
			s.Owner = owner
		}
	}
	return s
}

func (a *sessionAssembler) lookupGroups(ctx context.Context, acct directory.Account, reported []string) ([]string, error) {
	if a.groups != nil {
		return a.groups.LookupGroups(ctx, acct)
	}
	if a.groupNames != nil && len(reported) > 0 {
		return a.groupNames.ResolveGroups(ctx, reported)
	}
	return append([]string(nil), reported...), nil
}

func (a *sessionAssembler) filter(groups []string) []string {
	if a.groupFilter == nil {
		return groups
	}
	var kept []string
	for _, g := range groups {
		if a.groupFilter.MatchString(g) {
			kept = append(kept, g)
		}
	}
	return kept
}
