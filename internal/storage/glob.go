package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/noaodatalab/datalab-go/internal/gateway"
)

// Expander turns a possibly-wildcarded remote path into a sorted list of
// concrete paths. The storage API has no server-side wildcard support,
// so expansion is an explicit two-step: list the parent container, then
// pattern-match client-side.
type Expander struct {
	gw     *gateway.Client
	logger *slog.Logger
}

// NewExpander creates an expander using the storage-service gateway.
func NewExpander(gw *gateway.Client, logger *slog.Logger) *Expander {
	if logger == nil {
		logger = slog.Default()
	}

	return &Expander{gw: gw, logger: logger}
}

// Expand resolves pattern to the matching entries of its parent
// container, sorted lexicographically. With full=true entries come back
// as complete scheme-qualified paths; otherwise as bare names.
//
// A wildcard-free name is not special-cased: exactly one listing call is
// made either way, so a literal name resolves only if the node actually
// exists. No matches is not an error here; it yields an empty slice and
// the caller decides whether that is fatal.
func (e *Expander) Expand(ctx context.Context, token, pattern string, full bool) ([]string, error) {
	scheme, rest := splitScheme(pattern)

	dir, name := path.Split(rest)
	dir = strings.TrimSuffix(dir, "/")

	// A bare "/" (or empty remainder) addresses the root's whole listing.
	if name == "" {
		name = "*"
	}

	listing, err := e.list(ctx, token, scheme+dir)
	if err != nil {
		return nil, fmt.Errorf("storage: expanding %s: %w", pattern, err)
	}

	var matches []string

	for _, entry := range listing {
		if entry == "" {
			continue
		}

		if !shellMatch(entry, name) && entry != name {
			continue
		}

		if full {
			matches = append(matches, CollapseSlashes(scheme+dir+"/"+entry))
		} else {
			matches = append(matches, entry)
		}
	}

	sort.Strings(matches)

	e.logger.Debug("expanded pattern",
		slog.String("pattern", pattern),
		slog.Int("matches", len(matches)),
	)

	return matches, nil
}

// list fetches the flat machine-readable listing of one container.
func (e *Expander) list(ctx context.Context, token, name string) ([]string, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("format", "csv")

	resp, err := e.gw.Get(ctx, token, "/ls", q, nil)
	if err != nil {
		return nil, err
	}

	text := resp.Text()
	if text == "" {
		return nil, nil
	}

	return strings.Split(text, ","), nil
}

// shellMatch applies shell-style pattern matching (the *, ?, [ wildcard
// set) case-insensitively. A malformed pattern matches nothing; names
// that contain wildcard characters literally are handled by the exact
// comparison in Expand.
func shellMatch(name, pattern string) bool {
	ok, err := path.Match(strings.ToLower(pattern), strings.ToLower(name))
	return err == nil && ok
}

// splitScheme separates the URI scheme prefix (including "://") from the
// remainder, defaulting to vos://.
func splitScheme(p string) (scheme, rest string) {
	if i := strings.Index(p, "://"); i >= 0 {
		return p[:i+3], p[i+3:]
	}

	return Scheme, p
}
