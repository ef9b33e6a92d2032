package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/noaodatalab/datalab-go/internal/gateway"
)

// Sentinel errors for storage operations.
var (
	// ErrInvalidDestination means a multi-file operation was given a
	// destination that cannot receive multiple files (a missing local
	// directory for get, a non-container for put).
	ErrInvalidDestination = errors.New("storage: invalid destination for multi-file operation")

	// ErrNoMatch means pattern expansion produced zero files where at
	// least one was required.
	ErrNoMatch = errors.New("storage: no node exists with the requested URI")
)

// reservedContainers are refused for remove/rmdir before any network
// call. This is a client-side safety rule, not server-enforced.
var reservedContainers = map[string]bool{
	Scheme:            true,
	Scheme + "tmp":    true,
	Scheme + "public": true,
}

// Store applies storage operations across one or many remote paths.
// Meta-free sources take a single-call fast path; wildcarded sources are
// expanded and iterated in sorted order, with per-file failures recorded
// in a BatchResult instead of aborting the batch.
type Store struct {
	gw     *gateway.Client
	exp    *Expander
	logger *slog.Logger

	// OnTransfer, when set, is called after every completed file
	// transfer. Used by the CLI for progress display.
	OnTransfer func(index, total int, source string, bytes int64)
}

// NewStore creates a storage engine over the storage-service gateway.
func NewStore(gw *gateway.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		gw:     gw,
		exp:    NewExpander(gw, logger),
		logger: logger,
	}
}

// Expander returns the glob expander backing this store.
func (s *Store) Expander() *Expander {
	return s.exp
}

// Ls returns the listing of name in the requested format.
func (s *Store) Ls(ctx context.Context, token, name, format string) (string, error) {
	q := url.Values{}
	q.Set("name", WithScheme(name))
	q.Set("format", format)

	resp, err := s.gw.Get(ctx, token, "/ls", q, nil)
	if err != nil {
		return "", fmt.Errorf("storage: listing %s: %w", name, err)
	}

	return resp.Text(), nil
}

// Stat returns the node metadata for path.
func (s *Store) Stat(ctx context.Context, token, p string) (*Node, error) {
	q := url.Values{}
	q.Set("name", WithScheme(p))
	q.Set("verbose", "true")

	resp, err := s.gw.Get(ctx, token, "/stat", q, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: stat %s: %w", p, err)
	}

	var node Node
	if err := json.Unmarshal(resp.Body, &node); err != nil {
		return nil, fmt.Errorf("storage: decoding stat for %s: %w", p, err)
	}

	return &node, nil
}

// IsDir reports whether path is a container node.
func (s *Store) IsDir(ctx context.Context, token, p string) (bool, error) {
	q := url.Values{}
	q.Set("name", WithScheme(p))

	resp, err := s.gw.Get(ctx, token, "/isdir", q, nil)
	if err != nil {
		return false, fmt.Errorf("storage: isdir %s: %w", p, err)
	}

	return strings.EqualFold(resp.Text(), "true"), nil
}

// Access reports whether the caller has the requested access mode on
// path. Any failure reads as no access.
func (s *Store) Access(ctx context.Context, token, p, mode string) bool {
	q := url.Values{}
	q.Set("name", WithScheme(p))
	q.Set("mode", mode)

	resp, err := s.gw.Get(ctx, token, "/access", q, nil)
	if err != nil {
		return false
	}

	return strings.EqualFold(resp.Text(), "true")
}

// trimContainerSlash drops a trailing slash from a container path so
// every spelling normalizes to one form. The bare scheme root keeps its
// slashes.
func trimContainerSlash(p string) string {
	if p == Scheme {
		return p
	}

	return strings.TrimSuffix(p, "/")
}

// Mkdir creates a container node.
func (s *Store) Mkdir(ctx context.Context, token, name string) error {
	nm := trimContainerSlash(WithScheme(name))

	q := url.Values{}
	q.Set("dir", nm)

	if _, err := s.gw.Get(ctx, token, "/mkdir", q, nil); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", name, err)
	}

	return nil
}

// Rmdir removes an empty container node. The root and the reserved
// top-level containers are refused client-side.
func (s *Store) Rmdir(ctx context.Context, token, name string) error {
	nm := trimContainerSlash(WithScheme(name))

	if reservedContainers[nm] {
		return fmt.Errorf("storage: rmdir %s: %w", nm, gateway.ErrPermission)
	}

	isDir, err := s.IsDir(ctx, token, nm)
	if err != nil {
		return fmt.Errorf("storage: rmdir %s: %w", name, err)
	}

	if !isDir {
		return fmt.Errorf("storage: rmdir %s: not a container", name)
	}

	q := url.Values{}
	q.Set("dir", nm)

	if _, err := s.gw.Get(ctx, token, "/rmdir", q, nil); err != nil {
		return fmt.Errorf("storage: rmdir %s: %w", name, err)
	}

	return nil
}

// Link creates a link node at fr pointing at target.
func (s *Store) Link(ctx context.Context, token, fr, target string) error {
	q := url.Values{}
	q.Set("from", WithScheme(fr))
	q.Set("to", WithScheme(target))

	if _, err := s.gw.Get(ctx, token, "/ln", q, nil); err != nil {
		return fmt.Errorf("storage: linking %s: %w", fr, err)
	}

	return nil
}

// Tag annotates a node.
func (s *Store) Tag(ctx context.Context, token, name, tag string) error {
	q := url.Values{}
	q.Set("name", WithScheme(name))
	q.Set("tag", tag)

	if _, err := s.gw.Get(ctx, token, "/tag", q, nil); err != nil {
		return fmt.Errorf("storage: tagging %s: %w", name, err)
	}

	return nil
}

// Load asks the storage service to fetch endpoint server-side and store
// it at name. Returns the service's status text.
func (s *Store) Load(ctx context.Context, token, name, endpoint string) (string, error) {
	q := url.Values{}
	q.Set("name", WithScheme(name))
	q.Set("endpoint", endpoint)

	resp, err := s.gw.Get(ctx, token, "/load", q, nil)
	if err != nil {
		return "", fmt.Errorf("storage: loading %s: %w", endpoint, err)
	}

	return resp.Text(), nil
}

// Remove deletes one file, or every file matching a wildcard pattern.
// Single-file errors return directly; a batch records per-file outcomes
// and fails overall only when the pattern matched nothing.
func (s *Store) Remove(ctx context.Context, token, name string) (*BatchResult, error) {
	nm := trimContainerSlash(WithScheme(name))

	if reservedContainers[nm] {
		return nil, fmt.Errorf("storage: removing %s: %w", nm, gateway.ErrPermission)
	}

	if !HasMeta(nm) {
		if err := s.removeOne(ctx, token, nm); err != nil {
			return nil, err
		}

		res := &BatchResult{}
		res.add(nm, "", nil)

		return res, nil
	}

	files, err := s.exp.Expand(ctx, token, nm, true)
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("storage: removing %s: %w", name, ErrNoMatch)
	}

	res := &BatchResult{}

	for _, f := range files {
		res.add(f, "", s.removeOne(ctx, token, f))
	}

	return res, nil
}

// removeOne deletes a single non-container node.
func (s *Store) removeOne(ctx context.Context, token, nm string) error {
	isDir, err := s.IsDir(ctx, token, nm)
	if err != nil {
		return fmt.Errorf("storage: removing %s: %w", nm, err)
	}

	if isDir {
		return fmt.Errorf("storage: removing %s: is a container (use rmdir)", nm)
	}

	q := url.Values{}
	q.Set("file", nm)

	if _, err := s.gw.Get(ctx, token, "/rm", q, nil); err != nil {
		return fmt.Errorf("storage: removing %s: %w", nm, err)
	}

	return nil
}

// Move renames fr to to within the store, expanding wildcards in fr.
func (s *Store) Move(ctx context.Context, token, fr, to string) (*BatchResult, error) {
	return s.nodeTransfer(ctx, token, "mv", fr, to)
}

// Copy duplicates fr at to within the store, expanding wildcards in fr.
func (s *Store) Copy(ctx context.Context, token, fr, to string) (*BatchResult, error) {
	return s.nodeTransfer(ctx, token, "cp", fr, to)
}

// nodeTransfer implements the shared move/copy flow.
func (s *Store) nodeTransfer(ctx context.Context, token, op, fr, to string) (*BatchResult, error) {
	frRemote := strings.Contains(fr, "://")
	toRemote := strings.Contains(to, "://")

	switch {
	case frRemote && !toRemote:
		return nil, fmt.Errorf("storage: %s: cannot %s from remote to local; use get", op, op)
	case !frRemote && toRemote:
		return nil, fmt.Errorf("storage: %s: cannot %s from local to remote; use put", op, op)
	}

	src := WithScheme(fr)
	dest := WithScheme(to)

	if !HasMeta(fr) {
		if err := s.transferOne(ctx, token, op, src, dest); err != nil {
			return nil, err
		}

		res := &BatchResult{}
		res.add(src, dest, nil)

		return res, nil
	}

	files, err := s.exp.Expand(ctx, token, src, true)
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("storage: %s %s: %w", op, fr, ErrNoMatch)
	}

	res := &BatchResult{}

	for _, f := range files {
		target := CollapseSlashes(dest + "/" + path.Base(strings.TrimPrefix(f, Scheme)))
		res.add(f, target, s.transferOne(ctx, token, op, f, target))
	}

	return res, nil
}

// transferOne performs one mv/cp server call. The node endpoints report
// failure in-band with a 200 status, so the body is checked for the
// COMPLETED marker.
func (s *Store) transferOne(ctx context.Context, token, op, src, dest string) error {
	q := url.Values{}
	q.Set("from", src)
	q.Set("to", dest)

	resp, err := s.gw.Get(ctx, token, "/"+op, q, nil)
	if err != nil {
		return fmt.Errorf("storage: %s %s: %w", op, src, err)
	}

	if !strings.Contains(resp.Text(), "COMPLETED") {
		return fmt.Errorf("storage: %s %s: %w", op, src,
			&gateway.ServiceError{StatusCode: resp.StatusCode, Message: resp.Text()})
	}

	return nil
}

// Get downloads fr to the local path to. With a wildcarded fr, to must
// name an existing local directory; that precondition is checked before
// any transfer begins. Transfers are two-phase: the service returns a
// transfer URL, then the payload streams over a second request.
func (s *Store) Get(ctx context.Context, token, fr, to string) (*BatchResult, error) {
	nm := WithScheme(fr)

	if HasMeta(fr) {
		if err := checkDownloadDir(to); err != nil {
			return nil, err
		}

		files, err := s.exp.Expand(ctx, token, nm, true)
		if err != nil {
			return nil, err
		}

		if len(files) == 0 {
			return nil, fmt.Errorf("storage: get %s: %w", fr, ErrNoMatch)
		}

		res := &BatchResult{}

		for i, f := range files {
			dlname := filepath.Join(to, path.Base(strings.TrimPrefix(f, Scheme)))
			res.add(f, dlname, s.getOne(ctx, token, f, dlname, i+1, len(files)))
		}

		return res, nil
	}

	dlname := to
	if dlname == "" || strings.HasSuffix(dlname, "/") {
		dlname = filepath.Join(dlname, path.Base(strings.TrimPrefix(nm, Scheme)))
	}

	if err := s.getOne(ctx, token, nm, dlname, 1, 1); err != nil {
		return nil, err
	}

	res := &BatchResult{}
	res.add(nm, dlname, nil)

	return res, nil
}

// Read returns the contents of one remote file in memory. Meta-free
// sources only.
func (s *Store) Read(ctx context.Context, token, fr string) ([]byte, error) {
	nm := WithScheme(fr)

	transferURL, err := s.transferURL(ctx, token, "/get", nm)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := s.gw.Download(ctx, token, transferURL, &buf); err != nil {
		return nil, fmt.Errorf("storage: reading %s: %w", fr, err)
	}

	return buf.Bytes(), nil
}

// getOne downloads a single file to dlname.
func (s *Store) getOne(ctx context.Context, token, src, dlname string, index, total int) error {
	transferURL, err := s.transferURL(ctx, token, "/get", src)
	if err != nil {
		return err
	}

	f, err := os.Create(dlname)
	if err != nil {
		return fmt.Errorf("storage: creating %s: %w", dlname, err)
	}

	n, dlErr := s.gw.Download(ctx, token, transferURL, f)

	if closeErr := f.Close(); dlErr == nil && closeErr != nil {
		dlErr = fmt.Errorf("storage: closing %s: %w", dlname, closeErr)
	}

	if dlErr != nil {
		return dlErr
	}

	if s.OnTransfer != nil {
		s.OnTransfer(index, total, src, n)
	}

	return nil
}

// Put uploads local files matching fr to the remote destination to. A
// local directory source uploads its immediate contents after creating
// the destination container. Multiple sources require the destination to
// be a container.
func (s *Store) Put(ctx context.Context, token, fr, to string) (*BatchResult, error) {
	files, err := s.localSources(ctx, token, fr, to)
	if err != nil {
		return nil, err
	}

	if len(files) > 1 {
		node, statErr := s.Stat(ctx, token, to)
		if statErr != nil {
			return nil, fmt.Errorf("storage: put: %w", statErr)
		}

		if node.Kind != KindContainer {
			return nil, fmt.Errorf("storage: put %s: target must be a container: %w", to, ErrInvalidDestination)
		}
	}

	res := &BatchResult{}

	for i, f := range files {
		dest := WithScheme(to)
		if strings.HasSuffix(to, "/") {
			dest = CollapseSlashes(dest + filepath.Base(f))
		}

		finalDest, putErr := s.putOne(ctx, token, f, dest, i+1, len(files))
		res.add(f, finalDest, putErr)
	}

	if len(res.Entries) == 1 && res.Entries[0].Err != nil {
		return nil, res.Entries[0].Err
	}

	return res, nil
}

// localSources resolves the local side of a put: a directory expands to
// its contents (creating the remote container first), anything else goes
// through local glob expansion.
func (s *Store) localSources(ctx context.Context, token, fr, to string) ([]string, error) {
	if fi, err := os.Stat(fr); err == nil && fi.IsDir() {
		if mkErr := s.Mkdir(ctx, token, strings.TrimSuffix(to, "/")); mkErr != nil {
			// The container may already exist; the per-file puts will
			// fail if it genuinely could not be created.
			s.logger.Debug("mkdir before directory put failed", slog.String("error", mkErr.Error()))
		}

		files, globErr := filepath.Glob(filepath.Join(fr, "*"))
		if globErr != nil {
			return nil, fmt.Errorf("storage: put %s: %w", fr, globErr)
		}

		return files, nil
	}

	files, err := filepath.Glob(fr)
	if err != nil {
		return nil, fmt.Errorf("storage: put %s: %w", fr, err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("storage: put %s: no matching local files", fr)
	}

	return files, nil
}

// putOne uploads one local file. When the control call fails with HTTP
// 500 the destination is reinterpreted as a container and retried once
// as dest/basename. The match is on the status code alone; the service
// does not distinguish "cannot upload to a container" from other 500s,
// so an unrelated 500 takes this branch too.
func (s *Store) putOne(ctx context.Context, token, local, dest string, index, total int) (string, error) {
	transferURL, err := s.transferURL(ctx, token, "/put", dest)
	if gateway.IsStatus(err, 500) {
		dest = CollapseSlashes(dest + "/" + filepath.Base(local))
		transferURL, err = s.transferURL(ctx, token, "/put", dest)
	}

	if err != nil {
		return dest, err
	}

	f, err := os.Open(local)
	if err != nil {
		return dest, fmt.Errorf("storage: local file %s does not exist: %w", local, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return dest, fmt.Errorf("storage: stat %s: %w", local, err)
	}

	if err := s.gw.Upload(ctx, token, transferURL, "application/octet-stream", f, fi.Size()); err != nil {
		return dest, fmt.Errorf("storage: uploading %s: %w", local, err)
	}

	if s.OnTransfer != nil {
		s.OnTransfer(index, total, local, fi.Size())
	}

	return dest, nil
}

// transferURL performs the first phase of a two-phase transfer: the
// control endpoint answers with the URL the payload actually moves over.
func (s *Store) transferURL(ctx context.Context, token, endpoint, name string) (string, error) {
	q := url.Values{}
	q.Set("name", name)

	resp, err := s.gw.Get(ctx, token, endpoint, q, nil)
	if err != nil {
		return "", fmt.Errorf("storage: %s %s: %w", strings.TrimPrefix(endpoint, "/"), name, err)
	}

	return resp.Text(), nil
}

// checkDownloadDir enforces the multi-file get precondition: the
// destination must already exist as a local directory.
func checkDownloadDir(to string) error {
	if to == "" {
		return fmt.Errorf("storage: multi-file get requires a download directory: %w", ErrInvalidDestination)
	}

	fi, err := os.Stat(to)
	if err != nil {
		return fmt.Errorf("storage: download directory %s does not exist: %w", to, ErrInvalidDestination)
	}

	if !fi.IsDir() {
		return fmt.Errorf("storage: download location %s must be a directory: %w", to, ErrInvalidDestination)
	}

	return nil
}
