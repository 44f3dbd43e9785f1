// Package fsrepo is Pippin's reference on-disk core.RepoIO: one directory per
// repo, snapshot files named "<prefix>-ss<N>.pip" and commit logs named
// "<prefix>-ss<N>-cl<M>.piplog", new files staged under a uuid-named temp
// name and renamed into place so a crash mid-write never leaves a partial
// file at its real name. Reads are cached in an LRU the way
// core/storage.go's disk cache front-ends blob reads.
package fsrepo

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/google/uuid"

	"github.com/pippin-db/pippin/core"
	"github.com/pippin-db/pippin/pkg/utils"
)

const defaultCacheEntries = 256

var (
	ssNameRe = regexp.MustCompile(`-ss(\d+)\.pip$`)
	clNameRe = regexp.MustCompile(`-ss(\d+)-cl(\d+)\.piplog$`)
)

// Backend is a file-system core.RepoIO. zlog covers the cache hit/miss path
// (mirroring core/storage.go's zap.L().Sugar() use there); llog logs the
// repo file lifecycle, currently one debug line when a new file is renamed
// into place, matching the logrus use the rest of core/storage.go and
// core/ledger.go make for their own operations.
type Backend struct {
	dir      string
	prefix   string
	readonly bool

	cache *lru.Cache[string, []byte]
	zlog  *zap.SugaredLogger
	llog  logrus.FieldLogger
}

// NewBackend opens (creating if necessary) a repo directory at dir. prefix
// names the files within it; cacheEntries <= 0 uses defaultCacheEntries.
func NewBackend(dir, prefix string, cacheEntries int, readonly bool, zlog *zap.Logger, llog logrus.FieldLogger) (*Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, utils.WrapIO("mkdir repo dir", err)
	}
	if cacheEntries <= 0 {
		cacheEntries = defaultCacheEntries
	}
	cache, err := lru.New[string, []byte](cacheEntries)
	if err != nil {
		return nil, utils.WrapIO("create read cache", err)
	}
	if zlog == nil {
		zlog = zap.NewNop()
	}
	if llog == nil {
		llog = logrus.StandardLogger()
	}
	return &Backend{
		dir:      dir,
		prefix:   prefix,
		readonly: readonly,
		cache:    cache,
		zlog:     zlog.Sugar(),
		llog:     llog.WithField("component", "fsrepo"),
	}, nil
}

func (b *Backend) ssPath(ss int) string {
	return filepath.Join(b.dir, fmt.Sprintf("%s-ss%d.pip", b.prefix, ss))
}

func (b *Backend) clPath(ss, cl int) string {
	return filepath.Join(b.dir, fmt.Sprintf("%s-ss%d-cl%d.piplog", b.prefix, ss, cl))
}

func (b *Backend) ReadOnly() bool { return b.readonly }

// SSLen returns one past the highest snapshot number present on disk, 0 if
// none.
func (b *Backend) SSLen() int {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return 0
	}
	max := -1
	for _, e := range entries {
		m := ssNameRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err == nil && n > max {
			max = n
		}
	}
	return max + 1
}

// SSCLLen returns one past the highest commit-log number present for
// snapshot ss, 0 if none.
func (b *Backend) SSCLLen(ss int) int {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return 0
	}
	max := -1
	for _, e := range entries {
		m := clNameRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		ssN, err1 := strconv.Atoi(m[1])
		clN, err2 := strconv.Atoi(m[2])
		if err1 == nil && err2 == nil && ssN == ss && clN > max {
			max = clN
		}
	}
	return max + 1
}

func (b *Backend) HasSS(ss int) bool {
	_, err := os.Stat(b.ssPath(ss))
	return err == nil
}

func (b *Backend) readCached(path string) (io.ReadCloser, bool, error) {
	if data, ok := b.cache.Get(path); ok {
		b.zlog.Debugw("fsrepo cache hit", "path", path)
		return io.NopCloser(bytes.NewReader(data)), true, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, utils.WrapIO("read "+path, err)
	}
	b.zlog.Debugw("fsrepo cache miss", "path", path, "bytes", len(data))
	b.cache.Add(path, data)
	return io.NopCloser(bytes.NewReader(data)), true, nil
}

func (b *Backend) ReadSS(ss int) (io.ReadCloser, bool, error) {
	return b.readCached(b.ssPath(ss))
}

func (b *Backend) ReadSSCL(ss, cl int) (io.ReadCloser, bool, error) {
	return b.readCached(b.clPath(ss, cl))
}

// atomicFile stages a new file's content under a uuid-named temp path in
// the same directory and renames it into place on Close, so a reader never
// observes a partially written file at its real name.
type atomicFile struct {
	f               *os.File
	tmpPath, finalPath string
	backend         *Backend
}

func (a *atomicFile) Write(p []byte) (int, error) { return a.f.Write(p) }

func (a *atomicFile) Close() error {
	if err := a.f.Close(); err != nil {
		os.Remove(a.tmpPath)
		return utils.WrapIO("close temp file", err)
	}
	if err := os.Rename(a.tmpPath, a.finalPath); err != nil {
		os.Remove(a.tmpPath)
		return utils.WrapIO("rename into place", err)
	}
	a.backend.llog.WithField("path", a.finalPath).Debug("fsrepo wrote file")
	return nil
}

func (b *Backend) createNew(finalPath string) (io.WriteCloser, bool, error) {
	if b.readonly {
		return nil, false, core.ErrReadOnly
	}
	if _, err := os.Stat(finalPath); err == nil {
		return nil, false, nil
	} else if !os.IsNotExist(err) {
		return nil, false, utils.WrapIO("stat "+finalPath, err)
	}
	tmp := filepath.Join(b.dir, "."+uuid.New().String()+".tmp")
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, false, utils.WrapIO("create temp file", err)
	}
	return &atomicFile{f: f, tmpPath: tmp, finalPath: finalPath, backend: b}, true, nil
}

func (b *Backend) NewSS(ss int) (io.WriteCloser, bool, error) {
	return b.createNew(b.ssPath(ss))
}

func (b *Backend) NewSSCL(ss, cl int) (io.WriteCloser, bool, error) {
	return b.createNew(b.clPath(ss, cl))
}

// appendFile opens an existing commit log for append and evicts it from the
// read cache on Close, so the next ReadSSCL observes the appended bytes.
type appendFile struct {
	f       *os.File
	path    string
	backend *Backend
}

func (a *appendFile) Write(p []byte) (int, error) { return a.f.Write(p) }

func (a *appendFile) Close() error {
	err := a.f.Close()
	a.backend.cache.Remove(a.path)
	if err != nil {
		return utils.WrapIO("close append file", err)
	}
	return nil
}

func (b *Backend) AppendSSCL(ss, cl int) (io.WriteCloser, bool, error) {
	if b.readonly {
		return nil, false, core.ErrReadOnly
	}
	path := b.clPath(ss, cl)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, utils.WrapIO("open "+path+" for append", err)
	}
	return &appendFile{f: f, path: path, backend: b}, true, nil
}
