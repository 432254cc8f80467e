package query

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"studentparent-server-go/db"
	"studentparent-server-go/models"
)

const (
	DefaultCount = 10
	MaxCount     = 100

	cachePrefix = "query:"
)

// Storage is the part of db.Store the engine needs.
type Storage interface {
	QueryRows(ctx context.Context, query string, args ...any) ([]string, [][]any, error)
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	AccessFor(ctx context.Context, table string) (models.Access, error)
	RequestStructure(ctx context.Context, method models.Method, tag string) (models.RequestStructure, error)
}

// Engine executes query protocol requests against Storage.
type Engine struct {
	store    Storage
	log      *logrus.Logger
	cache    db.Cache
	cacheTTL time.Duration
	// gen is part of every cache key and moves on each write, so a read that
	// finishes after a write stores under a key no later read asks for.
	gen atomic.Uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache caches successful read responses for ttl. Every write clears them.
func WithCache(cache db.Cache, ttl time.Duration) Option {
	return func(e *Engine) {
		e.cache = cache
		e.cacheTTL = ttl
	}
}

// NewEngine returns an engine over store. A nil log uses the standard logger.
func NewEngine(store Storage, log *logrus.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	e := &Engine{store: store, log: log}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one request and returns the response envelope:
// the data keys followed by "ok", "code" and "msg".
func (e *Engine) Execute(ctx context.Context, method models.Method, role models.Role, body []byte) []byte {
	start := time.Now()
	fields := logrus.Fields{"method": method, "role": role}

	var key string
	if e.cache != nil && method.IsRead() {
		key = cacheKey(e.gen.Load(), method, role, body)
		data, ok, err := e.cache.Get(ctx, key)
		switch {
		case err != nil:
			e.log.WithError(err).WithFields(fields).Warn("读取查询缓存失败")
		case ok:
			e.log.WithFields(fields).Debug("query cache hit")
			return data
		}
	}

	resp, err := e.Run(ctx, method, role, body)
	if err != nil {
		code := Code(err)
		entry := e.log.WithError(err).WithFields(fields).WithField("code", code)
		if code >= 500 {
			entry.Error("请求处理失败")
		} else {
			entry.Info("request rejected")
		}
		return errorEnvelope(code, err)
	}

	data, err := envelope(resp)
	if err != nil {
		e.log.WithError(err).WithFields(fields).Error("failed to encode response")
		return errorEnvelope(500, err)
	}
	if key != "" {
		if err := e.cache.Set(ctx, key, data, e.cacheTTL); err != nil {
			e.log.WithError(err).WithFields(fields).Warn("写入查询缓存失败")
		}
	}
	e.log.WithFields(fields).WithField("duration", time.Since(start)).Debug("request done")
	return data
}

// Run executes a request and returns its data keys.
func (e *Engine) Run(ctx context.Context, method models.Method, role models.Role, body []byte) (*Object, error) {
	if !gjson.ValidBytes(body) {
		return nil, invalidf("request body is not valid JSON")
	}
	req := gjson.ParseBytes(body)
	if !req.IsObject() {
		return nil, invalidf("request body must be a JSON object")
	}
	if method.IsRead() {
		r := &reader{
			engine: e,
			method: method,
			role:   role,
			root:   NewObject(),
			arrays: make(map[string]*arrayMeta),
			access: make(map[string]error),
		}
		if err := r.group(ctx, entries(req), r.root, r.root, true); err != nil {
			return nil, err
		}
		return r.root, nil
	}

	resp, err := e.write(ctx, method, role, req)
	if err != nil {
		return nil, err
	}
	e.Invalidate(ctx)
	return resp, nil
}

// authorize checks the Access row of table for (method, role).
func (e *Engine) authorize(ctx context.Context, method models.Method, role models.Role, table string) error {
	access, err := e.store.AccessFor(ctx, table)
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("%w: %s is not accessible", ErrForbidden, table)
	}
	if err != nil {
		return err
	}
	if access.Allows(method, role) {
		return nil
	}
	if role == models.RoleUnknown {
		return fmt.Errorf("%w: %s %s requires login", ErrUnauthorized, method, table)
	}
	return fmt.Errorf("%w: role %s may not %s %s", ErrForbidden, role, method, table)
}

// Invalidate drops every cached read response.
func (e *Engine) Invalidate(ctx context.Context) {
	e.gen.Add(1)
	if e.cache == nil {
		return
	}
	if err := e.cache.DeletePrefix(ctx, cachePrefix); err != nil {
		e.log.WithError(err).Warn("清理查询缓存失败")
	}
}

// cacheKey identifies a read by cache generation, method, role and the compacted body.
func cacheKey(gen uint64, method models.Method, role models.Role, body []byte) string {
	sum := sha256.Sum256([]byte(gjson.GetBytes(body, "@ugly").Raw))
	return cachePrefix + strconv.FormatUint(gen, 10) + ":" + string(method) + ":" + string(role) + ":" + hex.EncodeToString(sum[:])
}

func envelope(data *Object) ([]byte, error) {
	env := NewObject()
	for _, k := range data.Keys() {
		v, _ := data.Get(k)
		env.Set(k, v)
	}
	env.Set("ok", true)
	env.Set("code", 200)
	env.Set("msg", "success")
	return json.Marshal(env)
}

func errorEnvelope(code int, err error) []byte {
	env := NewObject()
	env.Set("ok", false)
	env.Set("code", code)
	env.Set("msg", err.Error())
	data, _ := json.Marshal(env)
	return data
}
