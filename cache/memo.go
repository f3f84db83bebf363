package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/giygas/ppu-savings/interfaces"
	"github.com/giygas/ppu-savings/logging"
	"github.com/giygas/ppu-savings/metrics"
	"golang.org/x/sync/singleflight"
)

// CacheKeyer is implemented by inputs whose logical identity is a digest of
// their content rather than their address
type CacheKeyer interface {
	CacheKey() []byte
}

// Memo caches expensive computations keyed by a digest of their logical
// inputs plus an explicit version. Bump the version whenever a memoized
// function's logic changes so that stale results are never served.
type Memo struct {
	backend interfaces.MemoBackend
	ttl     time.Duration
	group   singleflight.Group
}

// NewMemo creates a memo store. A zero ttl keeps entries until the backend
// evicts them.
func NewMemo(backend interfaces.MemoBackend, ttl time.Duration) *Memo {
	return &Memo{backend: backend, ttl: ttl}
}

// Key builds the backend key for a memoized call
func Key(name string, version int, parts ...any) (string, error) {
	hash := sha256.New()
	writeField(hash, 's', []byte(name))
	writeInt(hash, int64(version))

	for i, part := range parts {
		switch v := part.(type) {
		case CacheKeyer:
			writeField(hash, 'k', v.CacheKey())
		case []byte:
			writeField(hash, 'b', v)
		case string:
			writeField(hash, 's', []byte(v))
		case int:
			writeInt(hash, int64(v))
		case int64:
			writeInt(hash, v)
		case float64:
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
			writeField(hash, 'f', buf[:])
		case nil:
			writeField(hash, 'n', nil)
		default:
			return "", fmt.Errorf("memo %s: unsupported key part %d of type %T", name, i, part)
		}
	}

	return fmt.Sprintf("%s:v%d:%s", name, version, hex.EncodeToString(hash.Sum(nil))), nil
}

type byteWriter interface {
	Write(p []byte) (int, error)
}

func writeField(w byteWriter, tag byte, data []byte) {
	var buf [9]byte
	buf[0] = tag
	binary.BigEndian.PutUint64(buf[1:], uint64(len(data)))
	w.Write(buf[:])
	w.Write(data)
}

func writeInt(w byteWriter, v int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	writeField(w, 'i', buf[:])
}

// Memoize returns the cached result of compute for the given inputs,
// computing and storing it on a miss. Backend errors are logged and treated
// as misses; the computation itself is always authoritative.
func Memoize[T any](ctx context.Context, m *Memo, name string, version int, parts []any, compute func(context.Context) (T, error)) (T, error) {
	var zero T

	key, err := Key(name, version, parts...)
	if err != nil {
		return zero, err
	}

	if data, ok, err := m.backend.Get(ctx, key); err != nil {
		logging.Warn("Memo backend read failed", "memo", name, "error", err)
	} else if ok {
		var value T
		decodeErr := gob.NewDecoder(bytes.NewReader(data)).Decode(&value)
		if decodeErr == nil {
			metrics.MemoCacheTotal.WithLabelValues(name, "hit").Inc()
			return value, nil
		}
		logging.Warn("Discarding undecodable memo entry", "memo", name, "error", decodeErr)
	}

	metrics.MemoCacheTotal.WithLabelValues(name, "miss").Inc()

	result, err, _ := m.group.Do(key, func() (any, error) {
		start := time.Now()
		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		metrics.ComputationDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(value); err != nil {
			logging.Warn("Failed to encode memo entry", "memo", name, "error", err)
			return value, nil
		}
		if err := m.backend.Set(ctx, key, buf.Bytes(), m.ttl); err != nil {
			logging.Warn("Memo backend write failed", "memo", name, "error", err)
		}
		return value, nil
	})
	if err != nil {
		return zero, err
	}
	return result.(T), nil
}

// MemoryBackend keeps memo entries in process memory for the lifetime of the
// process or until Clear
type MemoryBackend struct {
	entries sync.Map
}

// NewMemoryBackend creates an empty in-process backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Get implements interfaces.MemoBackend
func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	if v, ok := b.entries.Load(key); ok {
		return v.([]byte), true, nil
	}
	return nil, false, nil
}

// Set implements interfaces.MemoBackend. The ttl is ignored.
func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	b.entries.Store(key, append([]byte(nil), value...))
	return nil
}

// Clear removes every entry
func (b *MemoryBackend) Clear(_ context.Context) error {
	b.entries.Clear()
	return nil
}

// Len counts entries; used by tests and health reporting
func (b *MemoryBackend) Len() int {
	n := 0
	b.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
