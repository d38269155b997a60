package identity

import (
	"context"
	"fmt"

	"github.com/lherron/importlink/internal/host"
)

// Backend names accepted by Open.
const (
	BackendAttribute = "attribute"
	BackendRedis     = "redis"
	BackendEtcd      = "etcd"
)

// Options selects and configures an identity backend.
type Options struct {
	Backend string
	Redis   RedisOptions
	Etcd    EtcdOptions
}

// Open returns the configured backend and a function releasing it. The
// attribute backend stores entries on h itself.
func Open(ctx context.Context, opts Options, h host.Host) (Store, func() error, error) {
	noop := func() error { return nil }

	switch opts.Backend {
	case "", BackendAttribute:
		return NewAttributeStore(h), noop, nil
	case BackendRedis:
		s, err := NewRedisStore(ctx, opts.Redis)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case BackendEtcd:
		s, err := NewEtcdStore(ctx, opts.Etcd)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown identity backend %q (want attribute, redis or etcd)", opts.Backend)
	}
}
