package identity

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/lherron/importlink/internal/domain"
	"github.com/lherron/importlink/internal/id"
)

// EtcdOptions configures the etcd connection.
type EtcdOptions struct {
	Endpoints   []string
	Prefix      string // defaults to "/importlink/identity"
	DialTimeout time.Duration
}

// EtcdStore keeps one key per entry under Prefix/<kind>/<token>. Put is a
// transaction that only writes when the key has never been created.
type EtcdStore struct {
	kv     clientv3.KV
	client *clientv3.Client
	prefix string
}

// NewEtcdStore dials the cluster and verifies connectivity.
func NewEtcdStore(ctx context.Context, opts EtcdOptions) (*EtcdStore, error) {
	if len(opts.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints cannot be empty")
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   opts.Endpoints,
		DialTimeout: opts.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if _, err := cli.Get(checkCtx, "health-check"); err != nil {
		cli.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	s := NewEtcdStoreFromKV(cli, opts.Prefix)
	s.client = cli
	return s, nil
}

// NewEtcdStoreFromKV builds a store on an existing KV, such as a namespaced
// view of a shared client.
func NewEtcdStoreFromKV(kv clientv3.KV, prefix string) *EtcdStore {
	if prefix == "" {
		prefix = "/importlink/identity"
	}
	return &EtcdStore{kv: kv, prefix: prefix}
}

func (s *EtcdStore) key(kind domain.Kind, origin string) string {
	return path.Join(s.prefix, string(kind), id.Token(string(kind), origin))
}

func (s *EtcdStore) Put(ctx context.Context, kind domain.Kind, origin string, newID int64) (bool, error) {
	if origin == "" {
		return false, ErrEmptyOrigin
	}
	key := s.key(kind, origin)
	resp, err := s.kv.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, strconv.FormatInt(newID, 10))).
		Commit()
	if err != nil {
		return false, fmt.Errorf("stamp %s %q: %w", kind, origin, err)
	}
	return resp.Succeeded, nil
}

func (s *EtcdStore) Get(ctx context.Context, kind domain.Kind, origin string) (int64, error) {
	if origin == "" {
		return 0, ErrNotFound
	}
	resp, err := s.kv.Get(ctx, s.key(kind, origin))
	if err != nil {
		return 0, fmt.Errorf("look up %s %q: %w", kind, origin, err)
	}
	if len(resp.Kvs) == 0 {
		return 0, fmt.Errorf("%s %q: %w", kind, origin, ErrNotFound)
	}
	newID, err := strconv.ParseInt(string(resp.Kvs[0].Value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt identity entry for %s %q: %w", kind, origin, err)
	}
	return newID, nil
}

// Close releases the client when the store dialed it.
func (s *EtcdStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
