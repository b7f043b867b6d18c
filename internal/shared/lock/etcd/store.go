// Package etcd 基于 etcd 租约的命名锁
//
// lock_backend=etcd 时替代 Redis SETNX 后端。键随租约到期自动删除，
// 语义上等价于 Redis 锁的 TTL 回收。
package etcd

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"catalog-sync/internal/shared/lock"
)

const (
	defaultDialTimeout = 5 * time.Second
	defaultPrefix      = "/catalog-sync"
	statusTimeout      = 3 * time.Second
)

// Store etcd 锁存储，持有自己的连接
type Store struct {
	client *clientv3.Client
	prefix string

	// 本进程持有的锁对应的租约，Release 时一并回收
	mu     sync.Mutex
	leases map[string]clientv3.LeaseID
}

// Config etcd 连接参数
type Config struct {
	Endpoints   []string
	DialTimeout time.Duration
	Prefix      string
}

// NewStore 连接 etcd 并做一次健康检查
// 任一 endpoint 的 Status 应答即认为集群可用
func NewStore(cfg Config) (*Store, error) {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	if err := probeEndpoints(client, cfg.Endpoints); err != nil {
		client.Close()
		return nil, err
	}

	log.Printf("[etcd/Lock] Connected to %v", cfg.Endpoints)
	return &Store{
		client: client,
		prefix: cfg.Prefix,
		leases: make(map[string]clientv3.LeaseID),
	}, nil
}

// probeEndpoints 逐个探测 endpoint，全部失败才报错
func probeEndpoints(client *clientv3.Client, endpoints []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	var lastErr error
	for _, ep := range endpoints {
		if _, lastErr = client.Status(ctx, ep); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("etcd health check failed: %w", lastErr)
}

// Close 关闭 etcd 连接
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) lockKey(name string) string {
	return fmt.Sprintf("%s/locks/%s", s.prefix, name)
}

// Acquire 尝试获取命名锁。
// 通过租约加事务实现：仅当键不存在时写入，键随租约过期自动删除。
func (s *Store) Acquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = lock.DefaultRunLockTTL
	}
	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	lease, err := s.client.Grant(ctx, seconds)
	if err != nil {
		return false, fmt.Errorf("failed to create lease: %w", err)
	}

	key := s.lockKey(name)
	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, holder, clientv3.WithLease(lease.ID))).
		Commit()
	if err != nil {
		s.client.Revoke(context.Background(), lease.ID)
		return false, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}

	if !resp.Succeeded {
		// 锁已被其他持有者占用，回收刚创建的租约
		if _, err := s.client.Revoke(ctx, lease.ID); err != nil {
			log.Printf("[etcd/Lock] Failed to revoke unused lease: %v", err)
		}
		return false, nil
	}

	s.mu.Lock()
	s.leases[name] = lease.ID
	s.mu.Unlock()

	return true, nil
}

// Release 释放命名锁。
// 调度器回收已死执行器的锁时键可能属于别的进程，因此无条件删除；
// 本进程创建的租约一并回收。
func (s *Store) Release(ctx context.Context, name string) error {
	key := s.lockKey(name)
	if _, err := s.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", name, err)
	}

	s.mu.Lock()
	leaseID, ok := s.leases[name]
	delete(s.leases, name)
	s.mu.Unlock()

	if ok {
		if _, err := s.client.Revoke(ctx, leaseID); err != nil {
			log.Printf("[etcd/Lock] Failed to revoke lease: %v", err)
		}
	}

	return nil
}
