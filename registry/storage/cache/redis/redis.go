// Package redis provides a redis backed cache of remote item lookups, shared
// by every registry node using the same redis instance.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/mavenhub/registry/configuration"
	"github.com/mavenhub/registry/registry/repository"
	"github.com/opencontainers/go-digest"
)

// NewClient returns a client for the configured redis instance or sentinel
// group.
func NewClient(config configuration.Redis) redis.UniversalClient {
	opts := &redis.UniversalOptions{
		Addrs:        strings.Split(config.Addr, ","),
		DB:           config.DB,
		Password:     config.Password,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		PoolSize:     config.Pool.Size,
		MaxConnAge:   config.Pool.MaxLifetime,
		MasterName:   config.MainName,
	}
	if config.TLS.Enabled {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: config.TLS.Insecure}
	}
	if config.Pool.IdleTimeout > 0 {
		opts.IdleTimeout = config.Pool.IdleTimeout
	}

	return redis.NewUniversalClient(opts)
}

// infoCache stores each lookup in a redis hash keyed by the item path. The
// hash expires together with the lookup.
type infoCache struct {
	client redis.UniversalClient
}

// NewInfoCache returns a repository.InfoCache using client.
func NewInfoCache(client redis.UniversalClient) repository.InfoCache {
	return &infoCache{client: client}
}

const (
	fieldFound        = "found"
	fieldFolder       = "folder"
	fieldSize         = "size"
	fieldLastModified = "lastmodified"
	fieldDigest       = "digest"
)

func (c *infoCache) itemHashKey(p repository.RepoPath) string {
	return "items::" + p.String()
}

// Get implements repository.InfoCache.
func (c *infoCache) Get(ctx context.Context, p repository.RepoPath) (repository.RepoResource, bool, error) {
	reply, err := c.client.HGetAll(ctx, c.itemHashKey(p)).Result()
	if err != nil {
		return repository.RepoResource{}, false, err
	}
	// a missing "found" field is a partial write, treat it as a miss
	if _, ok := reply[fieldFound]; !ok {
		return repository.RepoResource{}, false, nil
	}

	res := repository.RepoResource{RepoPath: p, MetadataOnly: true}
	if res.Found, err = strconv.ParseBool(reply[fieldFound]); err != nil {
		return repository.RepoResource{}, false, fmt.Errorf("parsing cached lookup of %s: %w", p, err)
	}
	if !res.Found {
		return res, true, nil
	}

	if v, ok := reply[fieldFolder]; ok {
		if res.Folder, err = strconv.ParseBool(v); err != nil {
			return repository.RepoResource{}, false, fmt.Errorf("parsing cached lookup of %s: %w", p, err)
		}
	}
	if v, ok := reply[fieldSize]; ok {
		if res.Size, err = strconv.ParseInt(v, 10, 64); err != nil {
			return repository.RepoResource{}, false, fmt.Errorf("parsing cached lookup of %s: %w", p, err)
		}
	}
	if v, ok := reply[fieldLastModified]; ok && v != "0" {
		nanos, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return repository.RepoResource{}, false, fmt.Errorf("parsing cached lookup of %s: %w", p, err)
		}
		res.LastModified = time.Unix(0, nanos).UTC()
	}
	if v := reply[fieldDigest]; v != "" {
		if res.Digest, err = digest.Parse(v); err != nil {
			return repository.RepoResource{}, false, fmt.Errorf("parsing cached lookup of %s: %w", p, err)
		}
	}

	return res, true, nil
}

// Set implements repository.InfoCache.
func (c *infoCache) Set(ctx context.Context, res repository.RepoResource, ttl time.Duration) error {
	key := c.itemHashKey(res.RepoPath)

	var lastModified int64
	if !res.LastModified.IsZero() {
		lastModified = res.LastModified.UnixNano()
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, map[string]interface{}{
			fieldFound:        strconv.FormatBool(res.Found),
			fieldFolder:       strconv.FormatBool(res.Folder),
			fieldSize:         res.Size,
			fieldLastModified: lastModified,
			fieldDigest:       res.Digest.String(),
		})
		pipe.Expire(ctx, key, ttl)
		return nil
	})

	return err
}
