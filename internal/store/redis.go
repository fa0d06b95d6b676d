package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xtxerr/dossier/config"
	"github.com/xtxerr/dossier/internal/date"
	"github.com/xtxerr/dossier/internal/errors"
)

// Redis stores each document in a hash holding the protobuf encoded
// structpb.Value and its modification time. Every partition keeps a set of
// its document names and a set of its child partitions.
//
// Key layout, for prefix "dossier:" and partition path p:
//
//	dossier:doc:<p>|<name>   hash {v, t}
//	dossier:names:<p>        set of names
//	dossier:dirs:<p>         set of child partition dates
type Redis struct {
	client redis.UniversalClient
	prefix string
	path   string
}

// NewRedis wraps a connected client.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = config.DefaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

// OpenRedis connects to the server at url (redis://host:port/db).
func OpenRedis(ctx context.Context, url, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client, prefix), nil
}

// Close closes the underlying client.
func (s *Redis) Close() error {
	return s.client.Close()
}

func (s *Redis) docKey(name string) string {
	return s.prefix + "doc:" + s.path + "|" + name
}

func (s *Redis) namesKey(path string) string {
	return s.prefix + "names:" + path
}

func (s *Redis) dirsKey(path string) string {
	return s.prefix + "dirs:" + path
}

func (s *Redis) Has(ctx context.Context, name string) (bool, error) {
	n, err := s.client.Exists(ctx, s.docKey(name)).Result()
	if err != nil {
		return false, fmt.Errorf("has %s: %w", name, err)
	}
	return n > 0, nil
}

// Store writes the document and registers it, and every ancestor
// partition, in one transaction.
func (s *Redis) Store(ctx context.Context, name string, value any) error {
	if err := checkName(name); err != nil {
		return err
	}
	doc, err := Normalize(value)
	if err != nil {
		return err
	}
	pv, err := structpb.NewValue(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	data, err := proto.Marshal(pv)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.docKey(name), "v", data, "t", time.Now().UnixNano())
		pipe.SAdd(ctx, s.namesKey(s.path), name)

		var parent string
		for _, seg := range splitPath(s.path) {
			pipe.SAdd(ctx, s.dirsKey(parent), seg)
			if parent == "" {
				parent = seg
			} else {
				parent += "/" + seg
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store %s: %w", name, err)
	}
	return nil
}

func (s *Redis) Retrieve(ctx context.Context, name string) (any, error) {
	data, err := s.client.HGet(ctx, s.docKey(name), "v").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(s.path, name)
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", name, err)
	}

	var pv structpb.Value
	if err := proto.Unmarshal(data, &pv); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return pv.AsInterface(), nil
}

func (s *Redis) Names(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.namesKey(s.path)).Result()
	if err != nil {
		return nil, fmt.Errorf("list names: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Redis) Dirs(ctx context.Context) ([]date.Date, error) {
	members, err := s.client.SMembers(ctx, s.dirsKey(s.path)).Result()
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	dirs := make([]date.Date, 0, len(members))
	for _, m := range members {
		if d, ok := parseSegment(m); ok {
			dirs = append(dirs, d)
		}
	}
	date.Sort(dirs)
	return dirs, nil
}

func (s *Redis) Sub(d date.Date) Store {
	return &Redis{client: s.client, prefix: s.prefix, path: joinPath(s.path, d)}
}

func (s *Redis) Age(ctx context.Context, name string) (time.Duration, error) {
	nanos, err := s.client.HGet(ctx, s.docKey(name), "t").Int64()
	if errors.Is(err, redis.Nil) {
		return 0, notFound(s.path, name)
	}
	if err != nil {
		return 0, fmt.Errorf("age %s: %w", name, err)
	}
	return time.Since(time.Unix(0, nanos)), nil
}

// Delete removes the document. Partition registrations are kept, matching
// the disk backend where an emptied directory remains.
func (s *Redis) Delete(ctx context.Context, name string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.docKey(name))
		pipe.SRem(ctx, s.namesKey(s.path), name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

var _ Store = (*Redis)(nil)
