package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/svaia/api/internal/model"
)

const (
	keyProjectsAll = "projects:all"
	keyGenerating  = "projects:generating"
)

// RedisProjectStore keeps each project as a JSON document under
// project:<email>:<name>. The in_process flag is a separate SETNX key so the
// flip is atomic across API instances and workers.
type RedisProjectStore struct {
	redis *redis.Client
}

func NewRedisProjectStore(client *redis.Client) *RedisProjectStore {
	return &RedisProjectStore{redis: client}
}

func projectKey(k model.ProjectKey) string {
	return fmt.Sprintf("project:%s:%s", k.Email, k.Name)
}

func generatingKey(k model.ProjectKey) string {
	return fmt.Sprintf("generating:%s:%s", k.Email, k.Name)
}

func userKey(email string) string {
	return "projects:user:" + email
}

func member(k model.ProjectKey) string {
	data, _ := json.Marshal(k.Pair())
	return string(data)
}

func parseMember(s string) (model.ProjectKey, error) {
	var pair [2]string
	if err := json.Unmarshal([]byte(s), &pair); err != nil {
		return model.ProjectKey{}, err
	}
	return model.ProjectKey{Email: pair[0], Name: pair[1]}, nil
}

func (s *RedisProjectStore) Save(ctx context.Context, p *model.Project) error {
	now := time.Now().UTC()
	existing, err := s.Get(ctx, p.Key())
	switch {
	case err == nil:
		p.CreatedAt = existing.CreatedAt
		p.Report = existing.Report
	case errors.Is(err, ErrNotFound):
		p.CreatedAt = now
	default:
		return err
	}
	p.ModificationDate = now

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, projectKey(p.Key()), data, 0)
		pipe.SAdd(ctx, userKey(p.Email), p.Name)
		pipe.SAdd(ctx, keyProjectsAll, member(p.Key()))
		return nil
	})
	return err
}

func (s *RedisProjectStore) Get(ctx context.Context, key model.ProjectKey) (*model.Project, error) {
	data, err := s.redis.Get(ctx, projectKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var p model.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project: %w", err)
	}

	n, err := s.redis.Exists(ctx, generatingKey(key)).Result()
	if err != nil {
		return nil, err
	}
	p.InProcess = n > 0
	return &p, nil
}

func (s *RedisProjectStore) List(ctx context.Context, email string) ([]*model.Project, error) {
	var keys []model.ProjectKey
	if email != "" {
		names, err := s.redis.SMembers(ctx, userKey(email)).Result()
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			keys = append(keys, model.ProjectKey{Email: email, Name: n})
		}
	} else {
		members, err := s.redis.SMembers(ctx, keyProjectsAll).Result()
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			k, err := parseMember(m)
			if err != nil {
				continue
			}
			keys = append(keys, k)
		}
	}
	sortKeys(keys)

	projects := make([]*model.Project, 0, len(keys))
	for _, k := range keys {
		p, err := s.Get(ctx, k)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, nil
}

func (s *RedisProjectStore) InProcess(ctx context.Context, email string) ([]model.ProjectKey, error) {
	members, err := s.redis.SMembers(ctx, keyGenerating).Result()
	if err != nil {
		return nil, err
	}

	keys := make([]model.ProjectKey, 0, len(members))
	for _, m := range members {
		k, err := parseMember(m)
		if err != nil {
			continue
		}
		if email != "" && k.Email != email {
			continue
		}
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys, nil
}

func (s *RedisProjectStore) BeginGeneration(ctx context.Context, key model.ProjectKey) error {
	n, err := s.redis.Exists(ctx, projectKey(key)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	ok, err := s.redis.SetNX(ctx, generatingKey(key), time.Now().UTC().Format(time.RFC3339), 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrInProcess
	}
	return s.redis.SAdd(ctx, keyGenerating, member(key)).Err()
}

func (s *RedisProjectStore) SaveReport(ctx context.Context, key model.ProjectKey, r *model.Report) error {
	p, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	p.Report = r
	p.InProcess = false
	p.ModificationDate = time.Now().UTC()

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, projectKey(key), data, 0)
		pipe.Del(ctx, generatingKey(key))
		pipe.SRem(ctx, keyGenerating, member(key))
		return nil
	})
	return err
}

func (s *RedisProjectStore) EndGeneration(ctx context.Context, key model.ProjectKey) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, generatingKey(key))
		pipe.SRem(ctx, keyGenerating, member(key))
		return nil
	})
	return err
}

func sortKeys(keys []model.ProjectKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Email != keys[j].Email {
			return keys[i].Email < keys[j].Email
		}
		return keys[i].Name < keys[j].Name
	})
}
