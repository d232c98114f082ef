// Package users is a Redis-backed account store implementing the engine's
// UserProvider. Records are small JSON documents keyed by user ID, with a
// secondary index from the provider subject.
package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/scalebench/authcore"
)

// ErrNotFound is returned when no record exists for the requested key.
var ErrNotFound = errors.New("users: not found")

const opTimeout = 5 * time.Second

// Store persists user records in Redis.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// NewStore returns a Store using the given key prefix ("users" when empty).
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "users"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) idKey(userID string) string   { return s.prefix + ":id:" + userID }
func (s *Store) subKey(subject string) string { return s.prefix + ":sub:" + subject }

// GetOrCreateByIdentity resolves the provider subject to an existing record
// or creates one with the lowest role. Concurrent first logins race on a
// SetNX over the subject index, so exactly one record wins.
func (s *Store) GetOrCreateByIdentity(ctx context.Context, identity authcore.Identity) (authcore.UserRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if identity.Subject == "" {
		return authcore.UserRecord{}, errors.New("users: empty subject")
	}

	if id, err := s.client.Get(ctx, s.subKey(identity.Subject)).Result(); err == nil {
		return s.GetUserByID(ctx, id)
	} else if !errors.Is(err, redis.Nil) {
		return authcore.UserRecord{}, fmt.Errorf("users: subject lookup: %w", err)
	}

	record := authcore.UserRecord{
		UserID:    uuid.NewString(),
		Email:     identity.Email,
		Role:      authcore.RoleUser,
		CompanyID: "",
		Status:    authcore.AccountActive,
	}

	created, err := s.client.SetNX(ctx, s.subKey(identity.Subject), record.UserID, 0).Result()
	if err != nil {
		return authcore.UserRecord{}, fmt.Errorf("users: subject index: %w", err)
	}
	if !created {
		// Lost the race; read the winner.
		id, err := s.client.Get(ctx, s.subKey(identity.Subject)).Result()
		if err != nil {
			return authcore.UserRecord{}, fmt.Errorf("users: subject lookup: %w", err)
		}
		return s.GetUserByID(ctx, id)
	}

	if err := s.put(ctx, record); err != nil {
		return authcore.UserRecord{}, err
	}
	return record, nil
}

// GetUserByID loads a record by user ID.
func (s *Store) GetUserByID(ctx context.Context, userID string) (authcore.UserRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := s.client.Get(ctx, s.idKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return authcore.UserRecord{}, ErrNotFound
	}
	if err != nil {
		return authcore.UserRecord{}, fmt.Errorf("users: load: %w", err)
	}
	var record authcore.UserRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return authcore.UserRecord{}, fmt.Errorf("users: decode: %w", err)
	}
	return record, nil
}

// SetRole updates a record's role.
func (s *Store) SetRole(ctx context.Context, userID string, role authcore.Role) error {
	return s.update(ctx, userID, func(r *authcore.UserRecord) { r.Role = role })
}

// SetStatus updates a record's account status.
func (s *Store) SetStatus(ctx context.Context, userID string, status authcore.AccountStatus) error {
	return s.update(ctx, userID, func(r *authcore.UserRecord) { r.Status = status })
}

// SetCompany assigns a record to a company.
func (s *Store) SetCompany(ctx context.Context, userID, companyID string) error {
	return s.update(ctx, userID, func(r *authcore.UserRecord) { r.CompanyID = companyID })
}

func (s *Store) update(ctx context.Context, userID string, mutate func(*authcore.UserRecord)) error {
	record, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	mutate(&record)

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.put(ctx, record)
}

func (s *Store) put(ctx context.Context, record authcore.UserRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("users: encode: %w", err)
	}
	if err := s.client.Set(ctx, s.idKey(record.UserID), raw, 0).Err(); err != nil {
		return fmt.Errorf("users: store: %w", err)
	}
	return nil
}
