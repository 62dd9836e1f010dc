package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"secretari/internal/model"
	"secretari/internal/store"
)

// Lookup is the result of reading a user record. Found is false when no
// record exists; a missing record is never reported as an error.
type Lookup struct {
	Record *model.UserRecord
	Found  bool
}

// UserRecordRepository persists user records in the remote record store,
// one container per user, referenced from the application root.
type UserRecordRepository interface {
	Find(ctx context.Context, username string) (Lookup, error)
	FindByContainer(ctx context.Context, containerID string) (Lookup, error)
	// Insert stores rec in a fresh container and binds its username. When
	// another writer bound the username first, the winner is returned with
	// created set to false.
	Insert(ctx context.Context, rec *model.UserRecord) (stored *model.UserRecord, created bool, err error)
	Save(ctx context.Context, rec *model.UserRecord) error
	// Relocate moves rec into a new container and releases the container of
	// from. Once the username points at the new container the move is
	// reported as done, even if releasing the old container fails.
	Relocate(ctx context.Context, rec, from *model.UserRecord) (*model.UserRecord, error)
	Delete(ctx context.Context, username string) error
	List(ctx context.Context) ([]*model.UserRecord, error)
}

type userRecordRepository struct {
	store   store.Store
	session *store.Session
}

// NewUserRecordRepository builds a store-backed repository.
func NewUserRecordRepository(s store.Store, session *store.Session) UserRecordRepository {
	return &userRecordRepository{store: s, session: session}
}

func (r *userRecordRepository) Find(ctx context.Context, username string) (Lookup, error) {
	id, found, err := r.store.Resolve(ctx, username)
	if err != nil {
		return Lookup{}, fmt.Errorf("resolve %q: %w", username, err)
	}
	if !found {
		return Lookup{}, nil
	}
	return r.FindByContainer(ctx, id)
}

func (r *userRecordRepository) FindByContainer(ctx context.Context, containerID string) (Lookup, error) {
	res, err := r.store.Get(ctx, containerID)
	if err != nil {
		return Lookup{}, fmt.Errorf("get container %s: %w", containerID, err)
	}
	if !res.Found {
		return Lookup{}, nil
	}

	var rec model.UserRecord
	if err := json.Unmarshal(res.Data, &rec); err != nil {
		return Lookup{}, fmt.Errorf("decode user record in %s: %w", containerID, err)
	}
	rec.ContainerID = containerID
	rec.EnsureMaps()
	return Lookup{Record: &rec, Found: true}, nil
}

func (r *userRecordRepository) Insert(ctx context.Context, rec *model.UserRecord) (*model.UserRecord, bool, error) {
	id, err := r.allocate(ctx, rec)
	if err != nil {
		return nil, false, err
	}

	bound, err := r.store.Bind(ctx, rec.Username, id)
	if err != nil {
		return nil, false, fmt.Errorf("bind %q: %w", rec.Username, err)
	}
	if bound {
		return rec, true, nil
	}

	r.release(ctx, id)
	winner, err := r.Find(ctx, rec.Username)
	if err != nil {
		return nil, false, err
	}
	if !winner.Found {
		return nil, false, fmt.Errorf("username %q bound to a missing record", rec.Username)
	}
	return winner.Record, false, nil
}

func (r *userRecordRepository) Save(ctx context.Context, rec *model.UserRecord) error {
	if rec.ContainerID == "" {
		return fmt.Errorf("save %q: record has no container", rec.Username)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode user record: %w", err)
	}
	if err := r.store.Put(ctx, rec.ContainerID, data); err != nil {
		return fmt.Errorf("put %q: %w", rec.Username, err)
	}
	return nil
}

func (r *userRecordRepository) Relocate(ctx context.Context, rec, from *model.UserRecord) (*model.UserRecord, error) {
	var oldID, oldName string
	if from != nil {
		oldID, oldName = from.ContainerID, from.Username
	}

	if _, err := r.allocate(ctx, rec); err != nil {
		return nil, err
	}
	if err := r.store.Rebind(ctx, rec.Username, rec.ContainerID); err != nil {
		return nil, fmt.Errorf("rebind %q: %w", rec.Username, err)
	}
	if oldID == "" {
		return rec, nil
	}

	// the rebind committed the move; cleanup of the old container is best-effort
	if oldName != rec.Username {
		if err := r.store.Unbind(ctx, oldName); err != nil {
			log.Printf("relocate %q: unbind %q: %v", rec.Username, oldName, err)
		}
	}
	r.release(ctx, oldID)
	return rec, nil
}

func (r *userRecordRepository) Delete(ctx context.Context, username string) error {
	id, found, err := r.store.Resolve(ctx, username)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", username, err)
	}
	if !found {
		return nil
	}
	if err := r.store.Unbind(ctx, username); err != nil {
		return fmt.Errorf("unbind %q: %w", username, err)
	}
	if err := r.store.RemoveRef(ctx, r.session.Root(), id); err != nil {
		return fmt.Errorf("remove ref %s: %w", id, err)
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete container %s: %w", id, err)
	}
	return nil
}

func (r *userRecordRepository) List(ctx context.Context) ([]*model.UserRecord, error) {
	names, err := r.store.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("list names: %w", err)
	}

	records := make([]*model.UserRecord, 0, len(names))
	for _, id := range names {
		l, err := r.FindByContainer(ctx, id)
		if err != nil {
			return nil, err
		}
		if l.Found {
			records = append(records, l.Record)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Username < records[j].Username })
	return records, nil
}

// allocate creates a container for rec, writes it and references it from the root.
func (r *userRecordRepository) allocate(ctx context.Context, rec *model.UserRecord) (string, error) {
	id, err := r.store.Create(ctx, store.ContainerSpec{Kind: store.KindUser, Owner: rec.Username})
	if err != nil {
		return "", fmt.Errorf("create container for %q: %w", rec.Username, err)
	}
	rec.ContainerID = id
	if err := r.Save(ctx, rec); err != nil {
		r.release(ctx, id)
		return "", err
	}
	if err := r.store.AddRef(ctx, r.session.Root(), id); err != nil {
		r.release(ctx, id)
		return "", fmt.Errorf("add ref %s: %w", id, err)
	}
	return id, nil
}

// release drops a container that no name points at any more. Failures
// leave an orphan behind and are only logged.
func (r *userRecordRepository) release(ctx context.Context, id string) {
	if err := r.store.RemoveRef(ctx, r.session.Root(), id); err != nil {
		log.Printf("release container %s: remove ref: %v", id, err)
	}
	if err := r.store.Delete(ctx, id); err != nil {
		log.Printf("release container %s: delete: %v", id, err)
	}
}
