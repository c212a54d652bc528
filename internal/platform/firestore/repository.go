package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document is a decoded snapshot plus its id and timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// QueryBuilder customises Firestore queries before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// Collection offers typed access to one Firestore collection whose documents decode into T.
type Collection[T any] struct {
	provider *Provider
	name     string
}

// NewCollection binds a typed collection to provider.
func NewCollection[T any](provider *Provider, name string) *Collection[T] {
	return &Collection[T]{provider: provider, name: strings.TrimSpace(name)}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// Create writes value under id and fails with a conflict when the document already exists.
func (c *Collection[T]) Create(ctx context.Context, id string, value T) error {
	doc, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	if _, err := doc.Create(ctx, value); err != nil {
		return WrapError(c.op("create"), err)
	}
	return nil
}

// Set upserts value under id.
func (c *Collection[T]) Set(ctx context.Context, id string, value T) error {
	doc, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	if _, err := doc.Set(ctx, value); err != nil {
		return WrapError(c.op("set"), err)
	}
	return nil
}

// Get fetches and decodes the document stored under id.
func (c *Collection[T]) Get(ctx context.Context, id string) (Document[T], error) {
	doc, err := c.Doc(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snap, err := doc.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(c.op("get"), err)
	}
	return Decode[T](snap)
}

// Query runs build against the collection and decodes every result.
func (c *Collection[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	ref, err := c.ref(ctx)
	if err != nil {
		return nil, err
	}
	query := ref.Query
	if build != nil {
		query = build(query)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var docs []Document[T]
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return docs, nil
		}
		if err != nil {
			return nil, WrapError(c.op("query"), err)
		}
		doc, err := Decode[T](snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
}

// Doc returns the reference for id, for use inside transactions.
func (c *Collection[T]) Doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(c.op("document"), errors.New("firestore: document id is required"))
	}
	ref, err := c.ref(ctx)
	if err != nil {
		return nil, err
	}
	return ref.Doc(id), nil
}

// Ref returns the collection reference.
func (c *Collection[T]) Ref(ctx context.Context) (*firestore.CollectionRef, error) {
	return c.ref(ctx)
}

func (c *Collection[T]) ref(ctx context.Context) (*firestore.CollectionRef, error) {
	if c == nil || c.provider == nil {
		return nil, WrapError("collection", errors.New("firestore: provider is nil"))
	}
	if c.name == "" {
		return nil, WrapError("collection", errors.New("firestore: collection name is required"))
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name), nil
}

func (c *Collection[T]) op(action string) string {
	return c.name + "." + action
}

// Decode converts snap into a typed Document.
func Decode[T any](snap *firestore.DocumentSnapshot) (Document[T], error) {
	var data T
	if err := snap.DataTo(&data); err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode document %s: %w", snap.Ref.ID, err)
	}
	return Document[T]{
		ID:         snap.Ref.ID,
		Data:       data,
		CreateTime: snap.CreateTime,
		UpdateTime: snap.UpdateTime,
	}, nil
}
