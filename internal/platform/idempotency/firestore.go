package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/food-passport/api/internal/platform/firestore"
)

const (
	defaultCollection   = "idempotency_keys"
	defaultCleanupLimit = 100
)

type recordDoc struct {
	Key            string              `firestore:"key"`
	Fingerprint    string              `firestore:"fingerprint"`
	Completed      bool                `firestore:"completed"`
	ResponseStatus int                 `firestore:"responseStatus"`
	ResponseHeader map[string][]string `firestore:"responseHeader"`
	ResponseBody   []byte              `firestore:"responseBody"`
	CreatedAt      time.Time           `firestore:"createdAt"`
	ExpiresAt      time.Time           `firestore:"expiresAt"`
}

func (d recordDoc) record() Record {
	return Record{
		Key:            d.Key,
		Fingerprint:    d.Fingerprint,
		Completed:      d.Completed,
		ResponseStatus: d.ResponseStatus,
		ResponseHeader: d.ResponseHeader,
		ResponseBody:   d.ResponseBody,
		CreatedAt:      d.CreatedAt,
		ExpiresAt:      d.ExpiresAt,
	}
}

// FirestoreStore keeps records in the idempotency_keys collection.
type FirestoreStore struct {
	provider *pfirestore.Provider
	records  *pfirestore.Collection[recordDoc]
}

// NewFirestoreStore binds the store to provider. An empty collection name selects the default.
func NewFirestoreStore(provider *pfirestore.Provider, collection string) *FirestoreStore {
	if collection == "" {
		collection = defaultCollection
	}
	return &FirestoreStore{
		provider: provider,
		records:  pfirestore.NewCollection[recordDoc](provider, collection),
	}
}

func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	ref, err := s.records.Doc(ctx, documentID(key))
	if err != nil {
		return 0, Record{}, err
	}

	var (
		state  State
		result Record
	)
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			doc, decodeErr := pfirestore.Decode[recordDoc](snap)
			if decodeErr != nil {
				return decodeErr
			}
			existing := doc.Data.record()
			if !existing.expired(now) {
				if existing.Fingerprint != fingerprint {
					return ErrFingerprintMismatch
				}
				state, result = StatePending, existing
				if existing.Completed {
					state = StateCompleted
				}
				return nil
			}
		}
		fresh := recordDoc{Key: key, Fingerprint: fingerprint, CreatedAt: now, ExpiresAt: now.Add(ttl)}
		state, result = StateNew, fresh.record()
		return tx.Set(ref, fresh)
	})
	if err != nil {
		return 0, Record{}, err
	}
	return state, result, nil
}

func (s *FirestoreStore) Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	ref, err := s.records.Doc(ctx, documentID(key))
	if err != nil {
		return err
	}

	return s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc := recordDoc{Key: key, Fingerprint: fingerprint, CreatedAt: now}
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			existing, decodeErr := pfirestore.Decode[recordDoc](snap)
			if decodeErr != nil {
				return decodeErr
			}
			if existing.Data.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
			doc.CreatedAt = existing.Data.CreatedAt
		case status.Code(err) != codes.NotFound:
			return err
		}
		doc.Completed = true
		doc.ResponseStatus = resp.Status
		doc.ResponseHeader = replayableHeader(resp.Header)
		doc.ResponseBody = append([]byte(nil), resp.Body...)
		doc.ExpiresAt = now.Add(ttl)
		return tx.Set(ref, doc)
	})
}

func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	ref, err := s.records.Doc(ctx, documentID(key))
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return pfirestore.WrapError("idempotency.release", err)
	}
	return nil
}

// CleanupExpired deletes up to limit expired records in one batch.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultCleanupLimit
	}
	docs, err := s.records.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("expiresAt", "<=", now.UTC()).Limit(limit)
	})
	if err != nil || len(docs) == 0 {
		return 0, err
	}

	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	bw := client.BulkWriter(ctx)
	for _, doc := range docs {
		ref, refErr := s.records.Doc(ctx, doc.ID)
		if refErr != nil {
			return 0, refErr
		}
		if _, err := bw.Delete(ref); err != nil {
			bw.End()
			return 0, pfirestore.WrapError("idempotency.cleanup", err)
		}
	}
	bw.End()
	return len(docs), nil
}
