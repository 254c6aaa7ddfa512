// Package mongo implements the remote record store over MongoDB.
//
// Records live in a single collection keyed by the entity identifier.
// Creation and modification dates are server-assigned ($$NOW in a
// pipeline update) so all writers observe one clock and the change feed
// classifies created-vs-updated on a single timeline. Deletions are
// server-side tombstones: the document
// keeps its identity and type and is reported through the change feed as
// a deletion.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/roach88/annosync/internal/remote"
	"github.com/roach88/annosync/internal/syncable"
)

const (
	collectionName = "records"
	pingTimeout    = 5 * time.Second
)

// Client is a remote.Client backed by a MongoDB collection.
type Client struct {
	records    *mongo.Collection
	client     *mongo.Client
	batchLimit int
}

// recordDoc is the stored shape of a remote record.
type recordDoc struct {
	ID         string    `bson:"_id"`
	Type       string    `bson:"record_type"`
	Fields     bson.M    `bson:"fields,omitempty"`
	CreatedAt  time.Time `bson:"created_at"`
	ModifiedAt time.Time `bson:"modified_at"`
	Deleted    bool      `bson:"deleted,omitempty"`
}

// Option configures a Client.
type Option func(*Client)

// WithBatchLimit lowers the per-request chunk size for batch uploads.
// Values outside 1..remote.DefaultBatchLimit keep the default.
func WithBatchLimit(n int) Option {
	return func(c *Client) {
		if n > 0 && n <= remote.DefaultBatchLimit {
			c.batchLimit = n
		}
	}
}

// Connect dials the backend and prepares the records collection.
// An index on (record_type, modified_at) backs the change feed query.
func Connect(ctx context.Context, uri, database string, opts ...Option) (*Client, error) {
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect remote store: %w", err)
	}

	col := cli.Database(database).Collection(collectionName)
	_, err = col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "record_type", Value: 1}, {Key: "modified_at", Value: 1}},
	})
	if err != nil {
		_ = cli.Disconnect(ctx)
		return nil, fmt.Errorf("ensure change feed index: %w", err)
	}

	c := &Client{records: col, client: cli, batchLimit: remote.DefaultBatchLimit}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close disconnects from the backend.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Upload implements remote.Client.
func (c *Client) Upload(ctx context.Context, e syncable.Entity) (syncable.Record, error) {
	rec, err := e.ToRecord()
	if err != nil {
		return syncable.Record{}, err
	}

	after := options.After
	res := c.records.FindOneAndUpdate(ctx,
		bson.M{"_id": rec.ID.String()},
		uploadUpdate(rec),
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(after),
	)

	var doc recordDoc
	if err := res.Decode(&doc); err != nil {
		return syncable.Record{}, classify("upload", rec.ID, err)
	}
	return doc.record()
}

// UploadBatch implements remote.Client. Each chunk is one unordered bulk
// write; per-item failures inside a chunk leave the rest of the chunk
// intact, and a failed chunk does not abort the ones after it. The
// returned records are re-read so their modification dates are the
// server-assigned values.
func (c *Client) UploadBatch(ctx context.Context, entities []syncable.Entity) ([]syncable.Record, error) {
	var (
		saved []syncable.Record
		errs  []error
	)
	for _, chunk := range remote.Chunk(entities, c.batchLimit) {
		ids := make([]string, 0, len(chunk))
		models := make([]mongo.WriteModel, 0, len(chunk))
		for _, e := range chunk {
			rec, err := e.ToRecord()
			if err != nil {
				errs = append(errs, err)
				continue
			}
			ids = append(ids, rec.ID.String())
			models = append(models, mongo.NewUpdateOneModel().
				SetFilter(bson.M{"_id": rec.ID.String()}).
				SetUpdate(uploadUpdate(rec)).
				SetUpsert(true))
		}
		if len(models) == 0 {
			continue
		}

		_, err := c.records.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
		failed := map[string]bool{}
		if err != nil {
			var bwe mongo.BulkWriteException
			if errors.As(err, &bwe) {
				// Unordered bulk write: only the listed items failed.
				for _, we := range bwe.WriteErrors {
					if we.Index >= 0 && we.Index < len(ids) {
						failed[ids[we.Index]] = true
					}
					errs = append(errs, remote.Fatal("upload_batch", we))
				}
			} else {
				// Whole chunk failed; its entities stay pending.
				errs = append(errs, classify("upload_batch", uuid.Nil, err))
				continue
			}
		}

		okIDs := make([]string, 0, len(ids))
		for _, id := range ids {
			if !failed[id] {
				okIDs = append(okIDs, id)
			}
		}
		recs, err := c.fetchByIDs(ctx, okIDs)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		saved = append(saved, recs...)
	}
	return saved, errors.Join(errs...)
}

// FetchChanges implements remote.Client.
func (c *Client) FetchChanges(ctx context.Context, t syncable.RecordType, since *time.Time) ([]syncable.Change, error) {
	filter := bson.M{"record_type": string(t)}
	if since != nil {
		filter["modified_at"] = bson.M{"$gt": *since}
	}

	cur, err := c.records.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "modified_at", Value: 1}}))
	if err != nil {
		return nil, classify("fetch_changes", uuid.Nil, err)
	}
	defer cur.Close(ctx)

	var changes []syncable.Change
	for cur.Next(ctx) {
		var doc recordDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, remote.Fatal("fetch_changes", err)
		}
		if doc.Deleted {
			id, err := uuid.Parse(doc.ID)
			if err != nil {
				return nil, remote.Fatal("fetch_changes", err)
			}
			changes = append(changes, syncable.Change{Kind: syncable.ChangeDeleted, RecordID: id})
			continue
		}
		rec, err := doc.record()
		if err != nil {
			return nil, err
		}
		kind := syncable.ChangeUpdated
		if since == nil || !doc.CreatedAt.Before(*since) {
			kind = syncable.ChangeCreated
		}
		changes = append(changes, syncable.Change{Kind: kind, Record: rec})
	}
	if err := cur.Err(); err != nil {
		return nil, classify("fetch_changes", uuid.Nil, err)
	}
	return changes, nil
}

// Delete implements remote.Client by writing a server-side tombstone so
// other devices observe the deletion through the change feed.
func (c *Client) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := c.records.UpdateOne(ctx,
		bson.M{"_id": id.String()},
		bson.M{
			"$set":         bson.M{"deleted": true},
			"$unset":       bson.M{"fields": ""},
			"$currentDate": bson.M{"modified_at": true},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return classify("delete", id, err)
	}
	return nil
}

// Fetch implements remote.Client.
func (c *Client) Fetch(ctx context.Context, id uuid.UUID) (syncable.Record, error) {
	var doc recordDoc
	err := c.records.FindOne(ctx, bson.M{"_id": id.String(), "deleted": bson.M{"$ne": true}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return syncable.Record{}, remote.ErrNotFound
	}
	if err != nil {
		return syncable.Record{}, classify("fetch", id, err)
	}
	return doc.record()
}

// CheckAvailability implements remote.Client. An unreachable backend is
// reported as Unavailable, not as an error.
func (c *Client) CheckAvailability(ctx context.Context) (remote.Availability, error) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.client.Ping(ctx, readpref.Primary()); err != nil {
		return remote.Unavailable, nil
	}
	return remote.Available, nil
}

// fetchByIDs reads back the documents saved by a bulk write.
func (c *Client) fetchByIDs(ctx context.Context, ids []string) ([]syncable.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := c.records.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, classify("upload_batch", uuid.Nil, err)
	}
	defer cur.Close(ctx)

	var recs []syncable.Record
	for cur.Next(ctx) {
		var doc recordDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, remote.Fatal("upload_batch", err)
		}
		rec, err := doc.record()
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, cur.Err()
}

// uploadUpdate builds the upsert for one record as a pipeline update so
// both timestamps come from the server's clock ($$NOW): modified_at on
// every write, created_at kept from the existing document or stamped on
// insert. Field values are wrapped in $literal so user content is never
// evaluated as an aggregation expression.
func uploadUpdate(rec syncable.Record) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"record_type": string(rec.Type),
			"fields":      bson.M{"$literal": bson.M(rec.Fields)},
			"deleted":     false,
			"modified_at": "$$NOW",
			"created_at":  bson.M{"$ifNull": bson.A{"$created_at", "$$NOW"}},
		}}},
	}
}

// record converts the stored document back to the wire model.
func (d recordDoc) record() (syncable.Record, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return syncable.Record{}, remote.Fatal("decode_record", err)
	}
	return syncable.Record{
		ID:               id,
		Type:             syncable.RecordType(d.Type),
		Fields:           map[string]any(d.Fields),
		CreationDate:     d.CreatedAt,
		ModificationDate: d.ModifiedAt,
	}, nil
}

// classify maps driver failures onto the retry taxonomy: network and
// timeout problems are transient, everything else (auth, command,
// schema) is fatal.
func classify(op string, id uuid.UUID, err error) error {
	kind := remote.KindFatal
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		kind = remote.KindTransient
	}
	return &remote.Error{Op: op, Kind: kind, ID: id, Err: err}
}
