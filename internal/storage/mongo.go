package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/NoahNelson/Pipes/internal/fingerprint"
	"github.com/NoahNelson/Pipes/internal/model"
)

const (
	DefaultMongoDatabase = "pipes"
	mongoBatchSize       = 1000
)

type MongoClient struct {
	client       *mongo.Client
	recordings   *mongo.Collection
	fingerprints *mongo.Collection
}

type mongoRecording struct {
	ID        int64     `bson:"_id"`
	Name      string    `bson:"name"`
	CreatedAt time.Time `bson:"created_at"`
}

type mongoFingerprint struct {
	Hash        int64 `bson:"hash"`
	Offset      int64 `bson:"offset"`
	RecordingID int64 `bson:"recording_id"`
}

// NewMongoClient connects to uri and uses the given database, creating the
// indexes the lookups rely on.
func NewMongoClient(ctx context.Context, uri, database string) (*MongoClient, error) {
	if database == "" {
		database = DefaultMongoDatabase
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("error pinging mongo: %w", err)
	}

	db := client.Database(database)
	c := &MongoClient{
		client:       client,
		recordings:   db.Collection("recordings"),
		fingerprints: db.Collection("fingerprints"),
	}
	if err := c.createIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return c, nil
}

func (c *MongoClient) createIndexes(ctx context.Context) error {
	_, err := c.recordings.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("creating recording index: %w", err)
	}

	_, err = c.fingerprints.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "hash", Value: 1}, {Key: "offset", Value: 1}, {Key: "recording_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "recording_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("creating fingerprint indexes: %w", err)
	}
	return nil
}

func (c *MongoClient) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Disconnect(context.Background())
}

func (c *MongoClient) findRecording(ctx context.Context, name string) (int64, bool, error) {
	var rec mongoRecording
	err := c.recordings.FindOne(ctx, bson.M{"name": name}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rec.ID, true, nil
}

func (c *MongoClient) RegisterRecording(ctx context.Context, name string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, errClientNil
	}
	if strings.TrimSpace(name) == "" {
		return 0, ErrEmptyName
	}

	if id, ok, err := c.findRecording(ctx, name); err != nil {
		return 0, fmt.Errorf("querying existing recording: %w", err)
	} else if ok {
		return id, nil
	}

	var last mongoRecording
	nextID := int64(1)
	err := c.recordings.FindOne(ctx, bson.M{}, options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})).Decode(&last)
	switch {
	case err == nil:
		nextID = last.ID + 1
	case !errors.Is(err, mongo.ErrNoDocuments):
		return 0, fmt.Errorf("finding last recording id: %w", err)
	}

	_, err = c.recordings.InsertOne(ctx, mongoRecording{ID: nextID, Name: name, CreatedAt: time.Now().UTC()})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Lost a race with another writer: either for the name or the ID.
			if id, ok, ferr := c.findRecording(ctx, name); ferr == nil && ok {
				return id, nil
			}
		}
		return 0, fmt.Errorf("creating recording: %w", err)
	}
	return nextID, nil
}

func (c *MongoClient) StoreFingerprints(ctx context.Context, recordingID int64, records []fingerprint.Record) error {
	if c == nil || c.client == nil {
		return errClientNil
	}

	opts := options.InsertMany().SetOrdered(false)
	for start := 0; start < len(records); start += mongoBatchSize {
		end := min(start+mongoBatchSize, len(records))

		docs := make([]any, 0, end-start)
		for _, r := range records[start:end] {
			docs = append(docs, mongoFingerprint{Hash: int64(r.Hash), Offset: r.Offset, RecordingID: recordingID})
		}

		// Unordered inserts keep going past duplicates, which are expected.
		if _, err := c.fingerprints.InsertMany(ctx, docs, opts); err != nil && !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("batch insert fingerprints: %w", err)
		}
	}
	return nil
}

func (c *MongoClient) CouplesByHash(ctx context.Context, hash uint32) ([]model.Couple, error) {
	if c == nil || c.client == nil {
		return nil, errClientNil
	}

	cursor, err := c.fingerprints.Find(ctx, bson.M{"hash": int64(hash)})
	if err != nil {
		return nil, fmt.Errorf("querying fingerprints: %w", err)
	}
	var docs []mongoFingerprint
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding fingerprints: %w", err)
	}

	couples := make([]model.Couple, 0, len(docs))
	for _, d := range docs {
		couples = append(couples, model.Couple{CandidateID: d.RecordingID, Offset: d.Offset})
	}
	return couples, nil
}

func (c *MongoClient) ListRecordings(ctx context.Context) ([]model.Recording, error) {
	if c == nil || c.client == nil {
		return nil, errClientNil
	}

	cursor, err := c.recordings.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("listing recordings: %w", err)
	}
	var docs []mongoRecording
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding recordings: %w", err)
	}

	recs := make([]model.Recording, 0, len(docs))
	for _, d := range docs {
		n, err := c.fingerprints.CountDocuments(ctx, bson.M{"recording_id": d.ID})
		if err != nil {
			return nil, fmt.Errorf("counting fingerprints: %w", err)
		}
		recs = append(recs, model.Recording{ID: d.ID, Name: d.Name, Fingerprints: int(n), CreatedAt: d.CreatedAt})
	}
	return recs, nil
}

func (c *MongoClient) DeleteRecording(ctx context.Context, id int64) error {
	if c == nil || c.client == nil {
		return errClientNil
	}

	if _, err := c.fingerprints.DeleteMany(ctx, bson.M{"recording_id": id}); err != nil {
		return fmt.Errorf("deleting fingerprints: %w", err)
	}
	res, err := c.recordings.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("deleting recording: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("recording %d: %w", id, ErrNotFound)
	}
	return nil
}
