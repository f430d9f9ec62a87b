package ingest

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// RawArchiver persists an AgentStep's untruncated raw payload out of
// band, for the steps whose raw field the sanitizer truncates before it
// ever reaches the relational store. Archiving is opt-in: a nil
// RawArchiver means truncated payloads are simply dropped, matching
// plain sanitizer behavior.
type RawArchiver interface {
	Archive(ctx context.Context, project, runID string, stepIndex int, raw string) error
}

// archivedStep is the document shape stored in Mongo.
type archivedStep struct {
	Project    string    `bson:"project"`
	RunID      string    `bson:"run_id"`
	StepIndex  int       `bson:"step_index"`
	Raw        string    `bson:"raw"`
	ArchivedAt time.Time `bson:"archived_at"`
}

// MongoRawArchiver archives raw payloads to a MongoDB collection. The
// relational store (GormStore) only ever sees the truncated form, per
// C3's truncation-before-persistence rule; the full payload lives only
// here, addressable by (project, run_id, step_index) for operators
// debugging a flagged run.
type MongoRawArchiver struct {
	collection *mongo.Collection
}

// NewMongoRawArchiver creates a MongoRawArchiver backed by an already
// connected client.
func NewMongoRawArchiver(client *mongo.Client, database, collection string) *MongoRawArchiver {
	return &MongoRawArchiver{collection: client.Database(database).Collection(collection)}
}

// Archive upserts the raw payload for (project, runID, stepIndex),
// replacing any previous archive of the same step so retries don't
// accumulate duplicate documents.
func (a *MongoRawArchiver) Archive(ctx context.Context, project, runID string, stepIndex int, raw string) error {
	filter := bson.M{"project": project, "run_id": runID, "step_index": stepIndex}
	update := bson.M{"$set": archivedStep{
		Project:    project,
		RunID:      runID,
		StepIndex:  stepIndex,
		Raw:        raw,
		ArchivedAt: time.Now(),
	}}
	_, err := a.collection.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

// ConnectMongo dials uri and verifies connectivity with a ping, matching
// the fail-fast style of this package's other store constructors
// (NewGormStore's callers check AutoMigrate's error the same way).
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, err
	}
	return client, nil
}
