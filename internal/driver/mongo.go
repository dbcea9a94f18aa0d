package driver

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/semaphore"
)

// MongoDriver hands out client sessions as the per-stream connection handle.
// It is a stream.Pool[mongo.Session].
type MongoDriver struct {
	client   *mongo.Client
	database string
	sem      *semaphore.Weighted
}

func NewMongoDriver(ctx context.Context, uri, database string, maxSessions int) (*MongoDriver, error) {
	if maxSessions < 1 {
		maxSessions = 1
	}
	opts := options.Client().ApplyURI(uri).SetMaxPoolSize(uint64(maxSessions))
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	return &MongoDriver{
		client:   client,
		database: database,
		sem:      semaphore.NewWeighted(int64(maxSessions)),
	}, nil
}

func (d *MongoDriver) Name() string {
	return "mongo"
}

// Database is the database queries use when none is named.
func (d *MongoDriver) Database() string {
	return d.database
}

func (d *MongoDriver) Ping(ctx context.Context) error {
	return d.client.Ping(ctx, nil)
}

func (d *MongoDriver) Acquire(ctx context.Context) (mongo.Session, error) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for session slot: %w", err)
	}
	sess, err := d.client.StartSession()
	if err != nil {
		d.sem.Release(1)
		return nil, fmt.Errorf("failed to start mongo session: %w", err)
	}
	return sess, nil
}

func (d *MongoDriver) Release(sess mongo.Session) {
	sess.EndSession(context.Background())
	d.sem.Release(1)
}

func (d *MongoDriver) Close() error {
	return d.client.Disconnect(context.Background())
}

// Find runs a find on coll inside sess and returns a cursor over raw documents.
// limit 0 leaves the result unbounded; DocQuery maps a zero page limit to no documents before calling it.
func Find(ctx context.Context, sess mongo.Session, database, coll string, filter bson.D, skip, limit int64) (*MongoCursor, error) {
	if filter == nil {
		filter = bson.D{}
	}
	opts := options.Find().SetSkip(skip).SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	sctx := mongo.NewSessionContext(ctx, sess)
	cur, err := sess.Client().Database(database).Collection(coll).Find(sctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return &MongoCursor{ctx: sctx, cur: cur}, nil
}

// MongoCursor implements stream.Cursor[bson.Raw].
type MongoCursor struct {
	ctx context.Context
	cur *mongo.Cursor
}

func (c *MongoCursor) Next() bool {
	return c.cur.Next(c.ctx)
}

// Record copies the current document; the driver reuses its batch buffer.
func (c *MongoCursor) Record() (bson.Raw, error) {
	doc := make(bson.Raw, len(c.cur.Current))
	copy(doc, c.cur.Current)
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *MongoCursor) Err() error {
	return c.cur.Err()
}

func (c *MongoCursor) Close() error {
	return c.cur.Close(context.Background())
}
