package source

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/luki/farmdash/internal/config"
)

// Mongo reads the newest documents of a collection by timestamp.
type Mongo struct {
	coll  *mongo.Collection
	limit int
	log   zerolog.Logger
}

// NewMongo wraps an existing collection handle.
func NewMongo(coll *mongo.Collection, limit int, log zerolog.Logger) *Mongo {
	return &Mongo{coll: coll, limit: limit, log: log}
}

// ConnectMongo connects, pings the primary and returns the source together
// with the client so the caller can disconnect it.
func ConnectMongo(ctx context.Context, cfg config.MongoConfig, limit int, log zerolog.Logger) (*Mongo, *mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongodb: %w", err)
	}
	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	return NewMongo(coll, limit, log), client, nil
}

func (m *Mongo) Name() string {
	return "mongo:" + m.coll.Database().Name() + "." + m.coll.Name()
}

func (m *Mongo) Fetch(ctx context.Context) (Batch, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if m.limit > 0 {
		opts.SetLimit(int64(m.limit))
	}

	cur, err := m.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return Batch{}, fmt.Errorf("%w: find: %v", ErrTransport, err)
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return Batch{}, fmt.Errorf("%w: read cursor: %v", ErrDecode, err)
	}

	rows := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, documentRow(d))
	}
	return normalize(rows, m.log), nil
}

// documentRow converts BSON-specific values into types the normaliser knows.
func documentRow(doc bson.M) map[string]any {
	row := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "_id" {
			continue
		}
		switch x := v.(type) {
		case primitive.Decimal128:
			if f, err := strconv.ParseFloat(x.String(), 64); err == nil {
				row[k] = f
			} else {
				row[k] = x.String()
			}
		case primitive.DateTime:
			row[k] = x.Time().UTC()
		default:
			row[k] = v
		}
	}
	return row
}
