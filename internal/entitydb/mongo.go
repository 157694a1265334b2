package entitydb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"scenes/internal/domain"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore keeps one document per entity with its field values embedded
// under "values", keyed by field id. Integer ids come from a counters
// collection.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

type mongoType struct {
	Name string `bson:"_id"`
	ID   int64  `bson:"id"`
	Kind string `bson:"kind,omitempty"`
}

type mongoEntity struct {
	ID     int64             `bson:"_id"`
	Type   int64             `bson:"type"`
	Parent *int64            `bson:"parent"`
	Name   string            `bson:"name"`
	Values map[string]string `bson:"values"`
}

// OpenMongo connects using cfg and selects cfg.Database ("scenes" if empty).
func OpenMongo(ctx context.Context, cfg Config) (*MongoStore, error) {
	uri := buildMongoURI(cfg)
	logURI := uri
	if cfg.Password != "" {
		logURI = strings.ReplaceAll(logURI, cfg.Password, "***")
	}
	log.Printf("entitydb: connecting to mongo %s", logURI)

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	name := cfg.Database
	if name == "" {
		name = "scenes"
	}
	return &MongoStore{client: client, db: client.Database(name)}, nil
}

func (m *MongoStore) nextID(ctx context.Context, counter string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := m.db.Collection("counters").
		FindOneAndUpdate(ctx, bson.M{"_id": counter}, bson.M{"$inc": bson.M{"seq": int64(1)}}, opts).
		Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("next %s id: %w", counter, err)
	}
	return doc.Seq, nil
}

func (m *MongoStore) defineType(ctx context.Context, coll, name, kind string) (mongoType, error) {
	c := m.db.Collection(coll)
	var t mongoType
	err := c.FindOne(ctx, bson.M{"_id": name}).Decode(&t)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return mongoType{}, err
	}
	id, err := m.nextID(ctx, coll)
	if err != nil {
		return mongoType{}, err
	}
	t = mongoType{Name: name, ID: id, Kind: kind}
	if _, err := c.InsertOne(ctx, t); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			err = c.FindOne(ctx, bson.M{"_id": name}).Decode(&t)
			return t, err
		}
		return mongoType{}, err
	}
	return t, nil
}

func (m *MongoStore) DefineFieldType(ctx context.Context, name string, kind domain.ValueKind) (domain.FieldType, error) {
	t, err := m.defineType(ctx, "field_types", name, string(kind))
	if err != nil {
		return domain.FieldType{}, fmt.Errorf("define field type: %w", err)
	}
	return domain.FieldType{ID: t.ID, Name: t.Name, Kind: domain.ValueKind(t.Kind)}, nil
}

func (m *MongoStore) DefineEntityType(ctx context.Context, name string) (domain.EntityType, error) {
	t, err := m.defineType(ctx, "entity_types", name, "")
	if err != nil {
		return domain.EntityType{}, fmt.Errorf("define entity type: %w", err)
	}
	return domain.EntityType{ID: t.ID, Name: t.Name}, nil
}

func (m *MongoStore) GetFieldType(ctx context.Context, name string) (domain.FieldType, error) {
	var t mongoType
	err := m.db.Collection("field_types").FindOne(ctx, bson.M{"_id": name}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.FieldType{}, fmt.Errorf("%w: %s", domain.ErrUnknownField, name)
	}
	if err != nil {
		return domain.FieldType{}, fmt.Errorf("get field type: %w", err)
	}
	return domain.FieldType{ID: t.ID, Name: t.Name, Kind: domain.ValueKind(t.Kind)}, nil
}

func (m *MongoStore) GetEntityType(ctx context.Context, name string) (domain.EntityType, error) {
	var t mongoType
	err := m.db.Collection("entity_types").FindOne(ctx, bson.M{"_id": name}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.EntityType{}, fmt.Errorf("%w: %s", domain.ErrUnknownEntityType, name)
	}
	if err != nil {
		return domain.EntityType{}, fmt.Errorf("get entity type: %w", err)
	}
	return domain.EntityType{ID: t.ID, Name: t.Name}, nil
}

func (m *MongoStore) Read(ctx context.Context, id domain.EntityID, fields []domain.FieldType) ([]*domain.Value, error) {
	var e mongoEntity
	err := m.db.Collection("entities").FindOne(ctx, bson.M{"_id": int64(id)}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %d", domain.ErrEntityNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read entity %d: %w", id, err)
	}
	out := make([]*domain.Value, len(fields))
	for i, f := range fields {
		raw, ok := e.Values[strconv.FormatInt(f.ID, 10)]
		if !ok {
			continue
		}
		var v domain.Value
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode field %s: %w", f.Name, err)
		}
		out[i] = &v
	}
	return out, nil
}

func (m *MongoStore) Write(ctx context.Context, id domain.EntityID, fields []domain.FieldType, value domain.Value) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	set := bson.M{}
	for _, f := range fields {
		set["values."+strconv.FormatInt(f.ID, 10)] = string(raw)
	}
	res, err := m.db.Collection("entities").UpdateOne(ctx, bson.M{"_id": int64(id)}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("write entity %d: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %d", domain.ErrEntityNotFound, id)
	}
	return nil
}

func (m *MongoStore) CreateEntity(ctx context.Context, typ domain.EntityType, parent *domain.EntityID, name string) (domain.EntityID, error) {
	id, err := m.nextID(ctx, "entities")
	if err != nil {
		return 0, err
	}
	e := mongoEntity{ID: id, Type: typ.ID, Name: name, Values: map[string]string{}}
	if parent != nil {
		p := int64(*parent)
		e.Parent = &p
	}
	if _, err := m.db.Collection("entities").InsertOne(ctx, e); err != nil {
		return 0, fmt.Errorf("insert entity: %w", err)
	}
	return domain.EntityID(id), nil
}

func (m *MongoStore) DeleteEntity(ctx context.Context, id domain.EntityID) error {
	res, err := m.db.Collection("entities").DeleteOne(ctx, bson.M{"_id": int64(id)})
	if err != nil {
		return fmt.Errorf("delete entity %d: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %d", domain.ErrEntityNotFound, id)
	}
	return nil
}

func (m *MongoStore) FindEntities(ctx context.Context, typ domain.EntityType, filter domain.Filter) ([]domain.EntityID, error) {
	q := bson.M{"type": typ.ID}
	if filter.Parent != nil {
		q["parent"] = int64(*filter.Parent)
	}
	if filter.Name != "" {
		q["name"] = filter.Name
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetProjection(bson.M{"_id": 1})
	cur, err := m.db.Collection("entities").Find(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("find entities: %w", err)
	}
	var docs []struct {
		ID int64 `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode entities: %w", err)
	}
	ids := make([]domain.EntityID, len(docs))
	for i, d := range docs {
		ids[i] = domain.EntityID(d.ID)
	}
	return ids, nil
}

func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
