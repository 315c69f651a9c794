package customer

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "customers"

var decimalType = reflect.TypeOf(decimal.Decimal{})

// Registry is the default bson registry plus a codec that stores money as
// its exact decimal string.
func Registry() *bsoncodec.Registry {
	reg := bson.NewRegistry()
	reg.RegisterTypeEncoder(decimalType, bsoncodec.ValueEncoderFunc(encodeDecimal))
	reg.RegisterTypeDecoder(decimalType, bsoncodec.ValueDecoderFunc(decodeDecimal))
	return reg
}

func encodeDecimal(_ bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != decimalType {
		return bsoncodec.ValueEncoderError{Name: "DecimalEncodeValue", Types: []reflect.Type{decimalType}, Received: val}
	}
	return vw.WriteString(val.Interface().(decimal.Decimal).String())
}

func decodeDecimal(_ bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != decimalType {
		return bsoncodec.ValueDecoderError{Name: "DecimalDecodeValue", Types: []reflect.Type{decimalType}, Received: val}
	}

	var d decimal.Decimal
	switch vr.Type() {
	case bsontype.String:
		s, err := vr.ReadString()
		if err != nil {
			return err
		}
		if d, err = decimal.NewFromString(s); err != nil {
			return fmt.Errorf("decode decimal %q: %w", s, err)
		}
	case bsontype.Double:
		f, err := vr.ReadDouble()
		if err != nil {
			return err
		}
		d = decimal.NewFromFloat(f)
	case bsontype.Int32:
		i, err := vr.ReadInt32()
		if err != nil {
			return err
		}
		d = decimal.NewFromInt32(i)
	case bsontype.Int64:
		i, err := vr.ReadInt64()
		if err != nil {
			return err
		}
		d = decimal.NewFromInt(i)
	case bsontype.Null:
		if err := vr.ReadNull(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("cannot decode %v into decimal", vr.Type())
	}
	val.Set(reflect.ValueOf(d))
	return nil
}

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetRegistry(Registry()).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{collection: db.Collection(collectionName)}
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "store_id", Value: 1}, {Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"email": bson.M{"$type": "string"}}),
		},
		{
			Keys: bson.D{{Key: "store_id", Value: 1}, {Key: "phone", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"phone": bson.M{"$type": "string"}}),
		},
		{
			Keys: bson.D{{Key: "store_id", Value: 1}, {Key: "abandoned_cart.abandoned_at", Value: 1}},
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (m *MongoRepository) findOne(ctx context.Context, filter bson.M) (*domain.CustomerRecord, error) {
	var c domain.CustomerRecord
	err := m.collection.FindOne(ctx, filter).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}

func (m *MongoRepository) Get(ctx context.Context, id string) (*domain.CustomerRecord, error) {
	return m.findOne(ctx, bson.M{"_id": id})
}

func (m *MongoRepository) FindByEmail(ctx context.Context, storeID, email string) (*domain.CustomerRecord, error) {
	if email == "" {
		return nil, ErrCustomerNotFound
	}
	return m.findOne(ctx, bson.M{"store_id": storeID, "email": email})
}

func (m *MongoRepository) FindByPhone(ctx context.Context, storeID, phone string) (*domain.CustomerRecord, error) {
	if phone == "" {
		return nil, ErrCustomerNotFound
	}
	return m.findOne(ctx, bson.M{"store_id": storeID, "phone": phone})
}

func (m *MongoRepository) Insert(ctx context.Context, c *domain.CustomerRecord) error {
	if _, err := m.collection.InsertOne(ctx, c); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateCustomer
		}
		return fmt.Errorf("failed to insert customer: %w", err)
	}
	return nil
}

func (m *MongoRepository) Update(ctx context.Context, c *domain.CustomerRecord) error {
	result, err := m.collection.ReplaceOne(ctx, bson.M{"_id": c.ID}, c)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateCustomer
		}
		return fmt.Errorf("failed to update customer: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

func (m *MongoRepository) ListAbandoned(ctx context.Context, storeID string, idleBefore time.Time, limit int) ([]*domain.CustomerRecord, error) {
	filter := bson.M{
		"store_id":              storeID,
		"abandoned_cart":        bson.M{"$type": "object"},
		"checkout_step_reached": bson.M{"$lt": domain.StepComplete},
		"last_active_at":        bson.M{"$lt": idleBefore},
	}
	opts := options.Find().SetSort(bson.D{{Key: "abandoned_cart.abandoned_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list abandoned carts: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*domain.CustomerRecord
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode abandoned carts: %w", err)
	}
	return out, nil
}
