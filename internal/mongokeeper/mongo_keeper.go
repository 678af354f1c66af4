// Package mongokeeper stores products and the sync status in MongoDB.
package mongokeeper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/drstein77/chainprices/internal/models"
)

const (
	DefaultDatabase    = "budget-manager"
	ProductsCollection = "products"
	SettingsCollection = "settings"
)

type Log interface {
	Info(string, ...zap.Field)
	Error(string, ...zap.Field)
}

type MongoKeeper struct {
	client   *mongo.Client
	products *mongo.Collection
	settings *mongo.Collection
	log      Log
}

// NewMongoKeeper connects to the server in uri and makes sure the products
// collection has a unique barcode index. The database is taken from the URI
// path, DefaultDatabase when the path is empty.
func NewMongoKeeper(ctx context.Context, uri func() string, log Log) (*MongoKeeper, error) {
	addr := uri()
	if addr == "" {
		return nil, errors.New("mongodb uri is empty")
	}
	name, err := DatabaseName(addr)
	if err != nil {
		return nil, err
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(addr))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(name)
	kp := &MongoKeeper{
		client:   client,
		products: db.Collection(ProductsCollection),
		settings: db.Collection(SettingsCollection),
		log:      log,
	}

	_, err = kp.products.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "barcode", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		kp.Close()
		return nil, fmt.Errorf("create barcode index: %w", err)
	}

	log.Info("Connected to mongodb", zap.String("database", name))
	return kp, nil
}

// DatabaseName returns the database named by the path of a mongodb URI.
func DatabaseName(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse mongodb uri: %w", err)
	}
	if u.Scheme != "mongodb" && u.Scheme != "mongodb+srv" {
		return "", fmt.Errorf("unsupported mongodb uri scheme %q", u.Scheme)
	}
	if name := strings.Trim(u.Path, "/"); name != "" {
		return name, nil
	}
	return DefaultDatabase, nil
}

func (kp *MongoKeeper) UpsertProduct(ctx context.Context, p models.StoredProduct) (bool, error) {
	res, err := kp.products.UpdateOne(ctx,
		bson.M{"barcode": p.Barcode},
		bson.M{"$set": p},
		options.Update().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("upsert product %s: %w", p.Barcode, err)
	}
	return res.UpsertedCount > 0, nil
}

func (kp *MongoKeeper) UpsertSyncStatus(ctx context.Context, status models.SyncStatus) error {
	_, err := kp.settings.UpdateOne(ctx,
		bson.M{"_id": models.SyncStatusKey},
		bson.M{"$set": status},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert sync status: %w", err)
	}
	return nil
}

func (kp *MongoKeeper) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := kp.client.Ping(ctx, readpref.Primary()); err != nil {
		kp.log.Error("Mongodb ping failed", zap.Error(err))
		return false
	}
	return true
}

func (kp *MongoKeeper) Close() bool {
	if kp.client == nil {
		kp.log.Info("Attempted to close a nil mongodb client")
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := kp.client.Disconnect(ctx); err != nil {
		kp.log.Error("Failed to disconnect from mongodb", zap.Error(err))
		return false
	}
	kp.log.Info("Mongodb connection closed")
	return true
}
