package app

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ==========================================
// АРХИВ ДИАЛОГОВ (SQLite или MongoDB)
// ==========================================

// DialogArchive пишет снимки воронки после каждого обработанного сообщения.
// Архив вспомогательный: его отказ не должен ронять обработку диалога.
type DialogArchive interface {
	AppendSnapshot(ctx context.Context, rec DialogRecord) error
	RecentByUser(ctx context.Context, userID int64, limit int) ([]DialogRecord, error)
}

// NewDialogArchive выбирает реализацию: MongoDB, если задан URI, иначе SQLite.
func NewDialogArchive(st *Store, mongoURI string) (DialogArchive, error) {
	if mongoURI == "" {
		log.Println("🗂 Архив диалогов: SQLite.")
		return &GormArchive{store: st}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	log.Println("🗂 Архив диалогов: MongoDB.")
	return &MongoArchive{coll: client.Database("plamya").Collection("dialogs")}, nil
}

// ---------- SQLite ----------

type GormArchive struct {
	store *Store
}

func (ga *GormArchive) AppendSnapshot(_ context.Context, rec DialogRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	return ga.store.DB.Create(&rec).Error
}

func (ga *GormArchive) RecentByUser(_ context.Context, userID int64, limit int) ([]DialogRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []DialogRecord
	err := ga.store.DB.Where("user_id = ?", userID).
		Order("created_at desc").Limit(limit).Find(&out).Error
	return out, err
}

// ---------- MongoDB ----------

type MongoArchive struct {
	coll *mongo.Collection
}

func (ma *MongoArchive) AppendSnapshot(ctx context.Context, rec DialogRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := ma.coll.InsertOne(ctx, rec)
	return err
}

func (ma *MongoArchive) RecentByUser(ctx context.Context, userID int64, limit int) ([]DialogRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := ma.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []DialogRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
