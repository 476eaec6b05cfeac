// Package storage contains the MongoDB-backed local task store adapter.
//
// Tasks are stored one document per task in the "tasks" collection, keyed by
// an opaque ObjectID. Documents for locally-created references to remote
// items additionally carry the remote item's ID in the externalId field so
// aggregation can avoid re-importing them as duplicates.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TaskAggregatorService/commands"
	"TaskAggregatorService/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// CollectionTasks is the name of the task collection.
const CollectionTasks = "tasks"

// TaskStore is the adapter for the local document store.
type TaskStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	log        *logrus.Logger
}

// taskDocument is the persisted shape of a task.
type taskDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Title       string             `bson:"title"`
	Completed   bool               `bson:"completed"`
	UserId      string             `bson:"userId,omitempty"`
	Description string             `bson:"description,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
	ExternalId  string             `bson:"externalId,omitempty"`
}

func (d taskDocument) toTask() models.Task {
	return models.Task{
		Id:          d.ID.Hex(),
		Title:       d.Title,
		Completed:   d.Completed,
		UserId:      d.UserId,
		Description: d.Description,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		Source:      models.SourceLocal,
		ExternalId:  d.ExternalId,
	}
}

// NewTaskStore connects to MongoDB with connection pooling, verifies the
// connection and ensures the task collection indexes exist.
func NewTaskStore(ctx context.Context, uri string, dbName string, log *logrus.Logger) (*TaskStore, error) {
	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := &TaskStore{
		client:     client,
		collection: client.Database(dbName).Collection(CollectionTasks),
		log:        log,
	}
	if err := store.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create task indexes: %w", err)
	}

	log.WithFields(logrus.Fields{
		"database": dbName,
	}).Info("Connected to MongoDB")
	return store, nil
}

func (s *TaskStore) createIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "externalId", Value: 1}}},
	})
	return err
}

// GetAllTasks returns every stored task, most recently created first.
func (s *TaskStore) GetAllTasks(ctx context.Context) ([]models.Task, error) {
	return s.findTasks(ctx, bson.M{})
}

// GetTasksByUser returns the stored tasks owned by the given user, most
// recently created first.
func (s *TaskStore) GetTasksByUser(ctx context.Context, userId string) ([]models.Task, error) {
	return s.findTasks(ctx, bson.M{"userId": userId})
}

func (s *TaskStore) findTasks(ctx context.Context, filter bson.M) ([]models.Task, error) {
	cursor, err := s.collection.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks from store: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []taskDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode tasks from store: %w", err)
	}

	tasks := make([]models.Task, 0, len(docs))
	for _, doc := range docs {
		tasks = append(tasks, doc.toTask())
	}
	return tasks, nil
}

// GetTaskById returns a stored task by its document ID. It returns a nil
// task without error when no such document exists, including when the ID is
// not a valid ObjectID and therefore cannot name a local document.
func (s *TaskStore) GetTaskById(ctx context.Context, id string) (*models.Task, error) {
	objectId, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}

	var doc taskDocument
	err = s.collection.FindOne(ctx, bson.M{"_id": objectId}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get task %s from store: %w", id, err)
	}
	task := doc.toTask()
	return &task, nil
}

// CreateTask inserts a new task document and returns the stored task.
func (s *TaskStore) CreateTask(ctx context.Context, cmd commands.CreateTaskCommand) (*models.Task, error) {
	now := time.Now()
	doc := taskDocument{
		Title:       cmd.Title,
		Completed:   cmd.Completed,
		UserId:      cmd.UserId,
		Description: cmd.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	result, err := s.collection.InsertOne(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create task in store: %w", err)
	}
	doc.ID = result.InsertedID.(primitive.ObjectID)

	s.log.WithFields(logrus.Fields{
		"task operation": "create local task",
		"task id":        doc.ID.Hex(),
	}).Info("Task created in local store")
	task := doc.toTask()
	return &task, nil
}

// UpdateTask applies the provided fields to a stored task and returns the
// updated record. It returns a nil task without error when no such document
// exists.
func (s *TaskStore) UpdateTask(ctx context.Context, id string, cmd commands.UpdateTaskCommand) (*models.Task, error) {
	objectId, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}

	updates := bson.M{"updatedAt": time.Now()}
	if cmd.Title != nil {
		updates["title"] = *cmd.Title
	}
	if cmd.Completed != nil {
		updates["completed"] = *cmd.Completed
	}
	if cmd.Description != nil {
		updates["description"] = *cmd.Description
	}

	var doc taskDocument
	err = s.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": objectId},
		bson.M{"$set": updates},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update task %s in store: %w", id, err)
	}
	task := doc.toTask()
	return &task, nil
}

// DeleteTask removes a stored task. It returns false without error when no
// such document exists.
func (s *TaskStore) DeleteTask(ctx context.Context, id string) (bool, error) {
	objectId, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}

	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": objectId})
	if err != nil {
		return false, fmt.Errorf("failed to delete task %s from store: %w", id, err)
	}
	if result.DeletedCount == 0 {
		return false, nil
	}

	s.log.WithFields(logrus.Fields{
		"task operation": "delete local task",
		"task id":        id,
	}).Info("Task deleted from local store")
	return true, nil
}

// FindTaskByExternalId returns the stored reference to a remote item, or nil
// when none exists.
func (s *TaskStore) FindTaskByExternalId(ctx context.Context, externalId string) (*models.Task, error) {
	var doc taskDocument
	err := s.collection.FindOne(ctx, bson.M{"externalId": externalId}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find task by external id %s: %w", externalId, err)
	}
	task := doc.toTask()
	return &task, nil
}

// SaveExternalTaskReference stores a local reference to a remote item so the
// item is not re-imported as a duplicate later. Failures are logged and not
// returned; reference bookkeeping never interrupts the main flow.
func (s *TaskStore) SaveExternalTaskReference(ctx context.Context, task models.Task) {
	now := time.Now()
	doc := taskDocument{
		Title:       task.Title,
		Completed:   task.Completed,
		UserId:      task.UserId,
		Description: task.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExternalId:  task.Id,
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		s.log.WithFields(logrus.Fields{
			"task operation": "save external task reference",
			"external id":    task.Id,
		}).Error(err.Error())
		return
	}
	s.log.WithFields(logrus.Fields{
		"task operation": "save external task reference",
		"external id":    task.Id,
	}).Info("External task reference saved")
}

// HealthCheck reports whether the document store answers a ping.
func (s *TaskStore) HealthCheck(ctx context.Context) bool {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		s.log.WithFields(logrus.Fields{
			"task operation": "local store health check",
		}).Error(err.Error())
		return false
	}
	return true
}

// Close disconnects from MongoDB.
func (s *TaskStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
