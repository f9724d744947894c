package repository

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Health-Education-England/tis-trainee-actions/internal/db"
	"github.com/Health-Education-England/tis-trainee-actions/internal/models"
)

// IActionRepository defines the store operations needed by the action
// service. Uniqueness of (type, tisReferenceInfo) is a property of the store,
// an insert hitting the unique index is reported as a skipped document rather
// than an error.
type IActionRepository interface {
	// Insert stores the given actions, assigning IDs. Documents that
	// conflict with the unique (type, reference) index are skipped, the
	// remaining documents are unaffected. Returns the actions actually
	// inserted.
	Insert(ctx context.Context, actions []models.Action) ([]models.Action, error)

	// Save replaces the stored document for the given action.
	Save(ctx context.Context, action models.Action) (models.Action, error)

	// FindByTraineeAndReference returns all actions for the trainee that
	// were prompted by the given upstream entity.
	FindByTraineeAndReference(ctx context.Context, traineeID, referenceID string, referenceType models.ReferenceType) ([]models.Action, error)

	// FindIncompleteByTrainee returns all incomplete actions for the
	// trainee, ordered by due-by date ascending.
	FindIncompleteByTrainee(ctx context.Context, traineeID string) ([]models.Action, error)

	// FindByIDAndTrainee returns the action with the given ID if it is
	// owned by the trainee, nil otherwise.
	FindByIDAndTrainee(ctx context.Context, id primitive.ObjectID, traineeID string) (*models.Action, error)

	// DeleteIncompleteByReference deletes the trainee's not-yet-completed
	// actions for the given upstream entity, returning the deleted
	// documents.
	DeleteIncompleteByReference(ctx context.Context, traineeID, referenceID string, referenceType models.ReferenceType) ([]models.Action, error)

	// DeleteByReferenceAndType deletes the trainee's actions of the given
	// type for the given upstream entity regardless of completion state,
	// returning the deleted documents.
	DeleteByReferenceAndType(ctx context.Context, traineeID, referenceID string, referenceType models.ReferenceType, actionType models.ActionType) ([]models.Action, error)

	// MoveAllByTrainee reassigns every action owned by one trainee to
	// another, returning the reassigned actions.
	MoveAllByTrainee(ctx context.Context, fromTraineeID, toTraineeID string) ([]models.Action, error)
}

// mongoActionRepository implements IActionRepository on a Mongo collection.
type mongoActionRepository struct {
	collection *mongo.Collection
}

// NewMongoActionRepository creates an action repository backed by the Action
// collection of the given database.
func NewMongoActionRepository(database *mongo.Database) IActionRepository {
	return &mongoActionRepository{collection: database.Collection(db.ActionCollection)}
}

func (r *mongoActionRepository) Insert(ctx context.Context, actions []models.Action) ([]models.Action, error) {
	var inserted []models.Action
	for _, action := range actions {
		if action.ID.IsZero() {
			action.ID = primitive.NewObjectID()
		}
		_, err := r.collection.InsertOne(ctx, action)
		if err != nil {
			if db.IsDuplicateKeyError(err) {
				// The action already exists, carry on with the
				// remaining action types.
				log.Printf("Action of type %s already exists for %s %s, skipping insert.",
					action.Type, action.ReferenceInfo.Type, action.ReferenceInfo.ID)
				continue
			}
			return inserted, fmt.Errorf("failed to insert action: %w", err)
		}
		inserted = append(inserted, action)
	}
	return inserted, nil
}

func (r *mongoActionRepository) Save(ctx context.Context, action models.Action) (models.Action, error) {
	filter := bson.M{"_id": action.ID}
	result, err := r.collection.ReplaceOne(ctx, filter, action)
	if err != nil {
		return models.Action{}, fmt.Errorf("failed to save action %s: %w", action.ID.Hex(), err)
	}
	if result.MatchedCount == 0 {
		return models.Action{}, fmt.Errorf("action %s not found when saving", action.ID.Hex())
	}
	return action, nil
}

func referenceFilter(traineeID, referenceID string, referenceType models.ReferenceType) bson.M {
	return bson.M{
		"traineeId":             traineeID,
		"tisReferenceInfo.id":   referenceID,
		"tisReferenceInfo.type": referenceType,
	}
}

func (r *mongoActionRepository) FindByTraineeAndReference(ctx context.Context, traineeID, referenceID string, referenceType models.ReferenceType) ([]models.Action, error) {
	return r.findAll(ctx, referenceFilter(traineeID, referenceID, referenceType), nil)
}

func (r *mongoActionRepository) FindIncompleteByTrainee(ctx context.Context, traineeID string) ([]models.Action, error) {
	filter := bson.M{"traineeId": traineeID, "completed": nil}
	opts := options.Find().SetSort(bson.D{{Key: "dueBy", Value: 1}})
	return r.findAll(ctx, filter, opts)
}

func (r *mongoActionRepository) FindByIDAndTrainee(ctx context.Context, id primitive.ObjectID, traineeID string) (*models.Action, error) {
	filter := bson.M{"_id": id, "traineeId": traineeID}
	var action models.Action
	err := r.collection.FindOne(ctx, filter).Decode(&action)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find action %s: %w", id.Hex(), err)
	}
	return &action, nil
}

func (r *mongoActionRepository) DeleteIncompleteByReference(ctx context.Context, traineeID, referenceID string, referenceType models.ReferenceType) ([]models.Action, error) {
	filter := referenceFilter(traineeID, referenceID, referenceType)
	filter["completed"] = nil
	return r.deleteAll(ctx, filter)
}

func (r *mongoActionRepository) DeleteByReferenceAndType(ctx context.Context, traineeID, referenceID string, referenceType models.ReferenceType, actionType models.ActionType) ([]models.Action, error) {
	filter := referenceFilter(traineeID, referenceID, referenceType)
	filter["type"] = actionType
	return r.deleteAll(ctx, filter)
}

func (r *mongoActionRepository) MoveAllByTrainee(ctx context.Context, fromTraineeID, toTraineeID string) ([]models.Action, error) {
	actions, err := r.findAll(ctx, bson.M{"traineeId": fromTraineeID}, nil)
	if err != nil {
		return nil, err
	}
	if len(actions) == 0 {
		return nil, nil
	}

	update := bson.M{"$set": bson.M{"traineeId": toTraineeID}}
	_, err = r.collection.UpdateMany(ctx, bson.M{"traineeId": fromTraineeID}, update)
	if err != nil {
		return nil, fmt.Errorf("failed to move actions from trainee %s to %s: %w",
			fromTraineeID, toTraineeID, err)
	}

	for i := range actions {
		actions[i].TraineeID = toTraineeID
	}
	return actions, nil
}

func (r *mongoActionRepository) findAll(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Action, error) {
	var cursor *mongo.Cursor
	var err error
	if opts != nil {
		cursor, err = r.collection.Find(ctx, filter, opts)
	} else {
		cursor, err = r.collection.Find(ctx, filter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer cursor.Close(ctx)

	var actions []models.Action
	if err := cursor.All(ctx, &actions); err != nil {
		return nil, fmt.Errorf("failed to decode actions: %w", err)
	}
	return actions, nil
}

// deleteAll removes matching documents one at a time so the deleted records
// can be returned for tombstone broadcasts.
func (r *mongoActionRepository) deleteAll(ctx context.Context, filter bson.M) ([]models.Action, error) {
	var deleted []models.Action
	for {
		var action models.Action
		err := r.collection.FindOneAndDelete(ctx, filter).Decode(&action)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return deleted, nil
			}
			return deleted, fmt.Errorf("failed to delete actions: %w", err)
		}
		deleted = append(deleted, action)
	}
}
