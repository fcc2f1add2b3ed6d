package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/ManuelReschke/CreditFox/app/models"
)

const (
	usersCollection        = "users"
	transactionsCollection = "transactions"
)

// MongoOptions configures the document store backend. Multi-document
// transactions need a replica set; with UseTransactions off every TxFunc runs
// as a sequence of single-document writes and Atomic reports false.
type MongoOptions struct {
	Options
	UseTransactions bool
}

type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	opts   MongoOptions
}

func NewMongoStore(client *mongo.Client, database string, opts MongoOptions) *MongoStore {
	return &MongoStore{client: client, db: client.Database(database), opts: opts}
}

// EnsureIndexes creates the unique keys the reconciler relies on. Email is unique
// only when present.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := bounded(ctx, s.opts.opTimeout())
	defer cancel()

	_, err := s.db.Collection(usersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "clerkId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("ux_users_clerk_id"),
		},
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("ux_users_email").
				SetPartialFilterExpression(bson.M{"email": bson.M{"$type": "string"}}),
		},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}

	_, err = s.db.Collection(transactionsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "clerkId", Value: 1}}, Options: options.Index().SetName("ix_transactions_clerk_id")},
		{Keys: bson.D{{Key: "orderId", Value: 1}}, Options: options.Index().SetName("ix_transactions_order_id")},
	})
	if err != nil {
		return fmt.Errorf("create transaction indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) repos() Repositories {
	return Repositories{
		Users:        &mongoUsers{coll: s.db.Collection(usersCollection), timeout: s.opts.opTimeout()},
		Transactions: &mongoTransactions{coll: s.db.Collection(transactionsCollection), timeout: s.opts.opTimeout()},
	}
}

func (s *MongoStore) Users() UserRepository {
	return s.repos().Users
}

func (s *MongoStore) Transactions() TransactionRepository {
	return s.repos().Transactions
}

func (s *MongoStore) WithTransaction(ctx context.Context, fn TxFunc) error {
	ctx, cancel := bounded(ctx, s.opts.opTimeout())
	defer cancel()

	if !s.opts.UseTransactions {
		return translateMongoError(fn(ctx, s.repos()))
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return translateMongoError(err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, s.repos())
	})
	return translateMongoError(err)
}

// Atomic is false when transactions are disabled.
func (s *MongoStore) Atomic() bool {
	return s.opts.UseTransactions
}

func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := bounded(ctx, s.opts.opTimeout())
	defer cancel()
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func translateMongoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDuplicateKey), errors.Is(err, ErrUnavailable),
		errors.Is(err, ErrAlreadyApplied), errors.Is(err, ErrEventAlreadyApplied), errors.Is(err, ErrInsufficientCredits):
		return err
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	case isTimeout(err), mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return err
	}
}

type mongoUsers struct {
	coll    *mongo.Collection
	timeout time.Duration
}

func (r *mongoUsers) FindByClerkID(ctx context.Context, clerkID string) (*models.User, error) {
	ctx, cancel := bounded(ctx, r.timeout)
	defer cancel()

	var u models.User
	if err := r.coll.FindOne(ctx, bson.M{"clerkId": clerkID}).Decode(&u); err != nil {
		return nil, translateMongoError(err)
	}
	return &u, nil
}

func (r *mongoUsers) Create(ctx context.Context, user *models.User) error {
	ctx, cancel := bounded(ctx, r.timeout)
	defer cancel()

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	// $set on processedEvents.<key> fails against a null parent.
	if user.ProcessedEvents == nil {
		user.ProcessedEvents = models.ProcessedEvents{}
	}
	_, err := r.coll.InsertOne(ctx, user)
	return translateMongoError(err)
}

func (r *mongoUsers) ApplyPatch(ctx context.Context, clerkID, eventID string, patch models.UserPatch) (*models.User, error) {
	ctx, cancel := bounded(ctx, r.timeout)
	defer cancel()

	set := bson.M{"updatedAt": time.Now().UTC()}
	if patch.Email != nil {
		set["email"] = *patch.Email
	}
	if patch.Photo != nil {
		set["photo"] = *patch.Photo
	}
	if patch.FirstName != nil {
		set["firstName"] = *patch.FirstName
	}
	if patch.LastName != nil {
		set["lastName"] = *patch.LastName
	}

	filter := bson.M{"clerkId": clerkID}
	if key := models.EventKey(eventID); key != "" {
		field := "processedEvents." + key
		filter[field] = bson.M{"$exists": false}
		set[field] = models.EventStatusProcessed
	}

	var u models.User
	err := r.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			if _, ferr := r.FindByClerkID(ctx, clerkID); ferr != nil {
				return nil, ferr
			}
			return nil, ErrEventAlreadyApplied
		}
		return nil, translateMongoError(err)
	}
	return &u, nil
}

func (r *mongoUsers) DeleteByClerkID(ctx context.Context, clerkID string) error {
	ctx, cancel := bounded(ctx, r.timeout)
	defer cancel()

	res, err := r.coll.DeleteOne(ctx, bson.M{"clerkId": clerkID})
	if err != nil {
		return translateMongoError(err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoUsers) AddCredits(ctx context.Context, clerkID string, delta int64) (int64, error) {
	ctx, cancel := bounded(ctx, r.timeout)
	defer cancel()

	filter := bson.M{"clerkId": clerkID, "creditBalance": bson.M{"$gte": -delta}}
	update := bson.M{
		"$inc": bson.M{"creditBalance": delta},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	}
	var u models.User
	err := r.coll.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			if _, ferr := r.FindByClerkID(ctx, clerkID); ferr != nil {
				return 0, ferr
			}
			return 0, ErrInsufficientCredits
		}
		return 0, translateMongoError(err)
	}
	return u.CreditBalance, nil
}

type mongoTransactions struct {
	coll    *mongo.Collection
	timeout time.Duration
}

func (r *mongoTransactions) Create(ctx context.Context, t *models.Transaction) error {
	ctx, cancel := bounded(ctx, r.timeout)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, t)
	return translateMongoError(err)
}

func (r *mongoTransactions) FindByID(ctx context.Context, id string) (*models.Transaction, error) {
	ctx, cancel := bounded(ctx, r.timeout)
	defer cancel()

	var t models.Transaction
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		return nil, translateMongoError(err)
	}
	return &t, nil
}

func (r *mongoTransactions) SetOrderID(ctx context.Context, id, orderID string) error {
	ctx, cancel := bounded(ctx, r.timeout)
	defer cancel()

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"orderId": orderID}})
	if err != nil {
		return translateMongoError(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoTransactions) MarkPaymentApplied(ctx context.Context, id string) (*models.Transaction, error) {
	ctx, cancel := bounded(ctx, r.timeout)
	defer cancel()

	var t models.Transaction
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "payment": false},
		bson.M{"$set": bson.M{"payment": true}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&t)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			if _, ferr := r.FindByID(ctx, id); ferr != nil {
				return nil, ferr
			}
			return nil, ErrAlreadyApplied
		}
		return nil, translateMongoError(err)
	}
	return &t, nil
}
