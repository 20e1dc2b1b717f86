package db

import (
	"context"
	"fmt"
	"time"

	"github.com/abkawan/banking-transfers/internal/models"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const historyCollection = "transfer_history"

// MongoDB keeps the read model of committed transfers.
type MongoDB struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type activityDoc struct {
	ID               int64                `bson:"id"`
	Number           string               `bson:"number"`
	Description      string               `bson:"description"`
	Amount           primitive.Decimal128 `bson:"amount"`
	AvailableBalance primitive.Decimal128 `bson:"available_balance"`
	Date             time.Time            `bson:"date"`
}

type transferDoc struct {
	ID          string               `bson:"_id"`
	EventID     string               `bson:"event_id"`
	FromAccount string               `bson:"from_account"`
	ToAccount   string               `bson:"to_account"`
	Description string               `bson:"description"`
	Amount      primitive.Decimal128 `bson:"amount"`
	Fee         primitive.Decimal128 `bson:"fee"`
	Username    string               `bson:"username"`
	Date        time.Time            `bson:"date"`
	Activity    []activityDoc        `bson:"activity"`
	CommittedAt time.Time            `bson:"committed_at"`
}

// creates a new MongoDB instance
func NewMongoDB(uri, dbName string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping Mongodb: %w", err)
	}

	collection := client.Database(dbName).Collection(historyCollection)

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "from_account", Value: 1}, {Key: "committed_at", Value: -1}}},
		{Keys: bson.D{{Key: "to_account", Value: 1}, {Key: "committed_at", Value: -1}}},
		{Keys: bson.D{{Key: "username", Value: 1}}},
	}

	if _, err = collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return &MongoDB{
		client:     client,
		collection: collection,
	}, nil
}

// closes the mongoDB connection
func (m *MongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// SaveTransfer upserts a committed transfer keyed by its id, so replays of
// the same event leave one document.
func (m *MongoDB) SaveTransfer(ctx context.Context, evt *models.TransferCommitted) error {
	doc, err := toTransferDoc(evt)
	if err != nil {
		return err
	}

	_, err = m.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save transfer history: %w", err)
	}
	return nil
}

// TransfersByAccount lists transfers touching the account, newest first.
func (m *MongoDB) TransfersByAccount(ctx context.Context, number string, limit, offset int) ([]*models.TransferCommitted, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "committed_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	filter := bson.M{"$or": bson.A{
		bson.M{"from_account": number},
		bson.M{"to_account": number},
	}}

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find transfers: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []transferDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode transfers: %w", err)
	}

	out := make([]*models.TransferCommitted, 0, len(docs))
	for i := range docs {
		evt, err := fromTransferDoc(&docs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("failed to encode amount %s: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode amount %s: %w", v, err)
	}
	return d, nil
}

func toTransferDoc(evt *models.TransferCommitted) (*transferDoc, error) {
	t := evt.Transfer
	amount, err := toDecimal128(t.Amount)
	if err != nil {
		return nil, err
	}
	fee, err := toDecimal128(t.Fee)
	if err != nil {
		return nil, err
	}

	doc := &transferDoc{
		ID:          t.ID,
		EventID:     evt.EventID,
		FromAccount: t.FromAccount,
		ToAccount:   t.ToAccount,
		Description: t.Description,
		Amount:      amount,
		Fee:         fee,
		Username:    t.Username,
		Date:        t.Date,
		CommittedAt: evt.CommittedAt,
	}
	for _, rec := range evt.Activity {
		a, err := toDecimal128(rec.Amount)
		if err != nil {
			return nil, err
		}
		b, err := toDecimal128(rec.AvailableBalance)
		if err != nil {
			return nil, err
		}
		doc.Activity = append(doc.Activity, activityDoc{
			ID:               rec.ID,
			Number:           rec.Number,
			Description:      rec.Description,
			Amount:           a,
			AvailableBalance: b,
			Date:             rec.Date,
		})
	}
	return doc, nil
}

func fromTransferDoc(doc *transferDoc) (*models.TransferCommitted, error) {
	amount, err := fromDecimal128(doc.Amount)
	if err != nil {
		return nil, err
	}
	fee, err := fromDecimal128(doc.Fee)
	if err != nil {
		return nil, err
	}

	evt := &models.TransferCommitted{
		EventID: doc.EventID,
		Transfer: models.Transfer{
			ID:          doc.ID,
			FromAccount: doc.FromAccount,
			ToAccount:   doc.ToAccount,
			Description: doc.Description,
			Amount:      amount,
			Fee:         fee,
			Username:    doc.Username,
			Date:        doc.Date,
		},
		CommittedAt: doc.CommittedAt,
	}
	for _, a := range doc.Activity {
		amt, err := fromDecimal128(a.Amount)
		if err != nil {
			return nil, err
		}
		bal, err := fromDecimal128(a.AvailableBalance)
		if err != nil {
			return nil, err
		}
		evt.Activity = append(evt.Activity, models.ActivityRecord{
			ID:               a.ID,
			Number:           a.Number,
			Description:      a.Description,
			Amount:           amt,
			AvailableBalance: bal,
			Date:             a.Date,
		})
	}
	return evt, nil
}
