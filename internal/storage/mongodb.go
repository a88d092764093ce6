// mongodb.go - Persisting reconciled receipts

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/domusplus/receipt-engine/internal/recon"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const receiptsCollection = "receipts"

// Store wraps the Mongo connection for receipt persistence.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect opens the Mongo connection and pings it so a bad URI fails at
// startup rather than on the first upload.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}

	return &Store{client: client, db: client.Database(dbName)}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// ItemDocument is one receipt line as stored.
type ItemDocument struct {
	RawText    string `bson:"raw_text"`
	Kind       string `bson:"kind"`
	TotalCents int64  `bson:"total_cents"`
	Illegible  bool   `bson:"illegible,omitempty"`
}

// ReceiptDocument is a processed receipt as stored.
type ReceiptDocument struct {
	RequestID        string         `bson:"request_id"`
	UserID           string         `bson:"user_id"`
	Merchant         string         `bson:"merchant,omitempty"`
	Date             string         `bson:"date,omitempty"`
	Currency         string         `bson:"currency"`
	Mode             string         `bson:"mode"`
	TotalCents       int64          `bson:"total_cents"`
	TotalTrusted     bool           `bson:"total_trusted"`
	ItemSumCents     int64          `bson:"item_sum_cents"`
	AdjustmentCents  int64          `bson:"adjustment_cents,omitempty"`
	PlaceholderCount int            `bson:"placeholder_count,omitempty"`
	Items            []ItemDocument `bson:"items"`
	CreatedAt        time.Time      `bson:"created_at"`
}

// NewReceiptDocument flattens a pipeline result for storage.
func NewReceiptDocument(requestID, userID string, result *recon.Result) ReceiptDocument {
	items := make([]ItemDocument, 0, len(result.Receipt.Items))
	for _, it := range result.Receipt.Items {
		items = append(items, ItemDocument{
			RawText:    it.RawText,
			Kind:       string(it.Kind),
			TotalCents: it.TotalCents,
			Illegible:  it.Illegible,
		})
	}

	return ReceiptDocument{
		RequestID:        requestID,
		UserID:           userID,
		Merchant:         result.Merchant,
		Date:             result.Date,
		Currency:         result.Currency,
		Mode:             string(result.Mode),
		TotalCents:       result.Receipt.TotalCents,
		TotalTrusted:     result.Receipt.TotalTrusted,
		ItemSumCents:     result.Receipt.ItemSumCents,
		AdjustmentCents:  result.Receipt.AdjustmentCents,
		PlaceholderCount: result.Receipt.PlaceholderCount,
		Items:            items,
		CreatedAt:        time.Now().UTC(),
	}
}

// SaveReceipt inserts a processed receipt.
func (s *Store) SaveReceipt(ctx context.Context, doc ReceiptDocument) error {
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.db.Collection(receiptsCollection).InsertOne(opCtx, doc); err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}

// GetReceipt looks a receipt up by its request ID.
func (s *Store) GetReceipt(ctx context.Context, requestID string) (*ReceiptDocument, error) {
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var doc ReceiptDocument
	err := s.db.Collection(receiptsCollection).
		FindOne(opCtx, bson.M{"request_id": requestID}).
		Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find receipt: %w", err)
	}
	return &doc, nil
}

// ListReceipts returns a user's most recent receipts, newest first.
func (s *Store) ListReceipts(ctx context.Context, userID string, limit int64) ([]ReceiptDocument, error) {
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetLimit(limit)

	cursor, err := s.db.Collection(receiptsCollection).Find(opCtx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer cursor.Close(opCtx)

	var docs []ReceiptDocument
	if err := cursor.All(opCtx, &docs); err != nil {
		return nil, fmt.Errorf("decode receipts: %w", err)
	}
	return docs, nil
}
