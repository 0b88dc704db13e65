package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	schedulingerrors "lectio/internal/scheduling/errors"
	"lectio/pkg/config"
	mongotx "lectio/pkg/db/mongo"
	"lectio/pkg/model"
)

const (
	BookingsCollection     = "Bookings"
	ReservationsCollection = "Reservations"
)

type mongoBookingRepository struct {
	cfg          *config.Config
	db           *mongo.Database
	bookings     *mongo.Collection
	reservations *mongo.Collection
	txManager    mongotx.TransactionManager
}

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	FindAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, error)
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id string) error
	FindByBatchAndModule(ctx context.Context, batchID, moduleID string, startTime, endTime *time.Time, limit int, offset int64) ([]*model.Booking, error)
	CountByBatchAndModule(ctx context.Context, batchID, moduleID string, startTime, endTime *time.Time) (int64, error)
	FindOverlapping(ctx context.Context, ref model.ResourceRef, startTime, endTime time.Time) ([]model.Reservation, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:          cfg,
		db:           db,
		bookings:     db.Collection(BookingsCollection),
		reservations: db.Collection(ReservationsCollection),
		txManager:    mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout if not already in a transaction.
// SessionContext cannot be wrapped without breaking transaction semantics, so
// inside a transaction the original context is returned with a no-op cancel.
func (r *mongoBookingRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

// Create inserts the booking and all of its reservations. Callers run it
// inside ExecuteTransaction so the write is all-or-nothing.
func (r *mongoBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	oid := primitive.NewObjectID()
	booking.ID = oid.Hex()
	booking.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	doc := bson.M{
		"_id":        oid,
		"batch_id":   booking.BatchID,
		"module_id":  booking.ModuleID,
		"start_time": booking.StartTime,
		"end_time":   booking.EndTime,
		"created_at": booking.CreatedAt,
	}
	if _, err := r.bookings.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	docs := make([]any, 0, len(booking.Reservations))
	for i := range booking.Reservations {
		booking.Reservations[i].BookingID = booking.ID
		docs = append(docs, bson.M{
			"booking_id":    booking.ID,
			"resource_kind": booking.Reservations[i].ResourceKind,
			"resource_id":   booking.Reservations[i].ResourceID,
			"quantity":      booking.Reservations[i].Quantity,
			"start_time":    booking.Reservations[i].StartTime,
			"end_time":      booking.Reservations[i].EndTime,
		})
	}
	if len(docs) > 0 {
		if _, err := r.reservations.InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("failed to create reservations: %w", err)
		}
	}

	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", schedulingerrors.ErrInvalidID, id)
	}

	var booking model.Booking
	err = r.bookings.FindOne(ctx, bson.M{"_id": objectID}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, schedulingerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	reservations, err := r.findReservationsByBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	booking.Reservations = reservations

	return &booking, nil
}

func (r *mongoBookingRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "start_time", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.bookings.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, nil
}

func (r *mongoBookingRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.bookings.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	return count, nil
}

// Delete removes the booking and every reservation that belongs to it.
// Callers run it inside ExecuteTransaction so a multi-resource booking is
// never partially released.
func (r *mongoBookingRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", schedulingerrors.ErrInvalidID, id)
	}

	result, err := r.bookings.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	if result.DeletedCount == 0 {
		return schedulingerrors.ErrNotFound
	}

	if _, err := r.reservations.DeleteMany(ctx, bson.M{"booking_id": id}); err != nil {
		return fmt.Errorf("failed to delete reservations: %w", err)
	}

	return nil
}

func (r *mongoBookingRepository) FindByBatchAndModule(
	ctx context.Context,
	batchID, moduleID string,
	startTime, endTime *time.Time,
	limit int, offset int64,
) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := r.buildSearchFilter(batchID, moduleID, startTime, endTime)

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(offset).
		SetSort(bson.D{{Key: "start_time", Value: 1}})

	cursor, err := r.bookings.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, nil
}

func (r *mongoBookingRepository) CountByBatchAndModule(
	ctx context.Context,
	batchID, moduleID string,
	startTime, endTime *time.Time,
) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := r.buildSearchFilter(batchID, moduleID, startTime, endTime)

	count, err := r.bookings.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings by search: %w", err)
	}
	return count, nil
}

// FindOverlapping is the overlap index: every committed reservation for the
// exact resource whose window intersects [startTime, endTime). The filter is
// the half-open predicate in Mongo form; bookings that only touch at a
// boundary are not returned. The query is served by the
// (resource_kind, resource_id, start_time) index.
func (r *mongoBookingRepository) FindOverlapping(
	ctx context.Context,
	ref model.ResourceRef,
	startTime, endTime time.Time,
) ([]model.Reservation, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"resource_kind": ref.Kind,
		"resource_id":   ref.ID,
		"start_time":    bson.M{"$lt": endTime},
		"end_time":      bson.M{"$gt": startTime},
	}

	cursor, err := r.reservations.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find overlapping reservations: %w", err)
	}
	defer cursor.Close(ctx)

	var reservations []model.Reservation
	if err = cursor.All(ctx, &reservations); err != nil {
		return nil, fmt.Errorf("failed to decode reservations: %w", err)
	}

	return reservations, nil
}

func (r *mongoBookingRepository) findReservationsByBooking(ctx context.Context, bookingID string) ([]model.Reservation, error) {
	cursor, err := r.reservations.Find(ctx, bson.M{"booking_id": bookingID})
	if err != nil {
		return nil, fmt.Errorf("failed to find reservations: %w", err)
	}
	defer cursor.Close(ctx)

	var reservations []model.Reservation
	if err = cursor.All(ctx, &reservations); err != nil {
		return nil, fmt.Errorf("failed to decode reservations: %w", err)
	}

	return reservations, nil
}

func (r *mongoBookingRepository) buildSearchFilter(batchID, moduleID string, startTime, endTime *time.Time) bson.M {
	filter := bson.M{}
	if batchID != "" {
		filter["batch_id"] = batchID
	}
	if moduleID != "" {
		filter["module_id"] = moduleID
	}

	if startTime != nil && endTime != nil {
		filter["start_time"] = bson.M{"$lt": *endTime}
		filter["end_time"] = bson.M{"$gt": *startTime}
	} else if startTime != nil {
		filter["end_time"] = bson.M{"$gt": *startTime}
	} else if endTime != nil {
		filter["start_time"] = bson.M{"$lt": *endTime}
	}

	return filter
}

func (r *mongoBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
