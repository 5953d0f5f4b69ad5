package entitlement

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const profilesCollection = "userProfiles"

// MongoStore keeps profiles in MongoDB, one document per user keyed by _id.
// Counter writes are single-document pipeline updates so rollover and
// increment happen atomically on the server.
type MongoStore struct {
	coll    *mongo.Collection
	timeout time.Duration
}

// NewMongoStore binds the store to db
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		coll:    db.Collection(profilesCollection),
		timeout: 5 * time.Second,
	}
}

func (s *MongoStore) GetOrCreate(ctx context.Context, userID string) (*UserProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	defaults := NewProfile(userID, time.Now())
	update := bson.M{"$setOnInsert": bson.M{
		"subscriptionTier":       defaults.SubscriptionTier,
		"monthlyUsageCount":      0,
		"lastMonthlyResetPeriod": defaults.LastMonthlyResetPeriod,
		"dailyUsageCount":        0,
		"lastDailyResetDate":     defaults.LastDailyResetDate,
		"maxAllowedActions":      0,
		"createdAt":              defaults.CreatedAt,
		"updatedAt":              defaults.UpdatedAt,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var profile UserProfile
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": userID}, update, opts).Decode(&profile)
	if mongo.IsDuplicateKeyError(err) {
		// lost the upsert race to a concurrent first request; the document exists now
		err = s.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&profile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile %s: %w", userID, err)
	}
	return &profile, nil
}

func (s *MongoStore) IncrementUsage(ctx context.Context, userID string, inc Increment, now time.Time) error {
	if inc.IsZero() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": userID}, incrementPipeline(inc, now))
	if err != nil {
		return fmt.Errorf("failed to increment usage for %s: %w", userID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) IncrementIfBelow(ctx context.Context, userID string, inc Increment, limits Limits, now time.Time) (bool, error) {
	if inc.IsZero() {
		return true, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	filter := bson.M{"_id": userID}
	if guards := limitGuards(inc, limits, now); len(guards) > 0 {
		filter["$and"] = guards
	}

	res, err := s.coll.UpdateOne(ctx, filter, incrementPipeline(inc, now))
	if err != nil {
		return false, fmt.Errorf("failed to increment usage for %s: %w", userID, err)
	}
	if res.MatchedCount > 0 {
		return true, nil
	}

	// Distinguish "at limit" from "no such user".
	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": userID})
	if err != nil {
		return false, fmt.Errorf("failed to check profile %s: %w", userID, err)
	}
	if n == 0 {
		return false, ErrNotFound
	}
	return false, nil
}

func (s *MongoStore) SetTier(ctx context.Context, userID string, tier Tier) error {
	if !tier.Valid() {
		return ErrInvalidTier
	}
	return s.upsertField(ctx, userID, "subscriptionTier", tier)
}

func (s *MongoStore) SetMaxAllowedActions(ctx context.Context, userID string, n int) error {
	if n < 0 {
		return ErrInvalidCap
	}
	return s.upsertField(ctx, userID, "maxAllowedActions", n)
}

// upsertField sets one non-counter field, creating the default profile if needed
func (s *MongoStore) upsertField(ctx context.Context, userID, field string, value interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	defaults := NewProfile(userID, time.Now())
	onInsert := bson.M{
		"subscriptionTier":       defaults.SubscriptionTier,
		"monthlyUsageCount":      0,
		"lastMonthlyResetPeriod": defaults.LastMonthlyResetPeriod,
		"dailyUsageCount":        0,
		"lastDailyResetDate":     defaults.LastDailyResetDate,
		"maxAllowedActions":      0,
		"createdAt":              defaults.CreatedAt,
	}
	delete(onInsert, field)

	update := bson.M{
		"$set":         bson.M{field: value, "updatedAt": defaults.UpdatedAt},
		"$setOnInsert": onInsert,
	}
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": userID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to update %s for %s: %w", field, userID, err)
	}
	return nil
}

// incrementPipeline builds a $set stage that resets stale counters to 1 and
// increments current ones. Field references inside one stage read the
// pre-update document, so the period check sees the stored value.
func incrementPipeline(inc Increment, now time.Time) mongo.Pipeline {
	set := bson.D{{Key: "updatedAt", Value: now.UTC()}}
	if inc.Monthly {
		period := CurrentPeriod(now)
		set = append(set,
			bson.E{Key: "monthlyUsageCount", Value: rolloverCounter("$monthlyUsageCount", "$lastMonthlyResetPeriod", period)},
			bson.E{Key: "lastMonthlyResetPeriod", Value: period},
		)
	}
	if inc.Daily {
		day := CurrentDay(now)
		set = append(set,
			bson.E{Key: "dailyUsageCount", Value: rolloverCounter("$dailyUsageCount", "$lastDailyResetDate", day)},
			bson.E{Key: "lastDailyResetDate", Value: day},
		)
	}
	return mongo.Pipeline{{{Key: "$set", Value: set}}}
}

func rolloverCounter(counterRef, stampRef, current string) bson.D {
	return bson.D{{Key: "$cond", Value: bson.A{
		bson.D{{Key: "$eq", Value: bson.A{stampRef, current}}},
		bson.D{{Key: "$add", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{counterRef, 0}}}, 1}}},
		1,
	}}}
}

// limitGuards matches documents whose effective counters are still below limits
func limitGuards(inc Increment, limits Limits, now time.Time) bson.A {
	var guards bson.A
	if inc.Monthly && limits.Monthly > 0 {
		guards = append(guards, bson.M{"$or": bson.A{
			bson.M{"lastMonthlyResetPeriod": bson.M{"$ne": CurrentPeriod(now)}},
			bson.M{"monthlyUsageCount": bson.M{"$lt": limits.Monthly}},
		}})
	}
	if inc.Daily && limits.Daily > 0 {
		guards = append(guards, bson.M{"$or": bson.A{
			bson.M{"lastDailyResetDate": bson.M{"$ne": CurrentDay(now)}},
			bson.M{"dailyUsageCount": bson.M{"$lt": limits.Daily}},
		}})
	}
	return guards
}
