// Package mongo stores community state as MongoDB documents.
package mongo

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bredsky212/Logiq212/internal/audit"
	"github.com/bredsky212/Logiq212/internal/features"
	"github.com/bredsky212/Logiq212/internal/perms"
	"github.com/bredsky212/Logiq212/internal/suspension"
)

const (
	collOverrides   = "feature_overrides"
	collSecurity    = "security_configs"
	collAudit       = "audit_entries"
	collSuspensions = "suspensions"
)

var (
	_ perms.Store      = (*Store)(nil)
	_ audit.Store      = (*Store)(nil)
	_ suspension.Store = (*Store)(nil)
)

// Store implements every store interface over one database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri, pings, and selects database dbName.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return &Store{client: client, db: client.Database(dbName)}, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// EnsureIndexes creates the indexes the queries rely on, including the
// one-active-suspension-per-user constraint.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.db.Collection(collAudit).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "community_id", Value: 1}, {Key: "_id", Value: -1}},
	}); err != nil {
		return err
	}
	if _, err := s.db.Collection(collOverrides).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "community_id", Value: 1}, {Key: "feature", Value: 1}},
	}); err != nil {
		return err
	}
	_, err := s.db.Collection(collSuspensions).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "community_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{"active": true}),
		},
		{
			Keys: bson.D{{Key: "community_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "started_at", Value: -1}},
		},
	})
	return err
}

type overrideDoc struct {
	ID          string    `bson:"_id"`
	CommunityID string    `bson:"community_id"`
	Feature     string    `bson:"feature"`
	Allow       []string  `bson:"allow"`
	Deny        []string  `bson:"deny"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func overrideID(communityID string, feature features.Key) string {
	return communityID + ":" + string(feature)
}

func toOverrideDoc(o perms.Override) overrideDoc {
	return overrideDoc{
		ID:          overrideID(o.CommunityID, o.Feature),
		CommunityID: o.CommunityID,
		Feature:     string(o.Feature),
		Allow:       nonNil(o.Allow),
		Deny:        nonNil(o.Deny),
		UpdatedAt:   o.UpdatedAt,
	}
}

func (d overrideDoc) toOverride() perms.Override {
	return perms.Override{
		CommunityID: d.CommunityID,
		Feature:     features.Key(d.Feature),
		Allow:       nilIfEmpty(d.Allow),
		Deny:        nilIfEmpty(d.Deny),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

type securityDoc struct {
	ID              string     `bson:"_id"`
	Bootstrapped    bool       `bson:"bootstrapped"`
	ProtectedGroups []string   `bson:"protected_groups"`
	ProtectedUsers  []string   `bson:"protected_users"`
	BootstrappedAt  *time.Time `bson:"bootstrapped_at,omitempty"`
	BootstrappedBy  string     `bson:"bootstrapped_by,omitempty"`
	UpdatedAt       time.Time  `bson:"updated_at"`
}

func toSecurityDoc(cfg perms.SecurityConfig) securityDoc {
	return securityDoc{
		ID:              cfg.CommunityID,
		Bootstrapped:    cfg.Bootstrapped,
		ProtectedGroups: nonNil(cfg.ProtectedGroups),
		ProtectedUsers:  nonNil(cfg.ProtectedUsers),
		BootstrappedAt:  cfg.BootstrappedAt,
		BootstrappedBy:  cfg.BootstrappedBy,
		UpdatedAt:       cfg.UpdatedAt,
	}
}

func (d securityDoc) toConfig() perms.SecurityConfig {
	cfg := perms.SecurityConfig{
		CommunityID:     d.ID,
		Bootstrapped:    d.Bootstrapped,
		ProtectedGroups: nilIfEmpty(d.ProtectedGroups),
		ProtectedUsers:  nilIfEmpty(d.ProtectedUsers),
		BootstrappedBy:  d.BootstrappedBy,
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
	if d.BootstrappedAt != nil {
		t := d.BootstrappedAt.UTC()
		cfg.BootstrappedAt = &t
	}
	return cfg
}

func (s *Store) GetOverride(ctx context.Context, communityID string, feature features.Key) (perms.Override, error) {
	var doc overrideDoc
	err := s.db.Collection(collOverrides).FindOne(ctx, bson.M{"_id": overrideID(communityID, feature)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return perms.Override{}, perms.ErrNotFound
	}
	if err != nil {
		return perms.Override{}, err
	}
	return doc.toOverride(), nil
}

func (s *Store) PutOverride(ctx context.Context, o perms.Override) error {
	doc := toOverrideDoc(o)
	_, err := s.db.Collection(collOverrides).ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *Store) DeleteOverride(ctx context.Context, communityID string, feature features.Key) error {
	res, err := s.db.Collection(collOverrides).DeleteOne(ctx, bson.M{"_id": overrideID(communityID, feature)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return perms.ErrNotFound
	}
	return nil
}

func (s *Store) ListOverrides(ctx context.Context, communityID string) ([]perms.Override, error) {
	opts := options.Find().SetSort(bson.M{"feature": 1})
	cursor, err := s.db.Collection(collOverrides).Find(ctx, bson.M{"community_id": communityID}, opts)
	if err != nil {
		return nil, err
	}
	var docs []overrideDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]perms.Override, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toOverride())
	}
	return out, nil
}

func (s *Store) GetSecurity(ctx context.Context, communityID string) (perms.SecurityConfig, error) {
	var doc securityDoc
	err := s.db.Collection(collSecurity).FindOne(ctx, bson.M{"_id": communityID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return perms.SecurityConfig{}, perms.ErrNotFound
	}
	if err != nil {
		return perms.SecurityConfig{}, err
	}
	return doc.toConfig(), nil
}

func (s *Store) PutSecurity(ctx context.Context, cfg perms.SecurityConfig) error {
	_, err := s.db.Collection(collSecurity).UpdateOne(ctx, bson.M{"_id": cfg.CommunityID}, securityUpdate(cfg), options.Update().SetUpsert(true))
	return err
}

// securityUpdate builds the upsert pipeline for PutSecurity. Bootstrapped
// only ever moves from false to true, and the first bootstrap stamp wins.
func securityUpdate(cfg perms.SecurityConfig) mongo.Pipeline {
	doc := toSecurityDoc(cfg)
	set := bson.D{
		{Key: "bootstrapped", Value: bson.M{"$or": bson.A{bson.M{"$ifNull": bson.A{"$bootstrapped", false}}, doc.Bootstrapped}}},
		{Key: "protected_groups", Value: bson.M{"$literal": doc.ProtectedGroups}},
		{Key: "protected_users", Value: bson.M{"$literal": doc.ProtectedUsers}},
		{Key: "updated_at", Value: doc.UpdatedAt},
	}
	if doc.BootstrappedAt != nil {
		set = append(set, bson.E{Key: "bootstrapped_at", Value: bson.M{"$ifNull": bson.A{"$bootstrapped_at", *doc.BootstrappedAt}}})
	}
	if doc.BootstrappedBy != "" {
		set = append(set, bson.E{Key: "bootstrapped_by", Value: bson.M{"$ifNull": bson.A{"$bootstrapped_by", bson.M{"$literal": doc.BootstrappedBy}}}})
	}
	return mongo.Pipeline{{{Key: "$set", Value: set}}}
}

func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) error {
	_, err := s.db.Collection(collAudit).InsertOne(ctx, e)
	return err
}

func auditFilter(communityID string, q audit.Query) bson.M {
	filter := bson.M{"community_id": communityID}
	if q.Feature != "" {
		filter["feature"] = string(q.Feature)
	}
	if q.Action != "" {
		filter["action"] = string(q.Action)
	}
	if q.ActorID != "" {
		filter["actor_id"] = q.ActorID
	}
	return filter
}

func (s *Store) ListAudit(ctx context.Context, communityID string, q audit.Query) ([]audit.Entry, error) {
	opts := options.Find().SetSort(bson.M{"_id": -1}).SetLimit(int64(q.EffectiveLimit()))
	cursor, err := s.db.Collection(collAudit).Find(ctx, auditFilter(communityID, q), opts)
	if err != nil {
		return nil, err
	}
	var entries []audit.Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) GetActiveSuspension(ctx context.Context, communityID, userID string) (suspension.Record, error) {
	var r suspension.Record
	err := s.db.Collection(collSuspensions).
		FindOne(ctx, bson.M{"community_id": communityID, "user_id": userID, "active": true}).
		Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return suspension.Record{}, suspension.ErrNotFound
	}
	if err != nil {
		return suspension.Record{}, err
	}
	return r, nil
}

func (s *Store) PutSuspension(ctx context.Context, r suspension.Record) error {
	_, err := s.db.Collection(collSuspensions).ReplaceOne(ctx, bson.M{"_id": r.ID}, r, options.Replace().SetUpsert(true))
	return err
}

func (s *Store) ListSuspensions(ctx context.Context, communityID, userID string, limit int) ([]suspension.Record, error) {
	if limit <= 0 {
		limit = suspension.DefaultHistoryLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	return s.findSuspensions(ctx, bson.M{"community_id": communityID, "user_id": userID}, opts)
}

func (s *Store) ListActiveSuspensions(ctx context.Context) ([]suspension.Record, error) {
	return s.findSuspensions(ctx, bson.M{"active": true}, options.Find().SetSort(bson.M{"started_at": -1}))
}

func (s *Store) findSuspensions(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]suspension.Record, error) {
	cursor, err := s.db.Collection(collSuspensions).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var out []suspension.Record
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return slices.Clone(v)
}

func nilIfEmpty(v []string) []string {
	if len(v) == 0 {
		return nil
	}
	return v
}
