// ABOUTME: MongoDB-backed Store implementation using the official mongo-driver
// ABOUTME: Agent ids come from a counters collection; conversations are stored as whole documents

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store on a MongoDB database.
type MongoStore struct {
	client        *mongo.Client
	agents        *mongo.Collection
	conversations *mongo.Collection
	counters      *mongo.Collection
	logger        *slog.Logger
}

type agentDocument struct {
	ID        int64     `bson:"_id"`
	Slug      string    `bson:"slug"`
	Name      string    `bson:"name"`
	Persona   string    `bson:"persona"`
	Type      string    `bson:"type"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type messageDocument struct {
	ID        string    `bson:"id"`
	Role      string    `bson:"role"`
	Content   string    `bson:"content"`
	CreatedAt time.Time `bson:"created_at"`
}

type conversationDocument struct {
	ID        string            `bson:"_id"`
	AgentID   int64             `bson:"agent_id"`
	Messages  []messageDocument `bson:"messages"`
	CreatedAt time.Time         `bson:"created_at"`
	UpdatedAt time.Time         `bson:"updated_at"`
}

// NewMongoStore connects to uri and prepares the collections in database.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	logger := slog.Default().With("component", "store", "backend", "mongo")

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:        client,
		agents:        db.Collection("agents"),
		conversations: db.Collection("conversations"),
		counters:      db.Collection("counters"),
		logger:        logger,
	}

	_, err = s.agents.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "slug", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("creating slug index: %w", err)
	}

	logger.Info("Mongo store initialized", "database", database)
	return s, nil
}

// GetAgent retrieves an agent by ID.
func (s *MongoStore) GetAgent(ctx context.Context, id int64) (*Agent, error) {
	var doc agentDocument
	err := s.agents.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding agent: %w", err)
	}
	return doc.toAgent(), nil
}

// CreateAgent allocates the next id from the counters collection and inserts the agent.
func (s *MongoStore) CreateAgent(ctx context.Context, params CreateAgentParams) (*Agent, error) {
	id, err := s.nextSequence(ctx, "agents")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := agentDocument{
		ID:        id,
		Slug:      Slugify(params.Name),
		Name:      params.Name,
		Persona:   params.Persona,
		Type:      params.Type,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.agents.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateAgent
		}
		return nil, fmt.Errorf("inserting agent: %w", err)
	}
	return doc.toAgent(), nil
}

// UpdateAgent replaces name, persona and type of an existing agent.
func (s *MongoStore) UpdateAgent(ctx context.Context, agent *Agent) (*Agent, error) {
	existing, err := s.GetAgent(ctx, agent.ID)
	if err != nil {
		return nil, err
	}

	updatedAt := touch(existing.CreatedAt)
	_, err = s.agents.UpdateByID(ctx, agent.ID, bson.M{"$set": bson.M{
		"slug":       agent.Slug(),
		"name":       agent.Name,
		"persona":    agent.Persona,
		"type":       agent.Type,
		"updated_at": updatedAt,
	}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateAgent
		}
		return nil, fmt.Errorf("updating agent: %w", err)
	}

	existing.Name = agent.Name
	existing.Persona = agent.Persona
	existing.Type = agent.Type
	existing.UpdatedAt = updatedAt
	return existing, nil
}

// CountAgentsByName counts agents sharing the slug of name.
func (s *MongoStore) CountAgentsByName(ctx context.Context, name string) (int, error) {
	n, err := s.agents.CountDocuments(ctx, bson.M{"slug": Slugify(name)})
	if err != nil {
		return 0, fmt.Errorf("counting agents: %w", err)
	}
	return int(n), nil
}

// ListAgents returns all agents ordered by id.
func (s *MongoStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	cur, err := s.agents.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer cur.Close(ctx)

	var docs []agentDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding agents: %w", err)
	}

	agents := make([]*Agent, 0, len(docs))
	for i := range docs {
		agents = append(agents, docs[i].toAgent())
	}
	return agents, nil
}

// CreateConversation inserts a conversation holding the seed message.
func (s *MongoStore) CreateConversation(ctx context.Context, seed ConversationSeed) (*Conversation, error) {
	c := newConversation(seed)
	if _, err := s.conversations.InsertOne(ctx, toConversationDocument(c)); err != nil {
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}
	return c, nil
}

// UpdateConversation replaces the stored document of an existing conversation.
func (s *MongoStore) UpdateConversation(ctx context.Context, conv *Conversation) (*Conversation, error) {
	existing, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	updated := conv.Clone()
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = touch(existing.CreatedAt)

	res, err := s.conversations.ReplaceOne(ctx, bson.M{"_id": updated.ID}, toConversationDocument(updated))
	if err != nil {
		return nil, fmt.Errorf("replacing conversation: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return updated, nil
}

// GetConversation retrieves a conversation by ID.
func (s *MongoStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var doc conversationDocument
	err := s.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding conversation: %w", err)
	}
	return doc.toConversation(), nil
}

// Ping checks the connection.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) nextSequence(ctx context.Context, name string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("allocating %s id: %w", name, err)
	}
	return counter.Seq, nil
}

func (d *agentDocument) toAgent() *Agent {
	return &Agent{
		ID:        d.ID,
		Name:      d.Name,
		Persona:   d.Persona,
		Type:      d.Type,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

func toConversationDocument(c *Conversation) conversationDocument {
	doc := conversationDocument{
		ID:        c.ID,
		AgentID:   c.AgentID,
		Messages:  make([]messageDocument, 0, len(c.Messages)),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	for _, m := range c.Messages {
		doc.Messages = append(doc.Messages, messageDocument{
			ID:        m.ID,
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return doc
}

func (d *conversationDocument) toConversation() *Conversation {
	c := &Conversation{
		ID:        d.ID,
		AgentID:   d.AgentID,
		Messages:  make([]Message, 0, len(d.Messages)),
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	for _, m := range d.Messages {
		c.Messages = append(c.Messages, Message{
			ID:        m.ID,
			Role:      Role(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt.UTC(),
		})
	}
	return c
}

// Ensure MongoStore implements Store
var _ Store = (*MongoStore)(nil)
