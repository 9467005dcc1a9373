package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"animebot/backend/pkg/logger"
)

// Neo4jStore handles all Neo4j database operations. The driver is owned by
// the caller and shared by existence reads and batch writes.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

var (
	_ Store   = (*Neo4jStore)(nil)
	_ Counter = (*Neo4jStore)(nil)
)

// NewNeo4jStore creates a store on an existing driver. An empty database
// selects the server's default database.
func NewNeo4jStore(driver neo4j.DriverWithContext, database string) *Neo4jStore {
	return &Neo4jStore{
		driver:   driver,
		database: database,
		logger:   logger.Named("graph"),
	}
}

// Close closes the Neo4j driver connection
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

// VertexExists reports whether a vertex with the natural key exists
func (s *Neo4jStore) VertexExists(ctx context.Context, label Label, key any) (bool, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (n:%s {%s: $key})
		RETURN count(n) > 0 AS found
	`, label, label.KeyProperty())

	found, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]any{"key": key})
		if err != nil {
			return nil, err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return nil, err
		}
		return getBoolFromRecord(record, "found"), nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check %s existence: %w", label, err)
	}

	return found.(bool), nil
}

// RunTransaction applies all operations in one managed write transaction.
func (s *Neo4jStore) RunTransaction(ctx context.Context, ops []Operation) error {
	if len(ops) == 0 {
		return nil
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, op := range ops {
			query, params := op.Cypher()
			result, err := tx.Run(ctx, query, params)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to run transaction: %w", err)
	}

	s.logger.Debug("Transaction committed", zap.Int("operations", len(ops)))
	return nil
}

// CountVertices returns the number of vertices per catalog label
func (s *Neo4jStore) CountVertices(ctx context.Context) (map[Label]int64, error) {
	counts := make(map[Label]int64, len(Labels))
	for _, label := range Labels {
		n, err := s.count(ctx, fmt.Sprintf("MATCH (n:%s) RETURN count(n) AS total", label))
		if err != nil {
			return nil, err
		}
		counts[label] = n
	}
	return counts, nil
}

// CountEdges returns the number of relationships per catalog edge type
func (s *Neo4jStore) CountEdges(ctx context.Context) (map[EdgeType]int64, error) {
	counts := make(map[EdgeType]int64, len(EdgeTypes))
	for _, edge := range EdgeTypes {
		n, err := s.count(ctx, fmt.Sprintf("MATCH (:Anime)-[r:%s]->() RETURN count(r) AS total", edge))
		if err != nil {
			return nil, err
		}
		counts[edge] = n
	}
	return counts, nil
}

func (s *Neo4jStore) count(ctx context.Context, query string) (int64, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	total, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return nil, err
		}
		return getInt64FromRecord(record, "total"), nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to execute query: %w", err)
	}
	return total.(int64), nil
}

// DeleteCatalog detaches and deletes every catalog vertex in chunks, so
// large graphs do not need one huge transaction. It returns how many
// vertices were removed.
func (s *Neo4jStore) DeleteCatalog(ctx context.Context) (int64, error) {
	labels := make([]string, len(Labels))
	for i, l := range Labels {
		labels[i] = string(l)
	}

	var total int64
	for {
		session := s.session(ctx, neo4j.AccessModeWrite)
		deleted, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			result, err := tx.Run(ctx, `
				MATCH (n)
				WHERE any(l IN labels(n) WHERE l IN $labels)
				WITH n LIMIT 10000
				DETACH DELETE n
				RETURN count(*) AS total
			`, map[string]any{"labels": labels})
			if err != nil {
				return nil, err
			}
			record, err := result.Single(ctx)
			if err != nil {
				return nil, err
			}
			return getInt64FromRecord(record, "total"), nil
		})
		session.Close(ctx)
		if err != nil {
			return total, fmt.Errorf("failed to delete catalog: %w", err)
		}

		n := deleted.(int64)
		total += n
		if n == 0 {
			s.logger.Info("Catalog deleted", zap.Int64("vertices", total))
			return total, nil
		}
	}
}
