package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// SchemaVersion identifies the constraint set created by EnsureSchema.
const SchemaVersion = "anime_catalog_v1"

type migration struct {
	name        string
	description string
	query       string
}

func schemaMigrations(dimensions int) []migration {
	migrations := []migration{
		{
			name:        "Create Constraints",
			description: "Unique natural keys for every catalog vertex",
			query: `
				CREATE CONSTRAINT anime_id_unique IF NOT EXISTS FOR (a:Anime) REQUIRE a.anime_id IS UNIQUE;
				CREATE CONSTRAINT genre_name_unique IF NOT EXISTS FOR (g:Genre) REQUIRE g.name IS UNIQUE;
				CREATE CONSTRAINT source_name_unique IF NOT EXISTS FOR (s:Source) REQUIRE s.name IS UNIQUE;
				CREATE CONSTRAINT type_name_unique IF NOT EXISTS FOR (t:Type) REQUIRE t.name IS UNIQUE;
				CREATE CONSTRAINT rating_name_unique IF NOT EXISTS FOR (r:Rating) REQUIRE r.name IS UNIQUE;
			`,
		},
		{
			name:        "Create Indexes",
			description: "Lookup indexes used by recommendation queries",
			query: `
				CREATE INDEX anime_name IF NOT EXISTS FOR (a:Anime) ON (a.name);
				CREATE INDEX anime_score IF NOT EXISTS FOR (a:Anime) ON (a.score);
			`,
		},
	}

	if dimensions > 0 {
		migrations = append(migrations, migration{
			name:        "Create Vector Index",
			description: "Cosine vector index over anime embeddings",
			query: fmt.Sprintf(`
				CREATE VECTOR INDEX anime_embedding IF NOT EXISTS
				FOR (a:Anime) ON (a.embedding)
				OPTIONS {indexConfig: {`+"`vector.dimensions`"+`: %d, `+"`vector.similarity_function`"+`: 'cosine'}};
			`, dimensions),
		})
	}

	return migrations
}

// EnsureSchema creates the uniqueness constraints that back the upsert
// invariants, plus a vector index when dimensions > 0. Every statement is
// idempotent, so it is safe to run before each ingestion.
func (s *Neo4jStore) EnsureSchema(ctx context.Context, dimensions int) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	migrations := schemaMigrations(dimensions)
	for i, m := range migrations {
		s.logger.Info("Running migration",
			zap.Int("step", i+1),
			zap.Int("total", len(migrations)),
			zap.String("name", m.name),
			zap.String("description", m.description),
		)

		for j, stmt := range splitStatements(m.query) {
			result, err := session.Run(ctx, stmt, nil)
			if err == nil {
				_, err = result.Consume(ctx)
			}
			if err != nil {
				return fmt.Errorf("migration %q statement %d: %w", m.name, j+1, err)
			}
		}
	}

	result, err := session.Run(ctx, `
		MERGE (m:Migration {version: $version})
		SET m.applied_at = datetime(),
		    m.description = 'Anime catalog constraints and indexes'
	`, map[string]any{"version": SchemaVersion})
	if err == nil {
		_, err = result.Consume(ctx)
	}
	if err != nil {
		s.logger.Warn("Failed to mark migration as applied", zap.Error(err))
	}

	return nil
}

// AppliedSchemaVersion returns the most recently applied schema version, or
// "" when EnsureSchema never ran against this database.
func (s *Neo4jStore) AppliedSchemaVersion(ctx context.Context) (string, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (m:Migration)
		RETURN m.version AS version
		ORDER BY m.applied_at DESC
		LIMIT 1
	`, nil)
	if err != nil {
		return "", fmt.Errorf("failed to read schema version: %w", err)
	}
	if !result.Next(ctx) {
		return "", result.Err()
	}
	return getStringFromRecord(result.Record(), "version"), nil
}

// splitStatements splits a Cypher script into individual statements,
// dropping // comments and blank statements.
func splitStatements(script string) []string {
	lines := strings.Split(script, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		cleaned = append(cleaned, line)
	}

	var statements []string
	for _, part := range strings.Split(strings.Join(cleaned, "\n"), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}
