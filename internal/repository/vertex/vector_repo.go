// Package vertex provides a Vertex AI Vector Search backend for the verse
// window index. Window datapoints are indexed offline with IDs of the form
// "book:chapter:verse_start:verse_end"; neighbors are hydrated to verse rows
// from PostgreSQL.
package vertex

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"github.com/counsel-scripture-api/internal/models"
	"github.com/counsel-scripture-api/internal/repository"
	"github.com/jmoiron/sqlx"
	"google.golang.org/api/option"
)

// Ensure VectorSearchRepository implements repository.VectorSearchRepository
var _ repository.VectorSearchRepository = (*VectorSearchRepository)(nil)

// Config holds Vertex AI Vector Search configuration
type Config struct {
	ProjectID            string // GCP project ID
	Location             string // e.g., "us-central1"
	IndexEndpointID      string // Deployed index endpoint ID
	DeployedIndexID      string // The deployed index ID within the endpoint
	PublicEndpointDomain string // Public endpoint domain for queries
}

// VectorSearchRepository implements repository.VectorSearchRepository using
// Vertex AI Vector Search over window datapoints
type VectorSearchRepository struct {
	config      Config
	matchClient *aiplatform.MatchClient
	db          *sqlx.DB // Used to hydrate verse text after getting window IDs
}

// NewVectorSearchRepository creates a new Vertex AI vector search repository
func NewVectorSearchRepository(ctx context.Context, config Config, db *sqlx.DB) (*VectorSearchRepository, error) {
	var endpoint string
	if config.PublicEndpointDomain != "" {
		endpoint = fmt.Sprintf("%s:443", config.PublicEndpointDomain)
	} else {
		endpoint = fmt.Sprintf("%s-aiplatform.googleapis.com:443", config.Location)
	}

	matchClient, err := aiplatform.NewMatchClient(ctx, option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("create match client: %w", err)
	}

	return &VectorSearchRepository{
		config:      config,
		matchClient: matchClient,
		db:          db,
	}, nil
}

// Close closes the Vertex AI client
func (r *VectorSearchRepository) Close() error {
	if r.matchClient != nil {
		return r.matchClient.Close()
	}
	return nil
}

type windowRef struct {
	bookID     int
	chapter    int
	verseStart int
	verseEnd   int
	distance   float64
}

// SearchWindows performs nearest-neighbor search against the deployed window
// index and explodes each matched window into one item per member verse
func (r *VectorSearchRepository) SearchWindows(ctx context.Context, versionID string, embedding []float64, topK, windowSize int) ([]models.VectorItem, error) {
	indexEndpoint := fmt.Sprintf(
		"projects/%s/locations/%s/indexEndpoints/%s",
		r.config.ProjectID,
		r.config.Location,
		r.config.IndexEndpointID,
	)

	featureVector := make([]float32, len(embedding))
	for i, v := range embedding {
		featureVector[i] = float32(v)
	}

	req := &aiplatformpb.FindNeighborsRequest{
		IndexEndpoint:   indexEndpoint,
		DeployedIndexId: r.config.DeployedIndexID,
		Queries: []*aiplatformpb.FindNeighborsRequest_Query{
			{
				Datapoint: &aiplatformpb.IndexDatapoint{
					FeatureVector: featureVector,
				},
				NeighborCount: int32(topK),
			},
		},
	}

	resp, err := r.matchClient.FindNeighbors(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("find neighbors: %w", err)
	}

	if len(resp.NearestNeighbors) == 0 || len(resp.NearestNeighbors[0].Neighbors) == 0 {
		return []models.VectorItem{}, nil
	}

	windows := make([]windowRef, 0, len(resp.NearestNeighbors[0].Neighbors))
	for _, neighbor := range resp.NearestNeighbors[0].Neighbors {
		ref, ok := parseWindowID(neighbor.Datapoint.GetDatapointId())
		if !ok {
			continue
		}
		// The deployed index may mix window sizes; keep only the requested one.
		if ref.verseEnd-ref.verseStart+1 != windowSize {
			continue
		}
		ref.distance = float64(neighbor.Distance)
		windows = append(windows, ref)
	}

	return r.hydrateWindows(ctx, versionID, windows)
}

// parseWindowID parses "book:chapter:verse_start:verse_end"
func parseWindowID(id string) (windowRef, bool) {
	parts := strings.Split(id, ":")
	if len(parts) != 4 {
		return windowRef{}, false
	}
	nums := make([]int, 4)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return windowRef{}, false
		}
		nums[i] = n
	}
	return windowRef{bookID: nums[0], chapter: nums[1], verseStart: nums[2], verseEnd: nums[3]}, true
}

// hydrateWindows loads verse rows for each window, preserving the neighbor
// order by ascending distance
func (r *VectorSearchRepository) hydrateWindows(ctx context.Context, versionID string, windows []windowRef) ([]models.VectorItem, error) {
	items := []models.VectorItem{}
	for _, w := range windows {
		rows, err := r.db.QueryxContext(ctx, `
			SELECT v.book_id, b.ko_name AS book_name, v.chapter, v.verse, v.text
			FROM bible_verse v
			JOIN bible_book b
			  ON b.version_id = v.version_id AND b.book_id = v.book_id
			WHERE v.version_id = $1 AND v.book_id = $2 AND v.chapter = $3
			  AND v.verse BETWEEN $4 AND $5
			ORDER BY v.verse
		`, versionID, w.bookID, w.chapter, w.verseStart, w.verseEnd)
		if err != nil {
			return nil, fmt.Errorf("hydrate window verses: %w", err)
		}
		for rows.Next() {
			var item models.VectorItem
			if err := rows.Scan(&item.BookID, &item.BookName, &item.Chapter, &item.Verse, &item.Text); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan window verse: %w", err)
			}
			item.Distance = w.distance
			items = append(items, item)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterate window verses: %w", err)
		}
		rows.Close()
	}
	return items, nil
}
