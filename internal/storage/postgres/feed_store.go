package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/tenantsync/engine/internal/domain"
	"github.com/tenantsync/engine/internal/storage"
)

// FeedPostStore is the Postgres-backed domain.FeedPost store.
type FeedPostStore struct{ Base }

func NewFeedPostStore(db *sql.DB) *FeedPostStore { return &FeedPostStore{Base{DB: db}} }

func (s *FeedPostStore) CreateFeedPost(ctx context.Context, p domain.FeedPost) (domain.FeedPost, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	payload, err := jsonOf(p.Payload)
	if err != nil {
		return domain.FeedPost{}, err
	}
	const q = `INSERT INTO feed_posts (id, tenant_id, type, title, body, payload, entity_ref, tags, source_ref_id, auto_generated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now()) RETURNING created_at`
	err = s.q(ctx).QueryRowContext(ctx, q, p.ID, p.TenantID, string(p.Type), p.Title, p.Body, payload,
		p.EntityRef, pq.StringArray(p.Tags), p.SourceRefID, p.AutoGenerated).Scan(&p.CreatedAt)
	if err != nil {
		return domain.FeedPost{}, classify("feed_post_create_failed", "create feed post", err)
	}
	return p, nil
}

const feedPostColumns = `id, tenant_id, type, title, body, payload, entity_ref, tags, source_ref_id, auto_generated, created_at`

func scanFeedPost(row interface{ Scan(...any) error }) (domain.FeedPost, error) {
	var p domain.FeedPost
	var typ string
	var payload []byte
	var tags pq.StringArray
	err := row.Scan(&p.ID, &p.TenantID, &typ, &p.Title, &p.Body, &payload, &p.EntityRef, &tags,
		&p.SourceRefID, &p.AutoGenerated, &p.CreatedAt)
	p.Type = domain.FeedType(typ)
	p.Payload = parseJSONMap(payload)
	p.Tags = []string(tags)
	return p, err
}

func (s *FeedPostStore) ListFeedPosts(ctx context.Context, tenantID string, opts storage.ListOptions) (storage.Page[domain.FeedPost], error) {
	args := []any{tenantID}
	where := []string{"tenant_id = $1"}
	if typ := opts.Filter["type"]; typ != "" {
		args = append(args, typ)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}
	limit, offset := pageBounds(opts)

	var total int
	countQ := `SELECT count(*) FROM feed_posts` + whereClause
	if err := s.q(ctx).QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return storage.Page[domain.FeedPost]{}, classify("feed_post_count_failed", "count feed posts", err)
	}

	listQ := `SELECT ` + feedPostColumns + ` FROM feed_posts` + whereClause +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", limit, offset)
	rows, err := s.q(ctx).QueryContext(ctx, listQ, args...)
	if err != nil {
		return storage.Page[domain.FeedPost]{}, classify("feed_post_list_failed", "list feed posts", err)
	}
	defer rows.Close()
	var items []domain.FeedPost
	for rows.Next() {
		p, err := scanFeedPost(rows)
		if err != nil {
			return storage.Page[domain.FeedPost]{}, classify("feed_post_scan_failed", "scan feed post", err)
		}
		items = append(items, p)
	}
	return storage.Page[domain.FeedPost]{Items: items, Total: total}, rows.Err()
}

func (s *FeedPostStore) GetFeedPost(ctx context.Context, id string) (domain.FeedPost, bool, error) {
	q := `SELECT ` + feedPostColumns + ` FROM feed_posts WHERE id = $1`
	p, err := scanFeedPost(s.q(ctx).QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return domain.FeedPost{}, false, nil
	}
	if err != nil {
		return domain.FeedPost{}, false, classify("feed_post_query_failed", "query feed post", err)
	}
	return p, true, nil
}
