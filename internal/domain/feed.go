package domain

import "time"

// FeedPost is one chronological activity-feed entry, tenant-scoped or
// tenant-global (legislative feeds are global; commerce feeds are scoped).
type FeedPost struct {
	ID            string
	TenantID      string // empty for tenant-global posts
	Type          FeedType
	Title         string
	Body          string
	Payload       map[string]any
	EntityRef     string
	Tags          []string
	SourceRefID   string
	AutoGenerated bool
	CreatedAt     time.Time
}
