package database

import (
	"time"
)

type Status string

const (
	StatusPendingFetch Status = "pending_fetch"
	StatusFetching     Status = "fetching"
	StatusPendingEmbed Status = "pending_embed"
	StatusEmbedding    Status = "embedding"
	StatusSuccess      Status = "success"
	StatusFailed       Status = "failed"
)

// Statuses lists every link status in pipeline order.
var Statuses = []Status{
	StatusPendingFetch,
	StatusFetching,
	StatusPendingEmbed,
	StatusEmbedding,
	StatusSuccess,
	StatusFailed,
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Step is a unit of pipeline work that can be claimed from the queue.
type Step string

const (
	StepFetch Step = "fetch"
	StepEmbed Step = "embed"
)

// PendingStatus is the status a link waits in before the step claims it.
func (s Step) PendingStatus() Status {
	if s == StepEmbed {
		return StatusPendingEmbed
	}
	return StatusPendingFetch
}

// ActiveStatus is the status a link holds while the step works on it.
func (s Step) ActiveStatus() Status {
	if s == StepEmbed {
		return StatusEmbedding
	}
	return StatusFetching
}

func (s Step) Valid() bool {
	return s == StepFetch || s == StepEmbed
}

// ListItem is a link without its heavy content fields.
type ListItem struct {
	ID         int64
	Href       string
	Title      string
	FaviconURL string
	ImgURL     string
	Status     Status
	StatusText string
	RetryCount int
	MaxRetries int
	CreatedAt  time.Time
	FetchedAt  *time.Time
	EmbeddedAt *time.Time
	ClaimedAt  *time.Time
}

type Link struct {
	ListItem
	Content     string // empty until fetched
	ContentHash string
}

type NewLink struct {
	Href  string
	Title string
}

// FetchedPage is the output of a successful fetch step.
type FetchedPage struct {
	Title       string
	FaviconURL  string
	ImgURL      string
	Content     string
	ContentHash string
}

// LinkUpdate carries the mutable link fields; nil fields are left untouched.
type LinkUpdate struct {
	Title      *string
	FaviconURL *string
	ImgURL     *string
	Status     *Status
	StatusText *string
	RetryCount *int
	MaxRetries *int
}

func (u LinkUpdate) IsEmpty() bool {
	return u.Title == nil && u.FaviconURL == nil && u.ImgURL == nil && u.Status == nil &&
		u.StatusText == nil && u.RetryCount == nil && u.MaxRetries == nil
}

type LinkStatus struct {
	ID         int64
	Status     Status
	StatusText string
	RetryCount int
	MaxRetries int
}

// Chunk is one embedded slice of a link's content.
type Chunk struct {
	Content   string
	Embedding []float32
}

// ChunkMatch is a stored chunk returned by a nearest-neighbour query.
type ChunkMatch struct {
	ID         int64
	LinkID     int64
	ChunkIndex int
	Content    string
	Distance   float64
}
