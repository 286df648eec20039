// Package catalog is the in-memory, JSON-snapshotted datastore for the
// catalogue entities: channels, messages, designs, tags, import sources,
// duplicate candidates, families, and previews. Jobs are not stored here:
// internal/queue keeps them in Postgres.
package catalog

import (
	"sync"
	"time"

	"github.com/AdamA817/printarr-sub001/internal/models"
)

// dataset holds every collection, keyed by primary ID, mirroring the shape
// persisted to the snapshot file.
type dataset struct {
	Channels              map[string]models.Channel              `json:"channels"`
	DiscoveredChannels    map[string]models.DiscoveredChannel    `json:"discoveredChannels"`
	Messages              map[string]models.Message              `json:"messages"`
	Attachments           map[string]models.Attachment           `json:"attachments"`
	Designs               map[string]models.Design               `json:"designs"`
	DesignSources         map[string]models.DesignSource         `json:"designSources"`
	DesignFiles           map[string]models.DesignFile           `json:"designFiles"`
	Tags                  map[string]models.Tag                  `json:"tags"`
	DesignTags            map[string][]models.DesignTag          `json:"designTags"`
	FamilyTags            map[string][]models.FamilyTag          `json:"familyTags"`
	ImportSources         map[string]models.ImportSource         `json:"importSources"`
	ImportSourceFolders   map[string]models.ImportSourceFolder   `json:"importSourceFolders"`
	ImportProfiles        map[string]models.ImportProfile        `json:"importProfiles"`
	ImportRecords         map[string]models.ImportRecord         `json:"importRecords"`
	DuplicateCandidates   map[string]models.DuplicateCandidate   `json:"duplicateCandidates"`
	Families              map[string]models.DesignFamily         `json:"families"`
	PreviewAssets         map[string]models.PreviewAsset         `json:"previewAssets"`
	ExternalMetadataLinks map[string]models.ExternalMetadataLink `json:"externalMetadataLinks"`
	Settings              map[string]models.Setting              `json:"settings"`
}

func newDataset() dataset {
	return dataset{
		Channels:              make(map[string]models.Channel),
		DiscoveredChannels:    make(map[string]models.DiscoveredChannel),
		Messages:              make(map[string]models.Message),
		Attachments:           make(map[string]models.Attachment),
		Designs:               make(map[string]models.Design),
		DesignSources:         make(map[string]models.DesignSource),
		DesignFiles:           make(map[string]models.DesignFile),
		Tags:                  make(map[string]models.Tag),
		DesignTags:            make(map[string][]models.DesignTag),
		FamilyTags:            make(map[string][]models.FamilyTag),
		ImportSources:         make(map[string]models.ImportSource),
		ImportSourceFolders:   make(map[string]models.ImportSourceFolder),
		ImportProfiles:        make(map[string]models.ImportProfile),
		ImportRecords:         make(map[string]models.ImportRecord),
		DuplicateCandidates:   make(map[string]models.DuplicateCandidate),
		Families:              make(map[string]models.DesignFamily),
		PreviewAssets:         make(map[string]models.PreviewAsset),
		ExternalMetadataLinks: make(map[string]models.ExternalMetadataLink),
		Settings:              make(map[string]models.Setting),
	}
}

// Store is the in-memory, mutex-guarded catalogue repository. It persists
// its dataset to a JSON snapshot file after every mutation.
type Store struct {
	mu       sync.RWMutex
	filePath string
	data     dataset

	// persistOverride lets tests intercept persistence without touching disk.
	persistOverride func(dataset) error

	counts countCache
}

// CountSummary reports the dashboard-facing design/duplicate row counts.
// Exact counts are recomputed at most every 5s, the cheaper approximate
// rollups at most every 30s; job counts live alongside the queue and are
// reported separately.
type CountSummary struct {
	TotalDesigns      int
	PendingDesigns    int
	DownloadedDesigns int
	PendingDuplicates int
}

// countCache memoises CountSummary so a busy dashboard doesn't force a full
// table walk on every poll.
type countCache struct {
	mu       sync.Mutex
	approx   CountSummary
	approxAt time.Time
	exact    CountSummary
	exactAt  time.Time
}

const (
	approxCountTTL = 30 * time.Second
	exactCountTTL  = 5 * time.Second
)

// New creates an empty Store backed by the given snapshot file path. An
// empty path disables persistence, which is useful for tests.
func New(filePath string) *Store {
	return &Store{
		filePath: filePath,
		data:     newDataset(),
	}
}
