// Package models defines the catalog entities shared by the ingestion
// pipeline, the job queue, and the (out-of-scope) HTTP surface.
package models

import "time"

// ChannelBackfillMode controls how much history a chat-feed channel pulls on
// its first backfill.
type ChannelBackfillMode string

const (
	BackfillAllHistory    ChannelBackfillMode = "ALL_HISTORY"
	BackfillLastNMessages ChannelBackfillMode = "LAST_N_MESSAGES"
	BackfillLastNDays     ChannelBackfillMode = "LAST_N_DAYS"
)

// ChannelDownloadMode controls auto-enqueue behaviour for new designs
// discovered on a channel.
type ChannelDownloadMode string

const (
	DownloadModeManual ChannelDownloadMode = "MANUAL"
	DownloadModeAllNew ChannelDownloadMode = "DOWNLOAD_ALL_NEW"
	DownloadModeAll    ChannelDownloadMode = "DOWNLOAD_ALL"
)

// Channel is an ingestion feed: a physical remote (chat channel, cloud-drive
// folder, forum board) or a virtual channel standing in for an import
// source.
type Channel struct {
	ID                    string
	UpstreamID            *string
	Title                 string
	Enabled               bool
	IsVirtual             bool
	BackfillMode          ChannelBackfillMode
	BackfillValue         int
	DownloadMode          ChannelDownloadMode
	DownloadModeEnabledAt *time.Time
	SyncCursor            string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// DiscoveredChannel records a chat-feed channel/group the bot has joined but
// which has not yet been configured as an ingestion Channel, so operators can
// triage it instead of silently dropping it.
type DiscoveredChannel struct {
	ID          string
	UpstreamID  string
	Title       string
	MemberCount int
	FirstSeenAt time.Time
	Dismissed   bool
}

// Message is a raw upstream item attached to a channel.
type Message struct {
	ID         string
	ChannelID  string
	UpstreamID string
	Timestamp  time.Time
	Author     string
	Caption    string
	HasMedia   bool
	CreatedAt  time.Time
}

// AttachmentDownloadState tracks the lifecycle of a message attachment's
// local copy.
type AttachmentDownloadState string

const (
	AttachmentNotDownloaded AttachmentDownloadState = "NOT_DOWNLOADED"
	AttachmentDownloading   AttachmentDownloadState = "DOWNLOADING"
	AttachmentDownloaded    AttachmentDownloadState = "DOWNLOADED"
	AttachmentFailed        AttachmentDownloadState = "FAILED"
)

// Attachment is a file or media object referenced by a Message.
type Attachment struct {
	ID                string
	MessageID         string
	MediaKind         string
	Filename          string
	MIME              string
	SizeBytes         int64
	Extension         string
	IsCandidateDesign bool
	DownloadState     AttachmentDownloadState
	LocalPath         string
	SHA256            string
	CreatedAt         time.Time
}

// CandidateDesignExtensions is the fixed extension set that marks an
// attachment as a candidate design file.
var CandidateDesignExtensions = map[string]bool{
	".stl": true, ".3mf": true, ".obj": true, ".step": true, ".stp": true,
	".zip": true, ".rar": true, ".7z": true,
}

// DesignStatus is the monotone status chain a Design advances through, plus
// the DELETED terminal cross-cut used by merge.
type DesignStatus string

const (
	DesignDiscovered  DesignStatus = "DISCOVERED"
	DesignWanted      DesignStatus = "WANTED"
	DesignDownloading DesignStatus = "DOWNLOADING"
	DesignDownloaded  DesignStatus = "DOWNLOADED"
	DesignOrganized   DesignStatus = "ORGANIZED"
	DesignDeleted     DesignStatus = "DELETED"
)

// designStatusOrder gives each forward status a rank; DELETED is reachable
// from any rank via merge and is excluded from the ordering check.
var designStatusOrder = map[DesignStatus]int{
	DesignDiscovered:  0,
	DesignWanted:      1,
	DesignDownloading: 2,
	DesignDownloaded:  3,
	DesignOrganized:   4,
}

// CanTransitionStatus reports whether a design may move from "from" to "to":
// forward only, or to DELETED from anywhere.
func CanTransitionStatus(from, to DesignStatus) bool {
	if to == DesignDeleted {
		return true
	}
	fromRank, fromOK := designStatusOrder[from]
	toRank, toOK := designStatusOrder[to]
	if !fromOK || !toOK {
		return false
	}
	return toRank >= fromRank
}

// MulticolorStatus is the tri-state outcome of multicolor detection.
type MulticolorStatus string

const (
	MulticolorUnknown MulticolorStatus = "UNKNOWN"
	MulticolorYes     MulticolorStatus = "MULTI"
	MulticolorNo      MulticolorStatus = "SINGLE"
)

// MulticolorSource records which stage set MulticolorStatus last, per the
// precedence USER_OVERRIDE > 3MF_ANALYSIS > HEURISTIC.
type MulticolorSource string

const (
	MulticolorSourceHeuristic    MulticolorSource = "HEURISTIC"
	MulticolorSource3MFAnalysis  MulticolorSource = "3MF_ANALYSIS"
	MulticolorSourceUserOverride MulticolorSource = "USER_OVERRIDE"
)

// multicolorSourceRank gives each source a precedence rank; higher wins.
var multicolorSourceRank = map[MulticolorSource]int{
	MulticolorSourceHeuristic:    0,
	MulticolorSource3MFAnalysis:  1,
	MulticolorSourceUserOverride: 2,
}

// MulticolorSourceWins reports whether a write from "candidate" should
// overwrite the current "existing" source.
func MulticolorSourceWins(existing, candidate MulticolorSource) bool {
	if existing == "" {
		return true
	}
	return multicolorSourceRank[candidate] >= multicolorSourceRank[existing]
}

// Design is the deduplicated catalogue item.
type Design struct {
	ID                 string
	CanonicalTitle     string
	CanonicalDesigner  string
	TitleOverride      *string
	DesignerOverride   *string
	Multicolor         MulticolorStatus
	MulticolorSource   MulticolorSource
	Status             DesignStatus
	PrimaryFileType    string
	TotalSizeBytes     int64
	MetadataAuthority  string
	ImportSourceID     *string
	FamilyID           *string
	VariantName        string
	ExternalMetadataID *string

	// SearchVector is the precomputed weighted lexeme list the catalogue's
	// full-text search ranks against: title lexemes at weight A, designer
	// lexemes at weight B. Recomputed whenever the effective title or
	// designer changes.
	SearchVector string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveTitle resolves the title a user sees: override wins over
// canonical.
func (d Design) EffectiveTitle() string {
	if d.TitleOverride != nil && *d.TitleOverride != "" {
		return *d.TitleOverride
	}
	return d.CanonicalTitle
}

// EffectiveDesigner resolves the designer a user sees: override wins over
// canonical.
func (d Design) EffectiveDesigner() string {
	if d.DesignerOverride != nil && *d.DesignerOverride != "" {
		return *d.DesignerOverride
	}
	return d.CanonicalDesigner
}

// DesignSource links a Design to one of the Messages it aggregates.
type DesignSource struct {
	ID        string
	DesignID  string
	ChannelID string
	MessageID string
	CreatedAt time.Time
}

// DesignFileKind classifies a concrete on-disk file belonging to a design.
type DesignFileKind string

const (
	FileKindModel   DesignFileKind = "model"
	FileKindArchive DesignFileKind = "archive"
	FileKindImage   DesignFileKind = "image"
	FileKindOther   DesignFileKind = "other"
)

// DesignFile is a concrete file on disk belonging to a Design.
type DesignFile struct {
	ID              string
	DesignID        string
	RelativePath    string
	Filename        string
	Extension       string
	SizeBytes       int64
	SHA256          string
	FileKind        DesignFileKind
	ModelKind       string
	IsFromArchive   bool
	ParentArchiveID *string
	IsPrimary       bool
	CreatedAt       time.Time
}

// JobStatus is the status of a durable queue job.
type JobStatus string

const (
	JobQueued   JobStatus = "QUEUED"
	JobRunning  JobStatus = "RUNNING"
	JobSuccess  JobStatus = "SUCCESS"
	JobFailed   JobStatus = "FAILED"
	JobCanceled JobStatus = "CANCELED"
)

// JobKind enumerates the worker job kinds.
type JobKind string

const (
	JobBackfillChannel      JobKind = "BACKFILL_CHANNEL"
	JobSyncChannelLive      JobKind = "SYNC_CHANNEL_LIVE"
	JobDownloadDesign       JobKind = "DOWNLOAD_DESIGN"
	JobExtractArchive       JobKind = "EXTRACT_ARCHIVE"
	JobImportToLibrary      JobKind = "IMPORT_TO_LIBRARY"
	JobAnalyze3MF           JobKind = "ANALYZE_3MF"
	JobGenerateRender       JobKind = "GENERATE_RENDER"
	JobDedupeReconcile      JobKind = "DEDUPE_RECONCILE"
	JobDownloadImportRecord JobKind = "DOWNLOAD_IMPORT_RECORD"
	JobAIAnalyzeDesign      JobKind = "AI_ANALYZE_DESIGN"
	JobDetectFamilyOverlap  JobKind = "DETECT_FAMILY_OVERLAP"
)

// PipelineKinds are the job kinds subject to the (design_id, kind)
// enqueue-idempotence rule.
var PipelineKinds = map[JobKind]bool{
	JobDownloadDesign:      true,
	JobExtractArchive:      true,
	JobImportToLibrary:     true,
	JobAnalyze3MF:          true,
	JobGenerateRender:      true,
	JobDedupeReconcile:     true,
	JobAIAnalyzeDesign:     true,
	JobDetectFamilyOverlap: true,
}

// DefaultAutoQueuePriority is the priority used for auto-queued pipeline work.
const DefaultAutoQueuePriority = 5

// DefaultUserPriority is the default priority for user-triggered downloads.
const DefaultUserPriority = 0

// Job is a durable unit of work in the queue.
type Job struct {
	ID          string
	Kind        JobKind
	Status      JobStatus
	Priority    int
	DesignID    *string
	ChannelID   *string
	Payload     []byte
	Result      []byte
	ProgressCur int
	ProgressTot int
	Attempts    int
	MaxAttempts int
	NextRetryAt *time.Time
	LastError   string
	DisplayName string
	CreatedAt   time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
}

// DurationMS reports the job's wall-clock duration once started, or 0 before
// it has started. Used by the activity endpoint.
func (j Job) DurationMS() int64 {
	if j.StartedAt == nil {
		return 0
	}
	end := time.Now().UTC()
	if j.FinishedAt != nil {
		end = *j.FinishedAt
	}
	return end.Sub(*j.StartedAt).Milliseconds()
}

// TagSource classifies how a tag was attached.
type TagSource string

const (
	TagSourceUser              TagSource = "user"
	TagSourceManual            TagSource = "manual"
	TagSourceAutomaticCaption  TagSource = "automatic-caption"
	TagSourceAutomaticFilename TagSource = "automatic-filename"
	TagSourceAutomaticExternal TagSource = "automatic-external"
	TagSourceAI                TagSource = "AI"
)

// Tag is a lowercase, unique tag name.
type Tag struct {
	ID       string
	Name     string
	Category string
}

// DesignTag links a Tag to a Design with its attachment source.
type DesignTag struct {
	DesignID string
	TagID    string
	Source   TagSource
}

// FamilyTag links a Tag to a DesignFamily with its attachment source.
type FamilyTag struct {
	FamilyID string
	TagID    string
	Source   TagSource
}

// ImportSource is a logical container for a manual ingestion source (e.g. a
// local folder tree or a cloud-drive account).
type ImportSource struct {
	ID        string
	Name      string
	Kind      string
	ChannelID string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ImportSourceFolder is one upstream location under an ImportSource.
type ImportSourceFolder struct {
	ID               string
	ImportSourceID   string
	Path             string
	ProfileID        *string
	DesignerOverride string
	TagDefaults      []string
	CreatedAt        time.Time
}

// ImportProfileStructure is the tri-state folder-structure hint for
// detection.
type ImportProfileStructure string

const (
	StructureNested ImportProfileStructure = "nested"
	StructureFlat   ImportProfileStructure = "flat"
	StructureAuto   ImportProfileStructure = "auto"
)

// ImportProfileDetection is the "detection" sub-object of an import profile.
type ImportProfileDetection struct {
	ModelExtensions      []string
	ArchiveExtensions    []string
	MinModelFileCount    int
	Structure            ImportProfileStructure
	ModelSubfolderNames  []string
	RequirePreviewFolder bool
	DesignDepth          *int
}

// ImportProfileTitleSource is the "title.source" enum.
type ImportProfileTitleSource string

const (
	TitleSourceFolderName   ImportProfileTitleSource = "folder_name"
	TitleSourceParentFolder ImportProfileTitleSource = "parent_folder"
	TitleSourceFilename     ImportProfileTitleSource = "filename"
)

// ImportProfileCaseTransform is the "title.case_transform" enum.
type ImportProfileCaseTransform string

const (
	CaseTransformNone  ImportProfileCaseTransform = "none"
	CaseTransformTitle ImportProfileCaseTransform = "title"
	CaseTransformLower ImportProfileCaseTransform = "lower"
	CaseTransformUpper ImportProfileCaseTransform = "upper"
)

// ImportProfileTitle is the "title" sub-object of an import profile.
type ImportProfileTitle struct {
	Source        ImportProfileTitleSource
	StripPatterns []string
	CaseTransform ImportProfileCaseTransform
}

// ImportProfilePreview is the "preview" sub-object of an import profile.
type ImportProfilePreview struct {
	FolderNames      []string
	WildcardPatterns []string
	ImageExtensions  []string
	IncludeRoot      bool
}

// ImportProfileIgnore is the "ignore" sub-object of an import profile.
type ImportProfileIgnore struct {
	Folders          []string
	Extensions       []string
	FilenamePatterns []string
}

// ImportProfileAutoTags is the "auto_tags" sub-object of an import profile.
type ImportProfileAutoTags struct {
	FromSubfolders  bool
	FromFilename    bool
	SubfolderLevels int
	StripPatterns   []string
}

// ImportProfile is structured JSON detection configuration.
type ImportProfile struct {
	ID        string
	Name      string
	BuiltIn   bool
	Detection ImportProfileDetection
	Title     ImportProfileTitle
	Preview   ImportProfilePreview
	Ignore    ImportProfileIgnore
	AutoTags  ImportProfileAutoTags
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ImportOutcome is the per-file result of an import-record processing pass.
type ImportOutcome string

const (
	ImportOutcomePending ImportOutcome = "PENDING"
	ImportOutcomeOK      ImportOutcome = "IMPORTED"
	ImportOutcomeSkipped ImportOutcome = "SKIPPED"
	ImportOutcomeFailed  ImportOutcome = "FAILED"
)

// ImportRecord tracks one upstream source path discovered under an
// ImportSourceFolder and its import outcome. Unique by (folder, source_path).
type ImportRecord struct {
	ID         string
	FolderID   string
	SourcePath string
	DesignID   *string
	Outcome    ImportOutcome
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DuplicateMatchType enumerates the dedupe signal that produced a candidate.
type DuplicateMatchType string

const (
	MatchHash          DuplicateMatchType = "HASH"
	MatchExternalID    DuplicateMatchType = "EXTERNAL_ID"
	MatchTitleDesigner DuplicateMatchType = "TITLE_DESIGNER"
	MatchFilenameSize  DuplicateMatchType = "FILENAME_SIZE"
)

// DuplicateConfidence is the fixed confidence-per-match-type table.
var DuplicateConfidence = map[DuplicateMatchType]float64{
	MatchHash:          1.0,
	MatchExternalID:    1.0,
	MatchTitleDesigner: 0.7,
	MatchFilenameSize:  0.5,
}

// DuplicateCandidateStatus is the lifecycle of a pending duplicate pair.
type DuplicateCandidateStatus string

const (
	DuplicatePending  DuplicateCandidateStatus = "PENDING"
	DuplicateMerged   DuplicateCandidateStatus = "MERGED"
	DuplicateRejected DuplicateCandidateStatus = "REJECTED"
)

// DuplicateCandidate is a pending duplicate-pair awaiting operator review.
type DuplicateCandidate struct {
	ID          string
	DesignID    string
	CandidateID string
	MatchType   DuplicateMatchType
	Confidence  float64
	Status      DuplicateCandidateStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FamilyDetectionMethod enumerates how a DesignFamily was produced.
type FamilyDetectionMethod string

const (
	FamilyMethodNamePattern     FamilyDetectionMethod = "NAME_PATTERN"
	FamilyMethodFileHashOverlap FamilyDetectionMethod = "FILE_HASH_OVERLAP"
	FamilyMethodAIDetected      FamilyDetectionMethod = "AI_DETECTED"
	FamilyMethodManual          FamilyDetectionMethod = "MANUAL"
)

// DesignFamily groups variant designs sharing a base identity.
type DesignFamily struct {
	ID                  string
	Name                string
	DetectionMethod     FamilyDetectionMethod
	DetectionConfidence float64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// PreviewSource classifies how a PreviewAsset was produced.
type PreviewSource string

const (
	PreviewSourceTelegramIngested PreviewSource = "telegram-ingested"
	PreviewSourceExtracted3D      PreviewSource = "extracted-from-3D-archive"
	PreviewSourceRendered         PreviewSource = "rendered"
	PreviewSourceUserUploaded     PreviewSource = "user-uploaded"
	PreviewSourceAISelected       PreviewSource = "ai-selected"
)

// previewSourcePriority is the fixed selection order:
// AI-selected > embedded-in-3D-archive > rendered > ingested > uploaded.
var previewSourcePriority = map[PreviewSource]int{
	PreviewSourceAISelected:       4,
	PreviewSourceExtracted3D:      3,
	PreviewSourceRendered:         2,
	PreviewSourceTelegramIngested: 1,
	PreviewSourceUserUploaded:     0,
}

// PreviewPriority exposes the fixed priority used to pick the primary
// preview among several candidates for the same design.
func PreviewPriority(source PreviewSource) int {
	return previewSourcePriority[source]
}

// PreviewAsset is an image asset associated with a Design.
type PreviewAsset struct {
	ID        string
	DesignID  string
	Source    PreviewSource
	FilePath  string
	Width     int
	Height    int
	IsPrimary bool
	SortOrder int
	CreatedAt time.Time
}

// ExternalMetadataLink associates a Design with an external catalogue entry
// (e.g. a Thangs model page), used both as a dedupe signal and for
// catalogue enrichment.
type ExternalMetadataLink struct {
	ID           string
	DesignID     string
	Source       string
	ExternalID   string
	Title        string
	Designer     string
	License      string
	ThumbnailURL string
	CreatedAt    time.Time
}

// Setting is a typed key/value configuration row.
type Setting struct {
	Key       string
	Value     []byte // JSON-encoded
	UpdatedAt time.Time
}
