package catalog

import "github.com/AdamA817/printarr-sub001/internal/models"

// Repository exposes the catalogue operations required by the ingest
// service, dedupe engine, family detector, and HTTP API. The in-memory
// *Store is the only implementation today; the interface exists so callers
// depend on behaviour rather than storage shape.
type Repository interface {
	CreateChannel(upstreamID *string, title string, virtual bool) (models.Channel, error)
	GetChannel(id string) (models.Channel, bool)
	ListChannels() []models.Channel
	UpdateChannel(id string, update ChannelUpdate) (models.Channel, error)

	UpsertDiscoveredChannel(upstreamID, title string, memberCount int) (models.DiscoveredChannel, error)
	ListDiscoveredChannels() []models.DiscoveredChannel
	DismissDiscoveredChannel(id string) error

	UpsertMessage(msg models.Message) (models.Message, bool, error)
	GetMessage(id string) (models.Message, bool)

	CreateAttachment(att models.Attachment) (models.Attachment, error)
	UpdateAttachmentDownloadState(id string, state models.AttachmentDownloadState, localPath, sha256 string) error
	ListAttachmentsByMessage(messageID string) []models.Attachment
	GetAttachment(id string) (models.Attachment, bool)

	CreateDesign(params CreateDesignParams) (models.Design, error)
	GetDesign(id string) (models.Design, bool)
	TransitionDesignStatus(id string, to models.DesignStatus) (models.Design, error)
	RevertDesignToWanted(id string) (models.Design, error)
	ApplyDesignOverrides(id string, overrides DesignOverrides) (models.Design, error)
	SetDesignMulticolor(id string, status models.MulticolorStatus, source models.MulticolorSource) (models.Design, error)
	AssignDesignFamily(id string, familyID *string) (models.Design, error)
	SetDesignVariantName(id, variantName string) (models.Design, error)
	UpdateDesignFileSummary(id string) (models.Design, error)
	ListDesigns(filter DesignFilter) []models.Design

	AddDesignSource(designID, channelID, messageID string) (models.DesignSource, error)
	ListDesignSources(designID string) []models.DesignSource
	AddDesignFile(file models.DesignFile) (models.DesignFile, error)
	ListDesignFiles(designID string) []models.DesignFile
	FindDesignFileBySHA256(sha256 string) (models.DesignFile, bool)
	UpdateDesignFileLocation(id, relativePath string) (models.DesignFile, error)
	DeleteDesignFile(id string) error

	Counts(approximate bool) CountSummary

	EnsureTag(name, category string) (models.Tag, error)
	TagDesign(designID, tagID string, source models.TagSource) error
	UntagDesign(designID, tagID string) error
	ListDesignTags(designID string) []models.DesignTag
	TagFamily(familyID, tagID string, source models.TagSource) error
	UntagFamily(familyID, tagID string) error
	ListFamilyTags(familyID string) []models.FamilyTag
	FindTagByName(name string) (models.Tag, bool)
	ListTags() []models.Tag

	SetSetting(key string, value []byte) error
	GetSetting(key string) (models.Setting, bool)
	ListSettings() []models.Setting
	DeleteSetting(key string) error

	AddExternalMetadataLink(link models.ExternalMetadataLink) (models.ExternalMetadataLink, error)
	ListExternalMetadataLinks(designID string) []models.ExternalMetadataLink

	CreateImportSource(name, kind string) (models.ImportSource, error)
	ListImportSources() []models.ImportSource
	AddImportSourceFolder(folder models.ImportSourceFolder) (models.ImportSourceFolder, error)
	ListImportSourceFolders(importSourceID string) []models.ImportSourceFolder
	UpsertImportProfile(profile models.ImportProfile) (models.ImportProfile, error)
	GetImportProfile(id string) (models.ImportProfile, bool)
	ListImportProfiles() []models.ImportProfile
	UpsertImportRecord(folderID, sourcePath string) (models.ImportRecord, error)
	CompleteImportRecord(id string, outcome models.ImportOutcome, designID *string, importErr string) (models.ImportRecord, error)
	ListImportRecords(folderID string) []models.ImportRecord

	CreateDuplicateCandidate(designID, candidateID string, matchType models.DuplicateMatchType) (models.DuplicateCandidate, error)
	ResolveDuplicateCandidate(id string, status models.DuplicateCandidateStatus) (models.DuplicateCandidate, error)
	ListPendingDuplicateCandidates() []models.DuplicateCandidate
	MergeDesigns(targetID, candidateID string) error

	CreateFamily(name string, method models.FamilyDetectionMethod, confidence float64) (models.DesignFamily, error)
	GetFamily(id string) (models.DesignFamily, bool)
	ListFamilies() []models.DesignFamily
	ListDesignsByFamily(familyID string) []models.Design

	AddPreviewAsset(asset models.PreviewAsset) (models.PreviewAsset, error)
	ListPreviewAssets(designID string) []models.PreviewAsset
}

var _ Repository = (*Store)(nil)
