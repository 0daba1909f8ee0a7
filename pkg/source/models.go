package source

import (
	"time"

	"gorm.io/datatypes"
)

// Closed set of supported source types. Adapter routing keys off these.
const (
	TypeDocumentStore = "document-store"
	TypeMail          = "mail"
	TypeWiki          = "wiki"
	TypeIssueTracker  = "issue-tracker"
	TypeChat          = "chat"
	TypeCodeHost      = "code-host"
	TypeCRM           = "crm"
	TypeWebCrawl      = "web-crawl"
	TypeLocalFiles    = "local-files"
)

var validTypes = map[string]struct{}{
	TypeDocumentStore: {},
	TypeMail:          {},
	TypeWiki:          {},
	TypeIssueTracker:  {},
	TypeChat:          {},
	TypeCodeHost:      {},
	TypeCRM:           {},
	TypeWebCrawl:      {},
	TypeLocalFiles:    {},
}

func IsValidType(sourceType string) bool {
	_, ok := validTypes[sourceType]
	return ok
}

type Source struct {
	ID            string            `json:"id" gorm:"primaryKey;column:id"`
	SourceType    string            `json:"source_type" gorm:"column:source_type;index"`
	Name          string            `json:"name" gorm:"column:name"`
	Config        datatypes.JSONMap `json:"config" gorm:"column:config"`
	IsActive      bool              `json:"is_active" gorm:"column:is_active"`
	CredentialRef string            `json:"credential_ref,omitempty" gorm:"column:credential_ref"`
	CreatedAt     time.Time         `json:"created_at" gorm:"column:created_at"`
	UpdatedAt     time.Time         `json:"updated_at" gorm:"column:updated_at"`
}

func (Source) TableName() string {
	return "sources"
}
