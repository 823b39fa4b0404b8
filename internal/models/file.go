package models

import "time"

// Bucket is a registered object-store bucket.
type Bucket struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the database table name.
func (Bucket) TableName() string {
	return "buckets"
}

// File is a registered object-store artifact.
type File struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name       string    `gorm:"type:varchar(512);not null;index" json:"name"`
	BucketName string    `gorm:"type:varchar(255);not null;index" json:"bucketname"`
	FileType   string    `gorm:"type:varchar(64)" json:"filetype,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the database table name.
func (File) TableName() string {
	return "files"
}

// Download records an external-source download so repeated requests for
// the same source and options can reuse the stored artifact.
type Download struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ExternalURL string    `gorm:"type:text;not null;index" json:"external_url"`
	RemoteID    string    `gorm:"type:varchar(255)" json:"remote_id,omitempty"`
	Title       string    `gorm:"type:varchar(512)" json:"title,omitempty"`
	Filename    string    `gorm:"type:varchar(512);not null" json:"filename"`
	BucketName  string    `gorm:"type:varchar(255);not null" json:"bucketname"`
	FileID      uint      `gorm:"index" json:"file_id,omitempty"`
	Quality     string    `gorm:"type:varchar(32)" json:"quality,omitempty"`
	Format      string    `gorm:"type:varchar(32)" json:"format,omitempty"`
	AudioOnly   bool      `gorm:"not null;default:false" json:"audio_only"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the database table name.
func (Download) TableName() string {
	return "downloads"
}
