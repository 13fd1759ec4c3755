package models

// RepositoryType identifies where a restic repository lives.
type RepositoryType string

const (
	RepoLocal RepositoryType = "local"
	RepoS3    RepositoryType = "s3"
	RepoSFTP  RepositoryType = "sftp"
	RepoB2    RepositoryType = "b2"
)

// RetentionPolicy configures how many restic snapshots to keep per cadence.
type RetentionPolicy struct {
	Daily   int `json:"daily" yaml:"daily"`
	Weekly  int `json:"weekly" yaml:"weekly"`
	Monthly int `json:"monthly" yaml:"monthly"`
	Yearly  int `json:"yearly" yaml:"yearly"`
}

// BackupConfig describes a restic repository and schedule for a Server.
//
// Unattended is a SPEC_FULL addition (see DESIGN.md Open Question
// resolutions): when true, the backup scheduler's restic_backup
// invocations bypass the approval gate for this config specifically.
type BackupConfig struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	VPSServerID string         `json:"vps_server_id"`

	RepositoryType RepositoryType `json:"repository_type"`
	RepositoryPath string         `json:"repository_path"`

	EncryptedPassword string `json:"encrypted_password"`
	AccessKeyID       string `json:"access_key_id,omitempty"`
	SecretAccessKey   string `json:"secret_access_key,omitempty"`
	Endpoint          string `json:"endpoint,omitempty"`
	Region            string `json:"region,omitempty"`

	IncludePaths     []string        `json:"include_paths"`
	ExcludePatterns  []string        `json:"exclude_patterns,omitempty"`
	Retention        RetentionPolicy `json:"retention"`

	Schedule   string `json:"schedule,omitempty"` // cron expression
	Unattended bool   `json:"unattended,omitempty"`
}
