package jobs

const (
	TaskBackupExport = "backup:export"
	TaskMediaRemove  = "media:remove"
)

const (
	QueueDefault     = "default"
	QueueMaintenance = "maintenance"
)

type BackupExportPayload struct {
	RequestedBy string `json:"requested_by,omitempty"`
	Scheduled   bool   `json:"scheduled,omitempty"`
}

type MediaRemovePayload struct {
	Bucket string   `json:"bucket"`
	Paths  []string `json:"paths"`
}
