package bot

// Kind records where a bot came from.
type Kind string

const (
	KindBuiltin  Kind = "builtin"
	KindUploaded Kind = "uploaded"
)

// Descriptor is the catalog record for one vetted bot.
type Descriptor struct {
	Name       string `json:"name"`
	Kind       Kind   `json:"type"`
	UploadTime string `json:"upload_time,omitempty"`
	Path       string `json:"file_path"`
	Vetted     bool   `json:"vetted"`
}
