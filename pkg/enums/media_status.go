package enums

// MediaStatus marks whether a media object lives in the temp or permanent namespace.
type MediaStatus string

const (
	MediaStatusTemp  MediaStatus = "temp"
	MediaStatusSaved MediaStatus = "saved"
)

// IsValid reports whether the value matches the media status enum.
func (m MediaStatus) IsValid() bool {
	return m == MediaStatusTemp || m == MediaStatusSaved
}
