package enums

import "fmt"

// OperationKind enumerates the billable generation operations.
type OperationKind string

const (
	OperationImageGenerate OperationKind = "image_generate"
	OperationImageEdit     OperationKind = "image_edit"
	OperationVideoGenerate OperationKind = "video_generate"
)

var validOperationKinds = []OperationKind{
	OperationImageGenerate,
	OperationImageEdit,
	OperationVideoGenerate,
}

// IsValid reports whether the value matches the operation kind enum.
func (o OperationKind) IsValid() bool {
	for _, candidate := range validOperationKinds {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOperationKind converts the raw string to OperationKind.
func ParseOperationKind(value string) (OperationKind, error) {
	for _, candidate := range validOperationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid operation kind %q", value)
}

// JobStatus tracks a generation job from charge to resolution.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsValid reports whether the value matches the job status enum.
func (j JobStatus) IsValid() bool {
	switch j {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// ProviderFamily identifies a class of interchangeable generation back-ends.
type ProviderFamily string

const (
	ProviderFamilyInference ProviderFamily = "inference"
	ProviderFamilyQueue     ProviderFamily = "queue"
	ProviderFamilySession   ProviderFamily = "session"
)

// IsValid reports whether the value matches the provider family enum.
func (p ProviderFamily) IsValid() bool {
	switch p {
	case ProviderFamilyInference, ProviderFamilyQueue, ProviderFamilySession:
		return true
	}
	return false
}
