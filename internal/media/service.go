package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forgelabs-ai/mediaforge-backend/pkg/config"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/db/models"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
	pkgerrors "github.com/forgelabs-ai/mediaforge-backend/pkg/errors"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/logger"
)

type objectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	Copy(ctx context.Context, srcKey, dstKey string) (string, error)
}

type resultFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

type mediaRepository interface {
	Create(ctx context.Context, media *models.Media) (*models.Media, error)
	FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*models.Media, error)
	ListByUser(ctx context.Context, userID uuid.UUID, status *enums.MediaStatus, limit, offset int) ([]models.Media, error)
	ListTempOverflow(ctx context.Context, userID uuid.UUID, keep int) ([]models.Media, error)
	ListExpiredTemp(ctx context.Context, before time.Time, limit int) ([]models.Media, error)
	MarkSaved(ctx context.Context, id uuid.UUID, storageKey, url string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Service owns the media lifecycle: ingesting provider results into the
// temp namespace, promoting keepers to the permanent one, and clearing
// everything else out.
type Service interface {
	Ingest(ctx context.Context, input IngestInput) (*MediaDTO, error)
	Save(ctx context.Context, userID, mediaID uuid.UUID) (*MediaDTO, error)
	List(ctx context.Context, userID uuid.UUID, status *enums.MediaStatus, limit, offset int) ([]MediaDTO, error)
	Delete(ctx context.Context, userID, mediaID uuid.UUID) error
	SweepExpired(ctx context.Context, batchSize int) (int, error)
}

// IngestInput describes one provider result to re-host.
type IngestInput struct {
	UserID    uuid.UUID
	SourceURL string
	Prompt    *string
}

// MediaDTO is the transport shape for media records.
type MediaDTO struct {
	ID        uuid.UUID         `json:"id"`
	Status    enums.MediaStatus `json:"status"`
	URL       string            `json:"url"`
	MimeType  string            `json:"mime_type"`
	SizeBytes int64             `json:"size_bytes"`
	Prompt    *string           `json:"prompt,omitempty"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type service struct {
	repo    mediaRepository
	store   objectStore
	fetcher resultFetcher
	cfg     config.MediaConfig
	logg    *logger.Logger
}

func NewService(repo mediaRepository, store objectStore, fetcher resultFetcher, cfg config.MediaConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("media repository required")
	}
	if store == nil {
		return nil, fmt.Errorf("object store required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("media fetcher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("media logger required")
	}
	if cfg.TempMaxKeep <= 0 {
		return nil, fmt.Errorf("temp keep bound must be positive")
	}
	return &service{repo: repo, store: store, fetcher: fetcher, cfg: cfg, logg: logg}, nil
}

// Ingest downloads the provider result and re-hosts it under the temp
// namespace. Provider URLs expire quickly, so this runs inside the
// generation flow rather than lazily. Ingesting may push the user past the
// temp bound; the oldest overflow rows are pruned right after.
func (s *service) Ingest(ctx context.Context, input IngestInput) (*MediaDTO, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if strings.TrimSpace(input.SourceURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source url is required")
	}

	data, contentType, err := s.fetcher.Fetch(ctx, input.SourceURL)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("temp/%s/%s.%s", input.UserID, uuid.NewString(), extensionFor(contentType))
	url, err := s.store.Put(ctx, key, data, contentType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "store media object")
	}

	expiresAt := time.Now().UTC().Add(s.cfg.TempTTL)
	record, err := s.repo.Create(ctx, &models.Media{
		UserID:     input.UserID,
		Status:     enums.MediaStatusTemp,
		StorageKey: key,
		URL:        url,
		MimeType:   contentType,
		SizeBytes:  int64(len(data)),
		Prompt:     input.Prompt,
		ExpiresAt:  &expiresAt,
	})
	if err != nil {
		// The object is orphaned if the row fails; remove it so the
		// namespace does not accumulate unreferenced blobs.
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logg.Error(ctx, "orphaned media object after failed insert", delErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record media")
	}

	s.pruneOverflow(ctx, input.UserID)
	return toDTO(record), nil
}

// pruneOverflow drops the oldest temp rows beyond the keep bound. Prune
// failures never fail the ingest that triggered them.
func (s *service) pruneOverflow(ctx context.Context, userID uuid.UUID) {
	overflow, err := s.repo.ListTempOverflow(ctx, userID, s.cfg.TempMaxKeep)
	if err != nil {
		s.logg.Error(ctx, "list temp overflow", err)
		return
	}
	for _, item := range overflow {
		if err := s.removeItem(ctx, item); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "media_id", item.ID), "prune temp media", err)
			continue
		}
	}
	if len(overflow) > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"user_id": userID,
			"pruned":  len(overflow),
		}), "temp media pruned")
	}
}

// Save promotes a temp object into the permanent namespace. The object is
// copied first and the row flipped second; if the flip fails the copy is
// rolled back so storage and metadata stay consistent. Saving an already
// saved record is a no-op.
func (s *service) Save(ctx context.Context, userID, mediaID uuid.UUID) (*MediaDTO, error) {
	record, err := s.findForUser(ctx, mediaID, userID)
	if err != nil {
		return nil, err
	}
	if record.Status == enums.MediaStatusSaved {
		return toDTO(record), nil
	}

	permanentKey := strings.Replace(record.StorageKey, "temp/", "permanent/", 1)
	permanentURL, err := s.store.Copy(ctx, record.StorageKey, permanentKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "copy media to permanent namespace")
	}

	if err := s.repo.MarkSaved(ctx, record.ID, permanentKey, permanentURL); err != nil {
		if delErr := s.store.Delete(ctx, permanentKey); delErr != nil {
			s.logg.Error(ctx, "rollback permanent copy", delErr)
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Lost a race with a concurrent save or prune.
			return s.findAfterRace(ctx, mediaID, userID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark media saved")
	}

	// The temp object is unreachable once the row points at the permanent
	// key; removal is best effort and the sweeper catches leftovers.
	tempKey := record.StorageKey
	if err := s.store.Delete(ctx, tempKey); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "storage_key", tempKey), "remove temp object after save", err)
	}

	record.Status = enums.MediaStatusSaved
	record.StorageKey = permanentKey
	record.URL = permanentURL
	record.ExpiresAt = nil
	return toDTO(record), nil
}

func (s *service) findAfterRace(ctx context.Context, mediaID, userID uuid.UUID) (*MediaDTO, error) {
	record, err := s.findForUser(ctx, mediaID, userID)
	if err != nil {
		return nil, err
	}
	if record.Status == enums.MediaStatusSaved {
		return toDTO(record), nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "media changed concurrently")
}

func (s *service) List(ctx context.Context, userID uuid.UUID, status *enums.MediaStatus, limit, offset int) ([]MediaDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid media status filter")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	items, err := s.repo.ListByUser(ctx, userID, status, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list media")
	}
	dtos := make([]MediaDTO, 0, len(items))
	for i := range items {
		dtos = append(dtos, *toDTO(&items[i]))
	}
	return dtos, nil
}

func (s *service) Delete(ctx context.Context, userID, mediaID uuid.UUID) error {
	record, err := s.findForUser(ctx, mediaID, userID)
	if err != nil {
		return err
	}
	if err := s.removeItem(ctx, *record); err != nil {
		return err
	}
	return nil
}

// SweepExpired clears temp objects past their expiry. Runs from the
// sweeper binary, not the request path.
func (s *service) SweepExpired(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	expired, err := s.repo.ListExpiredTemp(ctx, time.Now().UTC(), batchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list expired media")
	}
	removed := 0
	for _, item := range expired {
		if err := s.removeItem(ctx, item); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "media_id", item.ID), "sweep expired media", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// removeItem deletes the object before the row. A row without an object is
// a broken link; an object without a row is only wasted storage, which the
// sweeper eventually reclaims.
func (s *service) removeItem(ctx context.Context, item models.Media) error {
	if err := s.store.Delete(ctx, item.StorageKey); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "delete media object")
	}
	if err := s.repo.Delete(ctx, item.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete media record")
	}
	return nil
}

func (s *service) findForUser(ctx context.Context, mediaID, userID uuid.UUID) (*models.Media, error) {
	if userID == uuid.Nil || mediaID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and media id are required")
	}
	record, err := s.repo.FindByIDForUser(ctx, mediaID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "media not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find media")
	}
	return record, nil
}

func toDTO(m *models.Media) *MediaDTO {
	return &MediaDTO{
		ID:        m.ID,
		Status:    m.Status,
		URL:       m.URL,
		MimeType:  m.MimeType,
		SizeBytes: m.SizeBytes,
		Prompt:    m.Prompt,
		ExpiresAt: m.ExpiresAt,
		CreatedAt: m.CreatedAt,
	}
}
