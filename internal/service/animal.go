package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"strings"

	"github.com/iliyamo/herdbook/internal/model"
	"github.com/iliyamo/herdbook/internal/storage"
)

// AnimalStore is the persistence contract the service needs.  Every method
// is scoped by owner; repository.ErrNotFound and
// repository.ErrDuplicateNumber pass through unchanged.
type AnimalStore interface {
	List(ctx context.Context, ownerID uint64, f model.AnimalFilter) ([]model.Animal, error)
	GetByIDAndOwner(ctx context.Context, id, ownerID uint64) (*model.Animal, error)
	Create(ctx context.Context, a *model.Animal) error
	Update(ctx context.Context, id, ownerID uint64, ch model.AnimalChanges) error
	DeleteByIDAndOwner(ctx context.Context, id, ownerID uint64) error
	Stats(ctx context.Context, ownerID uint64) (model.AnimalStats, error)
}

// AssetStore keeps uploaded photos.  Remove must treat a missing file as
// success.
type AssetStore interface {
	Save(ctx context.Context, fh *multipart.FileHeader) (string, error)
	Remove(ctx context.Context, path string) error
}

// AnimalInput carries raw form values.  A nil pointer means the field was
// not submitted.
type AnimalInput struct {
	Number *string
	Type   *string
	Age    *string
	Status *string
	Gender *string
	Image  *multipart.FileHeader
}

// AnimalService implements the owner-scoped record operations and the
// lifecycle of the photo attached to each record.
type AnimalService struct {
	store  AnimalStore
	assets AssetStore
	log    *slog.Logger
}

// NewAnimalService wires the record store and the photo store.
func NewAnimalService(store AnimalStore, assets AssetStore, logger *slog.Logger) *AnimalService {
	return &AnimalService{store: store, assets: assets, log: logger.With("component", "animals")}
}

// List returns the owner's records matching f, newest first.
func (s *AnimalService) List(ctx context.Context, ownerID uint64, f model.AnimalFilter) ([]model.Animal, error) {
	return s.store.List(ctx, ownerID, f)
}

// Get returns repository.ErrNotFound for absent and foreign records alike.
func (s *AnimalService) Get(ctx context.Context, ownerID, id uint64) (*model.Animal, error) {
	return s.store.GetByIDAndOwner(ctx, id, ownerID)
}

// Stats summarises the owner's records by type and status.
func (s *AnimalService) Stats(ctx context.Context, ownerID uint64) (model.AnimalStats, error) {
	return s.store.Stats(ctx, ownerID)
}

// Create validates a complete record, stores the optional photo and then the
// row.  If the row cannot be written the photo is removed again.
func (s *AnimalService) Create(ctx context.Context, ownerID uint64, in AnimalInput) (*model.Animal, error) {
	if blank(in.Number) || blank(in.Type) || blank(in.Age) || blank(in.Status) || blank(in.Gender) {
		return nil, invalid("All fields are required")
	}
	ch, err := in.changes()
	if err != nil {
		return nil, err
	}

	a := &model.Animal{OwnerID: ownerID}
	ch.Apply(a)

	if in.Image != nil {
		p, err := s.saveImage(ctx, in.Image)
		if err != nil {
			return nil, err
		}
		a.Image = p
	}

	if err := s.store.Create(ctx, a); err != nil {
		s.discard(ctx, a.Image)
		return nil, err
	}
	animalMutations.WithLabelValues("create").Inc()
	return a, nil
}

// Update applies the submitted fields only.  A new photo is written before
// the row; the previous photo is removed after the row update succeeded, so
// a crash in between leaves an orphan file rather than a dangling reference.
func (s *AnimalService) Update(ctx context.Context, ownerID, id uint64, in AnimalInput) (*model.Animal, error) {
	current, err := s.store.GetByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	ch, err := in.changes()
	if err != nil {
		return nil, err
	}

	var newImage string
	if in.Image != nil {
		newImage, err = s.saveImage(ctx, in.Image)
		if err != nil {
			return nil, err
		}
		ch.Image = &newImage
	}

	if err := s.store.Update(ctx, id, ownerID, ch); err != nil {
		s.discard(ctx, newImage)
		return nil, err
	}
	animalMutations.WithLabelValues("update").Inc()

	if newImage != "" && current.Image != "" && current.Image != newImage {
		s.cleanup(ctx, current.Image, id)
	}
	return s.store.GetByIDAndOwner(ctx, id, ownerID)
}

// Delete removes the row, then its photo.  Photo removal problems are
// logged and counted but do not fail the call.
func (s *AnimalService) Delete(ctx context.Context, ownerID, id uint64) error {
	current, err := s.store.GetByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteByIDAndOwner(ctx, id, ownerID); err != nil {
		return err
	}
	animalMutations.WithLabelValues("delete").Inc()
	if current.Image != "" {
		s.cleanup(ctx, current.Image, id)
	}
	return nil
}

func (s *AnimalService) saveImage(ctx context.Context, fh *multipart.FileHeader) (string, error) {
	p, err := s.assets.Save(ctx, fh)
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, storage.ErrTooLarge):
		return "", invalid("Image exceeds size limit")
	case errors.Is(err, storage.ErrNotImage):
		return "", invalid("Only image files are allowed")
	default:
		return "", fmt.Errorf("save image: %w", err)
	}
}

// discard drops a freshly written photo whose row was never stored.
func (s *AnimalService) discard(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := s.assets.Remove(context.WithoutCancel(ctx), path); err != nil {
		assetCleanupFailures.Inc()
		s.log.Warn("remove unreferenced image", "path", path, "err", err)
	}
}

// cleanup removes a photo that a live record no longer references.
func (s *AnimalService) cleanup(ctx context.Context, path string, id uint64) {
	if err := s.assets.Remove(context.WithoutCancel(ctx), path); err != nil {
		assetCleanupFailures.Inc()
		s.log.Warn("remove stale image", "animal_id", id, "path", path, "err", err)
	}
}

// changes validates the submitted fields and converts them to typed values.
// Surrounding whitespace is dropped from the number and the enumerated
// fields; the stored (and returned) value is the trimmed one.
func (in AnimalInput) changes() (model.AnimalChanges, error) {
	var ch model.AnimalChanges
	if in.Number != nil {
		n := strings.TrimSpace(*in.Number)
		if n == "" {
			return ch, invalid("Number cannot be empty")
		}
		ch.Number = &n
	}
	if in.Type != nil {
		t := model.AnimalType(strings.TrimSpace(*in.Type))
		if !t.Valid() {
			return ch, invalid("Invalid animal type")
		}
		ch.Type = &t
	}
	if in.Age != nil {
		d, err := model.ParseDate(*in.Age)
		if err != nil {
			return ch, invalid("Invalid age")
		}
		ch.BirthDate = &d
	}
	if in.Status != nil {
		st := model.Status(strings.TrimSpace(*in.Status))
		if !st.Valid() {
			return ch, invalid("Invalid status")
		}
		ch.Status = &st
	}
	if in.Gender != nil {
		g := model.Gender(strings.TrimSpace(*in.Gender))
		if !g.Valid() {
			return ch, invalid("Invalid gender")
		}
		ch.Gender = &g
	}
	return ch, nil
}

func blank(p *string) bool { return p == nil || strings.TrimSpace(*p) == "" }
