package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core"
)

var (
	// errors
	ErrNotFound          = errors.New("identity not found")
	ErrMissingRef        = errors.New("an external reference is required")
	ErrInvalidID         = errors.New("id must be a positive integer up to 2147483647")
	ErrInvalidDescriptor = errors.New("descriptor must be a non-empty list of finite numbers")
	ErrInvalidNotify     = errors.New("notify address must be an email address or an international phone number")
	ErrIDTaken           = errors.New("this id is already enrolled under another reference")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		// UpsertIdentity inserts idt or overwrites the identity sharing its ExternalRef.
		UpsertIdentity(ctx context.Context, idt EnrolledIdentity) (EnrolledIdentity, error)
		GetIdentityByExternalRef(ctx context.Context, ref string) (EnrolledIdentity, error)
		GetIdentityByID(ctx context.Context, id int64) (EnrolledIdentity, error)
		// QueryIdentities returns all identities ordered by ExternalRef.
		QueryIdentities(ctx context.Context) ([]EnrolledIdentity, error)
		// DescriptorDimension returns the descriptor length shared by identities other than excludeRef (0 if none).
		DescriptorDimension(ctx context.Context, excludeRef string) (int, error)
	}

	// Store is the embedding store: it validates identities before they reach the Repository.
	Store struct {
		repo Repository
		mu   sync.Mutex // serializes writes; reads go straight to the repository
	}
)

func NewStore(repo Repository) *Store {
	return &Store{repo: repo}
}

// Put enrolls idt, replacing any identity with the same ExternalRef.
// It fails with a *core.ValidationError if the ID is out of range, the notify address is neither
// an e-mail address nor a phone number, or the descriptor is empty, holds non-finite values
// or has a different length than the other enrolled descriptors.
func (s *Store) Put(ctx context.Context, idt EnrolledIdentity) (EnrolledIdentity, error) {
	idt.ExternalRef = core.CleanString(idt.ExternalRef)
	idt.DisplayName = core.CleanString(idt.DisplayName)
	idt.NotifyAddress = core.CleanString(idt.NotifyAddress)
	if idt.DisplayName == "" {
		idt.DisplayName = idt.ExternalRef
	}

	if idt.ExternalRef == "" {
		return EnrolledIdentity{}, core.NewValidationError(ErrMissingRef, core.FieldError{Field: "externalRef", Error: ErrMissingRef.Error()})
	}
	if !core.ValidID(idt.ID) {
		return EnrolledIdentity{}, core.NewValidationError(ErrInvalidID, core.FieldError{Field: "id", Error: ErrInvalidID.Error()})
	}
	if idt.NotifyAddress != "" && !core.ValidNotifyAddress(idt.NotifyAddress) {
		return EnrolledIdentity{}, core.NewValidationError(ErrInvalidNotify, core.FieldError{Field: "notifyAddress", Error: ErrInvalidNotify.Error()})
	}
	if !idt.Descriptor.Valid() {
		return EnrolledIdentity{}, core.NewValidationError(ErrInvalidDescriptor, core.FieldError{Field: "descriptor", Error: ErrInvalidDescriptor.Error()})
	}
	idt.Descriptor = idt.Descriptor.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := s.repo.DescriptorDimension(ctx, idt.ExternalRef)
	if err != nil {
		return EnrolledIdentity{}, errors.Wrap(err, "reading descriptor dimension")
	}
	if dim != 0 && dim != len(idt.Descriptor) {
		msg := fmt.Sprintf("descriptor must have %d values (got %d)", dim, len(idt.Descriptor))
		return EnrolledIdentity{}, core.NewValidationError(errors.New(msg), core.FieldError{Field: "descriptor", Error: msg})
	}

	other, err := s.repo.GetIdentityByID(ctx, idt.ID)
	switch {
	case err == nil && other.ExternalRef != idt.ExternalRef:
		return EnrolledIdentity{}, core.NewValidationError(ErrIDTaken, core.FieldError{Field: "id", Error: ErrIDTaken.Error()})
	case err != nil && errors.Cause(err) != ErrNotFound:
		return EnrolledIdentity{}, errors.Wrap(err, "checking id uniqueness")
	}

	now := NowFunc().UTC()
	idt.CreatedAt = now
	idt.UpdatedAt = now
	saved, err := s.repo.UpsertIdentity(ctx, idt)
	if err != nil {
		return EnrolledIdentity{}, errors.Wrap(err, "upserting identity")
	}
	return saved, nil
}

// All returns a snapshot of the enrolled identities ordered by ExternalRef.
// The returned slice is owned by the caller; iterating it again yields the same snapshot.
func (s *Store) All(ctx context.Context) ([]EnrolledIdentity, error) {
	idts, err := s.repo.QueryIdentities(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying identities")
	}
	return idts, nil
}

func (s *Store) FindByExternalRef(ctx context.Context, ref string) (EnrolledIdentity, error) {
	return s.repo.GetIdentityByExternalRef(ctx, core.CleanString(ref))
}

func (s *Store) FindByID(ctx context.Context, id int64) (EnrolledIdentity, error) {
	return s.repo.GetIdentityByID(ctx, id)
}
