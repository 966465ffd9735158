package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/hazira/core/identity"
)

type identityRepository struct {
	db *identityTable
}

var _ identity.Repository = (*identityRepository)(nil) // interface compliance check

func NewIdentityRepository(db *DB) *identityRepository {
	return &identityRepository{db: db.identity}
}

func (repo *identityRepository) UpsertIdentity(_ context.Context, idt identity.EnrolledIdentity) (identity.EnrolledIdentity, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if orig, ok := repo.db.table[idt.ExternalRef]; ok {
		idt.CreatedAt = orig.CreatedAt
	}
	idt.Descriptor = idt.Descriptor.Clone()
	repo.db.table[idt.ExternalRef] = &idt
	return clone(idt), nil
}

func (repo *identityRepository) GetIdentityByExternalRef(_ context.Context, ref string) (identity.EnrolledIdentity, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if idt, ok := repo.db.table[ref]; ok {
		return clone(*idt), nil
	}
	return identity.EnrolledIdentity{}, identity.ErrNotFound
}

func (repo *identityRepository) GetIdentityByID(_ context.Context, id int64) (identity.EnrolledIdentity, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, idt := range repo.db.table {
		if idt.ID == id {
			return clone(*idt), nil
		}
	}
	return identity.EnrolledIdentity{}, identity.ErrNotFound
}

func (repo *identityRepository) QueryIdentities(_ context.Context) ([]identity.EnrolledIdentity, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	idts := make([]identity.EnrolledIdentity, 0, len(repo.db.table))
	for _, idt := range repo.db.table {
		idts = append(idts, clone(*idt))
	}
	sort.Slice(idts, func(i, j int) bool { return idts[i].ExternalRef < idts[j].ExternalRef })
	return idts, nil
}

func (repo *identityRepository) DescriptorDimension(_ context.Context, excludeRef string) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for ref, idt := range repo.db.table {
		if ref != excludeRef {
			return len(idt.Descriptor), nil
		}
	}
	return 0, nil
}

func clone(idt identity.EnrolledIdentity) identity.EnrolledIdentity {
	idt.Descriptor = idt.Descriptor.Clone()
	return idt
}
