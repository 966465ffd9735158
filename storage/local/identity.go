package localdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/face"
	"github.com/trezcool/hazira/core/identity"
)

type (
	identityRepository struct {
		db *sqlx.DB
	}

	identityRow struct {
		ID            int64  `db:"id"`
		ExternalRef   string `db:"external_ref"`
		DisplayName   string `db:"display_name"`
		Descriptor    []byte `db:"descriptor"` // CBOR array of float32
		DescriptorLen int    `db:"descriptor_len"`
		NotifyAddress string `db:"notify_address"`
		CreatedAt     int64  `db:"created_at"` // unix nanoseconds
		UpdatedAt     int64  `db:"updated_at"`
	}
)

var _ identity.Repository = (*identityRepository)(nil) // interface compliance check

const identityColumns = `id, external_ref, display_name, descriptor, descriptor_len, notify_address, created_at, updated_at`

func NewIdentityRepository(db *sqlx.DB) *identityRepository {
	return &identityRepository{db: db}
}

func newIdentityRow(idt identity.EnrolledIdentity) (identityRow, error) {
	desc, err := cbor.Marshal([]float32(idt.Descriptor))
	if err != nil {
		return identityRow{}, errors.Wrap(err, "encoding descriptor")
	}
	return identityRow{
		ID:            idt.ID,
		ExternalRef:   idt.ExternalRef,
		DisplayName:   idt.DisplayName,
		Descriptor:    desc,
		DescriptorLen: len(idt.Descriptor),
		NotifyAddress: idt.NotifyAddress,
		CreatedAt:     idt.CreatedAt.UnixNano(),
		UpdatedAt:     idt.UpdatedAt.UnixNano(),
	}, nil
}

func (row identityRow) identity() (identity.EnrolledIdentity, error) {
	var desc []float32
	if err := cbor.Unmarshal(row.Descriptor, &desc); err != nil {
		return identity.EnrolledIdentity{}, errors.Wrapf(err, "decoding descriptor of %s", row.ExternalRef)
	}
	return identity.EnrolledIdentity{
		ID:            row.ID,
		ExternalRef:   row.ExternalRef,
		DisplayName:   row.DisplayName,
		Descriptor:    face.Descriptor(desc),
		NotifyAddress: row.NotifyAddress,
		CreatedAt:     time.Unix(0, row.CreatedAt).UTC(),
		UpdatedAt:     time.Unix(0, row.UpdatedAt).UTC(),
	}, nil
}

func (repo *identityRepository) UpsertIdentity(ctx context.Context, idt identity.EnrolledIdentity) (identity.EnrolledIdentity, error) {
	row, err := newIdentityRow(idt)
	if err != nil {
		return identity.EnrolledIdentity{}, err
	}

	var saved identityRow
	err = core.Transact(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := `
			INSERT INTO identities (` + identityColumns + `)
			VALUES (:id, :external_ref, :display_name, :descriptor, :descriptor_len, :notify_address, :created_at, :updated_at)
			ON CONFLICT (external_ref) DO UPDATE SET
				id = excluded.id,
				display_name = excluded.display_name,
				descriptor = excluded.descriptor,
				descriptor_len = excluded.descriptor_len,
				notify_address = excluded.notify_address,
				updated_at = excluded.updated_at`
		if _, err := tx.NamedExecContext(ctx, q, row); err != nil {
			return errors.Wrap(err, "upserting identity")
		}
		return tx.GetContext(ctx, &saved, `SELECT `+identityColumns+` FROM identities WHERE external_ref = ?`, row.ExternalRef)
	})
	if err != nil {
		return identity.EnrolledIdentity{}, err
	}
	return saved.identity()
}

func (repo *identityRepository) getIdentity(ctx context.Context, where string, arg interface{}) (identity.EnrolledIdentity, error) {
	var row identityRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+identityColumns+` FROM identities WHERE `+where, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.EnrolledIdentity{}, identity.ErrNotFound
		}
		return identity.EnrolledIdentity{}, errors.Wrap(err, "selecting identity")
	}
	return row.identity()
}

func (repo *identityRepository) GetIdentityByExternalRef(ctx context.Context, ref string) (identity.EnrolledIdentity, error) {
	return repo.getIdentity(ctx, "external_ref = ?", ref)
}

func (repo *identityRepository) GetIdentityByID(ctx context.Context, id int64) (identity.EnrolledIdentity, error) {
	return repo.getIdentity(ctx, "id = ?", id)
}

func (repo *identityRepository) QueryIdentities(ctx context.Context) ([]identity.EnrolledIdentity, error) {
	var rows []identityRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT `+identityColumns+` FROM identities ORDER BY external_ref`); err != nil {
		return nil, errors.Wrap(err, "selecting identities")
	}
	idts := make([]identity.EnrolledIdentity, 0, len(rows))
	for _, row := range rows {
		idt, err := row.identity()
		if err != nil {
			return nil, err
		}
		idts = append(idts, idt)
	}
	return idts, nil
}

func (repo *identityRepository) DescriptorDimension(ctx context.Context, excludeRef string) (int, error) {
	var dim int
	err := repo.db.GetContext(ctx, &dim, `SELECT descriptor_len FROM identities WHERE external_ref <> ? LIMIT 1`, excludeRef)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, errors.Wrap(err, "selecting descriptor dimension")
	}
	return dim, nil
}
