package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core/face"
	"github.com/trezcool/hazira/core/identity"
)

type (
	identityRepository struct {
		db *sqlx.DB
	}

	faceRow struct {
		ID            int64     `db:"id"`
		ExternalRef   string    `db:"external_ref"`
		DisplayName   string    `db:"display_name"`
		Embedding     []byte    `db:"face_embedding"` // JSON array
		NotifyAddress string    `db:"notify_address"`
		CreatedAt     time.Time `db:"created_at"`
		UpdatedAt     time.Time `db:"updated_at"`
	}
)

var _ identity.Repository = (*identityRepository)(nil) // interface compliance check

const faceColumns = `student_id AS id, external_ref, display_name, face_embedding, notify_address, created_at, updated_at`

// NewIdentityRepository stores the enrolled identities in the student_faces table.
func NewIdentityRepository(db *sqlx.DB) *identityRepository {
	return &identityRepository{db: db}
}

func (row faceRow) identity() (identity.EnrolledIdentity, error) {
	var desc face.Descriptor
	if err := json.Unmarshal(row.Embedding, &desc); err != nil {
		return identity.EnrolledIdentity{}, errors.Wrapf(err, "decoding face embedding of %s", row.ExternalRef)
	}
	return identity.EnrolledIdentity{
		ID:            row.ID,
		ExternalRef:   row.ExternalRef,
		DisplayName:   row.DisplayName,
		Descriptor:    desc,
		NotifyAddress: row.NotifyAddress,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}, nil
}

func (repo *identityRepository) UpsertIdentity(ctx context.Context, idt identity.EnrolledIdentity) (identity.EnrolledIdentity, error) {
	embedding, err := json.Marshal(idt.Descriptor)
	if err != nil {
		return identity.EnrolledIdentity{}, errors.Wrap(err, "encoding face embedding")
	}

	q := `
		INSERT INTO student_faces (student_id, external_ref, display_name, face_embedding, notify_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7)
		ON CONFLICT (external_ref) DO UPDATE SET
			student_id = EXCLUDED.student_id,
			display_name = EXCLUDED.display_name,
			face_embedding = EXCLUDED.face_embedding,
			notify_address = EXCLUDED.notify_address,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + faceColumns
	var row faceRow
	err = repo.db.QueryRowxContext(ctx, q,
		idt.ID, idt.ExternalRef, idt.DisplayName, string(embedding), idt.NotifyAddress, idt.CreatedAt, idt.UpdatedAt,
	).StructScan(&row)
	if err != nil {
		return identity.EnrolledIdentity{}, errors.Wrap(err, "upserting student face")
	}
	return row.identity()
}

func (repo *identityRepository) getIdentity(ctx context.Context, where string, arg interface{}) (identity.EnrolledIdentity, error) {
	var row faceRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+faceColumns+` FROM student_faces WHERE `+where, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.EnrolledIdentity{}, identity.ErrNotFound
		}
		return identity.EnrolledIdentity{}, errors.Wrap(err, "selecting student face")
	}
	return row.identity()
}

func (repo *identityRepository) GetIdentityByExternalRef(ctx context.Context, ref string) (identity.EnrolledIdentity, error) {
	return repo.getIdentity(ctx, "external_ref = $1", ref)
}

func (repo *identityRepository) GetIdentityByID(ctx context.Context, id int64) (identity.EnrolledIdentity, error) {
	return repo.getIdentity(ctx, "student_id = $1", id)
}

func (repo *identityRepository) QueryIdentities(ctx context.Context) ([]identity.EnrolledIdentity, error) {
	var rows []faceRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT `+faceColumns+` FROM student_faces ORDER BY external_ref`); err != nil {
		return nil, errors.Wrap(err, "selecting student faces")
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
	err := repo.db.GetContext(ctx, &dim,
		`SELECT jsonb_array_length(face_embedding) FROM student_faces WHERE external_ref <> $1 LIMIT 1`, excludeRef)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, errors.Wrap(err, "selecting descriptor dimension")
	}
	return dim, nil
}
