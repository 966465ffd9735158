package attendance

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core/identity"
)

var csvHeader = []string{"name", "external_ref", "subject_id", "course_id", "date", "status", "synced"}

// WriteCSV writes records as CSV, resolving subject names from idts (unknown subjects get empty names).
func WriteCSV(w io.Writer, records []Record, idts []identity.EnrolledIdentity) error {
	byID := make(map[int64]identity.EnrolledIdentity, len(idts))
	for _, idt := range idts {
		byID[idt.ID] = idt
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	for _, rec := range records {
		idt := byID[rec.SubjectID]
		row := []string{
			idt.DisplayName,
			idt.ExternalRef,
			strconv.FormatInt(rec.SubjectID, 10),
			strconv.FormatInt(rec.CourseID, 10),
			rec.Date.String(),
			string(rec.Status),
			strconv.FormatBool(rec.Synced),
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "writing csv row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}
