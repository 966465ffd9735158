package identity

import (
	"time"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/face"
)

// EnrolledIdentity is a subject whose face descriptor is available for matching.
// ID is the subject's portal ID; ExternalRef is the human reference (roll number) and the enrollment key.
type EnrolledIdentity struct {
	ID            int64           `json:"id" db:"id"`
	ExternalRef   string          `json:"externalRef" db:"external_ref"`
	DisplayName   string          `json:"displayName" db:"display_name"`
	Descriptor    face.Descriptor `json:"descriptor" db:"-"`
	NotifyAddress string          `json:"notifyAddress,omitempty" db:"notify_address"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" db:"updated_at"`
}

func (idt EnrolledIdentity) HasNotifyAddress() bool { return idt.NotifyAddress != "" }

// NewIdentity defines what information may be provided to enroll (or re-enroll) a subject.
type NewIdentity struct {
	ID            int64           `json:"id" validate:"required,dbid"`
	ExternalRef   string          `json:"externalRef" validate:"required,max=64"`
	DisplayName   string          `json:"displayName" validate:"required,max=255"`
	Descriptor    face.Descriptor `json:"descriptor" validate:"descriptor"`
	NotifyAddress string          `json:"notifyAddress" validate:"omitempty,notifyaddr"`
}

func (ni *NewIdentity) Clean() {
	ni.ExternalRef = core.CleanString(ni.ExternalRef)
	ni.DisplayName = core.CleanString(ni.DisplayName)
	ni.NotifyAddress = core.CleanString(ni.NotifyAddress)
}

func (ni NewIdentity) Identity() EnrolledIdentity {
	return EnrolledIdentity{
		ID:            ni.ID,
		ExternalRef:   ni.ExternalRef,
		DisplayName:   ni.DisplayName,
		Descriptor:    ni.Descriptor.Clone(),
		NotifyAddress: ni.NotifyAddress,
	}
}
