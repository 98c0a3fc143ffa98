package editor

import (
	"context"

	"inkwell/api/internal/store"
)

// Holder is a user with an open, not-yet-saved editing session on an
// article, as advertised by their Resume Pointer.
type Holder struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// ConflictDetector answers "who is currently writing this article" before an
// admin opens an overseer session. The signal is advisory: it warns, it does
// not lock.
type ConflictDetector struct {
	store DocumentStore
}

func NewConflictDetector(documents DocumentStore) *ConflictDetector {
	return &ConflictDetector{store: documents}
}

// Check lists the active holders of articleID, excluding the requesting user
// so an admin resuming their own session is not warned about themselves.
func (d *ConflictDetector) Check(ctx context.Context, articleID, requestingUserID string) ([]Holder, error) {
	users, err := d.store.ListUsersByResumePointer(ctx, articleID)
	if err != nil {
		return nil, err
	}
	holders := make([]Holder, 0, len(users))
	for _, u := range users {
		if u.ID == requestingUserID {
			continue
		}
		holders = append(holders, holderFromUser(u))
	}
	return holders, nil
}

func holderFromUser(u store.User) Holder {
	return Holder{UserID: u.ID, DisplayName: u.DisplayName, Email: u.Email}
}
