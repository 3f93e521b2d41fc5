package auth

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jimdaga/givethnotes/internal/apierr"
	"github.com/jimdaga/givethnotes/internal/models"
)

// Users maps external identities to user rows.
type Users struct {
	db *gorm.DB
}

// NewUsers creates a user resolver backed by db.
func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

// FindOrCreate returns the user for externalID, creating it on first sight.
// Concurrent first requests of one identity resolve to the same row.
func (u *Users) FindOrCreate(ctx context.Context, externalID, email string) (*models.User, error) {
	db := u.db.WithContext(ctx)

	var user models.User
	err := db.Where("external_id = ?", externalID).Limit(1).Find(&user).Error
	if err != nil {
		return nil, apierr.Persistence("lookup user", err)
	}
	if user.ID != 0 {
		if email != "" && user.Email != email {
			if err := db.Model(&user).Update("email", email).Error; err != nil {
				return nil, apierr.Persistence("update user email", err)
			}
			user.Email = email
		}
		return &user, nil
	}

	user = models.User{ExternalID: externalID, Email: email}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoNothing: true,
	}).Create(&user).Error; err != nil {
		return nil, apierr.Persistence("create user", err)
	}
	if user.ID != 0 {
		return &user, nil
	}

	// Lost the insert race; the other request's row is committed.
	if err := db.Where("external_id = ?", externalID).Take(&user).Error; err != nil {
		return nil, apierr.Persistence("lookup user", err)
	}
	return &user, nil
}
