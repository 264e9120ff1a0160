package db

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"
)

// SeedDefaultRoles upserts the default roles into INSIGHT.ROLE.
func (d *DB) SeedDefaultRoles(ctx context.Context) error {
	// ANALYZER is the self-registration role; ADMIN is assigned out of
	// band.
	roles := []Role{
		{
			Code:        "ADMIN",
			Name:        "Administrator",
			Description: "Administrator role",
		},
		{
			Code:        "ANALYZER",
			Name:        "Analyzer",
			Description: "Log analyzer role",
		},
	}

	for _, r := range roles {
		role := r // copy to avoid loop variable capture
		if err := d.Gorm.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "code"}},
				DoNothing: true, // do not overwrite existing roles
			}).
			Create(&role).Error; err != nil {
			return fmt.Errorf("seed role %s: %w", role.Code, err)
		}
	}
	return nil
}
