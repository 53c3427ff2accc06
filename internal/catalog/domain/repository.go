package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Package, error)
	FindByKey(ctx context.Context, db *gorm.DB, key string) (*Package, error)
	List(ctx context.Context, db *gorm.DB, filter ListRequest) ([]Package, error)
	Insert(ctx context.Context, db *gorm.DB, pkg *Package) (bool, error)
}
